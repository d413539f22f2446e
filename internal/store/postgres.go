package store

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements Store against the marketplace schema.
type Postgres struct{ DB *pgxpool.Pool }

func (s *Postgres) GetOrder(ctx context.Context, orderID string) (market.Order, error) {
	var o market.Order
	err := s.DB.QueryRow(ctx, `
		SELECT id, user_id, seller_id, status, total_cents, coin_redeemed, chat_ref, created_at, updated_at
		FROM orders WHERE id=$1`, orderID).
		Scan(&o.ID, &o.BuyerID, &o.SellerID, &o.Status, &o.TotalCents, &o.CoinRedeemed, &o.ChatRef, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Order{}, market.ErrNotFound
	}
	return o, err
}

// UpdateOrderStatus: compare-and-swap on the current status. Zero rows affected
// means another actor won the race -> ErrStaleState, caller must re-fetch.
func (s *Postgres) UpdateOrderStatus(ctx context.Context, orderID string, expect, next market.Status) (market.Order, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE orders SET status=$3, updated_at=now()
		WHERE id=$1 AND status=$2`, orderID, string(expect), string(next))
	if err != nil {
		return market.Order{}, err
	}
	if ct.RowsAffected() != 1 {
		return market.Order{}, market.ErrStaleState
	}
	return s.GetOrder(ctx, orderID)
}

// FinalizeCompletion: single stored-procedure call; escrow + loyalty entry +
// system message are one atomic unit on the server.
func (s *Postgres) FinalizeCompletion(ctx context.Context, orderID string) error {
	_, err := s.DB.Exec(ctx, `SELECT finalize_order_completion($1)`, orderID)
	return err
}

// FileDispute: single stored-procedure call. The procedure cancels the order
// guarded by the expected status, inserts the dispute row and freezes the
// escrow in one transaction; zero rows back means the guard lost the race.
func (s *Postgres) FileDispute(ctx context.Context, orderID, initiatorID, reason, description string, expect market.Status) (market.Dispute, error) {
	var d market.Dispute
	err := s.DB.QueryRow(ctx, `
		SELECT id, order_id, initiator_id, reason, description, status, created_at
		FROM file_order_dispute($1,$2,$3,$4,$5)`, orderID, initiatorID, reason, description, string(expect)).
		Scan(&d.ID, &d.OrderID, &d.InitiatorID, &d.Reason, &d.Description, &d.Status, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.Dispute{}, market.ErrStaleState
	}
	return d, err
}

func (s *Postgres) ListMessages(ctx context.Context, conversationID string, limit int) ([]market.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.Query(ctx, `
		SELECT id, conversation_id, sender_id, body, created_at
		FROM messages WHERE conversation_id=$1
		ORDER BY created_at DESC LIMIT $2`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Message
	for rows.Next() {
		var m market.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Postgres) InsertMessage(ctx context.Context, conversationID, senderID, body, clientRef string) (market.Message, error) {
	var m market.Message
	err := s.DB.QueryRow(ctx, `
		INSERT INTO messages(conversation_id, sender_id, body, client_ref)
		VALUES ($1,$2,$3,$4)
		RETURNING id, conversation_id, sender_id, body, created_at`,
		conversationID, senderID, body, clientRef).
		Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.CreatedAt)
	return m, err
}

func (s *Postgres) LikeCount(ctx context.Context, productID string) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM product_likes WHERE product_id=$1`, productID).Scan(&n)
	return n, err
}

// ToggleLike: idempotent insert-or-delete as one server-side call.
func (s *Postgres) ToggleLike(ctx context.Context, userID, productID string) (bool, int64, error) {
	var liked bool
	var count int64
	err := s.DB.QueryRow(ctx, `SELECT liked, like_count FROM toggle_product_like($1,$2)`,
		userID, productID).Scan(&liked, &count)
	return liked, count, err
}

func (s *Postgres) SetFollow(ctx context.Context, followerID, followingID string, on bool) error {
	if on {
		_, err := s.DB.Exec(ctx, `
			INSERT INTO follows(follower_id, following_id)
			VALUES ($1,$2)
			ON CONFLICT (follower_id, following_id) DO NOTHING`, followerID, followingID)
		return err
	}
	_, err := s.DB.Exec(ctx, `
		DELETE FROM follows WHERE follower_id=$1 AND following_id=$2`, followerID, followingID)
	return err
}

func (s *Postgres) GetSellerProfile(ctx context.Context, userID string) (market.SellerProfile, error) {
	var p market.SellerProfile
	err := s.DB.QueryRow(ctx, `
		SELECT user_id, loyalty_enabled, loyalty_percentage, updated_at
		FROM profiles WHERE user_id=$1`, userID).
		Scan(&p.UserID, &p.LoyaltyEnabled, &p.LoyaltyPercentage, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.SellerProfile{}, market.ErrNotFound
	}
	return p, err
}

func (s *Postgres) CoinBalance(ctx context.Context, sellerID, buyerID string) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `
		SELECT COALESCE(SUM(issued_cents - redeemed_cents), 0)
		FROM loyalty_ledger WHERE seller_id=$1 AND buyer_id=$2`, sellerID, buyerID).Scan(&n)
	return n, err
}

// SellerSettlementStats: one aggregation query server-side. Never implemented
// as a client-side fold over historical orders.
func (s *Postgres) SellerSettlementStats(ctx context.Context, sellerID string) (market.SettlementStats, error) {
	st := market.SettlementStats{SellerID: sellerID}
	err := s.DB.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(p.amount) FILTER (WHERE p.payout_status='RELEASED'), 0),
			COALESCE(SUM(p.amount) FILTER (WHERE p.payout_status='PENDING'), 0),
			COUNT(*) FILTER (WHERE p.payout_status='PENDING')
		FROM payouts p
		JOIN orders o ON o.id = p.order_id
		WHERE o.seller_id=$1`, sellerID).
		Scan(&st.ReleasedCents, &st.HeldCents, &st.HeldOrders)
	return st, err
}

func (s *Postgres) GetEscrow(ctx context.Context, orderID string) (market.EscrowRecord, error) {
	var e market.EscrowRecord
	err := s.DB.QueryRow(ctx, `
		SELECT order_id, amount, payout_status, release_eligible_at, frozen
		FROM payouts WHERE order_id=$1`, orderID).
		Scan(&e.OrderID, &e.HeldCents, &e.PayoutStatus, &e.ReleaseEligibleAt, &e.Frozen)
	if errors.Is(err, pgx.ErrNoRows) {
		return market.EscrowRecord{}, market.ErrNotFound
	}
	return e, err
}

// ReleaseEscrow: guarded flip, at most once per order. Frozen escrow (open
// dispute) is never released.
func (s *Postgres) ReleaseEscrow(ctx context.Context, orderID string, now time.Time) (bool, error) {
	ct, err := s.DB.Exec(ctx, `
		UPDATE payouts SET payout_status='RELEASED', released_at=$2
		WHERE order_id=$1 AND payout_status='PENDING' AND NOT frozen AND release_eligible_at <= $2`,
		orderID, now)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

func (s *Postgres) ListReleasableEscrows(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT order_id FROM payouts
		WHERE payout_status='PENDING' AND NOT frozen AND release_eligible_at <= $1
		ORDER BY release_eligible_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Postgres) TouchPresence(ctx context.Context, userID string, at time.Time) error {
	_, err := s.DB.Exec(ctx, `UPDATE profiles SET last_seen_at=$2 WHERE user_id=$1`, userID, at)
	return err
}
