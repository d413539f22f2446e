package store

import (
	"context"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// Store is the authoritative remote state store. The Postgres implementation
// lives in postgres.go; tests use in-memory fakes.
type Store interface {
	// Baseline fetches, one per sync topic kind.
	GetOrder(ctx context.Context, orderID string) (market.Order, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]market.Message, error)
	LikeCount(ctx context.Context, productID string) (int64, error)
	GetSellerProfile(ctx context.Context, userID string) (market.SellerProfile, error)

	// UpdateOrderStatus is a conditional write: the UPDATE is guarded by the
	// expected current status and fails with market.ErrStaleState when the
	// guard no longer holds.
	UpdateOrderStatus(ctx context.Context, orderID string, expect, next market.Status) (market.Order, error)

	// FinalizeCompletion invokes the server-side finalize procedure: escrow row,
	// loyalty entry (if the seller has loyalty enabled) and the system message
	// are created in one atomic unit. Never composed client-side.
	FinalizeCompletion(ctx context.Context, orderID string) error

	// FileDispute cancels the order and opens the dispute record in one atomic
	// server-side unit, guarded by the expected current status: the cancel, the
	// dispute row and the escrow freeze land together or not at all. Fails with
	// market.ErrStaleState when the guard no longer holds.
	FileDispute(ctx context.Context, orderID, initiatorID, reason, description string, expect market.Status) (market.Dispute, error)

	// InsertMessage persists a message; clientRef is the client-local temp id
	// the feed echoes back as the event's correlation id.
	InsertMessage(ctx context.Context, conversationID, senderID, body, clientRef string) (market.Message, error)

	// ToggleLike is the idempotent server-side insert-or-delete. Returns the
	// resulting liked state and the post-toggle count.
	ToggleLike(ctx context.Context, userID, productID string) (liked bool, count int64, err error)

	// SetFollow inserts or deletes the (follower, following) pair. Inserting an
	// existing pair or deleting a missing one is a no-op.
	SetFollow(ctx context.Context, followerID, followingID string, on bool) error

	CoinBalance(ctx context.Context, sellerID, buyerID string) (int64, error)

	// SellerSettlementStats runs the aggregation server-side in one query.
	SellerSettlementStats(ctx context.Context, sellerID string) (market.SettlementStats, error)

	GetEscrow(ctx context.Context, orderID string) (market.EscrowRecord, error)

	// ReleaseEscrow flips payout_status PENDING -> RELEASED, guarded so the flip
	// happens at most once and only past release_eligible_at.
	ReleaseEscrow(ctx context.Context, orderID string, now time.Time) (released bool, err error)

	// ListReleasableEscrows returns order ids whose escrow is past the hold
	// window and not frozen; input to the release sweep.
	ListReleasableEscrows(ctx context.Context, now time.Time) ([]string, error)

	// TouchPresence refreshes the caller's liveness timestamp.
	TouchPresence(ctx context.Context, userID string, at time.Time) error
}
