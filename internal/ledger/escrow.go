package ledger

import (
	"context"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// HoldDuration is the settlement window between order completion and payout
// eligibility.
const HoldDuration = time.Hour

// ReleaseEligible reports whether a held payout may be released at `now`.
// Frozen records (open dispute) are never eligible.
func ReleaseEligible(rec market.EscrowRecord, now time.Time) bool {
	return rec.PayoutStatus == market.PayoutPending && !rec.Frozen && !now.Before(rec.ReleaseEligibleAt)
}

// SettlementStore is the slice of the store the escrow ledger needs.
type SettlementStore interface {
	SellerSettlementStats(ctx context.Context, sellerID string) (market.SettlementStats, error)
	ReleaseEscrow(ctx context.Context, orderID string, now time.Time) (bool, error)
	ListReleasableEscrows(ctx context.Context, now time.Time) ([]string, error)
}

// Escrow exposes settlement queries and the release sweep over the store.
type Escrow struct {
	Store SettlementStore
	Now   func() time.Time
}

func NewEscrow(s SettlementStore) *Escrow {
	return &Escrow{Store: s, Now: time.Now}
}

// SettlementStats delegates to the server-side aggregation; the client never
// folds over historical orders.
func (e *Escrow) SettlementStats(ctx context.Context, sellerID string) (market.SettlementStats, error) {
	return e.Store.SellerSettlementStats(ctx, sellerID)
}

// Release attempts the PENDING -> RELEASED flip for one order. A false return
// with nil error means the record was not eligible (already released, frozen,
// or still inside the hold window).
func (e *Escrow) Release(ctx context.Context, orderID string) (bool, error) {
	return e.Store.ReleaseEscrow(ctx, orderID, e.Now().UTC())
}

// Sweep releases every escrow past its hold window. The guarded flip in the
// store makes a concurrent sweep harmless: each record releases at most once.
func (e *Escrow) Sweep(ctx context.Context) (int, error) {
	now := e.Now().UTC()
	ids, err := e.Store.ListReleasableEscrows(ctx, now)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, id := range ids {
		ok, err := e.Store.ReleaseEscrow(ctx, id, now)
		if err != nil {
			return released, err
		}
		if ok {
			released++
		}
	}
	return released, nil
}
