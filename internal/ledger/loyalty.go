package ledger

import (
	"context"
	"fmt"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// CoinIssuance computes the coins issued to the buyer when an order completes:
// floor(total × pct / 100) in minor units. Rate changes apply only to orders
// completed after the change; stored entries are never recomputed.
func CoinIssuance(totalCents, loyaltyPercentage int64) int64 {
	if totalCents <= 0 || loyaltyPercentage <= 0 {
		return 0
	}
	return totalCents * loyaltyPercentage / 100
}

// ValidateRedemption checks a redemption amount against the buyer's coin
// balance at order placement time.
func ValidateRedemption(redeemCents, balanceCents int64) error {
	if redeemCents < 0 {
		return fmt.Errorf("%w: negative redemption", market.ErrValidation)
	}
	if redeemCents > balanceCents {
		return fmt.Errorf("%w: redemption %d exceeds coin balance %d", market.ErrValidation, redeemCents, balanceCents)
	}
	return nil
}

// BalanceStore is the slice of the store the loyalty ledger needs.
type BalanceStore interface {
	CoinBalance(ctx context.Context, sellerID, buyerID string) (int64, error)
}

type Loyalty struct {
	Store BalanceStore
}

// CheckRedemption validates a proposed redemption against the live balance.
func (l *Loyalty) CheckRedemption(ctx context.Context, sellerID, buyerID string, redeemCents int64) error {
	bal, err := l.Store.CoinBalance(ctx, sellerID, buyerID)
	if err != nil {
		return err
	}
	return ValidateRedemption(redeemCents, bal)
}
