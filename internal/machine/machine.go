package machine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
)

// OrderStateMachine validates and executes order status transitions. Validation
// happens before any network write, so illegal edges never reach the store; the
// write itself is conditional on the observed status (CAS), so a lost race
// surfaces as market.ErrStaleState instead of clobbering a concurrent change.
type OrderStateMachine struct {
	Store store.Store
}

func New(s store.Store) *OrderStateMachine {
	return &OrderStateMachine{Store: s}
}

// Transition moves an order from the status the caller observed to target on
// behalf of actor. Validation runs against the observed status, never a fresh
// read: if the server has since moved on, the CAS write misses and the caller
// gets market.ErrStaleState, not a phantom illegal-transition against state it
// never saw. On the COMPLETED edge it additionally invokes the server-side
// finalize procedure (escrow + loyalty entry + system message, one atomic unit).
func (sm *OrderStateMachine) Transition(ctx context.Context, orderID string, actor market.Role, observed, target market.Status) (market.Order, error) {
	if !market.ValidStatus(target) {
		return market.Order{}, fmt.Errorf("%w: unknown status %q", market.ErrValidation, target)
	}
	if !market.CanTransition(observed, target, actor) {
		return market.Order{}, fmt.Errorf("%w: %s -> %s by %s", market.ErrIllegalTransition, observed, target, actor)
	}

	updated, err := sm.Store.UpdateOrderStatus(ctx, orderID, observed, target)
	if err != nil {
		return market.Order{}, err
	}

	if target == market.StatusCompleted {
		if err := sm.Store.FinalizeCompletion(ctx, orderID); err != nil {
			return market.Order{}, fmt.Errorf("finalize completion: %w", err)
		}
	}
	return updated, nil
}

// FileDispute drives a non-terminal order to CANCELLED and opens a dispute
// record. The cancel, the dispute row and the escrow freeze are one atomic
// store call guarded by the observed status, so a failure leaves no
// cancelled-but-undisputed order behind.
func (sm *OrderStateMachine) FileDispute(ctx context.Context, orderID, initiatorID, reason, description string, observed market.Status) (market.Dispute, error) {
	if strings.TrimSpace(reason) == "" {
		return market.Dispute{}, fmt.Errorf("%w: dispute reason required", market.ErrValidation)
	}
	if !market.IsDisputable(observed) {
		return market.Dispute{}, fmt.Errorf("%w: cannot dispute order in %s", market.ErrIllegalTransition, observed)
	}
	return sm.Store.FileDispute(ctx, orderID, initiatorID, reason, description, observed)
}

// Apply is the pure (order, event) -> order projection used by the optimistic
// controller. It ignores events that do not advance the order.
func Apply(o market.Order, ev market.OrderStatusChangedPayload) market.Order {
	if ev.OrderID != o.ID {
		return o
	}
	if !market.CanTransition(o.Status, ev.To, ev.Actor) {
		return o
	}
	o.Status = ev.To
	return o
}
