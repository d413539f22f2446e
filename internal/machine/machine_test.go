package machine

import (
	"context"
	"testing"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/ledger"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, s *store.Memory, status market.Status) market.Order {
	t.Helper()
	o := market.Order{
		ID:         "o1",
		BuyerID:    "buyer",
		SellerID:   "seller",
		Status:     status,
		TotalCents: 10000,
		ChatRef:    "conv1",
		CreatedAt:  time.Now().UTC(),
	}
	s.PutOrder(o)
	return o
}

func TestTransitionHappyPath(t *testing.T) {
	s := store.NewMemory()
	s.PutProfile(market.SellerProfile{UserID: "seller", LoyaltyEnabled: true, LoyaltyPercentage: 5})
	seedOrder(t, s, market.StatusPending)
	sm := New(s)
	ctx := context.Background()

	o, err := sm.Transition(ctx, "o1", market.RoleSeller, market.StatusPending, market.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, market.StatusConfirmed, o.Status)

	o, err = sm.Transition(ctx, "o1", market.RoleSeller, market.StatusConfirmed, market.StatusDelivered)
	require.NoError(t, err)
	assert.Equal(t, market.StatusDelivered, o.Status)

	o, err = sm.Transition(ctx, "o1", market.RoleBuyer, market.StatusDelivered, market.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, market.StatusCompleted, o.Status)
}

func TestIllegalTransitionNeverReachesStore(t *testing.T) {
	s := store.NewMemory()
	seedOrder(t, s, market.StatusPending)
	sm := New(s)

	// buyer cannot confirm
	_, err := sm.Transition(context.Background(), "o1", market.RoleBuyer, market.StatusPending, market.StatusConfirmed)
	assert.ErrorIs(t, err, market.ErrIllegalTransition)

	// skipping a state is illegal
	_, err = sm.Transition(context.Background(), "o1", market.RoleSeller, market.StatusPending, market.StatusDelivered)
	assert.ErrorIs(t, err, market.ErrIllegalTransition)

	o, _ := s.GetOrder(context.Background(), "o1")
	assert.Equal(t, market.StatusPending, o.Status, "store untouched after rejected transition")
}

func TestStaleObservedStatusSurfacesAsStaleState(t *testing.T) {
	// the caller observed PENDING but the server already moved to CONFIRMED:
	// the legal-looking edge must fail the guarded write with stale state,
	// never an illegal-transition error against state the caller never saw
	s := store.NewMemory()
	seedOrder(t, s, market.StatusConfirmed)
	sm := New(s)

	_, err := sm.Transition(context.Background(), "o1", market.RoleSeller, market.StatusPending, market.StatusConfirmed)
	assert.ErrorIs(t, err, market.ErrStaleState)

	o, _ := s.GetOrder(context.Background(), "o1")
	assert.Equal(t, market.StatusConfirmed, o.Status)
}

func TestFinalizeCompletionOnce(t *testing.T) {
	s := store.NewMemory()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.Now = func() time.Time { return fixed }
	s.PutProfile(market.SellerProfile{UserID: "seller", LoyaltyEnabled: true, LoyaltyPercentage: 5})
	seedOrder(t, s, market.StatusDelivered)
	sm := New(s)
	ctx := context.Background()

	_, err := sm.Transition(ctx, "o1", market.RoleBuyer, market.StatusDelivered, market.StatusCompleted)
	require.NoError(t, err)

	// escrow: held once, eligible exactly one hold window after completion
	rec, err := s.GetEscrow(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), rec.HeldCents)
	assert.Equal(t, market.PayoutPending, rec.PayoutStatus)
	assert.Equal(t, fixed.Add(ledger.HoldDuration), rec.ReleaseEligibleAt)

	// loyalty: 10000 * 5% = 500, exactly one entry
	entries := s.LoyaltyEntries("o1")
	require.Len(t, entries, 1)
	assert.Equal(t, int64(500), entries[0].IssuedCents)

	// system message appended to the linked conversation
	msgs, err := s.ListMessages(ctx, "conv1", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "system", msgs[0].SenderID)

	// a replayed finalize must not double anything
	require.NoError(t, s.FinalizeCompletion(ctx, "o1"))
	assert.Len(t, s.LoyaltyEntries("o1"), 1)
}

func TestLoyaltyDisabledSellerGetsNoEntry(t *testing.T) {
	s := store.NewMemory()
	s.PutProfile(market.SellerProfile{UserID: "seller", LoyaltyEnabled: false, LoyaltyPercentage: 5})
	seedOrder(t, s, market.StatusDelivered)
	sm := New(s)

	_, err := sm.Transition(context.Background(), "o1", market.RoleBuyer, market.StatusDelivered, market.StatusCompleted)
	require.NoError(t, err)
	assert.Empty(t, s.LoyaltyEntries("o1"))
}

func TestConcurrentTransitionOneWins(t *testing.T) {
	// seller confirms while buyer disputes the same pending order: exactly one
	// guarded write lands, the loser sees stale state
	s := store.NewMemory()
	seedOrder(t, s, market.StatusPending)
	sm := New(s)
	ctx := context.Background()

	_, confirmErr := sm.Transition(ctx, "o1", market.RoleSeller, market.StatusPending, market.StatusConfirmed)
	require.NoError(t, confirmErr)

	_, disputeErr := sm.FileDispute(ctx, "o1", "buyer", "never arrived", "", market.StatusPending)
	assert.ErrorIs(t, disputeErr, market.ErrStaleState)

	o, _ := s.GetOrder(ctx, "o1")
	assert.Equal(t, market.StatusConfirmed, o.Status)
	_, open := s.Dispute("o1")
	assert.False(t, open, "losing dispute must leave no record")
}

func TestFileDispute(t *testing.T) {
	s := store.NewMemory()
	seedOrder(t, s, market.StatusConfirmed)
	sm := New(s)
	ctx := context.Background()

	d, err := sm.FileDispute(ctx, "o1", "buyer", "not as described", "item arrived broken", market.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, market.DisputeOpen, d.Status)

	o, _ := s.GetOrder(ctx, "o1")
	assert.Equal(t, market.StatusCancelled, o.Status)

	// terminal orders cannot be disputed again
	_, err = sm.FileDispute(ctx, "o1", "buyer", "still broken", "", market.StatusCancelled)
	assert.ErrorIs(t, err, market.ErrIllegalTransition)

	// empty reason rejected before any write
	s2 := store.NewMemory()
	seedOrder(t, s2, market.StatusPending)
	_, err = New(s2).FileDispute(ctx, "o1", "buyer", "  ", "", market.StatusPending)
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestApplyIgnoresBackwardEvents(t *testing.T) {
	o := market.Order{ID: "o1", Status: market.StatusCompleted}
	out := Apply(o, market.OrderStatusChangedPayload{
		OrderID: "o1", From: market.StatusCompleted, To: market.StatusConfirmed, Actor: market.RoleSeller,
	})
	assert.Equal(t, market.StatusCompleted, out.Status)

	out = Apply(o, market.OrderStatusChangedPayload{
		OrderID: "other", To: market.StatusCancelled, Actor: market.RoleDispute,
	})
	assert.Equal(t, market.StatusCompleted, out.Status)

	// a payload with no actor must never traverse any edge
	out = Apply(o, market.OrderStatusChangedPayload{
		OrderID: "o1", From: market.StatusCompleted, To: market.StatusConfirmed,
	})
	assert.Equal(t, market.StatusCompleted, out.Status)
}
