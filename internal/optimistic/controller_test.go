package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/machine"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nopHub records correlation marks without a live feed.
type nopHub struct{ marks []string }

func (h *nopHub) MarkLocal(_, corr string) { h.marks = append(h.marks, corr) }

// failingStore wraps Memory and fails selected writes.
type failingStore struct {
	*store.Memory
	failToggle  bool
	failFollow  bool
	failInsert  bool
	failDispute bool
	staleUpdate bool
}

func (f *failingStore) ToggleLike(ctx context.Context, userID, productID string) (bool, int64, error) {
	if f.failToggle {
		return false, 0, errors.New("write failed")
	}
	return f.Memory.ToggleLike(ctx, userID, productID)
}

func (f *failingStore) SetFollow(ctx context.Context, followerID, followingID string, on bool) error {
	if f.failFollow {
		return errors.New("write failed")
	}
	return f.Memory.SetFollow(ctx, followerID, followingID, on)
}

func (f *failingStore) InsertMessage(ctx context.Context, conversationID, senderID, body, clientRef string) (market.Message, error) {
	if f.failInsert {
		return market.Message{}, errors.New("write failed")
	}
	return f.Memory.InsertMessage(ctx, conversationID, senderID, body, clientRef)
}

func (f *failingStore) FileDispute(ctx context.Context, orderID, initiatorID, reason, description string, expect market.Status) (market.Dispute, error) {
	if f.failDispute {
		return market.Dispute{}, errors.New("write failed")
	}
	return f.Memory.FileDispute(ctx, orderID, initiatorID, reason, description, expect)
}

func (f *failingStore) UpdateOrderStatus(ctx context.Context, orderID string, expect, next market.Status) (market.Order, error) {
	if f.staleUpdate {
		return market.Order{}, market.ErrStaleState
	}
	return f.Memory.UpdateOrderStatus(ctx, orderID, expect, next)
}

func newTestController(fs *failingStore) (*Controller, *nopHub) {
	hub := &nopHub{}
	c := NewController(fs, machine.New(fs), hub, "me", 50*time.Millisecond)
	return c, hub
}

func TestToggleLikeOptimisticAndConfirmed(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	c, hub := newTestController(fs)
	ctx := context.Background()

	require.NoError(t, c.ToggleLike(ctx, "p1"))
	assert.True(t, c.Liked("p1"))
	assert.Equal(t, int64(1), c.LikeCount("p1"))
	assert.Contains(t, hub.marks, market.LikeCorrelation("me", "p1"))

	// like then unlike: count back where it started, no residual record
	require.NoError(t, c.ToggleLike(ctx, "p1"))
	assert.False(t, c.Liked("p1"))
	assert.Equal(t, int64(0), c.LikeCount("p1"))
	n, _ := fs.Memory.LikeCount(ctx, "p1")
	assert.Equal(t, int64(0), n)
}

func TestToggleLikeRevertsOnFailure(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failToggle: true}
	c, _ := newTestController(fs)

	err := c.ToggleLike(context.Background(), "p1")
	require.Error(t, err)
	assert.False(t, c.Liked("p1"), "snapshot restored exactly")
	assert.Equal(t, int64(0), c.LikeCount("p1"))
}

func TestSetFollowRevertsOnFailure(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failFollow: true}
	c, _ := newTestController(fs)

	require.Error(t, c.SetFollow(context.Background(), "them", true))
	assert.False(t, c.Following("them"))

	require.ErrorIs(t, c.SetFollow(context.Background(), "me", true), market.ErrValidation)
}

func TestSendMessageTempIDReplaced(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	c, _ := newTestController(fs)

	persisted, err := c.SendMessage(context.Background(), "conv1", "hello")
	require.NoError(t, err)

	msgs := c.Messages("conv1")
	require.Len(t, msgs, 1, "replaced, never duplicated")
	assert.Equal(t, persisted.ID, msgs[0].ID)
	assert.NotEqual(t, "", persisted.ID)

	// no echo arrives; the timeout promotes the direct response
	require.Eventually(t, func() bool {
		m := c.Messages("conv1")
		return len(m) == 1 && !m[0].Optimistic
	}, time.Second, 10*time.Millisecond)
}

func TestSendMessagePromotedByEcho(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	hub := &nopHub{}
	// long timeout: confirmation must come from the echo, not the timer
	c := NewController(fs, machine.New(fs), hub, "me", time.Hour)

	_, err := c.SendMessage(context.Background(), "conv1", "hello")
	require.NoError(t, err)
	require.Len(t, hub.marks, 1)

	c.OnEcho(market.ConversationTopic("conv1"), hub.marks[0])

	msgs := c.Messages("conv1")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].Optimistic)
}

func TestSnapshotCarryingPendingMessageNoDuplicate(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	hub := &nopHub{}
	// long timeout: the send is still pending when the snapshot lands
	c := NewController(fs, machine.New(fs), hub, "me", time.Hour)

	persisted, err := c.SendMessage(context.Background(), "conv1", "hello")
	require.NoError(t, err)

	// a reconnect baseline already carries the permanent copy
	c.apply(market.Envelope{
		EventType: market.EventConversationSnapshot,
		Payload: market.MustMarshal(market.ConversationSnapshotPayload{
			ConversationID: "conv1",
			Messages: []market.Message{{
				ID: persisted.ID, ConversationID: "conv1", SenderID: "me",
				Body: "hello", CreatedAt: persisted.CreatedAt,
			}},
		}),
	})

	msgs := c.Messages("conv1")
	require.Len(t, msgs, 1, "snapshot copy stands for the pending local copy")
	assert.Equal(t, persisted.ID, msgs[0].ID)
	assert.False(t, msgs[0].Optimistic)
}

func TestStaleSnapshotKeepsConfirmedLocalMessage(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	hub := &nopHub{}
	c := NewController(fs, machine.New(fs), hub, "me", time.Hour)

	persisted, err := c.SendMessage(context.Background(), "conv1", "hello")
	require.NoError(t, err)
	require.Len(t, hub.marks, 1)
	c.OnEcho(market.ConversationTopic("conv1"), hub.marks[0])

	// a baseline fetched before the send arrives late, without the message;
	// its feed echo was already consumed, so dropping it here would lose it
	c.apply(market.Envelope{
		EventType: market.EventConversationSnapshot,
		Payload:   market.MustMarshal(market.ConversationSnapshotPayload{ConversationID: "conv1"}),
	})

	msgs := c.Messages("conv1")
	require.Len(t, msgs, 1, "confirmed local message survives a stale baseline")
	assert.Equal(t, persisted.ID, msgs[0].ID)
	assert.False(t, msgs[0].Optimistic)
}

func TestSendMessageRevertsOnFailure(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failInsert: true}
	c, _ := newTestController(fs)

	_, err := c.SendMessage(context.Background(), "conv1", "hello")
	require.Error(t, err)
	assert.Empty(t, c.Messages("conv1"), "optimistic copy removed without a trace")

	_, err = c.SendMessage(context.Background(), "conv1", "")
	assert.ErrorIs(t, err, market.ErrValidation)
}

func TestTransitionOrderIllegalNeverWrites(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	fs.PutOrder(market.Order{ID: "o1", BuyerID: "me", SellerID: "s", Status: market.StatusPending, TotalCents: 100})
	c, _ := newTestController(fs)

	// load the projection
	c.apply(market.Envelope{
		EventType: market.EventOrderSnapshot,
		Payload: market.MustMarshal(market.OrderSnapshotPayload{
			Order: market.Order{ID: "o1", Status: market.StatusPending},
		}),
	})

	_, err := c.TransitionOrder(context.Background(), "o1", market.RoleBuyer, market.StatusConfirmed)
	assert.ErrorIs(t, err, market.ErrIllegalTransition)

	o, ok := c.Order("o1")
	require.True(t, ok)
	assert.Equal(t, market.StatusPending, o.Status, "projection untouched")
	stored, _ := fs.Memory.GetOrder(context.Background(), "o1")
	assert.Equal(t, market.StatusPending, stored.Status, "store untouched")
}

func TestTransitionOrderStaleRevertsAndRefetches(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), staleUpdate: true}
	// server already moved on to CONFIRMED; our projection still says PENDING
	fs.PutOrder(market.Order{ID: "o1", BuyerID: "b", SellerID: "me", Status: market.StatusConfirmed})
	c, _ := newTestController(fs)
	c.apply(market.Envelope{
		EventType: market.EventOrderSnapshot,
		Payload: market.MustMarshal(market.OrderSnapshotPayload{
			Order: market.Order{ID: "o1", Status: market.StatusPending},
		}),
	})

	_, err := c.TransitionOrder(context.Background(), "o1", market.RoleSeller, market.StatusConfirmed)
	assert.ErrorIs(t, err, market.ErrStaleState)

	// the projection now reflects whatever won the race
	o, ok := c.Order("o1")
	require.True(t, ok)
	assert.Equal(t, market.StatusConfirmed, o.Status)
}

func TestTransitionOrderHappyPath(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory()}
	fs.PutOrder(market.Order{ID: "o1", BuyerID: "b", SellerID: "me", Status: market.StatusPending, TotalCents: 100})
	c, hub := newTestController(fs)

	o, err := c.TransitionOrder(context.Background(), "o1", market.RoleSeller, market.StatusConfirmed)
	require.NoError(t, err)
	assert.Equal(t, market.StatusConfirmed, o.Status)
	assert.Contains(t, hub.marks, market.OrderTransitionCorrelation("o1", market.StatusConfirmed))

	got, ok := c.Order("o1")
	require.True(t, ok)
	assert.Equal(t, market.StatusConfirmed, got.Status)
}

func TestFileDisputeRevertsOnFailure(t *testing.T) {
	fs := &failingStore{Memory: store.NewMemory(), failDispute: true}
	fs.PutOrder(market.Order{ID: "o1", BuyerID: "me", SellerID: "s", Status: market.StatusConfirmed})
	c, _ := newTestController(fs)
	c.apply(market.Envelope{
		EventType: market.EventOrderSnapshot,
		Payload: market.MustMarshal(market.OrderSnapshotPayload{
			Order: market.Order{ID: "o1", Status: market.StatusConfirmed},
		}),
	})

	_, err := c.FileDispute(context.Background(), "o1", "not as described", "")
	require.Error(t, err)

	o, _ := c.Order("o1")
	assert.Equal(t, market.StatusConfirmed, o.Status, "optimistic cancel rolled back")
}

func TestFileDisputeStaleLeavesNoPartialState(t *testing.T) {
	// server already cancelled the order; our stale projection still says
	// CONFIRMED. The guarded dispute write must miss as one unit: no dispute
	// row, no cancelled-without-record half-state, projection refreshed.
	fs := &failingStore{Memory: store.NewMemory()}
	fs.PutOrder(market.Order{ID: "o1", BuyerID: "me", SellerID: "s", Status: market.StatusCancelled})
	c, _ := newTestController(fs)
	c.apply(market.Envelope{
		EventType: market.EventOrderSnapshot,
		Payload: market.MustMarshal(market.OrderSnapshotPayload{
			Order: market.Order{ID: "o1", Status: market.StatusConfirmed},
		}),
	})

	_, err := c.FileDispute(context.Background(), "o1", "not as described", "")
	assert.ErrorIs(t, err, market.ErrStaleState)

	_, open := fs.Memory.Dispute("o1")
	assert.False(t, open, "no dispute record after the guard missed")
	o, _ := c.Order("o1")
	assert.Equal(t, market.StatusCancelled, o.Status, "projection reflects the winner")
}
