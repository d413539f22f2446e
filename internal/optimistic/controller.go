package optimistic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/machine"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
	syncx "github.com/ariefcatur/go-market-sync.git/internal/sync"
	"github.com/google/uuid"
	gosync "sync"
)

// Hub is the slice of the sync hub the controller needs. Satisfied by
// *sync.Hub.
type Hub interface {
	MarkLocal(topic, correlationID string)
}

// Controller gives the illusion of instantaneous writes while the remote store
// stays the single source of truth. Every mutation follows the same shape:
// snapshot (or correlation id) -> apply to the local projection as
// pending-confirmation -> authoritative write -> promote on confirmation or
// revert exactly on failure. Only the apply/revert projections differ per
// call site.
type Controller struct {
	Store          store.Store
	Machine        *machine.OrderStateMachine
	Hub            Hub
	UserID         string
	ConfirmTimeout time.Duration // echo wait before the direct response counts as confirmation

	mu      gosync.Mutex
	view    view
	pending map[string]*pendingMutation
}

// view is the local projection all screens share. In-flight mutations from a
// closed screen still reconcile against it, so navigation never loses state.
type view struct {
	orders     map[string]market.Order
	messages   map[string][]market.Message // by conversation id
	likeCounts map[string]int64
	liked      map[string]bool // products liked by UserID
	follows    map[string]bool // users followed by UserID
	profiles   map[string]market.SellerProfile
}

type pendingMutation struct {
	topic   string
	corr    string
	promote func() // mark the projected entry confirmed
	timer   *time.Timer
}

func NewController(s store.Store, sm *machine.OrderStateMachine, hub Hub, userID string, confirmTimeout time.Duration) *Controller {
	if confirmTimeout <= 0 {
		confirmTimeout = 3 * time.Second
	}
	return &Controller{
		Store:          s,
		Machine:        sm,
		Hub:            hub,
		UserID:         userID,
		ConfirmTimeout: confirmTimeout,
		view: view{
			orders:     make(map[string]market.Order),
			messages:   make(map[string][]market.Message),
			likeCounts: make(map[string]int64),
			liked:      make(map[string]bool),
			follows:    make(map[string]bool),
			profiles:   make(map[string]market.SellerProfile),
		},
		pending: make(map[string]*pendingMutation),
	}
}

// OnEcho is wired into the hub's echo hook: the feed confirmed a pending
// mutation, promote it now instead of waiting out the timeout.
func (c *Controller) OnEcho(topic, correlationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.promoteLocked(correlationID)
}

func (c *Controller) promoteLocked(corr string) {
	p := c.pending[corr]
	if p == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	p.promote()
	delete(c.pending, corr)
}

// track registers a pending mutation and arms the confirmation timeout. The
// timeout never rolls anything back; a slow echo just means the direct write
// response stands as confirmation.
func (c *Controller) track(topic, corr string, promote func()) {
	p := &pendingMutation{topic: topic, corr: corr, promote: promote}
	p.timer = time.AfterFunc(c.ConfirmTimeout, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.promoteLocked(corr)
	})
	c.pending[corr] = p
	c.Hub.MarkLocal(topic, corr)
}

func (c *Controller) dropPending(corr string) {
	if p := c.pending[corr]; p != nil {
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(c.pending, corr)
	}
}

// ---- call sites ----

// ToggleLike flips the caller's like on a product. The count and liked flag
// move immediately; a failed write restores the exact pre-toggle snapshot.
func (c *Controller) ToggleLike(ctx context.Context, productID string) error {
	topic := market.ProductLikesTopic(productID)
	corr := market.LikeCorrelation(c.UserID, productID)

	c.mu.Lock()
	prevLiked := c.view.liked[productID]
	prevCount := c.view.likeCounts[productID]

	c.view.liked[productID] = !prevLiked
	if prevLiked {
		c.view.likeCounts[productID] = prevCount - 1
	} else {
		c.view.likeCounts[productID] = prevCount + 1
	}
	c.track(topic, corr, func() {})
	c.mu.Unlock()

	liked, count, err := c.Store.ToggleLike(ctx, c.UserID, productID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.view.liked[productID] = prevLiked
		c.view.likeCounts[productID] = prevCount
		c.dropPending(corr)
		return err
	}
	// direct response is authoritative for the aggregate
	c.view.liked[productID] = liked
	c.view.likeCounts[productID] = count
	return nil
}

// SetFollow follows or unfollows a user. Inserting an existing pair or
// deleting a missing one is a no-op server-side, so the toggle is idempotent.
func (c *Controller) SetFollow(ctx context.Context, followingID string, on bool) error {
	if followingID == c.UserID {
		return fmt.Errorf("%w: cannot follow yourself", market.ErrValidation)
	}
	topic := market.ProfileTopic(followingID)
	corr := market.FollowCorrelation(c.UserID, followingID)

	c.mu.Lock()
	prev := c.view.follows[followingID]
	c.view.follows[followingID] = on
	c.track(topic, corr, func() {})
	c.mu.Unlock()

	err := c.Store.SetFollow(ctx, c.UserID, followingID, on)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.view.follows[followingID] = prev
		c.dropPending(corr)
		return err
	}
	return nil
}

// SendMessage appends the message locally under a temp id, then issues the
// write. The temp copy is replaced, never merged, once the permanent copy is
// known; a failed write removes it without a trace.
func (c *Controller) SendMessage(ctx context.Context, conversationID, body string) (market.Message, error) {
	if body == "" {
		return market.Message{}, fmt.Errorf("%w: empty message body", market.ErrValidation)
	}
	topic := market.ConversationTopic(conversationID)
	tempID := uuid.NewString()
	corr := market.MessageCorrelation(tempID)

	local := market.Message{
		ID:             tempID,
		ConversationID: conversationID,
		SenderID:       c.UserID,
		Body:           body,
		CreatedAt:      time.Now().UTC(),
		Optimistic:     true,
	}

	c.mu.Lock()
	c.view.messages[conversationID] = append(c.view.messages[conversationID], local)
	c.track(topic, corr, func() { c.confirmMessage(conversationID, tempID) })
	c.mu.Unlock()

	persisted, err := c.Store.InsertMessage(ctx, conversationID, c.UserID, body, tempID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.removeMessage(conversationID, tempID)
		c.dropPending(corr)
		return market.Message{}, err
	}

	// replace the temp copy with the permanent one; confirmation state is
	// settled by the echo or the timeout
	msgs := c.view.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == tempID {
			optimistic := msgs[i].Optimistic
			msgs[i] = persisted
			msgs[i].Optimistic = optimistic
			break
		}
	}
	// if the echo already promoted the temp copy, the pending entry is gone
	// and the Optimistic flag carried over above; otherwise retarget the
	// promotion at the permanent id
	if p := c.pending[corr]; p != nil {
		p.promote = func() { c.confirmMessage(conversationID, persisted.ID) }
	}
	return persisted, nil
}

// TransitionOrder validates against the state machine first, so an illegal
// edge never reaches the network, then applies the target status optimistically
// and issues the write guarded by the status this client observed.
// ErrStaleState reverts and re-fetches so the caller can re-evaluate; it is
// never retried blindly here.
func (c *Controller) TransitionOrder(ctx context.Context, orderID string, actor market.Role, target market.Status) (market.Order, error) {
	topic := market.OrderTopic(orderID)
	corr := market.OrderTransitionCorrelation(orderID, target)

	snapshot, err := c.observedOrder(ctx, orderID)
	if err != nil {
		return market.Order{}, err
	}

	c.mu.Lock()
	if !market.CanTransition(snapshot.Status, target, actor) {
		c.mu.Unlock()
		return market.Order{}, fmt.Errorf("%w: %s -> %s by %s", market.ErrIllegalTransition, snapshot.Status, target, actor)
	}
	o := snapshot
	o.Status = target
	c.view.orders[orderID] = o
	c.track(topic, corr, func() {})
	c.mu.Unlock()

	updated, err := c.Machine.Transition(ctx, orderID, actor, snapshot.Status, target)

	c.mu.Lock()
	if err != nil {
		c.view.orders[orderID] = snapshot
		c.dropPending(corr)
		c.mu.Unlock()

		if errors.Is(err, market.ErrStaleState) {
			// lost the race: refresh the projection with whatever won
			if cur, ferr := c.Store.GetOrder(ctx, orderID); ferr == nil {
				c.mu.Lock()
				c.view.orders[orderID] = cur
				c.mu.Unlock()
			}
		}
		return market.Order{}, err
	}
	c.view.orders[orderID] = updated
	c.mu.Unlock()
	return updated, nil
}

// FileDispute is the dispute branch: validated, then driven through the same
// guarded write path as any other transition.
func (c *Controller) FileDispute(ctx context.Context, orderID, reason, description string) (market.Dispute, error) {
	topic := market.OrderTopic(orderID)
	corr := market.OrderTransitionCorrelation(orderID, market.StatusCancelled)

	snapshot, err := c.observedOrder(ctx, orderID)
	if err != nil {
		return market.Dispute{}, err
	}

	c.mu.Lock()
	if !market.IsDisputable(snapshot.Status) {
		c.mu.Unlock()
		return market.Dispute{}, fmt.Errorf("%w: cannot dispute order in %s", market.ErrIllegalTransition, snapshot.Status)
	}
	o := snapshot
	o.Status = market.StatusCancelled
	c.view.orders[orderID] = o
	c.track(topic, corr, func() {})
	c.mu.Unlock()

	d, err := c.Machine.FileDispute(ctx, orderID, c.UserID, reason, description, snapshot.Status)

	c.mu.Lock()
	if err != nil {
		c.view.orders[orderID] = snapshot
		c.dropPending(corr)
		c.mu.Unlock()

		if errors.Is(err, market.ErrStaleState) {
			if cur, ferr := c.Store.GetOrder(ctx, orderID); ferr == nil {
				c.mu.Lock()
				c.view.orders[orderID] = cur
				c.mu.Unlock()
			}
		}
		return market.Dispute{}, err
	}
	c.mu.Unlock()
	return d, nil
}

// observedOrder returns the status vantage point for a guarded write: the
// projection when the order is already synced, otherwise a fresh fetch that
// also seeds the projection.
func (c *Controller) observedOrder(ctx context.Context, orderID string) (market.Order, error) {
	c.mu.Lock()
	if o, ok := c.view.orders[orderID]; ok {
		c.mu.Unlock()
		return o, nil
	}
	c.mu.Unlock()

	o, err := c.Store.GetOrder(ctx, orderID)
	if err != nil {
		return market.Order{}, err
	}
	c.mu.Lock()
	if cur, ok := c.view.orders[orderID]; ok {
		// a feed event landed meanwhile; its view wins
		o = cur
	} else {
		c.view.orders[orderID] = o
	}
	c.mu.Unlock()
	return o, nil
}

func (c *Controller) confirmMessage(conversationID, id string) {
	msgs := c.view.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == id {
			msgs[i].Optimistic = false
			return
		}
	}
}

func (c *Controller) removeMessage(conversationID, id string) {
	msgs := c.view.messages[conversationID]
	for i := range msgs {
		if msgs[i].ID == id {
			c.view.messages[conversationID] = append(msgs[:i], msgs[i+1:]...)
			return
		}
	}
}

// ---- projection reads ----

func (c *Controller) Order(orderID string) (market.Order, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.view.orders[orderID]
	return o, ok
}

func (c *Controller) Messages(conversationID string) []market.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.view.messages[conversationID]
	out := make([]market.Message, len(msgs))
	copy(out, msgs)
	return out
}

func (c *Controller) LikeCount(productID string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.likeCounts[productID]
}

func (c *Controller) Liked(productID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.liked[productID]
}

func (c *Controller) Following(userID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.follows[userID]
}

func (c *Controller) Profile(userID string) (market.SellerProfile, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.view.profiles[userID]
	return p, ok
}

// Consume drains a hub handle into the projection until the handle closes or
// ctx is done. One goroutine per subscription; the hub guarantees per-topic
// order on the channel.
func (c *Controller) Consume(ctx context.Context, hd *syncx.Handle) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-hd.Events():
			if !ok {
				return
			}
			c.apply(env)
		}
	}
}
