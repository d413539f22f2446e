package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/feed"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// Baseliner fetches the authoritative snapshot for a topic, rendered as
// snapshot envelopes delivered ahead of live feed events.
type Baseliner func(ctx context.Context, topic string) ([]market.Envelope, error)

type Config struct {
	BackoffBase  time.Duration // first retry delay after a transport drop
	BackoffCap   time.Duration // delays never exceed this
	RetryCeiling int           // consecutive failures before topics go stale
	HandleBuffer int           // per-handle event buffer
}

func (c *Config) defaults() {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.RetryCeiling <= 0 {
		c.RetryCeiling = 10
	}
	if c.HandleBuffer <= 0 {
		c.HandleBuffer = 64
	}
}

// Hub maintains refcounted per-topic subscriptions over one change-feed
// attachment, dedupes replayed and locally-echoed events, and preserves
// per-topic delivery order. Cross-topic order is undefined.
type Hub struct {
	source   feed.Source
	baseline Baseliner
	cfg      Config

	mu     sync.Mutex
	topics map[string]*topicState
	onEcho func(topic, correlationID string)
}

type topicState struct {
	refs      int
	handles   map[*Handle]struct{}
	seen      *seenRing
	localCorr map[string]struct{} // correlation ids of in-flight optimistic writes
	stale     bool
}

func NewHub(src feed.Source, baseline Baseliner, cfg Config) *Hub {
	cfg.defaults()
	return &Hub{
		source:   src,
		baseline: baseline,
		cfg:      cfg,
		topics:   make(map[string]*topicState),
	}
}

// Run attaches to the feed and re-attaches with capped exponential backoff on
// transport loss. After each reconnect every subscribed topic is re-baselined
// in full: correctness over bandwidth. Returns when ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	delay := h.cfg.BackoffBase
	fails := 0

	for {
		err := h.source.Run(ctx, func(env market.Envelope) {
			fails = 0
			delay = h.cfg.BackoffBase
			h.dispatch(env)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fails++
		log.Printf("sync: feed dropped (attempt %d): %v", fails, err)

		if fails >= h.cfg.RetryCeiling {
			h.markAllStale()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if delay *= 2; delay > h.cfg.BackoffCap {
			delay = h.cfg.BackoffCap
		}

		// repair events missed while disconnected
		h.rebaselineAll(ctx)
	}
}

// Subscribe opens (or reuses) the channel for topic. The first subscriber pays
// the baseline fetch; later subscribers share the live attachment but still get
// their own baseline so they start from known state.
//
// The hub lock is not held across the baseline fetch: the handle attaches
// first in buffering mode, live events arriving during the fetch queue behind
// the snapshot, and other topics keep dispatching.
func (h *Hub) Subscribe(ctx context.Context, topic string) (*Handle, error) {
	if _, _, err := market.ParseTopic(topic); err != nil {
		return nil, err
	}

	h.mu.Lock()
	ts := h.topics[topic]
	if ts == nil {
		ts = &topicState{
			handles:   make(map[*Handle]struct{}),
			seen:      newSeenRing(128),
			localCorr: make(map[string]struct{}),
		}
		h.topics[topic] = ts
	}
	hd := &Handle{hub: h, topic: topic, buffering: true}
	ts.refs++
	ts.handles[hd] = struct{}{}
	h.mu.Unlock()

	snap, err := h.baseline(ctx, topic)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		delete(ts.handles, hd)
		if ts.refs--; ts.refs <= 0 {
			delete(h.topics, topic)
		}
		return nil, err
	}

	// snapshot first, then whatever the feed delivered while we fetched. Deltas
	// already folded into the snapshot re-apply harmlessly: status changes are
	// graph-guarded, counts are absolute, messages dedupe by id.
	hd.ch = make(chan market.Envelope, h.cfg.HandleBuffer+len(snap)+len(hd.pending))
	for _, env := range snap {
		hd.ch <- env
	}
	for _, env := range hd.pending {
		hd.ch <- env
	}
	hd.pending = nil
	hd.buffering = false
	return hd, nil
}

// MarkLocal registers the correlation id of an optimistic write so the feed's
// echo of it is suppressed exactly once.
func (h *Hub) MarkLocal(topic, correlationID string) {
	if correlationID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts := h.topics[topic]; ts != nil {
		ts.localCorr[correlationID] = struct{}{}
	}
}

// Refresh clears a stale topic and re-delivers its baseline to all handles.
// This is the manual-refresh escape hatch once the retry ceiling was hit.
func (h *Hub) Refresh(ctx context.Context, topic string) error {
	return h.rebaseline(ctx, topic, true)
}

func (h *Hub) rebaseline(ctx context.Context, topic string, clearStale bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.topics[topic]
	if ts == nil {
		return market.ErrNotFound
	}
	if ts.stale && !clearStale {
		// past the ceiling only a manual refresh revives the topic
		return market.ErrTopicStale
	}
	snap, err := h.baseline(ctx, topic)
	if err != nil {
		return err
	}
	ts.stale = false
	for hd := range ts.handles {
		if hd.buffering {
			continue // its own baseline fetch is in flight
		}
		for _, env := range snap {
			hd.push(env)
		}
	}
	return nil
}

// SetEchoHook installs the callback invoked when a feed event turns out to be
// the echo of a locally-applied write. The optimistic controller uses it to
// promote pending mutations. Set before Run.
func (h *Hub) SetEchoHook(fn func(topic, correlationID string)) { h.onEcho = fn }

func (h *Hub) dispatch(env market.Envelope) {
	h.mu.Lock()

	ts := h.topics[env.Topic]
	if ts == nil {
		h.mu.Unlock()
		return // nobody watching
	}
	if ts.seen.seen(env.EventID) {
		h.mu.Unlock()
		return // feed replay
	}
	if _, ok := ts.localCorr[env.CorrelationID]; ok && env.CorrelationID != "" {
		// echo of our own optimistic write; projection already applied,
		// suppressed before it reaches listeners
		delete(ts.localCorr, env.CorrelationID)
		fn := h.onEcho
		h.mu.Unlock()
		if fn != nil {
			fn(env.Topic, env.CorrelationID)
		}
		return
	}
	for hd := range ts.handles {
		if hd.buffering {
			hd.pending = append(hd.pending, env)
			continue
		}
		hd.push(env)
	}
	h.mu.Unlock()
}

func (h *Hub) markAllStale() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ts := range h.topics {
		ts.stale = true
	}
}

func (h *Hub) rebaselineAll(ctx context.Context) {
	h.mu.Lock()
	topics := make([]string, 0, len(h.topics))
	for t := range h.topics {
		topics = append(topics, t)
	}
	h.mu.Unlock()

	for _, topic := range topics {
		err := h.rebaseline(ctx, topic, false)
		if err != nil && err != market.ErrTopicStale && ctx.Err() == nil {
			log.Printf("sync: rebaseline %s: %v", topic, err)
		}
	}
}

func (h *Hub) release(hd *Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ts := h.topics[hd.topic]
	if ts == nil {
		return
	}
	if _, ok := ts.handles[hd]; !ok {
		return
	}
	delete(ts.handles, hd)
	if ts.refs--; ts.refs <= 0 {
		delete(h.topics, hd.topic)
	}
}

func (h *Hub) staleErr(topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ts := h.topics[topic]; ts != nil && ts.stale {
		return market.ErrTopicStale
	}
	return nil
}

// Handle is one consumer's view of a topic subscription. Multiple handles on
// the same topic share one network channel.
type Handle struct {
	hub   *Hub
	topic string
	ch    chan market.Envelope
	once  sync.Once

	// buffering and pending are guarded by hub.mu: while the baseline fetch is
	// in flight, live events queue here instead of the channel.
	buffering bool
	pending   []market.Envelope
}

func (hd *Handle) Topic() string { return hd.topic }

func (hd *Handle) Events() <-chan market.Envelope { return hd.ch }

// Err reports ErrTopicStale once the hub's retry ceiling was exceeded for this
// topic; cleared by Hub.Refresh.
func (hd *Handle) Err() error { return hd.hub.staleErr(hd.topic) }

// Close decrements the topic refcount; the shared channel is torn down only
// when no handle remains.
func (hd *Handle) Close() {
	hd.once.Do(func() {
		hd.hub.release(hd)
		close(hd.ch)
	})
}

func (hd *Handle) push(env market.Envelope) {
	select {
	case hd.ch <- env:
	default:
		// slow consumer: drop rather than stall the feed; the next baseline
		// refresh repairs whatever was missed
		log.Printf("sync: handle buffer full, dropping event %s on %s", env.EventID, hd.topic)
	}
}
