package presence

import (
	"context"
	"log"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/redisx"
	"github.com/redis/go-redis/v9"
)

// PresenceStore persists the durable last-seen timestamp alongside the
// short-lived Redis key.
type PresenceStore interface {
	TouchPresence(ctx context.Context, userID string, at time.Time) error
}

// Heartbeat periodically touches the user's liveness key until ctx is done.
// A missed beat is invisible to the user; the TTL simply lets the key lapse.
type Heartbeat struct {
	Redis    *redis.Client
	Store    PresenceStore // optional
	UserID   string
	Interval time.Duration
}

func (h *Heartbeat) Run(ctx context.Context) error {
	interval := h.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		now := time.Now().UTC()
		if err := redisx.TouchPresence(ctx, h.Redis, h.UserID, now); err != nil && ctx.Err() == nil {
			log.Printf("presence: touch: %v", err)
		}
		if h.Store != nil {
			if err := h.Store.TouchPresence(ctx, h.UserID, now); err != nil && ctx.Err() == nil {
				log.Printf("presence: store touch: %v", err)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
