package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
)

// KafkaSource reads change-feed envelopes from the shared feed topic. Envelopes
// are partition-keyed by sync topic, so per-topic order matches the feed's
// server-assigned sequence.
type KafkaSource struct {
	brokers []string
	group   string
	topic   string

	rdb     *redis.Client // optional: event-id dedup surviving restarts
	service string
}

func NewKafkaSource(brokers []string, group, topic string) *KafkaSource {
	if topic == "" {
		topic = market.FeedTopic
	}
	return &KafkaSource{brokers: brokers, group: group, topic: topic}
}

// WithDedup marks processed event ids in Redis so a replay after a consumer
// restart is dropped before it reaches the hub. The hub's in-memory ring only
// covers the current process.
func (s *KafkaSource) WithDedup(rdb *redis.Client, service string) *KafkaSource {
	s.rdb = rdb
	s.service = service
	return s
}

func (s *KafkaSource) Run(ctx context.Context, h func(market.Envelope)) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        s.brokers,
		GroupID:        s.group,
		Topic:          s.topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	defer r.Close()

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
				return err
			}
		}

		var env market.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			// pesan kotor: commit & skip, jangan blokir feed
			log.Printf("feed: drop malformed envelope: %v", err)
			_ = r.CommitMessages(ctx, m)
			continue
		}
		if s.rdb != nil {
			if dup, err := redisx.MarkOnce(ctx, s.rdb, s.service, env.EventID); err == nil && dup {
				_ = r.CommitMessages(ctx, m)
				continue
			}
		}
		h(env)
		if err := r.CommitMessages(ctx, m); err != nil {
			return err
		}
	}
}
