package sync

import (
	"context"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/ariefcatur/go-market-sync.git/internal/store"
	"github.com/google/uuid"
)

// StoreBaseliner renders a topic's authoritative state from the store as
// snapshot envelopes.
func StoreBaseliner(s store.Store, producer string) Baseliner {
	return func(ctx context.Context, topic string) ([]market.Envelope, error) {
		kind, id, err := market.ParseTopic(topic)
		if err != nil {
			return nil, err
		}

		switch kind {
		case market.TopicKindOrder:
			o, err := s.GetOrder(ctx, id)
			if err != nil {
				return nil, err
			}
			return []market.Envelope{snapshot(topic, producer, market.EventOrderSnapshot,
				market.OrderSnapshotPayload{Order: o})}, nil

		case market.TopicKindConversation:
			msgs, err := s.ListMessages(ctx, id, 50)
			if err != nil {
				return nil, err
			}
			return []market.Envelope{snapshot(topic, producer, market.EventConversationSnapshot,
				market.ConversationSnapshotPayload{ConversationID: id, Messages: msgs})}, nil

		case market.TopicKindProductLikes:
			n, err := s.LikeCount(ctx, id)
			if err != nil {
				return nil, err
			}
			return []market.Envelope{snapshot(topic, producer, market.EventLikeCountSnapshot,
				market.LikeCountSnapshotPayload{ProductID: id, LikeCount: n})}, nil

		case market.TopicKindProfile:
			p, err := s.GetSellerProfile(ctx, id)
			if err != nil {
				return nil, err
			}
			return []market.Envelope{snapshot(topic, producer, market.EventProfileUpdated,
				market.ProfileUpdatedPayload{
					UserID:            p.UserID,
					LoyaltyEnabled:    p.LoyaltyEnabled,
					LoyaltyPercentage: p.LoyaltyPercentage,
				})}, nil
		}
		return nil, market.ErrValidation
	}
}

func snapshot(topic, producer, eventType string, payload any) market.Envelope {
	return market.Envelope{
		EventID:      uuid.NewString(),
		EventType:    eventType,
		EventVersion: 1,
		Topic:        topic,
		OccurredAt:   time.Now().UTC(),
		Producer:     producer,
		Payload:      market.MustMarshal(payload),
	}
}
