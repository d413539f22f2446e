package optimistic

import (
	"log"

	"github.com/ariefcatur/go-market-sync.git/internal/machine"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// apply folds one confirmed feed event into the projection. Snapshot events
// replace state; delta events advance it. Local optimistic entries that are
// still pending survive a snapshot replace.
func (c *Controller) apply(env market.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch env.EventType {
	case market.EventOrderSnapshot:
		p, err := market.DecodePayload[market.OrderSnapshotPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		c.view.orders[p.Order.ID] = p.Order

	case market.EventOrderStatusChanged:
		p, err := market.DecodePayload[market.OrderStatusChangedPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		if o, ok := c.view.orders[p.OrderID]; ok {
			c.view.orders[p.OrderID] = machine.Apply(o, p)
		}

	case market.EventConversationSnapshot:
		p, err := market.DecodePayload[market.ConversationSnapshotPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		// keep local messages the snapshot does not carry: still-pending
		// optimistic entries and confirmed sends a stale baseline missed.
		// A local copy whose id already appears in the snapshot is dropped,
		// never duplicated; the snapshot's copy stands for it.
		inSnap := make(map[string]struct{}, len(p.Messages))
		for _, m := range p.Messages {
			inSnap[m.ID] = struct{}{}
		}
		merged := make([]market.Message, 0, len(p.Messages))
		merged = append(merged, p.Messages...)
		for _, m := range c.view.messages[p.ConversationID] {
			if _, ok := inSnap[m.ID]; !ok {
				merged = append(merged, m)
			}
		}
		c.view.messages[p.ConversationID] = merged

	case market.EventMessageCreated:
		p, err := market.DecodePayload[market.MessageCreatedPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		msgs := c.view.messages[p.ConversationID]
		for i := range msgs {
			if msgs[i].ID == p.MessageID {
				return // already have the permanent copy
			}
		}
		c.view.messages[p.ConversationID] = append(msgs, market.Message{
			ID:             p.MessageID,
			ConversationID: p.ConversationID,
			SenderID:       p.SenderID,
			Body:           p.Body,
			CreatedAt:      p.CreatedAt,
		})

	case market.EventLikeCountSnapshot:
		p, err := market.DecodePayload[market.LikeCountSnapshotPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		c.view.likeCounts[p.ProductID] = p.LikeCount

	case market.EventLikeToggled:
		p, err := market.DecodePayload[market.LikeToggledPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		c.view.likeCounts[p.ProductID] = p.LikeCount
		if p.UserID == c.UserID {
			c.view.liked[p.ProductID] = p.Liked
		}

	case market.EventFollowToggled:
		p, err := market.DecodePayload[market.FollowToggledPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		if p.FollowerID == c.UserID {
			c.view.follows[p.FollowingID] = p.Following
		}

	case market.EventProfileUpdated:
		p, err := market.DecodePayload[market.ProfileUpdatedPayload](env.Payload)
		if err != nil {
			log.Printf("projection: %s: %v", env.EventType, err)
			return
		}
		prof := c.view.profiles[p.UserID]
		prof.UserID = p.UserID
		prof.LoyaltyEnabled = p.LoyaltyEnabled
		prof.LoyaltyPercentage = p.LoyaltyPercentage
		prof.UpdatedAt = env.OccurredAt
		c.view.profiles[p.UserID] = prof
	}
}
