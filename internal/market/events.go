package market

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	EventOrderStatusChanged = "OrderStatusChanged"
	EventMessageCreated     = "MessageCreated"
	EventLikeToggled        = "LikeToggled"
	EventFollowToggled      = "FollowToggled"
	EventProfileUpdated     = "ProfileUpdated"

	// Snapshot events carry the full baseline for a topic. The hub emits them
	// on first subscribe and after a reconnect; listeners replace local state
	// instead of applying a delta.
	EventOrderSnapshot        = "OrderSnapshot"
	EventConversationSnapshot = "ConversationSnapshot"
	EventLikeCountSnapshot    = "LikeCountSnapshot"
)

// Envelope is the wire shape of one change-feed event. Topic routes it to
// subscribers; EventID is the dedup identity; CorrelationID ties a server echo
// back to the optimistic write that produced it.
type Envelope struct {
	EventID       string          `json:"event_id"`   // uuid, stable across replays
	EventType     string          `json:"event_type"` // salah satu const di atas
	EventVersion  int             `json:"event_version"`
	Topic         string          `json:"topic"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Seq           int64           `json:"seq"` // server-assigned per-topic sequence
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type OrderStatusChangedPayload struct {
	OrderID string `json:"order_id"`
	From    Status `json:"from"`
	To      Status `json:"to"`
	Actor   Role   `json:"actor"`
}

type MessageCreatedPayload struct {
	MessageID      string    `json:"message_id"` // permanent server id
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

type LikeToggledPayload struct {
	ProductID string `json:"product_id"`
	UserID    string `json:"user_id"`
	Liked     bool   `json:"liked"`
	LikeCount int64  `json:"like_count"`
}

type FollowToggledPayload struct {
	FollowerID  string `json:"follower_id"`
	FollowingID string `json:"following_id"`
	Following   bool   `json:"following"`
}

type OrderSnapshotPayload struct {
	Order Order `json:"order"`
}

type ConversationSnapshotPayload struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

type LikeCountSnapshotPayload struct {
	ProductID string `json:"product_id"`
	LikeCount int64  `json:"like_count"`
}

type ProfileUpdatedPayload struct {
	UserID            string `json:"user_id"`
	LoyaltyEnabled    bool   `json:"loyalty_enabled"`
	LoyaltyPercentage int64  `json:"loyalty_percentage"`
}

// Correlation ids the feed attaches to echoes of client writes. Creates carry
// the client-generated ref; toggles and updates use the natural key.
func OrderTransitionCorrelation(orderID string, to Status) string {
	return fmt.Sprintf("%s:%s", orderID, to)
}
func MessageCorrelation(clientRef string) string { return clientRef }
func LikeCorrelation(userID, productID string) string {
	return fmt.Sprintf("%s:%s", userID, productID)
}
func FollowCorrelation(followerID, followingID string) string {
	return fmt.Sprintf("%s:%s", followerID, followingID)
}

func MustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// DecodePayload memudahkan decode payload spesifik.
func DecodePayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
