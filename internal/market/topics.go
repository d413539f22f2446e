package market

import (
	"fmt"
	"strings"
)

// FeedTopic is the single Kafka topic carrying all change-feed envelopes.
// Partition key = sync topic, supaya semua event 1 topic maintain urutan.
const FeedTopic = "marketplace.changes"

func PartitionKey(topic string) []byte { return []byte(topic) }

// Sync topic naming. One topic per watched entity.
func OrderTopic(orderID string) string          { return fmt.Sprintf("order:%s", orderID) }
func ConversationTopic(convID string) string    { return fmt.Sprintf("conversation:%s", convID) }
func ProductLikesTopic(productID string) string { return fmt.Sprintf("product:%s:likes", productID) }
func ProfileTopic(userID string) string         { return fmt.Sprintf("profile:%s", userID) }

type TopicKind string

const (
	TopicKindOrder        TopicKind = "order"
	TopicKindConversation TopicKind = "conversation"
	TopicKindProductLikes TopicKind = "product-likes"
	TopicKindProfile      TopicKind = "profile"
)

// ParseTopic splits a sync topic into its kind and entity id.
func ParseTopic(topic string) (TopicKind, string, error) {
	parts := strings.Split(topic, ":")
	switch {
	case len(parts) == 2 && parts[0] == "order":
		return TopicKindOrder, parts[1], nil
	case len(parts) == 2 && parts[0] == "conversation":
		return TopicKindConversation, parts[1], nil
	case len(parts) == 3 && parts[0] == "product" && parts[2] == "likes":
		return TopicKindProductLikes, parts[1], nil
	case len(parts) == 2 && parts[0] == "profile":
		return TopicKindProfile, parts[1], nil
	}
	return "", "", fmt.Errorf("%w: bad topic %q", ErrValidation, topic)
}
