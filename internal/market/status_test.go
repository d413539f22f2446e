package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHappyPathEdges(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed, RoleSeller))
	assert.True(t, CanTransition(StatusConfirmed, StatusDelivered, RoleSeller))
	assert.True(t, CanTransition(StatusDelivered, StatusCompleted, RoleBuyer))
	assert.True(t, CanTransition(StatusPending, StatusCancelled, RoleBuyer))
}

func TestRoleGuards(t *testing.T) {
	// only the seller confirms and delivers
	assert.False(t, CanTransition(StatusPending, StatusConfirmed, RoleBuyer))
	assert.False(t, CanTransition(StatusConfirmed, StatusDelivered, RoleBuyer))
	// only the buyer completes or cancels a pending order
	assert.False(t, CanTransition(StatusDelivered, StatusCompleted, RoleSeller))
	assert.False(t, CanTransition(StatusPending, StatusCancelled, RoleSeller))
}

func TestNoBackwardEdges(t *testing.T) {
	all := []Status{StatusPending, StatusConfirmed, StatusDelivered, StatusCompleted, StatusCancelled}
	order := map[Status]int{
		StatusPending:   0,
		StatusConfirmed: 1,
		StatusDelivered: 2,
		StatusCompleted: 3,
		StatusCancelled: 3, // terminal
	}
	roles := []Role{RoleBuyer, RoleSeller, RoleDispute}
	for _, from := range all {
		for _, to := range all {
			if order[to] > order[from] {
				continue
			}
			for _, r := range roles {
				if from == to {
					assert.False(t, CanTransition(from, to, r), "%s -> %s by %s", from, to, r)
					continue
				}
				if r == RoleDispute && to == StatusCancelled && IsDisputable(from) {
					continue // the one legal "sideways" edge
				}
				assert.False(t, CanTransition(from, to, r), "%s -> %s by %s", from, to, r)
			}
		}
	}
}

func TestUnknownRoleMatchesNoEdge(t *testing.T) {
	// an empty or unknown actor must never traverse an edge, missing or not;
	// feed payloads reach this check with whatever actor the wire carried
	all := []Status{StatusPending, StatusConfirmed, StatusDelivered, StatusCompleted, StatusCancelled}
	for _, from := range all {
		for _, to := range all {
			assert.False(t, CanTransition(from, to, Role("")), "%s -> %s by empty role", from, to)
			assert.False(t, CanTransition(from, to, Role("admin")), "%s -> %s by unknown role", from, to)
		}
	}
}

func TestTerminalStatesHaveNoSuccessors(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusCancelled} {
		for _, to := range []Status{StatusPending, StatusConfirmed, StatusDelivered, StatusCompleted, StatusCancelled} {
			for _, r := range []Role{RoleBuyer, RoleSeller, RoleDispute} {
				assert.False(t, CanTransition(from, to, r), "%s -> %s by %s", from, to, r)
			}
		}
	}
}

func TestDisputeEdge(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusCancelled, RoleDispute))
	assert.True(t, CanTransition(StatusConfirmed, StatusCancelled, RoleDispute))
	assert.True(t, CanTransition(StatusDelivered, StatusCancelled, RoleDispute))
	assert.False(t, CanTransition(StatusCompleted, StatusCancelled, RoleDispute))
	assert.False(t, CanTransition(StatusCancelled, StatusCancelled, RoleDispute))
}

func TestParseTopic(t *testing.T) {
	cases := []struct {
		topic string
		kind  TopicKind
		id    string
	}{
		{OrderTopic("o1"), TopicKindOrder, "o1"},
		{ConversationTopic("c1"), TopicKindConversation, "c1"},
		{ProductLikesTopic("p1"), TopicKindProductLikes, "p1"},
		{ProfileTopic("u1"), TopicKindProfile, "u1"},
	}
	for _, c := range cases {
		kind, id, err := ParseTopic(c.topic)
		assert.NoError(t, err)
		assert.Equal(t, c.kind, kind)
		assert.Equal(t, c.id, id)
	}

	_, _, err := ParseTopic("garbage")
	assert.ErrorIs(t, err, ErrValidation)
}
