package market

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusDelivered Status = "DELIVERED"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Role identifies who is attempting a transition.
type Role string

const (
	RoleBuyer   Role = "buyer"
	RoleSeller  Role = "seller"
	RoleDispute Role = "dispute" // dispute resolution may force cancellation
)

// validNext maps current status -> target status -> role allowed to traverse the edge.
// Terminal states (COMPLETED, CANCELLED) have no outgoing edges; nothing ever moves back.
var validNext = map[Status]map[Status]Role{
	StatusPending: {
		StatusConfirmed: RoleSeller,
		StatusCancelled: RoleBuyer, // buyer cancel or timeout; dispute also allowed via IsDisputable
	},
	StatusConfirmed: {
		StatusDelivered: RoleSeller,
	},
	StatusDelivered: {
		StatusCompleted: RoleBuyer,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status, actor Role) bool {
	switch actor {
	case RoleDispute:
		return to == StatusCancelled && IsDisputable(from)
	case RoleBuyer, RoleSeller:
		// a missing edge must never match a missing actor
		r, ok := validNext[from][to]
		return ok && r == actor
	}
	return false
}

// IsDisputable reports whether a dispute may still be filed for an order
// in the given status. Terminal orders cannot be disputed.
func IsDisputable(s Status) bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusDelivered:
		return true
	}
	return false
}

func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusCancelled
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}
