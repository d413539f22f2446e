package market

import "time"

// All monetary amounts are int64 minor currency units (cents).

type Order struct {
	ID           string
	BuyerID      string
	SellerID     string
	Status       Status // lihat status.go
	TotalCents   int64
	CoinRedeemed int64
	ChatRef      string // conversation id linked at checkout
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	Qty        int
	PriceCents int64
}

type PayoutStatus string

const (
	PayoutPending  PayoutStatus = "PENDING"
	PayoutReleased PayoutStatus = "RELEASED"
)

// EscrowRecord holds a completed order's funds until the settlement window elapses.
type EscrowRecord struct {
	OrderID           string
	HeldCents         int64
	PayoutStatus      PayoutStatus
	ReleaseEligibleAt time.Time
	Frozen            bool // set while a dispute is open
}

// LoyaltyEntry records coin issuance at order completion. IssuedCents is fixed
// at write time from the seller's rate then; it is never recomputed.
type LoyaltyEntry struct {
	SellerID      string
	BuyerID       string
	OrderID       string
	IssuedCents   int64
	RedeemedCents int64
	CreatedAt     time.Time
}

type SellerProfile struct {
	UserID            string
	LoyaltyEnabled    bool
	LoyaltyPercentage int64 // integer percent, e.g. 5
	UpdatedAt         time.Time
}

type Conversation struct {
	ID           string
	Participants []string
	LastMessage  string
	UpdatedAt    time.Time
}

type Message struct {
	ID             string // temp (client-local uuid) until confirmed, then server id
	ConversationID string
	SenderID       string
	Body           string
	CreatedAt      time.Time
	Optimistic     bool // true while the id is a client-local temp id
}

type LikeRecord struct {
	UserID    string
	ProductID string
	CreatedAt time.Time
}

type FollowRecord struct {
	FollowerID  string
	FollowingID string
	CreatedAt   time.Time
}

type DisputeStatus string

const (
	DisputeOpen DisputeStatus = "OPEN"
)

type Dispute struct {
	ID          string
	OrderID     string
	InitiatorID string
	Reason      string
	Description string
	Status      DisputeStatus
	CreatedAt   time.Time
}

// SettlementStats is the server-side aggregate for one seller: lifetime released
// amount plus funds still inside the settlement window.
type SettlementStats struct {
	SellerID      string
	ReleasedCents int64
	HeldCents     int64
	HeldOrders    int
}
