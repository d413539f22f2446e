package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-market-sync.git/internal/ledger"
	"github.com/ariefcatur/go-market-sync.git/internal/market"
	"github.com/google/uuid"
)

// Memory is an in-memory Store with the same semantics as the Postgres
// implementation: guarded status writes, atomic finalize, idempotent toggles.
// Used for local wiring and tests.
type Memory struct {
	mu  sync.Mutex
	Now func() time.Time

	orders   map[string]market.Order
	messages map[string][]market.Message // by conversation id
	likes    map[string]map[string]bool  // product -> user set
	follows  map[string]map[string]bool  // follower -> following set
	profiles map[string]market.SellerProfile
	payouts  map[string]market.EscrowRecord
	loyalty  []market.LoyaltyEntry
	disputes map[string]market.Dispute
	presence map[string]time.Time
}

func NewMemory() *Memory {
	return &Memory{
		Now:      time.Now,
		orders:   make(map[string]market.Order),
		messages: make(map[string][]market.Message),
		likes:    make(map[string]map[string]bool),
		follows:  make(map[string]map[string]bool),
		profiles: make(map[string]market.SellerProfile),
		payouts:  make(map[string]market.EscrowRecord),
		disputes: make(map[string]market.Dispute),
		presence: make(map[string]time.Time),
	}
}

// ---- seeding (tests and local wiring) ----

func (s *Memory) PutOrder(o market.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

func (s *Memory) PutProfile(p market.SellerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
}

func (s *Memory) PutLoyaltyEntry(e market.LoyaltyEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loyalty = append(s.loyalty, e)
}

func (s *Memory) LoyaltyEntries(orderID string) []market.LoyaltyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []market.LoyaltyEntry
	for _, e := range s.loyalty {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out
}

func (s *Memory) Dispute(orderID string) (market.Dispute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.disputes[orderID]
	return d, ok
}

// ---- Store ----

func (s *Memory) GetOrder(_ context.Context, orderID string) (market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	return o, nil
}

func (s *Memory) UpdateOrderStatus(_ context.Context, orderID string, expect, next market.Status) (market.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return market.Order{}, market.ErrNotFound
	}
	if o.Status != expect {
		return market.Order{}, market.ErrStaleState
	}
	o.Status = next
	o.UpdatedAt = s.Now().UTC()
	s.orders[orderID] = o
	return o, nil
}

// FinalizeCompletion mirrors the server-side procedure: escrow row, loyalty
// entry and system message appear together, and re-running it is a no-op
// (at most one escrow per order).
func (s *Memory) FinalizeCompletion(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return market.ErrNotFound
	}
	if _, exists := s.payouts[orderID]; exists {
		return nil
	}
	now := s.Now().UTC()
	s.payouts[orderID] = market.EscrowRecord{
		OrderID:           orderID,
		HeldCents:         o.TotalCents,
		PayoutStatus:      market.PayoutPending,
		ReleaseEligibleAt: now.Add(ledger.HoldDuration),
	}

	if p, ok := s.profiles[o.SellerID]; ok && p.LoyaltyEnabled {
		if issued := ledger.CoinIssuance(o.TotalCents, p.LoyaltyPercentage); issued > 0 {
			s.loyalty = append(s.loyalty, market.LoyaltyEntry{
				SellerID:    o.SellerID,
				BuyerID:     o.BuyerID,
				OrderID:     orderID,
				IssuedCents: issued,
				CreatedAt:   now,
			})
		}
	}

	if o.ChatRef != "" {
		s.messages[o.ChatRef] = append(s.messages[o.ChatRef], market.Message{
			ID:             uuid.NewString(),
			ConversationID: o.ChatRef,
			SenderID:       "system",
			Body:           fmt.Sprintf("Order %s completed", orderID),
			CreatedAt:      now,
		})
	}
	return nil
}

// FileDispute mirrors the stored procedure: cancel, dispute row and escrow
// freeze happen under one lock, all guarded by the expected status.
func (s *Memory) FileDispute(_ context.Context, orderID, initiatorID, reason, description string, expect market.Status) (market.Dispute, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return market.Dispute{}, market.ErrNotFound
	}
	if o.Status != expect {
		return market.Dispute{}, market.ErrStaleState
	}
	o.Status = market.StatusCancelled
	o.UpdatedAt = s.Now().UTC()
	s.orders[orderID] = o
	d := market.Dispute{
		ID:          uuid.NewString(),
		OrderID:     orderID,
		InitiatorID: initiatorID,
		Reason:      reason,
		Description: description,
		Status:      market.DisputeOpen,
		CreatedAt:   s.Now().UTC(),
	}
	s.disputes[orderID] = d
	if rec, ok := s.payouts[orderID]; ok {
		rec.Frozen = true
		s.payouts[orderID] = rec
	}
	return d, nil
}

func (s *Memory) ListMessages(_ context.Context, conversationID string, limit int) ([]market.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[conversationID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]market.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *Memory) InsertMessage(_ context.Context, conversationID, senderID, body, clientRef string) (market.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// clientRef dedup: a retried insert returns the existing row
	for _, m := range s.messages[conversationID] {
		if clientRef != "" && m.ID == s.permanentID(clientRef) {
			return m, nil
		}
	}
	m := market.Message{
		ID:             s.permanentID(clientRef),
		ConversationID: conversationID,
		SenderID:       senderID,
		Body:           body,
		CreatedAt:      s.Now().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return m, nil
}

func (s *Memory) permanentID(clientRef string) string {
	if clientRef == "" {
		return uuid.NewString()
	}
	return "srv-" + clientRef
}

func (s *Memory) LikeCount(_ context.Context, productID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.likes[productID])), nil
}

func (s *Memory) ToggleLike(_ context.Context, userID, productID string) (bool, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.likes[productID]
	if set == nil {
		set = make(map[string]bool)
		s.likes[productID] = set
	}
	if set[userID] {
		delete(set, userID)
	} else {
		set[userID] = true
	}
	return set[userID], int64(len(set)), nil
}

func (s *Memory) SetFollow(_ context.Context, followerID, followingID string, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.follows[followerID]
	if set == nil {
		set = make(map[string]bool)
		s.follows[followerID] = set
	}
	if on {
		set[followingID] = true // duplicate insert is a no-op
	} else {
		delete(set, followingID) // deleting a missing pair is a no-op
	}
	return nil
}

func (s *Memory) GetSellerProfile(_ context.Context, userID string) (market.SellerProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return market.SellerProfile{}, market.ErrNotFound
	}
	return p, nil
}

func (s *Memory) CoinBalance(_ context.Context, sellerID, buyerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bal int64
	for _, e := range s.loyalty {
		if e.SellerID == sellerID && e.BuyerID == buyerID {
			bal += e.IssuedCents - e.RedeemedCents
		}
	}
	return bal, nil
}

func (s *Memory) SellerSettlementStats(_ context.Context, sellerID string) (market.SettlementStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := market.SettlementStats{SellerID: sellerID}
	for orderID, rec := range s.payouts {
		o, ok := s.orders[orderID]
		if !ok || o.SellerID != sellerID {
			continue
		}
		switch rec.PayoutStatus {
		case market.PayoutReleased:
			st.ReleasedCents += rec.HeldCents
		case market.PayoutPending:
			st.HeldCents += rec.HeldCents
			st.HeldOrders++
		}
	}
	return st, nil
}

func (s *Memory) GetEscrow(_ context.Context, orderID string) (market.EscrowRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.payouts[orderID]
	if !ok {
		return market.EscrowRecord{}, market.ErrNotFound
	}
	return rec, nil
}

func (s *Memory) ReleaseEscrow(_ context.Context, orderID string, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.payouts[orderID]
	if !ok || !ledger.ReleaseEligible(rec, now) {
		return false, nil
	}
	rec.PayoutStatus = market.PayoutReleased
	s.payouts[orderID] = rec
	return true, nil
}

func (s *Memory) ListReleasableEscrows(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, rec := range s.payouts {
		if ledger.ReleaseEligible(rec, now) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *Memory) TouchPresence(_ context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence[userID] = at
	return nil
}
