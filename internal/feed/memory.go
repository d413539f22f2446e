package feed

import (
	"context"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// MemorySource is a channel-backed Source for tests and local wiring.
type MemorySource struct {
	ch chan market.Envelope
	// Fail, when set, is returned by Run after the channel drains, simulating
	// a transport drop.
	Fail error
}

func NewMemorySource(buf int) *MemorySource {
	return &MemorySource{ch: make(chan market.Envelope, buf)}
}

func (s *MemorySource) Emit(env market.Envelope) { s.ch <- env }

func (s *MemorySource) Close() { close(s.ch) }

func (s *MemorySource) Run(ctx context.Context, h func(market.Envelope)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-s.ch:
			if !ok {
				return s.Fail
			}
			h(env)
		}
	}
}
