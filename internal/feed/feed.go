package feed

import (
	"context"

	"github.com/ariefcatur/go-market-sync.git/internal/market"
)

// Source is one attachment to the remote change feed. Run delivers decoded
// envelopes to h until ctx is cancelled or the transport fails; the sync hub
// owns reconnection and backoff around it.
type Source interface {
	Run(ctx context.Context, h func(market.Envelope)) error
}
