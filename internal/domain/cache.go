package domain

import (
	"context"
	"math/big"
	"time"
)

// AuctionCache stores the latest auction snapshot and last settled price
// for presentation collaborators. Implementations must treat writes as
// best-effort; the engine never blocks a tick on the cache.
type AuctionCache interface {
	SetSnapshot(ctx context.Context, state AuctionState, at time.Time) error
	SetLastSettled(ctx context.Context, price *big.Int, round uint64) error
	GetLastSettled(ctx context.Context) (*big.Int, uint64, error)
}

// TraceBus publishes the per-tick arbiter trace for external presentation
// layers. It is a read-only export, not a control interface.
type TraceBus interface {
	PublishTrace(ctx context.Context, payload []byte) error
}
