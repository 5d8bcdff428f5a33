package service

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/alanyoungcy/snipebot/internal/auction"
	"github.com/alanyoungcy/snipebot/internal/domain"
)

const (
	defaultReconInterval = 30 * time.Second
	defaultToleranceBps  = 100
	reconSnapshotTimeout = 5 * time.Second
)

// PriceSource reads the authoritative current price from the contract.
type PriceSource interface {
	CurrentPrice(ctx context.Context) (*big.Int, error)
}

// CurveSource exposes the decay curve the local reconstruction runs on.
type CurveSource interface {
	Curve() (domain.Curve, bool)
}

// Reconciler periodically compares the locally reconstructed price against
// the contract's authoritative one. Divergence is logged, never acted on:
// the decision loop stays on local reconstruction regardless, and a drift
// warning is a prompt to check the configured curve, not a trigger.
type Reconciler struct {
	source    PriceSource
	curves    CurveSource
	interval  time.Duration
	tolerance int64 // basis points of the authoritative price
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler. Non-positive interval or tolerance
// fall back to the defaults (30s, 1%).
func NewReconciler(source PriceSource, curves CurveSource, interval time.Duration, toleranceBps int64, logger *slog.Logger) *Reconciler {
	if interval <= 0 {
		interval = defaultReconInterval
	}
	if toleranceBps <= 0 {
		toleranceBps = defaultToleranceBps
	}
	return &Reconciler{
		source:    source,
		curves:    curves,
		interval:  interval,
		tolerance: toleranceBps,
		logger:    logger.With(slog.String("component", "reconciler")),
	}
}

// Run checks once per interval until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			r.check(ctx, now.UTC())
		}
	}
}

func (r *Reconciler) check(ctx context.Context, now time.Time) {
	curve, active := r.curves.Curve()
	if !active {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, reconSnapshotTimeout)
	defer cancel()

	authoritative, err := r.source.CurrentPrice(ctx)
	if err != nil {
		r.logger.Warn("authoritative price fetch failed", slog.String("error", err.Error()))
		return
	}
	if authoritative == nil || authoritative.Sign() <= 0 {
		return
	}

	local := auction.Price(curve, now)
	if drift := driftBps(local, authoritative); drift > r.tolerance {
		r.logger.Warn("reconstructed price drifted from contract",
			slog.String("local", local.String()),
			slog.String("authoritative", authoritative.String()),
			slog.Int64("drift_bps", drift),
			slog.Int64("tolerance_bps", r.tolerance),
		)
	}
}

// driftBps returns |local-authoritative| as basis points of the
// authoritative price.
func driftBps(local, authoritative *big.Int) int64 {
	diff := new(big.Int).Sub(local, authoritative)
	diff.Abs(diff)
	diff.Mul(diff, big.NewInt(10_000))
	diff.Quo(diff, authoritative)
	if !diff.IsInt64() {
		return int64(^uint64(0) >> 1)
	}
	return diff.Int64()
}
