// Package engine runs the single-threaded decision loop: a sub-second
// tick re-derives price, accrual, and profitability from locally held
// state, the arbiter turns them into one decision, and act decisions are
// handed to the execution serializer. Chain events arrive on a queue and
// are folded into the state by pure reducers between ticks, so no rule
// ever observes a partially-updated state.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/arbiter"
	"github.com/alanyoungcy/snipebot/internal/auction"
	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/executor"
	"github.com/alanyoungcy/snipebot/internal/service"
)

const (
	defaultTickInterval = 250 * time.Millisecond
	eventBuffer         = 64
	cleanupInterval     = 10 * time.Minute
)

// Options configures an Engine beyond its required collaborators.
type Options struct {
	TickInterval   time.Duration
	DedupRetention time.Duration

	// Optional collaborators; nil disables the corresponding export.
	Settlements domain.SettlementStore
	Cache       domain.AuctionCache
	Traces      domain.TraceBus
}

// Engine owns the AuctionState and the tick loop.
type Engine struct {
	arb    *arbiter.Arbiter
	exec   *executor.Serializer
	stats  *service.Stats
	cfg    domain.RuleConfig
	caller common.Address
	opts   Options

	events chan domain.Event
	dedup  *Dedup
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.AuctionState
}

// New creates an Engine. cfg must already be validated.
func New(arb *arbiter.Arbiter, exec *executor.Serializer, stats *service.Stats, cfg domain.RuleConfig, caller common.Address, opts Options, logger *slog.Logger) *Engine {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.DedupRetention <= 0 {
		opts.DedupRetention = DefaultDedupRetention
	}
	return &Engine{
		arb:    arb,
		exec:   exec,
		stats:  stats,
		cfg:    cfg,
		caller: caller,
		opts:   opts,
		events: make(chan domain.Event, eventBuffer),
		dedup:  NewDedup(opts.DedupRetention),
		logger: logger.With(slog.String("component", "engine")),
		state: domain.AuctionState{
			Price:       big.NewInt(0),
			LeaderPaid:  big.NewInt(0),
			AccrualRate: big.NewInt(0),
		},
	}
}

// Events returns the queue the chain provider feeds.
func (e *Engine) Events() chan<- domain.Event { return e.events }

// State returns a copy of the current auction state.
func (e *Engine) State() domain.AuctionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Curve returns the active decay curve and whether decay is running.
// Used by the price reconciler.
func (e *Engine) Curve() (domain.Curve, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state.Curve, e.state.DecayActive
}

// SeedLastSettled restores the previous round's settled price from
// persistence so the market-discount rule has a baseline before the
// first live settlement. Call before Run.
func (e *Engine) SeedLastSettled(price *big.Int) {
	if price == nil || price.Sign() <= 0 {
		return
	}
	e.mu.Lock()
	e.state.LastSettled = new(big.Int).Set(price)
	e.mu.Unlock()
}

// Run drives the loop until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started",
		slog.Duration("tick", e.opts.TickInterval),
		slog.String("caller", e.caller.Hex()),
	)
	defer e.logger.Info("engine stopped")

	ticker := time.NewTicker(e.opts.TickInterval)
	defer ticker.Stop()
	cleanup := time.NewTicker(cleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-e.events:
			e.handleEvent(ctx, ev)
		case now := <-ticker.C:
			e.tick(now.UTC())
		case <-cleanup.C:
			e.dedup.Cleanup()
		}
	}
}

// Replay folds recorded events in order and runs one tick after each,
// using the event timestamps as the clock. Used by the replay mode to
// re-run a session's decisions deterministically.
func (e *Engine) Replay(ctx context.Context, events []domain.Event) error {
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		e.handleEvent(ctx, ev)
		e.tick(ev.At.UTC())
	}
	return nil
}

// handleEvent folds one chain event into the state. Settlements are
// deduplicated by tx-hash+log-index: the provider only guarantees
// at-least-once delivery.
func (e *Engine) handleEvent(ctx context.Context, ev domain.Event) {
	if ev.Kind == domain.EventSettled && e.dedup.Seen(ev.DedupKey()) {
		e.logger.Debug("duplicate settlement event ignored",
			slog.String("key", ev.DedupKey()),
		)
		return
	}

	e.mu.Lock()
	e.state = Apply(e.state, ev)
	state := e.state
	e.mu.Unlock()

	e.logger.Info("event applied",
		slog.String("kind", string(ev.Kind)),
		slog.Uint64("round", state.Round),
	)

	if ev.Kind == domain.EventSettled {
		e.recordSettlement(ctx, ev, state)
	}
}

func (e *Engine) recordSettlement(ctx context.Context, ev domain.Event, state domain.AuctionState) {
	if e.opts.Settlements != nil {
		s := domain.Settlement{
			Round:     state.Round,
			Price:     ev.Price,
			Winner:    ev.Leader,
			TxHash:    ev.TxHash,
			LogIndex:  ev.LogIndex,
			SettledAt: ev.At,
		}
		if err := e.opts.Settlements.Insert(ctx, s); err != nil {
			e.logger.Warn("settlement persist failed", slog.String("error", err.Error()))
		}
	}
	if e.opts.Cache != nil {
		if err := e.opts.Cache.SetLastSettled(ctx, ev.Price, state.Round); err != nil {
			e.logger.Warn("settlement cache failed", slog.String("error", err.Error()))
		}
	}
}

// tick derives a fresh context and runs one arbitration. A malformed
// context skips the tick; the prior decision stands until the next valid
// one.
func (e *Engine) tick(now time.Time) {
	e.stats.Tick()

	e.mu.Lock()
	if e.state.DecayActive {
		e.state.Price = auction.Price(e.state.Curve, now)
	}
	state := e.state
	e.mu.Unlock()

	if state.Leader == (common.Address{}) {
		// Nobody holds the lead; nothing accrues, nothing to decide.
		return
	}

	acc, err := auction.Accrue(state.AccrualRate, state.LeadStart, now, e.cfg.ExpectedDecay)
	if err != nil {
		e.stats.Skip()
		e.logger.Warn("tick skipped", slog.String("error", err.Error()))
		return
	}

	ec := domain.EvalContext{
		State:   state,
		Accrual: acc,
		Metrics: auction.Metrics(state.LeaderPaid, acc, e.cfg.ExpectedDecay, e.cfg.CheckpointsBps),
		Caller:  e.caller,
		Config:  e.cfg,
		Now:     now,
	}
	if err := ec.Validate(); err != nil {
		e.stats.Skip()
		e.logger.Warn("tick skipped", slog.String("error", err.Error()))
		return
	}

	decision := e.arb.Evaluate(ec)
	e.export(decision, state, now)

	if !decision.Act {
		if decision.Reason != arbiter.NoRuleTriggered {
			e.stats.Block()
			e.logger.Info("commit blocked",
				slog.String("rule", decision.Rule),
				slog.String("reason", decision.Reason),
			)
		}
		return
	}

	e.stats.Decide()
	if _, err := e.exec.Enqueue(decision, state.Price, state.Round); err != nil {
		e.logger.Warn("enqueue failed", slog.String("error", err.Error()))
	}
}

// tickTrace is the wire shape published on the trace bus.
type tickTrace struct {
	At       time.Time          `json:"at"`
	Round    uint64             `json:"round"`
	Price    string             `json:"price"`
	Decision domain.Decision    `json:"decision"`
	Rules    []domain.RuleTrace `json:"rules"`
}

// export pushes the tick's trace and snapshot to the presentation
// collaborators. Best-effort and off the tick goroutine: a slow cache
// must never delay a decision.
func (e *Engine) export(decision domain.Decision, state domain.AuctionState, now time.Time) {
	if e.opts.Traces == nil && e.opts.Cache == nil {
		return
	}
	trace := e.arb.LastTrace()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if e.opts.Cache != nil {
			if err := e.opts.Cache.SetSnapshot(ctx, state, now); err != nil {
				e.logger.Debug("snapshot cache failed", slog.String("error", err.Error()))
			}
		}
		if e.opts.Traces == nil {
			return
		}
		payload, err := json.Marshal(tickTrace{
			At:       now,
			Round:    state.Round,
			Price:    state.Price.String(),
			Decision: decision,
			Rules:    trace,
		})
		if err != nil {
			return
		}
		if err := e.opts.Traces.PublishTrace(ctx, payload); err != nil {
			e.logger.Debug("trace publish failed", slog.String("error", err.Error()))
		}
	}()
}
