package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/snipebot/internal/arbiter"
	"github.com/alanyoungcy/snipebot/internal/chain"
	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/engine"
	"github.com/alanyoungcy/snipebot/internal/executor"
	"github.com/alanyoungcy/snipebot/internal/notify"
	"github.com/alanyoungcy/snipebot/internal/rules"
	"github.com/alanyoungcy/snipebot/internal/service"
	"github.com/alanyoungcy/snipebot/internal/wallet"
)

// SnipeMode runs the full pipeline: chain feed, decision engine, execution
// serializer, and price reconciler. The wallet key is required.
func (a *App) SnipeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting snipe mode")

	key, err := wallet.LoadKey(wallet.KeyConfig{
		RawPrivateKey:   a.cfg.Wallet.PrivateKey,
		KeyfilePath:     a.cfg.Wallet.KeyfilePath,
		KeyfilePassword: a.cfg.Wallet.KeyfilePassword,
	})
	if err != nil {
		return fmt.Errorf("app: load key: %w", err)
	}

	client, err := chain.Dial(ctx,
		a.cfg.Chain.RPCURL,
		common.HexToAddress(a.cfg.Chain.Contract),
		key,
		big.NewInt(a.cfg.Chain.BaselineTipWei),
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("app: chain: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	sink := notifyingSink{inner: client, notifier: deps.Notifier}
	return a.runPipeline(ctx, deps, client, sink, client.From())
}

// MonitorMode runs the same decision loop against live chain data but
// replaces the execution sink with a dry-run logger: every decision is
// evaluated, recorded, and exported, nothing is submitted.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode (dry run)")

	client, err := chain.Dial(ctx,
		a.cfg.Chain.RPCURL,
		common.HexToAddress(a.cfg.Chain.Contract),
		nil,
		big.NewInt(a.cfg.Chain.BaselineTipWei),
		a.logger,
	)
	if err != nil {
		return fmt.Errorf("app: chain: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	ruleCfg, err := a.cfg.Rules.Domain()
	if err != nil {
		return err
	}
	sink := dryRunSink{balance: ruleCfg.MaxCommit, logger: a.logger}

	return a.runPipeline(ctx, deps, client, sink, callerFor(ruleCfg))
}

// ReplayMode re-runs a recorded event log through the engine with a
// dry-run sink and prints the resulting session statistics.
func (a *App) ReplayMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting replay mode",
		slog.String("events", a.cfg.Replay.EventsPath),
	)

	events, err := loadEvents(a.cfg.Replay.EventsPath)
	if err != nil {
		return fmt.Errorf("app: replay: %w", err)
	}

	ruleCfg, err := a.cfg.Rules.Domain()
	if err != nil {
		return err
	}
	caller := callerFor(ruleCfg)

	stats := service.NewStats()
	reg, err := a.buildRegistry()
	if err != nil {
		return err
	}
	arb := arbiter.New(reg, a.logger)
	sink := dryRunSink{balance: ruleCfg.MaxCommit, logger: a.logger}
	exec := executor.New(sink, deps.Attempts, stats, a.logger)

	eng := engine.New(arb, exec, stats, ruleCfg, caller, engine.Options{
		TickInterval:   a.cfg.Engine.TickInterval.Duration,
		DedupRetention: a.cfg.Engine.DedupRetention.Duration,
		Settlements:    deps.Settlements,
		Cache:          deps.AuctionCache,
	}, a.logger)
	a.seedLastSettled(ctx, deps, eng)

	g, gctx := errgroup.WithContext(ctx)
	replayCtx, stop := context.WithCancel(gctx)
	g.Go(func() error {
		err := exec.Run(replayCtx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer stop()
		if err := eng.Replay(replayCtx, events); err != nil {
			return err
		}
		// Let in-flight dry-run submissions drain.
		time.Sleep(100 * time.Millisecond)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	snap := stats.Snapshot()
	a.logger.InfoContext(ctx, "replay finished",
		slog.Int("events", len(events)),
		slog.Uint64("ticks", snap.Ticks),
		slog.Uint64("decisions", snap.Decisions),
		slog.Uint64("blocked", snap.Blocked),
		slog.Uint64("confirmed", snap.Confirmed),
		slog.Uint64("superseded", snap.Superseded),
	)
	return nil
}

// runPipeline assembles and runs the live loop shared by snipe and
// monitor modes.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, client *chain.Client, sink domain.ExecutionSink, caller common.Address) error {
	ruleCfg, err := a.cfg.Rules.Domain()
	if err != nil {
		return err
	}
	reg, err := a.buildRegistry()
	if err != nil {
		return err
	}

	stats := service.NewStats()
	arb := arbiter.New(reg, a.logger)
	exec := executor.New(sink, deps.Attempts, stats, a.logger)

	var traces domain.TraceBus
	if deps.TraceBus != nil {
		traces = deps.TraceBus
	}
	eng := engine.New(arb, exec, stats, ruleCfg, caller, engine.Options{
		TickInterval:   a.cfg.Engine.TickInterval.Duration,
		DedupRetention: a.cfg.Engine.DedupRetention.Duration,
		Settlements:    deps.Settlements,
		Cache:          deps.AuctionCache,
		Traces:         traces,
	}, a.logger)
	a.seedLastSettled(ctx, deps, eng)
	a.logRecentActivity(ctx, deps)

	feed := chain.NewFeed(a.cfg.Chain.WSURL, common.HexToAddress(a.cfg.Chain.Contract), eng.Events(), a.logger)
	provider := chain.NewProvider(client, feed, eng.Events(), a.cfg.Chain.RefreshInterval.Duration, a.logger)
	recon := service.NewReconciler(client, eng,
		a.cfg.Engine.ReconInterval.Duration,
		a.cfg.Engine.ReconToleranceBps,
		a.logger,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return exec.Run(gctx) })
	g.Go(func() error { return provider.Run(gctx) })
	g.Go(func() error { return recon.Run(gctx) })

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		_ = deps.Notifier.Notify(context.Background(), notify.EventError, "bot stopped", err.Error())
		return err
	}

	snap := stats.Snapshot()
	a.logger.InfoContext(ctx, "session finished",
		slog.Uint64("ticks", snap.Ticks),
		slog.Uint64("decisions", snap.Decisions),
		slog.Uint64("confirmed", snap.Confirmed),
		slog.Uint64("failed", snap.Failed),
		slog.Uint64("superseded", snap.Superseded),
	)
	return nil
}

// buildRegistry registers the full rule set in priority order. Optional
// rules join only when their parameter is configured.
func (a *App) buildRegistry() (*rules.Registry, error) {
	reg := rules.NewRegistry()

	parity, err := rules.NewThresholdParity(a.cfg.Rules.ParityBufferBps())
	if err != nil {
		return nil, err
	}

	fixed := []rules.Rule{
		parity,
		rules.NewBlacklist(),
		rules.NewSafety(),
		rules.NewSelfProtection(),
		rules.NewStandardSnipe(),
	}
	for _, r := range fixed {
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}

	if a.cfg.Rules.MarketDiscountPct > 0 {
		r, err := rules.NewMarketDiscount(a.cfg.Rules.MarketDiscountBps())
		if err != nil {
			return nil, err
		}
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	if a.cfg.Rules.TimeDecayMinFrac > 0 {
		r, err := rules.NewTimeDecayUrgency(a.cfg.Rules.TimeDecayMinFrac)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}
	if a.cfg.Rules.PredictiveWindow > 0 {
		r, err := rules.NewPredictiveTiming(a.cfg.Rules.PredictiveWindow)
		if err != nil {
			return nil, err
		}
		if err := reg.Register(r); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

// seedLastSettled recovers the previous round's settled price from the
// settlement store, falling back to the cache snapshot, so the engine
// does not start blind after a restart. Absence is not an error.
func (a *App) seedLastSettled(ctx context.Context, deps *Dependencies, eng *engine.Engine) {
	if deps.Settlements != nil {
		price, err := deps.Settlements.LastSettledPrice(ctx)
		switch {
		case err == nil:
			eng.SeedLastSettled(price)
			a.logger.InfoContext(ctx, "seeded last settled price",
				slog.String("price", price.String()),
				slog.String("source", "postgres"),
			)
			return
		case !errors.Is(err, domain.ErrNotFound):
			a.logger.WarnContext(ctx, "last settled price lookup failed",
				slog.String("error", err.Error()),
			)
		}
	}
	if deps.AuctionCache != nil {
		price, round, err := deps.AuctionCache.GetLastSettled(ctx)
		switch {
		case err == nil:
			eng.SeedLastSettled(price)
			a.logger.InfoContext(ctx, "seeded last settled price",
				slog.String("price", price.String()),
				slog.Uint64("round", round),
				slog.String("source", "redis"),
			)
		case !errors.Is(err, domain.ErrNotFound):
			a.logger.WarnContext(ctx, "cached settled price lookup failed",
				slog.String("error", err.Error()),
			)
		}
	}
}

// logRecentActivity reports the tail of the audit stores at startup so
// the operator sees where the previous session left off.
func (a *App) logRecentActivity(ctx context.Context, deps *Dependencies) {
	if deps.Settlements != nil {
		recent, err := deps.Settlements.ListRecent(ctx, 5)
		if err != nil {
			a.logger.WarnContext(ctx, "recent settlements lookup failed",
				slog.String("error", err.Error()),
			)
		} else if len(recent) > 0 {
			a.logger.InfoContext(ctx, "recent settlements",
				slog.Int("count", len(recent)),
				slog.Uint64("last_round", recent[0].Round),
				slog.String("last_price", recent[0].Price.String()),
			)
		}
	}
	if deps.Attempts != nil {
		recent, err := deps.Attempts.ListRecent(ctx, 5)
		if err != nil {
			a.logger.WarnContext(ctx, "recent attempts lookup failed",
				slog.String("error", err.Error()),
			)
		} else if len(recent) > 0 {
			var confirmed int
			for _, at := range recent {
				if at.Outcome == domain.AttemptConfirmed {
					confirmed++
				}
			}
			a.logger.InfoContext(ctx, "recent commit attempts",
				slog.Int("count", len(recent)),
				slog.Int("confirmed", confirmed),
				slog.String("last_rule", recent[0].Rule),
			)
		}
	}
}

// observerAddr stands in for the caller identity when the operator has
// not declared any own addresses. Monitor and replay never submit, but
// context validation rejects a zero caller, which would skip every tick.
var observerAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")

// callerFor picks the evaluation identity for the non-submitting modes:
// the first declared self address, or the observer stand-in.
func callerFor(cfg domain.RuleConfig) common.Address {
	for addr := range cfg.SelfAddrs {
		return addr
	}
	return observerAddr
}

// notifyingSink forwards submissions to the real sink and alerts the
// operator about the outcome.
type notifyingSink struct {
	inner    domain.ExecutionSink
	notifier *notify.Notifier
}

func (s notifyingSink) Balance(ctx context.Context) (*big.Int, error) {
	return s.inner.Balance(ctx)
}

func (s notifyingSink) SubmitCommit(ctx context.Context, req domain.CommitRequest) (domain.CommitReceipt, error) {
	receipt, err := s.inner.SubmitCommit(ctx, req)
	if err != nil {
		_ = s.notifier.Notify(ctx, notify.EventError, "commit failed",
			fmt.Sprintf("round %d: %v", req.Round, err))
		return receipt, err
	}
	_ = s.notifier.Notify(ctx, notify.EventCommit, "commit confirmed",
		fmt.Sprintf("round %d amount %s tx %s", req.Round, req.Amount, receipt.TxHash.Hex()))
	return receipt, nil
}

// dryRunSink satisfies act decisions without touching the chain.
type dryRunSink struct {
	balance *big.Int
	logger  *slog.Logger
}

func (s dryRunSink) Balance(context.Context) (*big.Int, error) {
	return s.balance, nil
}

func (s dryRunSink) SubmitCommit(_ context.Context, req domain.CommitRequest) (domain.CommitReceipt, error) {
	s.logger.Info("dry-run commit",
		slog.Uint64("round", req.Round),
		slog.String("amount", req.Amount.String()),
		slog.String("rule", req.Decision.Rule),
		slog.String("reason", req.Decision.Reason),
	)
	return domain.CommitReceipt{ConfirmedAt: time.Now().UTC()}, nil
}

// loadEvents reads a JSON-lines event log produced by a recording session.
func loadEvents(path string) ([]domain.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var events []domain.Event
	dec := json.NewDecoder(bytes.NewReader(data))
	for dec.More() {
		var ev domain.Event
		if err := dec.Decode(&ev); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
	if len(events) == 0 {
		return nil, errors.New("event log is empty")
	}
	return events, nil
}
