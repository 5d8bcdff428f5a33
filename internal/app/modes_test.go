package app

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/arbiter"
	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/engine"
	"github.com/alanyoungcy/snipebot/internal/executor"
	"github.com/alanyoungcy/snipebot/internal/rules"
	"github.com/alanyoungcy/snipebot/internal/service"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubSettlements struct {
	price  *big.Int
	err    error
	recent []domain.Settlement
}

func (s *stubSettlements) Insert(context.Context, domain.Settlement) error { return nil }

func (s *stubSettlements) LastSettledPrice(context.Context) (*big.Int, error) {
	return s.price, s.err
}

func (s *stubSettlements) ListRecent(context.Context, int) ([]domain.Settlement, error) {
	return s.recent, nil
}

type stubCache struct {
	price *big.Int
	round uint64
	err   error
}

func (s *stubCache) SetSnapshot(context.Context, domain.AuctionState, time.Time) error { return nil }
func (s *stubCache) SetLastSettled(context.Context, *big.Int, uint64) error            { return nil }

func (s *stubCache) GetLastSettled(context.Context) (*big.Int, uint64, error) {
	return s.price, s.round, s.err
}

type idleSink struct{}

func (idleSink) Balance(context.Context) (*big.Int, error) { return big.NewInt(0), nil }

func (idleSink) SubmitCommit(context.Context, domain.CommitRequest) (domain.CommitReceipt, error) {
	return domain.CommitReceipt{}, nil
}

func newSeedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	stats := service.NewStats()
	arb := arbiter.New(rules.NewRegistry(), testLogger())
	exec := executor.New(idleSink{}, nil, stats, testLogger())
	cfg := domain.RuleConfig{
		MaxCommit: big.NewInt(1_000_000),
		SelfAddrs: map[common.Address]bool{},
		Blacklist: map[common.Address]bool{},
	}
	return engine.New(arb, exec, stats, cfg, observerAddr, engine.Options{}, testLogger())
}

func TestCallerFor_DefaultsToObserver(t *testing.T) {
	got := callerFor(domain.RuleConfig{SelfAddrs: map[common.Address]bool{}})
	if got == (common.Address{}) {
		t.Fatal("caller must never be the zero address")
	}
	if got != observerAddr {
		t.Fatalf("caller: got %s want observer %s", got.Hex(), observerAddr.Hex())
	}
}

func TestCallerFor_PrefersSelfAddress(t *testing.T) {
	self := common.HexToAddress("0x2222222222222222222222222222222222222222")
	got := callerFor(domain.RuleConfig{SelfAddrs: map[common.Address]bool{self: true}})
	if got != self {
		t.Fatalf("caller: got %s want %s", got.Hex(), self.Hex())
	}
}

// The derived identity must survive context validation; a zero caller
// would skip every tick in monitor mode.
func TestCallerFor_PassesContextValidation(t *testing.T) {
	ec := domain.EvalContext{
		State: domain.AuctionState{
			Price:      big.NewInt(10_000),
			LeaderPaid: big.NewInt(0),
		},
		Accrual: domain.RewardAccrual{
			RatePerSecond: big.NewInt(0),
			Total:         big.NewInt(0),
		},
		Caller: callerFor(domain.RuleConfig{SelfAddrs: map[common.Address]bool{}}),
		Now:    time.Unix(1_700_000_000, 0).UTC(),
	}
	if err := ec.Validate(); err != nil {
		t.Fatalf("observer caller rejected: %v", err)
	}

	ec.Caller = common.Address{}
	if err := ec.Validate(); err == nil {
		t.Fatal("zero caller must be rejected")
	}
}

func TestSeedLastSettled_FromStore(t *testing.T) {
	a := &App{logger: testLogger()}
	eng := newSeedEngine(t)
	deps := &Dependencies{
		Settlements:  &stubSettlements{price: big.NewInt(5_000)},
		AuctionCache: &stubCache{err: domain.ErrNotFound},
	}

	a.seedLastSettled(context.Background(), deps, eng)

	if got := eng.State().LastSettled; got == nil || got.Cmp(big.NewInt(5_000)) != 0 {
		t.Fatalf("last settled: got %v want 5000", got)
	}
}

func TestSeedLastSettled_FallsBackToCache(t *testing.T) {
	a := &App{logger: testLogger()}
	eng := newSeedEngine(t)
	deps := &Dependencies{
		Settlements:  &stubSettlements{err: domain.ErrNotFound},
		AuctionCache: &stubCache{price: big.NewInt(7_000), round: 9},
	}

	a.seedLastSettled(context.Background(), deps, eng)

	if got := eng.State().LastSettled; got == nil || got.Cmp(big.NewInt(7_000)) != 0 {
		t.Fatalf("last settled: got %v want 7000", got)
	}
}

func TestSeedLastSettled_NoHistory(t *testing.T) {
	a := &App{logger: testLogger()}
	eng := newSeedEngine(t)
	deps := &Dependencies{
		Settlements:  &stubSettlements{err: domain.ErrNotFound},
		AuctionCache: &stubCache{err: domain.ErrNotFound},
	}

	a.seedLastSettled(context.Background(), deps, eng)

	if got := eng.State().LastSettled; got != nil {
		t.Fatalf("no history must leave last settled unset, got %v", got)
	}
}
