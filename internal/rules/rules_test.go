package rules

import (
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

var (
	testCaller = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testSelf   = common.HexToAddress("0x2222222222222222222222222222222222222222")
	testEnemy  = common.HexToAddress("0x3333333333333333333333333333333333333333")
	testOther  = common.HexToAddress("0x4444444444444444444444444444444444444444")
)

func testConfig() domain.RuleConfig {
	return domain.RuleConfig{
		OthersThresholdBps:    1000,
		SelfThresholdBps:      500,
		BlacklistThresholdBps: -500,
		SnipeBuffer:           3 * time.Second,
		SafetyCeiling:         1.4,
		MaxCommit:             big.NewInt(1_000_000),
		ExpectedDecay:         0,
		CheckpointsBps:        []int64{500, 1000},
		SelfAddrs:             map[common.Address]bool{testCaller: true, testSelf: true},
		Blacklist:             map[common.Address]bool{testEnemy: true},
	}
}

func testContext(leader common.Address, paid, accrued int64) domain.EvalContext {
	now := time.Unix(1_700_000_000, 0)
	paidBig := big.NewInt(paid)
	acc := domain.RewardAccrual{
		RatePerSecond: big.NewInt(1),
		Total:         big.NewInt(accrued),
		Elapsed:       domain.Seconds(accrued),
	}
	net := new(big.Int).Sub(acc.Total, paidBig)
	var profitBps int64
	if paid > 0 {
		profitBps = net.Int64() * 10000 / paid
	}
	return domain.EvalContext{
		State: domain.AuctionState{
			Price:            big.NewInt(paid),
			Leader:           leader,
			LeaderPaid:       paidBig,
			LeadStart:        now.Add(-time.Duration(accrued) * time.Second),
			DecayActive:      true,
			SafetyMultiplier: 1.0,
			Curve: domain.Curve{
				Start:      big.NewInt(paid * 2),
				Floor:      big.NewInt(0),
				Duration:   time.Hour,
				DecayStart: now.Add(-time.Minute),
			},
		},
		Accrual: acc,
		Metrics: domain.ProfitMetrics{
			ProfitBps:   profitBps,
			ReturnBps:   profitBps + 10000,
			NetProfit:   net,
			BreakEven:   domain.Seconds(paid),
			Checkpoints: map[int64]domain.Seconds{},
		},
		Caller: testCaller,
		Config: testConfig(),
		Now:    now,
	}
}

// Scenario: accrued has caught up with the price paid and the buffer is
// zero, so threshold parity acts at priority 100 and mentions the parity
// comparison in its reason.
func TestThresholdParity_ActsAtParity(t *testing.T) {
	r, err := NewThresholdParity(0)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	tr := r.Evaluate(testContext(testOther, 10_000, 10_000))
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("expected act decision, got %+v", tr.Decision)
	}
	if tr.Decision.Priority != 100 {
		t.Fatalf("priority: got %d want 100", tr.Decision.Priority)
	}
	if tr.Decision.Urgency <= 1 {
		t.Fatalf("urgency: got %g want > 1", tr.Decision.Urgency)
	}
	if want := "accrued 10000 >= price paid 10000"; !strings.Contains(tr.Decision.Reason, want) {
		t.Fatalf("reason %q does not mention %q", tr.Decision.Reason, want)
	}
}

func TestThresholdParity_BufferHoldsBack(t *testing.T) {
	r, err := NewThresholdParity(500) // +5% buffer
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	tr := r.Evaluate(testContext(testOther, 10_000, 10_400))
	if tr.Decision != nil {
		t.Fatalf("expected no decision below buffered target, got %+v", tr.Decision)
	}
	if tr.Thoughts.Reasoning == "" {
		t.Fatal("non-triggering rule must still explain itself")
	}

	tr = r.Evaluate(testContext(testOther, 10_000, 10_500))
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("expected act at buffered target, got %+v", tr.Decision)
	}
}

func TestThresholdParity_NegativeBufferRefused(t *testing.T) {
	if _, err := NewThresholdParity(-1); err == nil {
		t.Fatal("expected construction error for negative buffer")
	}
}

// Scenario: blacklisted leader, threshold -5%. Profit exactly -5% acts
// (boundary inclusive); -10% does not.
func TestBlacklist_BoundaryInclusive(t *testing.T) {
	r := NewBlacklist()

	ec := testContext(testEnemy, 10_000, 9_500) // -5.00%
	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("profit -5%% vs threshold -5%%: expected act, got %+v", tr.Decision)
	}

	ec = testContext(testEnemy, 10_000, 9_000) // -10.00%
	tr = r.Evaluate(ec)
	if tr.Decision != nil {
		t.Fatalf("profit -10%% vs threshold -5%%: expected none, got %+v", tr.Decision)
	}
}

func TestBlacklist_IgnoresOtherLeaders(t *testing.T) {
	r := NewBlacklist()
	tr := r.Evaluate(testContext(testOther, 10_000, 20_000))
	if tr.Decision != nil {
		t.Fatalf("non-blacklisted leader: expected none, got %+v", tr.Decision)
	}
}

// Scenario: safety multiplier 1.5 over ceiling 1.4 blocks, and the reason
// cites the comparison.
func TestSafety_BlocksOnMultiplier(t *testing.T) {
	r := NewSafety()
	ec := testContext(testOther, 10_000, 15_000)
	ec.State.SafetyMultiplier = 1.5

	tr := r.Evaluate(ec)
	if tr.Decision == nil || tr.Decision.Act {
		t.Fatalf("expected blocking decision, got %+v", tr.Decision)
	}
	if !strings.Contains(tr.Decision.Reason, "1.5 > 1.4") {
		t.Fatalf("reason %q does not cite the comparison", tr.Decision.Reason)
	}
}

func TestSafety_BlocksOnMaxCommit(t *testing.T) {
	r := NewSafety()
	ec := testContext(testOther, 10_000, 0)
	ec.State.Price = big.NewInt(2_000_000) // over the 1,000,000 ceiling

	tr := r.Evaluate(ec)
	if tr.Decision == nil || tr.Decision.Act {
		t.Fatalf("expected blocking decision, got %+v", tr.Decision)
	}
}

func TestSafety_SilentWithinCeilings(t *testing.T) {
	r := NewSafety()
	tr := r.Evaluate(testContext(testOther, 10_000, 0))
	if tr.Decision != nil {
		t.Fatalf("within ceilings: expected none, got %+v", tr.Decision)
	}
	if tr.Thoughts.Reasoning == "" {
		t.Fatal("safety must explain why it stayed silent")
	}
}

// Scenario: own leader at +4.5% with the +5% checkpoint due in 2s and a 3s
// buffer fires anticipatorily at priority 70.
func TestSelfProtection_AnticipatoryFiring(t *testing.T) {
	r := NewSelfProtection()
	ec := testContext(testSelf, 10_000, 10_450) // +4.50%
	ec.Metrics.Checkpoints[500] = 2

	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("expected anticipatory act, got %+v", tr.Decision)
	}
	if tr.Decision.Priority != 70 {
		t.Fatalf("priority: got %d want 70", tr.Decision.Priority)
	}
}

func TestSelfProtection_OutsideBufferWaits(t *testing.T) {
	r := NewSelfProtection()
	ec := testContext(testSelf, 10_000, 10_450)
	ec.Metrics.Checkpoints[500] = 10 // beyond the 3s buffer

	tr := r.Evaluate(ec)
	if tr.Decision != nil {
		t.Fatalf("checkpoint beyond buffer: expected none, got %+v", tr.Decision)
	}
}

func TestSelfProtection_ThresholdMet(t *testing.T) {
	r := NewSelfProtection()
	ec := testContext(testSelf, 10_000, 10_500) // +5.00%
	ec.Metrics.Checkpoints[500] = 0

	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("threshold met: expected act, got %+v", tr.Decision)
	}
}

func TestSelfProtection_IgnoresForeignLeader(t *testing.T) {
	r := NewSelfProtection()
	tr := r.Evaluate(testContext(testOther, 10_000, 20_000))
	if tr.Decision != nil {
		t.Fatalf("foreign leader: expected none, got %+v", tr.Decision)
	}
}

func TestStandardSnipe_ExternalLeaderOnly(t *testing.T) {
	r := NewStandardSnipe()

	// Blacklisted and owned leaders belong to the dedicated rules.
	for _, leader := range []common.Address{testSelf, testEnemy} {
		tr := r.Evaluate(testContext(leader, 10_000, 20_000))
		if tr.Decision != nil {
			t.Fatalf("leader %s: expected none, got %+v", leader.Hex(), tr.Decision)
		}
	}

	ec := testContext(testOther, 10_000, 11_000) // +10% meets others threshold
	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("others threshold met: expected act, got %+v", tr.Decision)
	}
	if tr.Decision.Priority != 60 {
		t.Fatalf("priority: got %d want 60", tr.Decision.Priority)
	}
}

func TestStandardSnipe_Anticipatory(t *testing.T) {
	r := NewStandardSnipe()
	ec := testContext(testOther, 10_000, 10_900)
	ec.Metrics.Checkpoints[1000] = 1

	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("expected anticipatory act, got %+v", tr.Decision)
	}
}

func TestMarketDiscount(t *testing.T) {
	r, err := NewMarketDiscount(2000) // 20% below last settled
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	ec := testContext(testOther, 10_000, 0)
	tr := r.Evaluate(ec)
	if tr.Decision != nil {
		t.Fatalf("no settled round: expected none, got %+v", tr.Decision)
	}

	ec.State.LastSettled = big.NewInt(11_000)
	tr = r.Evaluate(ec) // target 8800, price 10000
	if tr.Decision != nil {
		t.Fatalf("price above target: expected none, got %+v", tr.Decision)
	}

	ec.State.Price = big.NewInt(8_800)
	tr = r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("price at target: expected act, got %+v", tr.Decision)
	}

	if _, err := NewMarketDiscount(0); err == nil {
		t.Fatal("expected construction error for zero discount")
	}
}

func TestTimeDecayUrgency(t *testing.T) {
	r, err := NewTimeDecayUrgency(0.8)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	ec := testContext(testOther, 10_000, 10_100)
	ec.State.Curve.DecayStart = ec.Now.Add(-54 * time.Minute) // 90% of an hour

	tr := r.Evaluate(ec)
	if tr.Decision == nil || !tr.Decision.Act {
		t.Fatalf("late decay with profit: expected act, got %+v", tr.Decision)
	}
	if tr.Decision.Urgency <= 1 {
		t.Fatalf("urgency: got %g want > 1", tr.Decision.Urgency)
	}

	// Early in the phase it stays quiet.
	ec.State.Curve.DecayStart = ec.Now.Add(-6 * time.Minute)
	if tr := r.Evaluate(ec); tr.Decision != nil {
		t.Fatalf("early decay: expected none, got %+v", tr.Decision)
	}

	// Deep in the phase, a losing position is still not taken.
	ec.State.Curve.DecayStart = ec.Now.Add(-54 * time.Minute)
	ec.Metrics.ProfitBps = -100
	if tr := r.Evaluate(ec); tr.Decision != nil {
		t.Fatalf("losing position: expected none, got %+v", tr.Decision)
	}

	if _, err := NewTimeDecayUrgency(0); err == nil {
		t.Fatal("expected construction error for zero fraction")
	}
}

func TestPredictiveTiming_ProjectsGrowth(t *testing.T) {
	r, err := NewPredictiveTiming(3)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	base := testContext(testOther, 10_000, 10_000)
	// Feed a trajectory of +100 bps per second: 800 -> 900 -> 980 bps.
	// Remaining 20 bps to the 1000 bps threshold arrives well inside the 3s
	// buffer.
	for i, p := range []int64{800, 900, 980} {
		ec := base
		ec.Now = base.Now.Add(time.Duration(i) * time.Second)
		ec.Metrics.ProfitBps = p
		tr := r.Evaluate(ec)
		if i < 2 {
			if tr.Decision != nil {
				t.Fatalf("sample %d: expected none while collecting, got %+v", i, tr.Decision)
			}
			continue
		}
		if tr.Decision == nil || !tr.Decision.Act {
			t.Fatalf("expected act on projected crossing, got %+v", tr.Decision)
		}
		if tr.Decision.Priority != PriorityPredictive {
			t.Fatalf("priority: got %d want %d", tr.Decision.Priority, PriorityPredictive)
		}
	}
}

func TestPredictiveTiming_FlatTrajectoryStaysQuiet(t *testing.T) {
	r, err := NewPredictiveTiming(2)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}

	base := testContext(testOther, 10_000, 10_000)
	for i := 0; i < 4; i++ {
		ec := base
		ec.Now = base.Now.Add(time.Duration(i) * time.Second)
		ec.Metrics.ProfitBps = 500
		if tr := r.Evaluate(ec); tr.Decision != nil {
			t.Fatalf("flat trajectory: expected none, got %+v", tr.Decision)
		}
	}

	if _, err := NewPredictiveTiming(1); err == nil {
		t.Fatal("expected construction error for window < 2")
	}
}

func TestRegistry_OrderAndUniqueness(t *testing.T) {
	reg := NewRegistry()
	parity, _ := NewThresholdParity(0)
	if err := reg.Register(parity); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(NewSafety()); err != nil {
		t.Fatalf("register: %v", err)
	}

	otherParity, _ := NewThresholdParity(100)
	if err := reg.Register(otherParity); err == nil {
		t.Fatal("expected duplicate name to be rejected")
	}

	got := reg.List()
	want := []string{"threshold_parity", "safety"}
	if len(got) != len(want) {
		t.Fatalf("list: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list order: got %v want %v", got, want)
		}
	}
}
