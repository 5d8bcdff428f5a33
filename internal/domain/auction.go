package domain

import (
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Seconds is a duration expressed in whole seconds. Projections that can
// never complete (zero accrual rate, unreachable checkpoint) carry the
// Unbounded sentinel instead of a real value.
type Seconds int64

// Unbounded marks a projection with no finite completion time.
const Unbounded Seconds = math.MaxInt64

// IsUnbounded reports whether s is the Unbounded sentinel.
func (s Seconds) IsUnbounded() bool { return s == Unbounded }

// Duration converts s to a time.Duration. Unbounded maps to the maximum
// representable duration.
func (s Seconds) Duration() time.Duration {
	if s.IsUnbounded() {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s) * time.Second
}

// Curve describes one round's descending-price schedule: price falls
// linearly from Start to Floor over Duration beginning at DecayStart.
type Curve struct {
	Start      *big.Int
	Floor      *big.Int
	Duration   time.Duration
	DecayStart time.Time
}

// AuctionState is the locally held view of the auction. It is mutated only
// by the event reducers in the engine; everything downstream reads it as a
// value snapshot. While DecayActive is true, Price stays within
// [Curve.Floor, Curve.Start].
type AuctionState struct {
	Price            *big.Int
	Leader           common.Address
	LeaderPaid       *big.Int
	AccrualRate      *big.Int // reward generated per second while leading
	LeadStart        time.Time
	DecayActive      bool
	SafetyMultiplier float64
	LastSettled      *big.Int // zero when no round has settled yet
	Round            uint64
	Curve            Curve
}

// RewardAccrual is the derived per-tick accrual snapshot. Never persisted;
// purely a function of AuctionState and a clock reading.
type RewardAccrual struct {
	RatePerSecond *big.Int
	Total         *big.Int
	Elapsed       Seconds
}

// ProfitMetrics projects the current leader's position. Percentages are
// integer-scaled basis points so they compare exactly against configured
// thresholds; no floating point touches the accrual path.
type ProfitMetrics struct {
	ReturnBps   int64
	ProfitBps   int64
	NetProfit   *big.Int
	BreakEven   Seconds
	Checkpoints map[int64]Seconds // profit threshold (bps) -> seconds until reached
}
