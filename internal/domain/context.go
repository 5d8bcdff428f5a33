package domain

import (
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EvalContext is the read-only bundle every rule sees on one tick. It is
// constructed once per tick, validated, then shared by all rules. Rules
// may assume a valid context; validation happens here so they never need
// defensive branching.
type EvalContext struct {
	State   AuctionState
	Accrual RewardAccrual
	Metrics ProfitMetrics
	Caller  common.Address
	Config  RuleConfig
	// Now is the tick's single clock reading; rules derive every
	// time-based quantity from it instead of reading the wall clock.
	Now time.Time
}

// Validate checks the structural invariants a well-formed context must
// satisfy. A failure is fatal to the single evaluation, not the process:
// the tick is skipped and the prior decision stands.
func (ec EvalContext) Validate() error {
	if ec.Caller == (common.Address{}) {
		return fmt.Errorf("caller address unset: %w", ErrMalformedContext)
	}
	if ec.Now.IsZero() {
		return fmt.Errorf("clock reading unset: %w", ErrMalformedContext)
	}
	for name, v := range map[string]*big.Int{
		"price":       ec.State.Price,
		"leader_paid": ec.State.LeaderPaid,
		"rate":        ec.Accrual.RatePerSecond,
		"accrued":     ec.Accrual.Total,
	} {
		if v == nil {
			return fmt.Errorf("%s is nil: %w", name, ErrMalformedContext)
		}
		if v.Sign() < 0 {
			return fmt.Errorf("%s is negative: %w", name, ErrMalformedContext)
		}
	}
	if ec.State.LastSettled != nil && ec.State.LastSettled.Sign() < 0 {
		return fmt.Errorf("last settled price is negative: %w", ErrMalformedContext)
	}
	if ec.Accrual.Elapsed < 0 {
		return fmt.Errorf("elapsed is negative: %w", ErrMalformedContext)
	}
	if math.IsNaN(ec.State.SafetyMultiplier) || math.IsInf(ec.State.SafetyMultiplier, 0) {
		return fmt.Errorf("safety multiplier not finite: %w", ErrMalformedContext)
	}
	if ec.State.DecayActive {
		c := ec.State.Curve
		if c.Start == nil || c.Floor == nil || c.Start.Cmp(c.Floor) < 0 {
			return fmt.Errorf("curve start below floor: %w", ErrMalformedContext)
		}
		if ec.State.Price.Cmp(c.Floor) < 0 || ec.State.Price.Cmp(c.Start) > 0 {
			return fmt.Errorf("price outside [floor, start]: %w", ErrMalformedContext)
		}
	}
	return nil
}
