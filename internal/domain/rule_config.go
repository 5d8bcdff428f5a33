package domain

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RuleConfig carries every parameter the rule set reads. It is built once
// per session by the config layer, validated there, and passed by value
// into each evaluation; rules never mutate it.
type RuleConfig struct {
	// Profit thresholds in basis points. OthersThresholdBps applies to any
	// non-owned, non-blacklisted leader; SelfThresholdBps to the caller's
	// own addresses; BlacklistThresholdBps (commonly negative) to
	// blacklisted leaders.
	OthersThresholdBps    int64
	SelfThresholdBps      int64
	BlacklistThresholdBps int64

	// SnipeBuffer is the anticipatory-firing window: a rule may act when a
	// checkpoint is projected to be crossed within this much time.
	SnipeBuffer time.Duration

	// SafetyCeiling is the maximum tolerated auction safety multiplier.
	SafetyCeiling float64

	// MaxCommit is the hard spend ceiling per commit.
	MaxCommit *big.Int

	// ExpectedDecay is the anticipated remaining decay window used by the
	// accrual model and the checkpoint projections. The two formulas share
	// this single value and must never diverge.
	ExpectedDecay time.Duration

	// CheckpointsBps are the profit checkpoints (bps) the projector maps to
	// time-remaining. Validation guarantees the self and others thresholds
	// are members so the anticipatory rules always find their checkpoint.
	CheckpointsBps []int64

	SelfAddrs map[common.Address]bool
	Blacklist map[common.Address]bool
}

// IsSelf reports whether addr is one of the caller's own addresses.
func (c RuleConfig) IsSelf(addr common.Address) bool { return c.SelfAddrs[addr] }

// IsBlacklisted reports whether addr is blacklisted.
func (c RuleConfig) IsBlacklisted(addr common.Address) bool { return c.Blacklist[addr] }

// Validate checks structural invariants. Thresholds may be negative
// (blacklist snipes tolerate a loss), but the spend ceiling and checkpoint
// membership are mandatory.
func (c RuleConfig) Validate() error {
	if c.MaxCommit == nil || c.MaxCommit.Sign() <= 0 {
		return fmt.Errorf("rule config: max commit must be positive: %w", ErrMissingParam)
	}
	if c.SafetyCeiling <= 0 {
		return fmt.Errorf("rule config: safety ceiling must be positive: %w", ErrMissingParam)
	}
	if c.SnipeBuffer < 0 {
		return fmt.Errorf("rule config: snipe buffer must be non-negative")
	}
	if c.ExpectedDecay < 0 {
		return fmt.Errorf("rule config: expected decay must be non-negative")
	}
	for _, want := range []int64{c.SelfThresholdBps, c.OthersThresholdBps} {
		if !containsBps(c.CheckpointsBps, want) {
			return fmt.Errorf("rule config: checkpoint list missing threshold %d bps", want)
		}
	}
	return nil
}

func containsBps(list []int64, want int64) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}
