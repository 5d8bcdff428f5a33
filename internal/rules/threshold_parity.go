package rules

import (
	"fmt"
	"math/big"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// ThresholdParity acts the moment the accrued reward covers the price the
// leader paid, scaled by a configured profit buffer. It is the highest
// priority acting rule and signals strong urgency: at parity every further
// second of someone else holding the lead is money left on the table.
type ThresholdParity struct {
	bufferBps int64
}

// NewThresholdParity creates the rule with the given profit buffer in
// basis points. A zero buffer means act at exact parity; a negative buffer
// is refused.
func NewThresholdParity(bufferBps int64) (*ThresholdParity, error) {
	if bufferBps < 0 {
		return nil, fmt.Errorf("threshold_parity: buffer must be non-negative: %w", domain.ErrMissingParam)
	}
	return &ThresholdParity{bufferBps: bufferBps}, nil
}

func (r *ThresholdParity) Name() string  { return "threshold_parity" }
func (r *ThresholdParity) Priority() int { return PriorityThresholdParity }

// Evaluate compares the accrued total against paid*(1+buffer).
func (r *ThresholdParity) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	paid := ec.State.LeaderPaid
	accrued := ec.Accrual.Total

	target := new(big.Int).Mul(paid, big.NewInt(10000+r.bufferBps))
	target.Div(target, big.NewInt(10000))

	thoughts := domain.Thoughts{
		Current: accrued.String(),
		Target:  target.String(),
		Meta: map[string]string{
			domain.MetaAccrued:    accrued.String(),
			domain.MetaLeaderPaid: paid.String(),
		},
	}
	if target.Sign() > 0 && accrued.Cmp(target) < 0 {
		cur := new(big.Int).Mul(accrued, big.NewInt(100))
		cur.Div(cur, target)
		thoughts.Progress = domain.ClampProgress(float64(cur.Int64()))
	} else {
		thoughts.Progress = 100
	}

	if accrued.Cmp(target) < 0 {
		thoughts.Reasoning = fmt.Sprintf("accrued %s below parity target %s (buffer %s)",
			accrued, target, pct(r.bufferBps))
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	thoughts.Reasoning = fmt.Sprintf("accrued %s >= price paid %s with buffer %s",
		accrued, paid, pct(r.bufferBps))
	return domain.RuleTrace{
		Rule:     r.Name(),
		Thoughts: thoughts,
		Decision: &domain.Decision{
			Act:      true,
			Reason:   thoughts.Reasoning,
			Priority: r.Priority(),
			Rule:     r.Name(),
			Urgency:  2.0,
			Meta:     thoughts.Meta,
		},
	}
}
