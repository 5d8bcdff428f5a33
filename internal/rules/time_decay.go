package rules

import (
	"fmt"
	"strconv"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// TimeDecayUrgency watches the decay phase itself: deep into the phase a
// non-losing position is worth taking before the floor brings in cheaper
// competition. Urgency grows with the elapsed fraction.
type TimeDecayUrgency struct {
	minElapsedFrac float64
}

// NewTimeDecayUrgency creates the rule. minElapsedFrac is the fraction of
// the decay phase that must have elapsed before the rule arms; it is
// required and must lie in (0, 1].
func NewTimeDecayUrgency(minElapsedFrac float64) (*TimeDecayUrgency, error) {
	if minElapsedFrac <= 0 || minElapsedFrac > 1 {
		return nil, fmt.Errorf("time_decay: elapsed fraction must be in (0, 1]: %w", domain.ErrMissingParam)
	}
	return &TimeDecayUrgency{minElapsedFrac: minElapsedFrac}, nil
}

func (r *TimeDecayUrgency) Name() string  { return "time_decay_urgency" }
func (r *TimeDecayUrgency) Priority() int { return PriorityTimeDecay }

func (r *TimeDecayUrgency) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	if !ec.State.DecayActive || ec.State.Curve.Duration <= 0 {
		return domain.RuleTrace{
			Rule:     r.Name(),
			Thoughts: domain.Thoughts{Reasoning: "decay phase not active"},
		}
	}

	elapsed := ec.Now.Sub(ec.State.Curve.DecayStart)
	frac := float64(elapsed) / float64(ec.State.Curve.Duration)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}

	thoughts := domain.Thoughts{
		Current:  fmt.Sprintf("%.0f%% elapsed", frac*100),
		Target:   fmt.Sprintf("%.0f%% elapsed", r.minElapsedFrac*100),
		Progress: domain.ClampProgress(frac / r.minElapsedFrac * 100),
		Meta: map[string]string{
			domain.MetaElapsedFrac: strconv.FormatFloat(frac, 'f', 3, 64),
		},
	}

	if frac < r.minElapsedFrac {
		thoughts.Reasoning = fmt.Sprintf("decay %.0f%% elapsed, arming at %.0f%%",
			frac*100, r.minElapsedFrac*100)
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}
	if ec.Metrics.ProfitBps < 0 {
		thoughts.Reasoning = fmt.Sprintf("decay %.0f%% elapsed but position would open at a %s loss",
			frac*100, pct(-ec.Metrics.ProfitBps))
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	thoughts.Reasoning = fmt.Sprintf("decay %.0f%% elapsed past %.0f%% with non-negative profit %s",
		frac*100, r.minElapsedFrac*100, pct(ec.Metrics.ProfitBps))
	return domain.RuleTrace{
		Rule:     r.Name(),
		Thoughts: thoughts,
		Decision: &domain.Decision{
			Act:      true,
			Reason:   thoughts.Reasoning,
			Priority: r.Priority(),
			Rule:     r.Name(),
			Urgency:  1 + frac,
			Meta:     thoughts.Meta,
		},
	}
}
