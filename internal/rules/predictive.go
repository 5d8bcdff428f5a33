package rules

import (
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// PredictiveTiming projects the profit-growth trajectory from its own
// recent observations and acts when the trajectory says the others
// threshold will be crossed within the snipe buffer. Unlike the
// checkpoint-based anticipation it does not trust the nominal accrual
// rate: it measures how profit actually moved across ticks, which also
// captures the price still decaying under the position.
type PredictiveTiming struct {
	window  int
	samples []profitSample
}

type profitSample struct {
	at        time.Time
	profitBps int64
}

// NewPredictiveTiming creates the rule. window is the number of samples
// held for the trajectory fit; it is required and must be at least 2.
func NewPredictiveTiming(window int) (*PredictiveTiming, error) {
	if window < 2 {
		return nil, fmt.Errorf("predictive_timing: sample window must be >= 2: %w", domain.ErrMissingParam)
	}
	return &PredictiveTiming{window: window}, nil
}

func (r *PredictiveTiming) Name() string  { return "predictive_timing" }
func (r *PredictiveTiming) Priority() int { return PriorityPredictive }

func (r *PredictiveTiming) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	r.samples = append(r.samples, profitSample{at: ec.Now, profitBps: ec.Metrics.ProfitBps})
	if len(r.samples) > r.window {
		r.samples = r.samples[len(r.samples)-r.window:]
	}

	threshold := ec.Config.OthersThresholdBps
	profit := ec.Metrics.ProfitBps

	thoughts := domain.Thoughts{
		Current:  pct(profit),
		Target:   pct(threshold),
		Progress: progressToward(profit, 0, threshold),
		Meta: map[string]string{
			domain.MetaProfitBps: strconv.FormatInt(profit, 10),
		},
	}

	if len(r.samples) < r.window {
		thoughts.Reasoning = fmt.Sprintf("collecting trajectory: %d/%d samples", len(r.samples), r.window)
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	oldest := r.samples[0]
	span := ec.Now.Sub(oldest.at).Seconds()
	if span <= 0 {
		thoughts.Reasoning = "trajectory span too short to project"
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}
	growth := float64(profit-oldest.profitBps) / span // bps per second
	thoughts.Meta[domain.MetaGrowthBps] = strconv.FormatFloat(growth, 'f', 2, 64)

	if growth <= 0 {
		thoughts.Reasoning = fmt.Sprintf("profit trajectory flat or falling (%.2f bps/s)", growth)
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}
	if profit >= threshold {
		// The reactive rules own this case; predicting it adds nothing.
		thoughts.Reasoning = fmt.Sprintf("threshold %s already met", pct(threshold))
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	eta := time.Duration(float64(threshold-profit)/growth) * time.Second
	if eta > ec.Config.SnipeBuffer {
		thoughts.Reasoning = fmt.Sprintf("trajectory %.2f bps/s puts threshold %s in %s, beyond %s buffer",
			growth, pct(threshold), eta.Round(time.Second), ec.Config.SnipeBuffer)
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	thoughts.Reasoning = fmt.Sprintf("trajectory %.2f bps/s reaches threshold %s in %s, within %s buffer",
		growth, pct(threshold), eta.Round(time.Second), ec.Config.SnipeBuffer)
	return domain.RuleTrace{
		Rule:     r.Name(),
		Thoughts: thoughts,
		Decision: &domain.Decision{
			Act:      true,
			Reason:   thoughts.Reasoning,
			Priority: r.Priority(),
			Rule:     r.Name(),
			Meta:     thoughts.Meta,
		},
	}
}
