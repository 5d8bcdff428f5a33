package rules

import (
	"fmt"
	"strconv"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// snipeAt evaluates the shared reactive-plus-anticipatory trigger used by
// the self-protection and standard-snipe rules: act when profit has
// reached thresholdBps, or earlier when the checkpoint projection says the
// threshold will be crossed within the snipe buffer. This converts a
// reactive rule into a proactive one without changing its priority.
func snipeAt(r Rule, ec domain.EvalContext, thresholdBps int64, who string) domain.RuleTrace {
	profit := ec.Metrics.ProfitBps
	remaining, tracked := ec.Metrics.Checkpoints[thresholdBps]

	thoughts := domain.Thoughts{
		Current:  pct(profit),
		Target:   pct(thresholdBps),
		Progress: progressToward(profit, 0, thresholdBps),
		Meta: map[string]string{
			domain.MetaProfitBps: strconv.FormatInt(profit, 10),
		},
	}
	if tracked && !remaining.IsUnbounded() {
		thoughts.Meta[domain.MetaTimeToTarget] = strconv.FormatInt(int64(remaining), 10)
	}

	switch {
	case profit >= thresholdBps:
		thoughts.Progress = 100
		thoughts.Reasoning = fmt.Sprintf("%s leader: profit %s reached threshold %s",
			who, pct(profit), pct(thresholdBps))
	case tracked && !remaining.IsUnbounded() && remaining.Duration() <= ec.Config.SnipeBuffer:
		thoughts.Reasoning = fmt.Sprintf("%s leader: threshold %s projected in %ds, within %s buffer",
			who, pct(thresholdBps), remaining, ec.Config.SnipeBuffer)
	default:
		if tracked && !remaining.IsUnbounded() {
			thoughts.Reasoning = fmt.Sprintf("%s leader: profit %s, threshold %s due in %ds",
				who, pct(profit), pct(thresholdBps), remaining)
		} else {
			thoughts.Reasoning = fmt.Sprintf("%s leader: profit %s, threshold %s unreachable at current rate",
				who, pct(profit), pct(thresholdBps))
		}
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

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

// SelfProtection fires when one of the caller's own addresses holds the
// lead: once its own position is profitable enough it re-takes the lead
// before someone else can, anticipating the crossing by the snipe buffer.
type SelfProtection struct{}

func NewSelfProtection() *SelfProtection { return &SelfProtection{} }

func (r *SelfProtection) Name() string  { return "self_protection" }
func (r *SelfProtection) Priority() int { return PrioritySelfProtection }

func (r *SelfProtection) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	if !ec.Config.IsSelf(ec.State.Leader) {
		return domain.RuleTrace{
			Rule: r.Name(),
			Thoughts: domain.Thoughts{
				Current:   pct(ec.Metrics.ProfitBps),
				Target:    pct(ec.Config.SelfThresholdBps),
				Reasoning: fmt.Sprintf("leader %s is not one of ours", ec.State.Leader.Hex()),
			},
		}
	}
	return snipeAt(r, ec, ec.Config.SelfThresholdBps, "own")
}

// StandardSnipe is the symmetric rule for any non-owned, non-blacklisted
// leader, using the "others" threshold.
type StandardSnipe struct{}

func NewStandardSnipe() *StandardSnipe { return &StandardSnipe{} }

func (r *StandardSnipe) Name() string  { return "standard_snipe" }
func (r *StandardSnipe) Priority() int { return PriorityStandardSnipe }

func (r *StandardSnipe) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	leader := ec.State.Leader
	if ec.Config.IsSelf(leader) || ec.Config.IsBlacklisted(leader) {
		return domain.RuleTrace{
			Rule: r.Name(),
			Thoughts: domain.Thoughts{
				Current:   pct(ec.Metrics.ProfitBps),
				Target:    pct(ec.Config.OthersThresholdBps),
				Reasoning: fmt.Sprintf("leader %s handled by a dedicated rule", leader.Hex()),
			},
		}
	}
	return snipeAt(r, ec, ec.Config.OthersThresholdBps, "external")
}
