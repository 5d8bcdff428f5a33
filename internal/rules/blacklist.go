package rules

import (
	"fmt"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Blacklist acts against disfavored leaders. Its threshold is commonly
// negative: the operator is willing to take a bounded loss to displace a
// blacklisted address from the lead.
type Blacklist struct{}

// NewBlacklist creates the rule. The blacklist set and threshold both come
// from RuleConfig at evaluation time.
func NewBlacklist() *Blacklist { return &Blacklist{} }

func (r *Blacklist) Name() string  { return "blacklist" }
func (r *Blacklist) Priority() int { return PriorityBlacklist }

// Evaluate acts once profit reaches the blacklist threshold, boundary
// inclusive, but only while a blacklisted address holds the lead.
func (r *Blacklist) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	threshold := ec.Config.BlacklistThresholdBps
	profit := ec.Metrics.ProfitBps

	thoughts := domain.Thoughts{
		Current: pct(profit),
		Target:  pct(threshold),
		Meta: map[string]string{
			domain.MetaProfitBps: fmt.Sprintf("%d", profit),
		},
	}

	if !ec.Config.IsBlacklisted(ec.State.Leader) {
		thoughts.Reasoning = fmt.Sprintf("leader %s is not blacklisted", ec.State.Leader.Hex())
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	// Baseline the progress 10 points (1000 bps) below the threshold so an
	// approaching loss-bounded trigger is visible.
	thoughts.Progress = progressToward(profit, threshold-1000, threshold)

	if profit < threshold {
		thoughts.Reasoning = fmt.Sprintf("blacklisted leader %s held, but profit %s below threshold %s",
			ec.State.Leader.Hex(), pct(profit), pct(threshold))
		return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
	}

	thoughts.Reasoning = fmt.Sprintf("blacklisted leader %s: profit %s >= threshold %s, displacing",
		ec.State.Leader.Hex(), pct(profit), pct(threshold))
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
