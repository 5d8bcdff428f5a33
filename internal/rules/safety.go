package rules

import (
	"fmt"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Safety is a blocking rule: it never requests a commit, it only vetoes.
// When the current price exceeds the configured spend ceiling or the
// auction's safety multiplier exceeds its ceiling, it returns an act=false
// decision that structurally overrides every acting rule. No amount of
// profit urgency may override a configured spend ceiling.
type Safety struct{}

// NewSafety creates the blocking rule. Ceilings come from RuleConfig,
// which refuses validation without them.
func NewSafety() *Safety { return &Safety{} }

func (r *Safety) Name() string  { return "safety" }
func (r *Safety) Priority() int { return PrioritySafety }

func (r *Safety) Evaluate(ec domain.EvalContext) domain.RuleTrace {
	price := ec.State.Price
	maxCommit := ec.Config.MaxCommit

	thoughts := domain.Thoughts{
		Current: price.String(),
		Target:  maxCommit.String(),
	}

	if price.Cmp(maxCommit) > 0 {
		thoughts.Progress = 100
		thoughts.Reasoning = fmt.Sprintf("price %s exceeds max commit %s", price, maxCommit)
		return blockTrace(r, thoughts)
	}

	if mult, ceiling := ec.State.SafetyMultiplier, ec.Config.SafetyCeiling; mult > ceiling {
		thoughts.Progress = 100
		thoughts.Reasoning = fmt.Sprintf("safety multiplier %g > %g", mult, ceiling)
		return blockTrace(r, thoughts)
	}

	thoughts.Reasoning = "price and safety multiplier within configured ceilings"
	return domain.RuleTrace{Rule: r.Name(), Thoughts: thoughts}
}

func blockTrace(r Rule, thoughts domain.Thoughts) domain.RuleTrace {
	return domain.RuleTrace{
		Rule:     r.Name(),
		Thoughts: thoughts,
		Decision: &domain.Decision{
			Act:      false,
			Reason:   thoughts.Reasoning,
			Priority: r.Priority(),
			Rule:     r.Name(),
		},
	}
}
