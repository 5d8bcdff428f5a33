// Package rules contains the decision rules evaluated against each tick's
// context and the registry that holds them in a stable order. Rules are
// pure over the context: they never perform I/O and never fail for
// business conditions; an inactive rule returns a trace with no decision.
package rules

import (
	"fmt"

	"github.com/alanyoungcy/snipebot/internal/domain"
)

// Stable, globally unique rule priorities. Blocking decisions win
// structurally regardless of these values; among acting decisions the
// highest priority is chosen.
const (
	PriorityThresholdParity = 100
	PriorityBlacklist       = 90
	PrioritySafety          = 80
	PrioritySelfProtection  = 70
	PriorityStandardSnipe   = 60
	PriorityMarketDiscount  = 40
	PriorityTimeDecay       = 30
	PriorityPredictive      = 20
)

// Rule is one independently authored strategy. Evaluate always returns a
// trace, including the thoughts explaining why nothing happened, so
// non-triggering rules stay explainable.
type Rule interface {
	Name() string
	Priority() int
	Evaluate(ec domain.EvalContext) domain.RuleTrace
}

// pct renders basis points as a human percentage, e.g. 250 -> "2.50%".
func pct(bps int64) string {
	return fmt.Sprintf("%.2f%%", float64(bps)/100)
}

// progressToward scales how far current has moved from a baseline toward
// target into 0-100. Degenerate spans report 100.
func progressToward(current, baseline, target int64) float64 {
	span := target - baseline
	if span <= 0 {
		return 100
	}
	return domain.ClampProgress(float64(current-baseline) / float64(span) * 100)
}
