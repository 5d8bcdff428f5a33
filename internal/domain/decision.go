package domain

// Documented metadata keys a Decision or Thoughts record may carry. Rules
// must stick to these keys so downstream consumers can rely on them.
const (
	MetaAccrued      = "accrued"        // total accrued reward, decimal string
	MetaLeaderPaid   = "leader_paid"    // price the leader paid, decimal string
	MetaProfitBps    = "profit_bps"     // signed profit in basis points
	MetaTimeToTarget = "time_to_target" // seconds until the rule's checkpoint
	MetaLastSettled  = "last_settled"   // last settled price, decimal string
	MetaElapsedFrac  = "elapsed_frac"   // decay-phase elapsed fraction
	MetaGrowthBps    = "growth_bps"     // projected profit growth, bps/second
)

// Decision is the actionable output of a rule or of the arbiter's default.
// Immutable once returned. A Decision with Act=false produced by a rule is
// a blocking decision and overrides every Act=true decision.
type Decision struct {
	Act      bool
	Reason   string
	Priority int
	Rule     string
	// Urgency suggests a gas-tip multiplier for the submission; zero means
	// no suggestion.
	Urgency float64
	Meta    map[string]string
}

// Thoughts explains a rule's view of the world on one tick, whether or not
// it decided to act. Progress runs 0-100 toward the rule's trigger.
type Thoughts struct {
	Current   string
	Target    string
	Progress  float64
	Reasoning string
	Meta      map[string]string
}

// RuleTrace pairs a rule's (possibly nil) decision with its thoughts.
// Every registered rule produces exactly one per evaluation.
type RuleTrace struct {
	Rule     string
	Decision *Decision
	Thoughts Thoughts
}

// ClampProgress bounds p into [0, 100].
func ClampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
