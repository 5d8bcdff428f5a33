// Package arbiter aggregates every rule's output for one tick into a
// single decision and retains the full per-rule trace for inspection.
package arbiter

import (
	"log/slog"
	"sync"

	"github.com/alanyoungcy/snipebot/internal/domain"
	"github.com/alanyoungcy/snipebot/internal/rules"
)

// NoRuleTriggered is the canonical reason when no rule produced a
// decision.
const NoRuleTriggered = "no rule triggered"

// Arbiter evaluates a fixed rule set against each context. Conflict
// resolution is structural: any blocking (act=false) decision wins over
// every acting decision regardless of priority; among acting decisions the
// numerically highest priority wins, first-registered on ties.
type Arbiter struct {
	registry *rules.Registry
	logger   *slog.Logger

	mu        sync.RWMutex
	lastTrace []domain.RuleTrace
}

// New creates an Arbiter over the given registry.
func New(registry *rules.Registry, logger *slog.Logger) *Arbiter {
	return &Arbiter{
		registry: registry,
		logger:   logger.With(slog.String("component", "arbiter")),
	}
}

// Evaluate runs every registered rule against ec and returns the single
// final decision. The full trace is retained and readable via LastTrace.
func (a *Arbiter) Evaluate(ec domain.EvalContext) domain.Decision {
	ruleSet := a.registry.Rules()
	traces := make([]domain.RuleTrace, 0, len(ruleSet))

	var blocking *domain.Decision
	var best *domain.Decision

	for _, r := range ruleSet {
		trace := r.Evaluate(ec)
		traces = append(traces, trace)

		d := trace.Decision
		if d == nil {
			continue
		}
		if !d.Act {
			// Any one blocking decision suffices; keep the first.
			if blocking == nil {
				blocking = d
			}
			continue
		}
		// Strictly-greater comparison keeps the first-registered rule on
		// equal priority.
		if best == nil || d.Priority > best.Priority {
			best = d
		}
	}

	a.mu.Lock()
	a.lastTrace = traces
	a.mu.Unlock()

	switch {
	case blocking != nil:
		a.logger.Debug("decision blocked",
			slog.String("rule", blocking.Rule),
			slog.String("reason", blocking.Reason),
		)
		return *blocking
	case best != nil:
		a.logger.Debug("decision selected",
			slog.String("rule", best.Rule),
			slog.Int("priority", best.Priority),
			slog.String("reason", best.Reason),
		)
		return *best
	default:
		return domain.Decision{Act: false, Reason: NoRuleTriggered, Priority: 0}
	}
}

// LastTrace returns a copy of the most recent evaluation's full per-rule
// trace. Read-only side channel for presentation layers; not part of the
// decision contract.
func (a *Arbiter) LastTrace() []domain.RuleTrace {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]domain.RuleTrace, len(a.lastTrace))
	copy(out, a.lastTrace)
	return out
}
