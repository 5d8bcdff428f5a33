package rules

import (
	"fmt"
	"sync"
)

// Registry holds rules in registration order. Order matters: the arbiter
// breaks priority ties in favor of the first-registered rule. It is safe
// for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	rules []Rule
	names map[string]bool
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]bool)}
}

// Register appends a rule. Duplicate names and duplicate priorities are
// configuration errors: every priority in the contract is globally unique.
func (r *Registry) Register(rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.names[rule.Name()] {
		return fmt.Errorf("rules: %q: already registered", rule.Name())
	}
	for _, existing := range r.rules {
		if existing.Priority() == rule.Priority() {
			return fmt.Errorf("rules: %q: priority %d already taken by %q",
				rule.Name(), rule.Priority(), existing.Name())
		}
	}
	r.names[rule.Name()] = true
	r.rules = append(r.rules, rule)
	return nil
}

// Rules returns the registered rules in registration order.
func (r *Registry) Rules() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// List returns the registered rule names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.rules))
	for _, rule := range r.rules {
		names = append(names, rule.Name())
	}
	return names
}
