package engine

import (
	"sync"
	"time"
)

// DefaultDedupRetention bounds how long settlement identities are held for
// at-least-once deduplication.
const DefaultDedupRetention = 6 * time.Hour

// Dedup prevents a redelivered settlement event from being applied twice.
// Entries expire after the retention window to bound memory. Safe for
// concurrent use.
type Dedup struct {
	mu        sync.Mutex
	seen      map[string]time.Time // tx-hash:log-index -> first seen
	retention time.Duration
}

// NewDedup creates a Dedup with the given retention window.
func NewDedup(retention time.Duration) *Dedup {
	return &Dedup{
		seen:      make(map[string]time.Time),
		retention: retention,
	}
}

// Seen reports whether key was already recorded within the retention
// window; unseen keys are recorded and report false.
func (d *Dedup) Seen(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	if first, ok := d.seen[key]; ok && now.Sub(first) < d.retention {
		return true
	}
	d.seen[key] = now
	return false
}

// Cleanup drops entries older than the retention window. Called
// periodically by the engine loop.
func (d *Dedup) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := time.Now()
	for key, first := range d.seen {
		if now.Sub(first) >= d.retention {
			delete(d.seen, key)
		}
	}
}
