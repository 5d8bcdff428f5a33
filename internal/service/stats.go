// Package service holds the session-level services around the decision
// core: run statistics and the authoritative price reconciler.
package service

import (
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of the session counters.
type StatsSnapshot struct {
	StartedAt  time.Time
	Ticks      uint64
	Skipped    uint64 // ticks skipped on malformed context
	Decisions  uint64 // act decisions produced by the arbiter
	Blocked    uint64
	Enqueued   uint64
	Confirmed  uint64
	Failed     uint64
	Superseded uint64
}

// Stats accumulates session statistics. Safe for concurrent use.
type Stats struct {
	mu   sync.Mutex
	snap StatsSnapshot
}

// NewStats returns a Stats anchored at now.
func NewStats() *Stats {
	return &Stats{snap: StatsSnapshot{StartedAt: time.Now().UTC()}}
}

func (s *Stats) Tick()      { s.add(func(v *StatsSnapshot) { v.Ticks++ }) }
func (s *Stats) Skip()      { s.add(func(v *StatsSnapshot) { v.Skipped++ }) }
func (s *Stats) Decide()    { s.add(func(v *StatsSnapshot) { v.Decisions++ }) }
func (s *Stats) Block()     { s.add(func(v *StatsSnapshot) { v.Blocked++ }) }
func (s *Stats) Enqueue()   { s.add(func(v *StatsSnapshot) { v.Enqueued++ }) }
func (s *Stats) Confirm()   { s.add(func(v *StatsSnapshot) { v.Confirmed++ }) }
func (s *Stats) Fail()      { s.add(func(v *StatsSnapshot) { v.Failed++ }) }
func (s *Stats) Supersede() { s.add(func(v *StatsSnapshot) { v.Superseded++ }) }

func (s *Stats) add(f func(*StatsSnapshot)) {
	s.mu.Lock()
	f(&s.snap)
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}
