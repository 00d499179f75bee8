// Package observability tracks entry point executions for the stats endpoint.
package observability

import (
	"sort"
	"sync"
	"time"
)

// ExecStats counts invocations per entry point and per extraction type.
type ExecStats struct {
	mu        sync.RWMutex
	entries   map[string]*Counter
	variants  map[string]*Counter
	startedAt time.Time
	window    time.Duration
}

// Counter holds statistics for one entry point or extraction type.
type Counter struct {
	Name     string         `json:"name"`
	Count    int64          `json:"count"`
	LastSeen time.Time      `json:"last_seen"`
	Total    time.Duration  `json:"total_ns"`
	Outcomes map[string]int `json:"outcomes"` // status or error code → count
}

// Snapshot is a point-in-time copy of ExecStats.
type Snapshot struct {
	StartedAt       time.Time `json:"started_at"`
	Entries         []Counter `json:"entries"`
	ExtractionTypes []Counter `json:"extraction_types"`
}

// NewExecStats creates a tracker.
// window: idle duration after which Prune drops a counter (0 keeps all)
func NewExecStats(window time.Duration) *ExecStats {
	return &ExecStats{
		entries:   make(map[string]*Counter),
		variants:  make(map[string]*Counter),
		startedAt: time.Now(),
		window:    window,
	}
}

// Record notes one invocation.
// entry: the entry point name (e.g., "execute")
// variant: the extraction type, empty when unknown
// outcome: the result status or error code
// This method is O(1) and thread-safe.
func (s *ExecStats) Record(entry, variant, outcome string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	bump(s.entries, entry, outcome, elapsed, now)
	if variant != "" {
		bump(s.variants, variant, outcome, elapsed, now)
	}
}

func bump(m map[string]*Counter, name, outcome string, elapsed time.Duration, now time.Time) {
	c, exists := m[name]
	if !exists {
		c = &Counter{
			Name:     name,
			Outcomes: make(map[string]int),
		}
		m[name] = c
	}
	c.Count++
	c.LastSeen = now
	c.Total += elapsed
	c.Outcomes[outcome]++
}

// Entry returns a copy of one entry point's counter.
func (s *ExecStats) Entry(name string) (Counter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.entries[name]
	if !ok {
		return Counter{}, false
	}
	return copyCounter(c), true
}

// Snapshot returns copies of all counters sorted by count (descending).
func (s *ExecStats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		StartedAt:       s.startedAt,
		Entries:         sortedCopy(s.entries),
		ExtractionTypes: sortedCopy(s.variants),
	}
}

func sortedCopy(m map[string]*Counter) []Counter {
	out := make([]Counter, 0, len(m))
	for _, c := range m {
		out = append(out, copyCounter(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func copyCounter(c *Counter) Counter {
	cp := *c
	cp.Outcomes = make(map[string]int, len(c.Outcomes))
	for k, v := range c.Outcomes {
		cp.Outcomes[k] = v
	}
	return cp
}

// Prune removes counters idle for longer than the window.
func (s *ExecStats) Prune() {
	if s.window <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	threshold := time.Now().Add(-s.window)
	for name, c := range s.entries {
		if c.LastSeen.Before(threshold) {
			delete(s.entries, name)
		}
	}
	for name, c := range s.variants {
		if c.LastSeen.Before(threshold) {
			delete(s.variants, name)
		}
	}
}
