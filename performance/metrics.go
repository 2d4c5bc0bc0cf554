// Package performance records coarse wall-clock timings for dataset loads.
package performance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// LoadMetrics collects per-stage durations and row counters for a single
// dataset load. The zero value is ready to use, and a nil receiver discards
// all measurements.
type LoadMetrics struct {
	mu       sync.Mutex
	stages   []Stage
	counters map[string]int64
}

// Stage is one timed phase of a load.
type Stage struct {
	Name     string
	Duration time.Duration
}

// Start begins timing a stage and returns the function that ends it. Stages
// are reported in the order they were started.
func (m *LoadMetrics) Start(name string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	m.mu.Lock()
	i := len(m.stages)
	m.stages = append(m.stages, Stage{Name: name})
	m.mu.Unlock()
	return func() {
		d := time.Since(start)
		m.mu.Lock()
		m.stages[i].Duration = d
		m.mu.Unlock()
	}
}

// Stages returns the recorded stages in start order.
func (m *LoadMetrics) Stages() []Stage {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.stages) == 0 {
		return nil
	}
	out := make([]Stage, len(m.stages))
	copy(out, m.stages)
	return out
}

// Total is the sum of all stage durations.
func (m *LoadMetrics) Total() time.Duration {
	var total time.Duration
	for _, s := range m.Stages() {
		total += s.Duration
	}
	return total
}

// Count adds n to the named counter.
func (m *LoadMetrics) Count(name string, n int) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = make(map[string]int64)
	}
	m.counters[name] += int64(n)
}

// Counters returns the recorded counters.
func (m *LoadMetrics) Counters() map[string]int64 {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.counters) == 0 {
		return nil
	}
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

func (m *LoadMetrics) String() string {
	stages := m.Stages()
	counters := m.Counters()
	if len(stages) == 0 && len(counters) == 0 {
		return "no stages recorded"
	}
	var b strings.Builder
	for _, s := range stages {
		fmt.Fprintf(&b, "%s: %s\n", s.Name, s.Duration.Round(time.Microsecond))
	}
	names := make([]string, 0, len(counters))
	for name := range counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "%s: %d\n", name, counters[name])
	}
	fmt.Fprintf(&b, "total: %s", m.Total().Round(time.Microsecond))
	return b.String()
}
