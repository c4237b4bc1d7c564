package render

import (
	"log/slog"
	"sync"
	"time"

	"github.com/wilhg/a2ui/pkg/logging"
)

// Monitor defaults.
const (
	DefaultWindow     = 100
	DefaultSlowRender = 100 * time.Millisecond
)

// Sample is one timed render or action.
type Sample struct {
	Key      string
	Duration time.Duration
}

// Stats summarizes the retained samples.
type Stats struct {
	RenderCount      int
	AvgRender        time.Duration
	LastRender       time.Duration
	ActionCount      int
	AvgActionLatency time.Duration
}

// Monitor keeps the most recent render and action timings and warns about
// slow renders. Safe for concurrent use.
type Monitor struct {
	log    *slog.Logger
	window int
	slow   time.Duration

	mu      sync.Mutex
	renders []Sample
	actions []Sample
}

// NewMonitor returns a Monitor retaining window samples per kind and warning
// above slow. Non-positive arguments select the defaults.
func NewMonitor(log *slog.Logger, window int, slow time.Duration) *Monitor {
	if window <= 0 {
		window = DefaultWindow
	}
	if slow <= 0 {
		slow = DefaultSlowRender
	}
	return &Monitor{log: logging.OrDiscard(log), window: window, slow: slow}
}

// TrackRender records a surface render.
func (m *Monitor) TrackRender(surfaceID string, d time.Duration) {
	m.mu.Lock()
	m.renders = push(m.renders, Sample{Key: surfaceID, Duration: d}, m.window)
	m.mu.Unlock()
	if d > m.slow {
		m.log.Warn("slow render", slog.String("surface_id", surfaceID), slog.Duration("duration", d))
	}
}

// TrackAction records the latency of an action handler.
func (m *Monitor) TrackAction(actionID string, d time.Duration) {
	m.mu.Lock()
	m.actions = push(m.actions, Sample{Key: actionID, Duration: d}, m.window)
	m.mu.Unlock()
}

// Stats returns aggregates over the retained samples.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		RenderCount:      len(m.renders),
		AvgRender:        avg(m.renders),
		ActionCount:      len(m.actions),
		AvgActionLatency: avg(m.actions),
	}
	if n := len(m.renders); n > 0 {
		s.LastRender = m.renders[n-1].Duration
	}
	return s
}

func push(s []Sample, v Sample, window int) []Sample {
	s = append(s, v)
	if len(s) > window {
		s = append(s[:0], s[len(s)-window:]...)
	}
	return s
}

func avg(s []Sample) time.Duration {
	if len(s) == 0 {
		return 0
	}
	var total time.Duration
	for _, v := range s {
		total += v.Duration
	}
	return total / time.Duration(len(s))
}
