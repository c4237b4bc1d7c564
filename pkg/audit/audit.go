// Package audit records who rendered, triggered or changed what on a surface.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/ids"
	"github.com/wilhg/a2ui/pkg/logging"
)

// EventType classifies an audit event.
type EventType string

const (
	ComponentRender   EventType = "component_render"
	UserAction        EventType = "user_action"
	DataAccess        EventType = "data_access"
	SurfaceUpdate     EventType = "surface_update"
	SecurityViolation EventType = "security_violation"
)

// Event is one audit record.
type Event struct {
	ID            string         `json:"id"`
	Type          EventType      `json:"type"`
	SurfaceID     string         `json:"surfaceId,omitempty"`
	UserID        string         `json:"userId,omitempty"`
	AgentID       string         `json:"agentId,omitempty"`
	ComponentID   string         `json:"componentId,omitempty"`
	ComponentType string         `json:"componentType,omitempty"`
	ActionID      string         `json:"actionId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`
	At            time.Time      `json:"at"`
}

// Sink persists audit events.
type Sink interface {
	AppendAudit(ctx context.Context, ev Event) error
}

// Recorder is what producers of audit events depend on.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Logger stamps events, writes them to slog and forwards them to its sinks.
// Sink failures are logged and never returned.
type Logger struct {
	log   *slog.Logger
	clock clock.Clock
	sinks []Sink
}

// Option configures a Logger.
type Option func(*Logger)

func WithClock(c clock.Clock) Option { return func(l *Logger) { l.clock = c } }

func WithSink(s Sink) Option { return func(l *Logger) { l.sinks = append(l.sinks, s) } }

// New returns an audit Logger.
func New(log *slog.Logger, opts ...Option) *Logger {
	l := &Logger{log: logging.OrDiscard(log), clock: clock.Real()}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record stamps ev with an id and time when missing, logs it and appends it to every sink.
func (l *Logger) Record(ctx context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = l.clock.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = ids.ULID(ev.At)
	}
	level := slog.LevelDebug
	if ev.Type == SecurityViolation {
		level = slog.LevelWarn
	}
	l.log.Log(ctx, level, "audit",
		"event", string(ev.Type),
		"audit_id", ev.ID,
		"surface_id", ev.SurfaceID,
		"user_id", ev.UserID,
		"component_type", ev.ComponentType,
		"action_id", ev.ActionID,
	)
	for _, s := range l.sinks {
		if err := s.AppendAudit(ctx, ev); err != nil {
			l.log.Error("audit sink failed", "audit_id", ev.ID, "error", err)
		}
	}
}

// Memory is an in-process Sink, handy for tests and for the client side.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory returns an empty Memory sink.
func NewMemory() *Memory { return &Memory{} }

func (m *Memory) AppendAudit(_ context.Context, ev Event) error {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (m *Memory) Events(types ...EventType) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(types) == 0 {
		return append([]Event(nil), m.events...)
	}
	want := make(map[EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []Event
	for _, ev := range m.events {
		if want[ev.Type] {
			out = append(out, ev)
		}
	}
	return out
}

// Nop drops events.
type Nop struct{}

func (Nop) Record(context.Context, Event) {}
