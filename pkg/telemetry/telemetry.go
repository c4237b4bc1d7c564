// Package telemetry reports caught errors with their surface context.
// Reporting never blocks the caller: events are queued and written by a
// background goroutine, and dropped when the queue is full.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
)

// Context keys carried by every report.
type Context struct {
	SurfaceID string
	ActionID  string
	UserID    string
	AgentID   string
}

// Reporter accepts error reports.
type Reporter interface {
	Report(ctx context.Context, err error, c Context, metadata map[string]any)
}

// Nop discards reports.
type Nop struct{}

func (Nop) Report(context.Context, error, Context, map[string]any) {}

type event struct {
	span     trace.Span
	err      error
	c        Context
	metadata map[string]any
}

// Async logs reports on a background goroutine and annotates the caller's span.
type Async struct {
	log     *slog.Logger
	queue   chan event
	dropped atomic.Int64
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAsync starts a reporter with the given queue size.
func NewAsync(log *slog.Logger, size int) *Async {
	if size <= 0 {
		size = 256
	}
	a := &Async{log: logging.OrDiscard(log), queue: make(chan event, size)}
	a.wg.Add(1)
	go a.run()
	return a
}

// Report enqueues err. It returns immediately.
func (a *Async) Report(ctx context.Context, err error, c Context, metadata map[string]any) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	select {
	case a.queue <- event{span: span, err: err, c: c, metadata: metadata}:
	default:
		a.dropped.Add(1)
	}
}

// Dropped counts reports lost to a full queue.
func (a *Async) Dropped() int64 { return a.dropped.Load() }

// Close drains pending reports and stops the worker.
func (a *Async) Close() {
	a.once.Do(func() { close(a.queue) })
	a.wg.Wait()
}

func (a *Async) run() {
	defer a.wg.Done()
	for ev := range a.queue {
		a.write(ev)
	}
}

func (a *Async) write(ev event) {
	category := errmodel.From(ev.err).Category
	attrs := []any{
		"event", "error_report",
		"category", category,
		"error", ev.err.Error(),
	}
	if ev.c.SurfaceID != "" {
		attrs = append(attrs, "surface_id", ev.c.SurfaceID)
	}
	if ev.c.ActionID != "" {
		attrs = append(attrs, "action_id", ev.c.ActionID)
	}
	if ev.c.UserID != "" {
		attrs = append(attrs, "user_id", ev.c.UserID)
	}
	if ev.c.AgentID != "" {
		attrs = append(attrs, "agent_id", ev.c.AgentID)
	}
	if len(ev.metadata) > 0 {
		attrs = append(attrs, "metadata", ev.metadata)
	}
	a.log.Error("reported error", attrs...)

	if ev.span != nil && ev.span.IsRecording() {
		ev.span.AddEvent("error_report", trace.WithAttributes(
			attribute.String("a2ui.category", category),
			attribute.String("a2ui.surface_id", ev.c.SurfaceID),
			attribute.String("a2ui.action_id", ev.c.ActionID),
			attribute.String("a2ui.user_id", ev.c.UserID),
		))
	}
}

// Recorder keeps reports in memory.
type Recorder struct {
	mu      sync.Mutex
	Reports []Recorded
}

// Recorded is one captured report.
type Recorded struct {
	Err      error
	Context  Context
	Metadata map[string]any
}

func (r *Recorder) Report(_ context.Context, err error, c Context, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Reports = append(r.Reports, Recorded{Err: err, Context: c, Metadata: metadata})
}

// Snapshot returns a copy of the captured reports.
func (r *Recorder) Snapshot() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.Reports...)
}
