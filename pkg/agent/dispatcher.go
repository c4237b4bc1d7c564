package agent

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
	"github.com/wilhg/a2ui/pkg/validate"
)

var tracer = a2otel.Tracer("agent")

// Dispatcher validates inbound requests and routes them to registered agents.
// Every failure is traced, logged and reported; none is retried.
type Dispatcher struct {
	registry  *Registry
	validator *validate.Validator
	reporter  telemetry.Reporter
	audit     audit.Recorder
	log       *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithValidator(v *validate.Validator) DispatcherOption {
	return func(d *Dispatcher) { d.validator = v }
}

func WithReporter(r telemetry.Reporter) DispatcherOption {
	return func(d *Dispatcher) { d.reporter = r }
}

func WithAudit(a audit.Recorder) DispatcherOption { return func(d *Dispatcher) { d.audit = a } }

func WithLogger(l *slog.Logger) DispatcherOption { return func(d *Dispatcher) { d.log = l } }

// NewDispatcher returns a dispatcher over registry.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{registry: registry, reporter: telemetry.Nop{}, audit: audit.Nop{}}
	for _, o := range opts {
		o(d)
	}
	if d.validator == nil {
		d.validator = validate.New()
	}
	d.log = logging.OrDiscard(d.log)
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry { return d.registry }

// Init starts a new surface with agentID.
func (d *Dispatcher) Init(ctx context.Context, agentID string, req InitRequest) (Result, error) {
	ctx, span := tracer.Start(ctx, "agent.init", trace.WithAttributes(
		attribute.String("a2ui.agent_id", agentID),
		attribute.String("a2ui.user_id", req.UserID),
	))
	defer span.End()
	tc := telemetry.Context{UserID: req.UserID, AgentID: agentID}

	if req.UserID == "" {
		return Result{}, d.fail(ctx, span, tc, errmodel.Policy("unauthorized", "a user is required", nil))
	}
	req.Specialization = validate.SanitizeString(req.Specialization)
	req.Query = validate.SanitizeString(req.Query)
	a, err := d.registry.Resolve(agentID)
	if err != nil {
		return Result{}, d.fail(ctx, span, tc, err)
	}
	res, err := a.Init(ctx, req)
	if err != nil {
		return Result{}, d.fail(ctx, span, tc, err)
	}
	span.SetAttributes(attribute.String("a2ui.surface_id", res.SurfaceID))
	d.log.InfoContext(ctx, "surface initialized", slog.String("agent_id", agentID), slog.String("surface_id", res.SurfaceID))
	return res, nil
}

// Dispatch validates a and hands it to agentID. a.UserID must already be the
// authenticated caller.
func (d *Dispatcher) Dispatch(ctx context.Context, agentID string, a surface.Action) (Result, error) {
	ctx, span := tracer.Start(ctx, "agent.dispatch", trace.WithAttributes(
		attribute.String("a2ui.agent_id", agentID),
		attribute.String("a2ui.surface_id", a.SurfaceID),
		attribute.String("a2ui.action_id", a.ActionID),
	))
	defer span.End()
	tc := telemetry.Context{SurfaceID: a.SurfaceID, ActionID: a.ActionID, UserID: a.UserID, AgentID: agentID}

	if a.UserID == "" {
		return Result{}, d.fail(ctx, span, tc, errmodel.Policy("unauthorized", "a user is required", nil))
	}
	if !d.validator.IsActionAllowed(a.ActionID) {
		d.reject(ctx, a, agentID, "unknown action")
		return Result{}, d.fail(ctx, span, tc, errmodel.UnknownAction(a.ActionID, nil))
	}
	if res := d.validator.ValidateAction(a); !res.Valid {
		d.reject(ctx, a, agentID, res.Errors)
		return Result{}, d.fail(ctx, span, tc, res.Err())
	}
	if a.Payload != nil {
		a.Payload, _ = validate.Sanitize(a.Payload).(map[string]any)
	}
	ag, err := d.registry.Resolve(agentID)
	if err != nil {
		return Result{}, d.fail(ctx, span, tc, err)
	}
	d.audit.Record(ctx, audit.Event{Type: audit.UserAction, SurfaceID: a.SurfaceID, UserID: a.UserID, AgentID: agentID, ActionID: a.ActionID})
	res, err := ag.HandleAction(ctx, a)
	if err != nil {
		return Result{}, d.fail(ctx, span, tc, err)
	}
	span.SetAttributes(attribute.Int("a2ui.version", res.Version))
	return res, nil
}

func (d *Dispatcher) reject(ctx context.Context, a surface.Action, agentID string, why any) {
	d.log.WarnContext(ctx, "action rejected",
		slog.String("event", string(audit.SecurityViolation)),
		slog.String("surface_id", a.SurfaceID),
		slog.String("action_id", a.ActionID),
		slog.Any("errors", why))
	d.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: a.SurfaceID, UserID: a.UserID, AgentID: agentID, ActionID: a.ActionID, Details: map[string]any{"errors": why}})
}

func (d *Dispatcher) fail(ctx context.Context, span trace.Span, tc telemetry.Context, err error) error {
	a2otel.Fail(span, err)
	e := errmodel.From(err)
	d.log.WarnContext(ctx, "agent step failed",
		slog.String("agent_id", tc.AgentID),
		slog.String("surface_id", tc.SurfaceID),
		slog.String("action_id", tc.ActionID),
		slog.String("category", e.Category),
		slog.String("code", e.Code))
	d.reporter.Report(ctx, err, tc, map[string]any{"category": e.Category})
	return err
}
