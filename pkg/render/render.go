// Package render turns a validated surface into a tree of elements with bound
// data and wired action handlers. Nodes that cannot be rendered safely become
// placeholders; the rest of the tree is unaffected.
package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/catalog"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/validate"
)

// Placeholder reasons.
const (
	ReasonInvalid    = "invalid"
	ReasonUnknown    = "unknown_type"
	ReasonDisallowed = "disallowed_event"
	ReasonDepth      = "too_deep"
)

// SurfaceType is the Type of the root element returned by Render.
const SurfaceType = "Surface"

// DefaultActionsPerSecond bounds the actions a surface may emit.
const DefaultActionsPerSecond = 10

// ErrRateLimited is returned by a handler when its surface exceeded the action rate.
var ErrRateLimited = errmodel.Policy("rate_limited", "too many actions; slow down", nil)

// OnAction receives actions produced by element handlers.
type OnAction func(ctx context.Context, a surface.Action) error

// Handler is an element's bound event. args are merged over the node's actionPayload.
type Handler func(ctx context.Context, args map[string]any) error

// Element is one rendered node.
type Element struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Props       map[string]any `json:"props,omitempty"`
	Children    []*Element     `json:"children,omitempty"`
	Events      []string       `json:"events,omitempty"`
	Placeholder bool           `json:"placeholder,omitempty"`
	Reason      string         `json:"reason,omitempty"`

	handlers map[string]Handler
}

// Trigger fires the handler bound to event.
func (e *Element) Trigger(ctx context.Context, event string, args map[string]any) error {
	h, bound := e.handlers[event]
	if !bound {
		return errmodel.UnknownAction(event, map[string]any{"component_id": e.ID})
	}
	return h(ctx, args)
}

// Find returns the first element with id in depth-first order, or nil.
func (e *Element) Find(id string) *Element {
	if e == nil {
		return nil
	}
	if e.ID == id {
		return e
	}
	for _, c := range e.Children {
		if f := c.Find(id); f != nil {
			return f
		}
	}
	return nil
}

// Renderer renders surfaces against a component catalog.
type Renderer struct {
	catalog    *catalog.Registry
	validator  *validate.Validator
	audit      audit.Recorder
	log        *slog.Logger
	clock      clock.Clock
	monitor    *Monitor
	locale     language.Tag
	perSecond  int
	custom     map[string]Transform
	transforms map[string]Transform

	limitsMu sync.Mutex
	limits   map[string]*rate.Limiter
}

// Option configures a Renderer.
type Option func(*Renderer)

func WithCatalog(c *catalog.Registry) Option     { return func(r *Renderer) { r.catalog = c } }
func WithValidator(v *validate.Validator) Option { return func(r *Renderer) { r.validator = v } }
func WithAudit(a audit.Recorder) Option          { return func(r *Renderer) { r.audit = a } }
func WithLogger(l *slog.Logger) Option           { return func(r *Renderer) { r.log = l } }
func WithClock(c clock.Clock) Option             { return func(r *Renderer) { r.clock = c } }
func WithMonitor(m *Monitor) Option              { return func(r *Renderer) { r.monitor = m } }
func WithLocale(tag language.Tag) Option         { return func(r *Renderer) { r.locale = tag } }

// WithRateLimit sets the per-surface action budget per second.
func WithRateLimit(perSecond int) Option { return func(r *Renderer) { r.perSecond = perSecond } }

// WithTransform registers a named transform, replacing a built-in of the same name.
func WithTransform(name string, fn Transform) Option {
	return func(r *Renderer) {
		if r.custom == nil {
			r.custom = map[string]Transform{}
		}
		r.custom[name] = fn
	}
}

// New returns a Renderer over the default catalog.
func New(opts ...Option) *Renderer {
	r := &Renderer{
		audit:     audit.Nop{},
		clock:     clock.Real(),
		locale:    language.English,
		perSecond: DefaultActionsPerSecond,
		limits:    map[string]*rate.Limiter{},
	}
	for _, o := range opts {
		o(r)
	}
	if r.catalog == nil {
		r.catalog = catalog.Default()
	}
	if r.validator == nil {
		r.validator = validate.New(validate.WithCatalog(r.catalog))
	}
	r.log = logging.OrDiscard(r.log)
	if r.monitor == nil {
		r.monitor = NewMonitor(r.log, 0, 0)
	}
	r.transforms = builtinTransforms(r.locale)
	for name, fn := range r.custom {
		r.transforms[name] = fn
	}
	return r
}

// Monitor returns the renderer's performance monitor.
func (r *Renderer) Monitor() *Monitor { return r.monitor }

type pass struct {
	s        surface.Surface
	onAction OnAction
}

// Render builds the element tree for s. The root element has type
// SurfaceType and the surface's top-level components as children.
func (r *Renderer) Render(ctx context.Context, s surface.Surface, onAction OnAction) *Element {
	start := r.clock.Now()
	p := pass{s: s, onAction: onAction}
	root := &Element{ID: s.SurfaceID, Type: SurfaceType, Children: make([]*Element, 0, len(s.Components))}
	for _, c := range s.Components {
		root.Children = append(root.Children, r.node(ctx, p, c, 1))
	}
	r.monitor.TrackRender(s.SurfaceID, r.clock.Now().Sub(start))
	return root
}

func (r *Renderer) node(ctx context.Context, p pass, c surface.Component, depth int) *Element {
	r.audit.Record(ctx, audit.Event{Type: audit.ComponentRender, SurfaceID: p.s.SurfaceID, UserID: p.s.UserID, AgentID: p.s.AgentID, ComponentID: c.ID, ComponentType: c.Type})
	if depth > surface.MaxTreeDepth {
		return r.placeholder(ctx, p, c, ReasonDepth, nil)
	}
	leaf := c
	leaf.Children = nil
	if res := r.validator.ValidateComponent(leaf); !res.Valid {
		return r.placeholder(ctx, p, c, ReasonInvalid, res.Errors)
	}
	entry, known := r.catalog.Lookup(c.Type)
	if !known {
		return r.placeholder(ctx, p, c, ReasonUnknown, nil)
	}
	if bad := entry.Disallowed(c.Props, c.Actions); len(bad) > 0 {
		return r.placeholder(ctx, p, c, ReasonDisallowed, bad)
	}

	props := make(map[string]any, len(c.Props)+len(c.DataBinding))
	for k, v := range c.Props {
		props[k] = v
	}
	for prop, b := range c.DataBinding {
		props[prop] = r.Resolve(b, p.s.DataModel)
		r.audit.Record(ctx, audit.Event{Type: audit.DataAccess, SurfaceID: p.s.SurfaceID, UserID: p.s.UserID, ComponentID: c.ID, ComponentType: c.Type, Details: map[string]any{"path": b.Path}})
	}
	el := &Element{ID: c.ID, Type: c.Type, Props: entry.Build(props)}

	for _, event := range catalog.Events(props, c.Actions) {
		actionID := event
		if bound, isStr := props[event].(string); isStr && bound != "" {
			actionID = bound
		}
		if el.handlers == nil {
			el.handlers = map[string]Handler{}
		}
		el.handlers[event] = r.handler(p, c, event, actionID)
		el.Events = append(el.Events, event)
	}

	for _, child := range c.Children {
		el.Children = append(el.Children, r.node(ctx, p, child, depth+1))
	}
	return el
}

func (r *Renderer) placeholder(ctx context.Context, p pass, c surface.Component, reason string, details []string) *Element {
	r.log.Warn("component replaced by placeholder",
		slog.String("event", string(audit.SecurityViolation)),
		slog.String("surface_id", p.s.SurfaceID),
		slog.String("component_id", c.ID),
		slog.String("component_type", c.Type),
		slog.String("reason", reason))
	r.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: p.s.SurfaceID, UserID: p.s.UserID, ComponentID: c.ID, ComponentType: c.Type, Details: map[string]any{"reason": reason, "errors": details}})
	return &Element{ID: c.ID, Type: c.Type, Placeholder: true, Reason: reason}
}

func (r *Renderer) handler(p pass, c surface.Component, event, actionID string) Handler {
	return func(ctx context.Context, args map[string]any) error {
		start := r.clock.Now()
		sid, uid := p.s.SurfaceID, p.s.UserID
		if !r.allow(sid, start) {
			r.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: sid, UserID: uid, ComponentID: c.ID, ActionID: actionID, Details: map[string]any{"reason": "rate_limited"}})
			return ErrRateLimited
		}
		payload := make(map[string]any, len(c.ActionPayload)+len(args))
		for k, v := range c.ActionPayload {
			payload[k] = v
		}
		for k, v := range args {
			payload[k] = v
		}
		a := surface.Action{
			SurfaceID: sid,
			UserID:    uid,
			ActionID:  actionID,
			Type:      event,
			Payload:   payload,
			Metadata:  map[string]any{"componentId": c.ID, "componentType": c.Type},
			Timestamp: start,
		}
		if res := r.validator.ValidateAction(a); !res.Valid {
			r.log.Warn("blocked invalid action", slog.String("event", string(audit.SecurityViolation)), slog.String("action_id", actionID), slog.Any("errors", res.Errors))
			r.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: sid, UserID: uid, ComponentID: c.ID, ActionID: actionID, Details: map[string]any{"errors": res.Errors}})
			return res.Err()
		}
		r.audit.Record(ctx, audit.Event{Type: audit.UserAction, SurfaceID: sid, UserID: uid, ComponentID: c.ID, ComponentType: c.Type, ActionID: actionID})
		var err error
		if p.onAction != nil {
			err = p.onAction(ctx, a)
		}
		r.monitor.TrackAction(actionID, r.clock.Now().Sub(start))
		return err
	}
}

func (r *Renderer) allow(surfaceID string, now time.Time) bool {
	if r.perSecond <= 0 {
		return true
	}
	r.limitsMu.Lock()
	lim, found := r.limits[surfaceID]
	if !found {
		lim = rate.NewLimiter(rate.Limit(r.perSecond), r.perSecond)
		r.limits[surfaceID] = lim
	}
	r.limitsMu.Unlock()
	return lim.AllowN(now, 1)
}

// Forget drops the rate limiter of a removed surface.
func (r *Renderer) Forget(surfaceID string) {
	r.limitsMu.Lock()
	delete(r.limits, surfaceID)
	r.limitsMu.Unlock()
}
