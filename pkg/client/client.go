// Package client keeps a user's surfaces in sync with the agents that author
// them. It loads the current rows, merges the local cache, follows the user's
// realtime channel and sends actions back. Incoming messages are reduced one at
// a time into an immutable Surfaces snapshot.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
	"github.com/wilhg/a2ui/pkg/validate"
)

// State is the subscription lifecycle.
type State string

const (
	StateIdle        State = "idle"
	StateSubscribing State = "subscribing"
	StateConnected   State = "connected"
	StateError       State = "error"
	StateClosed      State = "closed"
)

// Notifier is told about lifecycle changes, e.g. to show a toast.
type Notifier interface {
	Notify(ctx context.Context, state State, err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, state State, err error)

func (f NotifierFunc) Notify(ctx context.Context, state State, err error) { f(ctx, state, err) }

// Cache is the durable local copy. *cache.Cache implements it.
type Cache interface {
	Put(ctx context.Context, s surface.Surface) error
	List(ctx context.Context, userID string) ([]surface.Surface, error)
	Delete(ctx context.Context, surfaceID string) error
	Prune(ctx context.Context) (int, error)
}

// ErrNotConnected is returned by SendAction in broadcast mode while the channel is down.
var ErrNotConnected = errmodel.Transport("realtime_disconnected", "realtime channel is not connected", nil, nil)

// Sync is one user's view of their surfaces.
type Sync struct {
	filter     store.Filter
	source     Source
	broker     channel.Broker
	cache      Cache
	poster     ActionPoster
	validator  *validate.Validator
	log        *slog.Logger
	reporter   telemetry.Reporter
	audit      audit.Recorder
	notifier   Notifier
	clock      clock.Clock
	onChange   func(id string, s *surface.Surface)
	newBackoff func() backoff.BackOff

	surfaces atomic.Pointer[Surfaces]
	// reduceMu serializes reducers. The run loop is the only writer in
	// practice but Dispatch is exported.
	reduceMu sync.Mutex

	stateMu sync.RWMutex
	state   State
	lastErr error
}

// Option configures a Sync.
type Option func(*Sync)

func WithCache(c Cache) Option                    { return func(s *Sync) { s.cache = c } }
func WithLogger(l *slog.Logger) Option            { return func(s *Sync) { s.log = l } }
func WithReporter(r telemetry.Reporter) Option    { return func(s *Sync) { s.reporter = r } }
func WithAudit(r audit.Recorder) Option           { return func(s *Sync) { s.audit = r } }
func WithNotifier(n Notifier) Option              { return func(s *Sync) { s.notifier = n } }
func WithClock(c clock.Clock) Option              { return func(s *Sync) { s.clock = c } }
func WithValidator(v *validate.Validator) Option  { return func(s *Sync) { s.validator = v } }
func WithBackoff(f func() backoff.BackOff) Option { return func(s *Sync) { s.newBackoff = f } }

// WithActionPoster sends actions through p instead of broadcasting them.
func WithActionPoster(p ActionPoster) Option { return func(s *Sync) { s.poster = p } }

// WithOnChange registers a callback run after every applied message. s is nil
// when the surface was removed.
func WithOnChange(fn func(id string, s *surface.Surface)) Option {
	return func(sy *Sync) { sy.onChange = fn }
}

// New returns an idle Sync for filter.UserID, which must be set.
func New(filter store.Filter, source Source, broker channel.Broker, opts ...Option) (*Sync, error) {
	if filter.UserID == "" {
		return nil, errmodel.Validation("user_required", "client needs a user id", nil)
	}
	s := &Sync{
		filter:    filter,
		source:    source,
		broker:    broker,
		validator: validate.New(),
		reporter:  telemetry.Nop{},
		audit:     audit.Nop{},
		clock:     clock.Real(),
		state:     StateIdle,
	}
	s.newBackoff = defaultBackoff
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrDiscard(s.log).With(slog.String("user_id", filter.UserID))
	empty := Surfaces{}
	s.surfaces.Store(&empty)
	return s, nil
}

func defaultBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

// Surfaces returns the current snapshot. Callers must not modify it.
func (s *Sync) Surfaces() Surfaces { return *s.surfaces.Load() }

// Surface returns a deep copy of one surface.
func (s *Sync) Surface(id string) (surface.Surface, bool) {
	sf, found := s.Surfaces()[id]
	if !found {
		return surface.Surface{}, false
	}
	return *sf.Clone(), true
}

// State returns the lifecycle state and the error that caused StateError.
func (s *Sync) State() (State, error) {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state, s.lastErr
}

// Connected reports whether the realtime channel is live.
func (s *Sync) Connected() bool {
	st, _ := s.State()
	return st == StateConnected
}

func (s *Sync) setState(ctx context.Context, st State, err error) {
	s.stateMu.Lock()
	changed := s.state != st
	s.state, s.lastErr = st, err
	s.stateMu.Unlock()
	if !changed {
		return
	}
	s.log.Debug("realtime state", slog.String("state", string(st)))
	if s.notifier != nil {
		s.notifier.Notify(ctx, st, err)
	}
}

// Load fills the snapshot from the cache and then from the source. When the
// source answers, its rows replace whatever the cache held for the filter.
// A cache failure is logged and ignored; a source failure is returned after
// the cached surfaces have been published.
func (s *Sync) Load(ctx context.Context) error {
	if s.cache != nil {
		cached, err := s.cache.List(ctx, s.filter.UserID)
		if err != nil {
			s.log.Warn("cache load failed", slog.Any("error", err))
		}
		if len(cached) > 0 {
			snap := make(Surfaces, len(cached))
			for _, sf := range cached {
				if s.filter.Matches(sf) {
					snap[sf.SurfaceID] = sf
				}
			}
			s.surfaces.Store(&snap)
		}
	}

	rows, err := s.source.ListSurfaces(ctx, s.filter)
	if err != nil {
		s.report(ctx, err, telemetry.Context{}, map[string]any{"op": "load"})
		return err
	}
	fresh := make(Surfaces, len(rows))
	for _, row := range rows {
		fresh[row.SurfaceID] = *surface.Normalize(&row)
	}
	s.reduceMu.Lock()
	stale := s.Surfaces()
	s.surfaces.Store(&fresh)
	s.reduceMu.Unlock()

	if s.cache != nil {
		for id := range stale {
			if _, kept := fresh[id]; !kept {
				s.cacheDelete(ctx, id)
			}
		}
		for _, sf := range fresh {
			s.cachePut(ctx, sf)
		}
		if n, err := s.cache.Prune(ctx); err != nil {
			s.log.Warn("cache prune failed", slog.Any("error", err))
		} else if n > 0 {
			s.log.Debug("cache pruned", slog.Int("surfaces", n))
		}
	}
	s.log.Info("surfaces loaded", slog.Int("count", len(fresh)))
	return nil
}

// Start loads the surfaces and then follows the channel in the background
// until ctx ends. The load error, if any, is returned but does not stop the
// subscription.
func (s *Sync) Start(ctx context.Context) error {
	err := s.Load(ctx)
	go s.Run(ctx)
	return err
}

// Run follows the user's channel until ctx ends, resubscribing with backoff
// whenever the broker drops the subscription.
func (s *Sync) Run(ctx context.Context) {
	name := channel.Name(s.filter.UserID)
	bo := s.newBackoff()
	defer s.setState(context.WithoutCancel(ctx), StateClosed, nil)
	for ctx.Err() == nil {
		s.setState(ctx, StateSubscribing, nil)
		sub, err := s.broker.Subscribe(ctx, name)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.fail(ctx, err)
			if !sleep(ctx, bo.NextBackOff()) {
				return
			}
			continue
		}
		s.setState(ctx, StateConnected, nil)
		bo.Reset()
		for d := range sub.Deliveries() {
			s.Dispatch(ctx, d.Payload)
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		err = sub.Err()
		if err == nil {
			err = channel.ErrDisconnected
		}
		s.fail(ctx, err)
		if !sleep(ctx, bo.NextBackOff()) {
			return
		}
	}
}

func (s *Sync) fail(ctx context.Context, err error) {
	s.log.Warn("realtime channel failed", slog.Any("error", err))
	s.setState(ctx, StateError, err)
	s.report(ctx, err, telemetry.Context{}, map[string]any{"op": "subscribe"})
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Dispatch validates, sanitizes and applies one encoded message. Invalid
// messages are logged and dropped; the returned outcome says what happened.
func (s *Sync) Dispatch(ctx context.Context, payload []byte) Outcome {
	var raw any
	if err := json.Unmarshal(payload, &raw); err != nil {
		s.log.Warn("dropping undecodable message", slog.Any("error", err))
		return Ignored
	}
	if r := s.validator.ValidateMessage(raw); !r.Valid {
		s.log.Warn("dropping invalid message", slog.String("event", string(audit.SecurityViolation)), slog.Any("errors", r.Errors))
		s.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, UserID: s.filter.UserID, SurfaceID: targetOf(raw), Details: map[string]any{"errors": r.Errors}})
		return Ignored
	}
	msg, err := surface.DecodeValue(validate.Sanitize(raw))
	if err != nil {
		s.log.Warn("dropping malformed message", slog.Any("error", err))
		return Ignored
	}
	if !s.filter.Matches(surface.Surface{SurfaceID: msg.Target(), UserID: s.filter.UserID, AgentID: agentOf(msg, s.Surfaces())}) {
		return Ignored
	}
	return s.Apply(ctx, msg)
}

// Apply runs the reducer for an already validated message.
func (s *Sync) Apply(ctx context.Context, msg surface.Message) Outcome {
	s.reduceMu.Lock()
	next, outcome := Reduce(s.Surfaces(), msg, s.clock.Now())
	if outcome != Ignored {
		s.surfaces.Store(&next)
	}
	s.reduceMu.Unlock()

	id := msg.Target()
	switch outcome {
	case Upserted:
		sf := next[id]
		s.audit.Record(ctx, audit.Event{Type: audit.SurfaceUpdate, SurfaceID: id, UserID: sf.UserID, AgentID: sf.AgentID, Details: map[string]any{"kind": string(msg.Kind()), "version": sf.Version}})
		s.cachePut(ctx, sf)
		if s.onChange != nil {
			s.onChange(id, &sf)
		}
	case Removed:
		s.audit.Record(ctx, audit.Event{Type: audit.SurfaceUpdate, SurfaceID: id, UserID: s.filter.UserID, Details: map[string]any{"kind": string(msg.Kind()), "deleted": true}})
		s.cacheDelete(ctx, id)
		if s.onChange != nil {
			s.onChange(id, nil)
		}
	default:
		s.log.Debug("message ignored", slog.String("kind", string(msg.Kind())), slog.String("surface_id", id))
	}
	return outcome
}

// SendAction validates a and delivers it to the agent that owns its surface.
// In broadcast mode the action goes out on the user's channel, which must be
// connected.
func (s *Sync) SendAction(ctx context.Context, a surface.Action) error {
	a.UserID = s.filter.UserID
	if a.Timestamp.IsZero() {
		a.Timestamp = s.clock.Now()
	}
	tc := telemetry.Context{SurfaceID: a.SurfaceID, ActionID: a.ActionID, UserID: a.UserID}
	if r := s.validator.ValidateAction(a); !r.Valid {
		s.log.Warn("blocked invalid action", slog.String("event", string(audit.SecurityViolation)), slog.String("action_id", a.ActionID), slog.Any("errors", r.Errors))
		s.audit.Record(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: a.SurfaceID, UserID: a.UserID, ActionID: a.ActionID, Details: map[string]any{"errors": r.Errors}})
		return r.Err()
	}
	s.audit.Record(ctx, audit.Event{Type: audit.UserAction, SurfaceID: a.SurfaceID, UserID: a.UserID, ActionID: a.ActionID})

	var err error
	if s.poster != nil {
		agentID := ""
		if sf, found := s.Surfaces()[a.SurfaceID]; found {
			agentID = sf.AgentID
		}
		if agentID == "" {
			agentID = s.filter.AgentID
		}
		if agentID == "" {
			err = errmodel.NotFound("surface_not_found", "no agent owns this surface", map[string]any{"surface_id": a.SurfaceID})
		} else {
			tc.AgentID = agentID
			err = s.poster.PostAction(ctx, agentID, a)
		}
	} else if !s.Connected() {
		err = ErrNotConnected
	} else if perr := channel.Send(ctx, s.broker, s.filter.UserID, surface.NewActionMessage(a)); perr != nil {
		err = errmodel.Transport("send_failed", "could not send action", nil, perr)
	}
	if err != nil {
		s.report(ctx, err, tc, map[string]any{"op": "send_action"})
		return err
	}
	return nil
}

func (s *Sync) report(ctx context.Context, err error, tc telemetry.Context, md map[string]any) {
	if tc.UserID == "" {
		tc.UserID = s.filter.UserID
	}
	s.reporter.Report(ctx, err, tc, md)
}

func (s *Sync) cachePut(ctx context.Context, sf surface.Surface) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, sf); err != nil {
		s.log.Warn("cache write failed", slog.String("surface_id", sf.SurfaceID), slog.Any("error", err))
	}
}

func (s *Sync) cacheDelete(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, id); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("cache delete failed", slog.String("surface_id", id), slog.Any("error", err))
	}
}

func targetOf(raw any) string {
	m, _ := raw.(map[string]any)
	id, _ := m["surfaceId"].(string)
	return id
}

// agentOf names the agent a message belongs to: the one in the message for
// creates, otherwise the owner of the surface already held.
func agentOf(m surface.Message, cur Surfaces) string {
	if su, isUpdate := m.(surface.SurfaceUpdate); isUpdate && su.AgentID != "" {
		return su.AgentID
	}
	if sf, found := cur[m.Target()]; found {
		return sf.AgentID
	}
	return ""
}
