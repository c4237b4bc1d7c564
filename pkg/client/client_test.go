package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/channel/gochannel"
	"github.com/wilhg/a2ui/pkg/client/cache"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/store/memstore"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
)

type states struct {
	mu  sync.Mutex
	seq []State
}

func (s *states) Notify(_ context.Context, st State, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = append(s.seq, st)
}

func (s *states) snapshot() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.seq...)
}

func row(id, agent string, version int) surface.Surface {
	return surface.Surface{
		SurfaceID:  id,
		UserID:     "u-1",
		AgentID:    agent,
		Components: []surface.Component{{ID: "root", Type: "Card"}},
		Version:    version,
		CreatedAt:  t0,
		UpdatedAt:  t0,
	}
}

func zeroBackoff() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestNew_RequiresUser(t *testing.T) {
	_, err := New(store.Filter{}, StoreSource{Store: memstore.New()}, nil)
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation))
}

func TestLoad_ServerWinsOverCache(t *testing.T) {
	ctx := context.Background()
	st := memstore.New()
	_, err := st.CreateSurface(ctx, row("s-1", "booking-agent", 4))
	require.NoError(t, err)
	_, err = st.CreateSurface(ctx, row("s-other", "other-agent", 1))
	require.NoError(t, err)

	c, err := cache.Open(ctx, "", cache.WithClock(clock.Fake(t0)))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Put(ctx, row("s-1", "booking-agent", 2)))
	require.NoError(t, c.Put(ctx, row("s-gone", "booking-agent", 9)))

	var sawCached bool
	src := sourceFunc(func(ctx context.Context, f store.Filter) ([]surface.Surface, error) {
		return st.ListSurfaces(ctx, f)
	})
	sy, err := New(store.Filter{UserID: "u-1", AgentID: "booking-agent"}, src, nil, WithCache(c), WithLogger(logging.Discard()))
	require.NoError(t, err)
	src.before = func() { _, sawCached = sy.Surfaces()["s-gone"] }

	require.NoError(t, sy.Load(ctx))
	assert.True(t, sawCached, "cache is published before the source answers")
	got := sy.Surfaces()
	require.Len(t, got, 1)
	assert.Equal(t, 4, got["s-1"].Version)

	cached, err := c.List(ctx, "u-1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, 4, cached[0].Version)
}

func TestLoad_SourceFailureKeepsCache(t *testing.T) {
	ctx := context.Background()
	clk := clock.Fake(t0)
	c, err := cache.Open(ctx, "", cache.WithClock(clk))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Put(ctx, row("s-1", "booking-agent", 2)))

	rec := &telemetry.Recorder{}
	boom := errors.New("db down")
	src := sourceFunc(func(context.Context, store.Filter) ([]surface.Surface, error) { return nil, boom })
	sy, err := New(store.Filter{UserID: "u-1"}, src, nil, WithCache(c), WithReporter(rec))
	require.NoError(t, err)
	require.ErrorIs(t, sy.Load(ctx), boom)
	assert.Len(t, sy.Surfaces(), 1)
	require.Len(t, rec.Snapshot(), 1)
	assert.Equal(t, "u-1", rec.Snapshot()[0].Context.UserID)

	clk.Advance(cache.DefaultTTL + time.Minute)
	expired, err := New(store.Filter{UserID: "u-1"}, src, nil, WithCache(c), WithReporter(rec))
	require.NoError(t, err)
	require.ErrorIs(t, expired.Load(ctx), boom)
	assert.Empty(t, expired.Surfaces())
}

type sourceFn struct {
	fn     func(context.Context, store.Filter) ([]surface.Surface, error)
	before func()
}

func sourceFunc(fn func(context.Context, store.Filter) ([]surface.Surface, error)) *sourceFn {
	return &sourceFn{fn: fn}
}

func (s *sourceFn) ListSurfaces(ctx context.Context, f store.Filter) ([]surface.Surface, error) {
	if s.before != nil {
		s.before()
	}
	return s.fn(ctx, f)
}

func encode(t *testing.T, m surface.Message) []byte {
	t.Helper()
	b, err := surface.Encode(m)
	require.NoError(t, err)
	return b
}

func TestDispatch_ValidatesAndSanitizes(t *testing.T) {
	ctx := context.Background()
	mem := audit.NewMemory()
	sy, err := New(store.Filter{UserID: "u-1"}, StoreSource{Store: memstore.New()}, nil, WithAudit(audit.New(logging.Discard(), audit.WithSink(mem))))
	require.NoError(t, err)

	create := surface.SurfaceUpdate{Operation: surface.OpCreate, SurfaceID: "s-1", UserID: "u-1", AgentID: "booking-agent",
		Components: []surface.Component{{ID: "t", Type: "CardTitle", Props: map[string]any{"children": "<b>Hi</b> there"}}}}
	assert.Equal(t, Upserted, sy.Dispatch(ctx, encode(t, create)))
	sf, found := sy.Surface("s-1")
	require.True(t, found)
	assert.Equal(t, "Hi there", sf.Components[0].Props["children"])

	assert.Equal(t, Ignored, sy.Dispatch(ctx, []byte(`{"type":"surfaceUpdate"}`)))
	assert.Equal(t, Ignored, sy.Dispatch(ctx, []byte(`not json`)))
	dup := surface.SurfaceUpdate{Operation: surface.OpReplace, SurfaceID: "s-1", Components: []surface.Component{{ID: "x", Type: "Card"}, {ID: "x", Type: "Card"}}}
	assert.Equal(t, Ignored, sy.Dispatch(ctx, encode(t, dup)))
	assert.Len(t, mem.Events(audit.SecurityViolation), 2)
	assert.Len(t, mem.Events(audit.SurfaceUpdate), 1)

	assert.Equal(t, Ignored, sy.Dispatch(ctx, encode(t, surface.DataModelUpdate{SurfaceID: "unknown", Updates: map[string]any{"/a": 1}})))
	assert.Equal(t, Removed, sy.Dispatch(ctx, encode(t, surface.DeleteSurface{SurfaceID: "s-1"})))
	_, found = sy.Surface("s-1")
	assert.False(t, found)
}

func TestDispatch_FilterByAgent(t *testing.T) {
	ctx := context.Background()
	sy, err := New(store.Filter{UserID: "u-1", AgentID: "booking-agent"}, StoreSource{Store: memstore.New()}, nil)
	require.NoError(t, err)
	other := surface.SurfaceUpdate{Operation: surface.OpCreate, SurfaceID: "s-x", UserID: "u-1", AgentID: "insights-agent", Metadata: map[string]any{"step": "x"}}
	assert.Equal(t, Ignored, sy.Dispatch(ctx, encode(t, other)))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestRun_RealtimeRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := gochannel.New(logging.Discard())
	defer broker.Close()

	st := memstore.New()
	_, err := st.CreateSurface(ctx, row("s-1", "booking-agent", 1))
	require.NoError(t, err)

	changes := make(chan string, 8)
	notes := &states{}
	sy, err := New(store.Filter{UserID: "u-1"}, StoreSource{Store: st}, broker,
		WithNotifier(notes),
		WithOnChange(func(id string, _ *surface.Surface) { changes <- id }))
	require.NoError(t, err)

	require.ErrorIs(t, sy.SendAction(ctx, surface.Action{SurfaceID: "s-1", ActionID: surface.ActionCancelBooking}), ErrNotConnected)

	require.NoError(t, sy.Start(ctx))
	waitFor(t, sy.Connected)

	actions, err := broker.Subscribe(ctx, channel.Name("u-1"))
	require.NoError(t, err)
	defer actions.Close()

	update := surface.SurfaceUpdate{Operation: surface.OpUpdate, SurfaceID: "s-1", Metadata: map[string]any{"step": "DATE_TIME_SELECTION"}}
	require.NoError(t, channel.Send(ctx, broker, "u-1", update))
	select {
	case id := <-changes:
		assert.Equal(t, "s-1", id)
	case <-time.After(2 * time.Second):
		t.Fatal("no change observed")
	}
	sf, _ := sy.Surface("s-1")
	assert.Equal(t, 2, sf.Version)
	assert.Equal(t, surface.StepDateTimeSelection, sf.Step())

	// drain the update we published ourselves
	<-actions.Deliveries()

	require.NoError(t, sy.SendAction(ctx, surface.Action{SurfaceID: "s-1", ActionID: surface.ActionSelectTherapist, Payload: map[string]any{"therapistId": "t-1"}}))
	var d channel.Delivery
	select {
	case d = <-actions.Deliveries():
	case <-time.After(2 * time.Second):
		t.Fatal("action not broadcast")
	}
	msg, err := d.Decode()
	require.NoError(t, err)
	am, isAction := msg.(surface.ActionMessage)
	require.True(t, isAction)
	assert.Equal(t, "u-1", am.UserID)
	assert.Equal(t, "t-1", am.Payload["therapistId"])
	assert.Equal(t, Ignored, sy.Apply(ctx, am))

	bad := sy.SendAction(ctx, surface.Action{SurfaceID: "s-1", ActionID: "rm_rf"})
	assert.True(t, errmodel.IsCategory(bad, errmodel.CategoryValidation))

	cancel()
	waitFor(t, func() bool { st, _ := sy.State(); return st == StateClosed })
	assert.Equal(t, []State{StateSubscribing, StateConnected, StateClosed}, notes.snapshot())
}

type flakyBroker struct {
	channel.Broker
	mu    sync.Mutex
	fails int
}

func (f *flakyBroker) Subscribe(ctx context.Context, name string) (channel.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return nil, errmodel.Transport("down", "broker down", nil, nil)
	}
	return f.Broker.Subscribe(ctx, name)
}

func TestRun_ReconnectsAfterFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	inner := gochannel.New(logging.Discard())
	defer inner.Close()
	rec := &telemetry.Recorder{}
	notes := &states{}
	sy, err := New(store.Filter{UserID: "u-1"}, StoreSource{Store: memstore.New()}, &flakyBroker{Broker: inner, fails: 2},
		WithNotifier(notes), WithReporter(rec), WithBackoff(zeroBackoff))
	require.NoError(t, err)

	go sy.Run(ctx)
	waitFor(t, sy.Connected)
	assert.Len(t, rec.Snapshot(), 2)
	seq := notes.snapshot()
	assert.Equal(t, StateSubscribing, seq[0])
	assert.Contains(t, seq, StateError)
	assert.Equal(t, StateConnected, seq[len(seq)-1])
}

func TestRun_ResubscribesWhenBrokerDrops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	first := gochannel.New(logging.Discard())
	second := gochannel.New(logging.Discard())
	defer second.Close()
	sw := &switchBroker{current: first}
	sy, err := New(store.Filter{UserID: "u-1"}, StoreSource{Store: memstore.New()}, sw, WithBackoff(zeroBackoff))
	require.NoError(t, err)
	go sy.Run(ctx)
	waitFor(t, sy.Connected)

	sw.swap(second)
	require.NoError(t, first.Close())
	create := surface.SurfaceUpdate{Operation: surface.OpCreate, SurfaceID: "s-new", UserID: "u-1", Metadata: map[string]any{"step": "x"}}
	waitFor(t, func() bool {
		_ = channel.Send(ctx, second, "u-1", create)
		_, found := sy.Surface("s-new")
		return found
	})
}

type switchBroker struct {
	mu      sync.Mutex
	current channel.Broker
}

func (s *switchBroker) swap(b channel.Broker) {
	s.mu.Lock()
	s.current = b
	s.mu.Unlock()
}

func (s *switchBroker) get() channel.Broker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *switchBroker) Publish(ctx context.Context, name string, p []byte) error {
	return s.get().Publish(ctx, name, p)
}

func (s *switchBroker) Subscribe(ctx context.Context, name string) (channel.Subscription, error) {
	return s.get().Subscribe(ctx, name)
}

func (s *switchBroker) Close() error { return nil }

func TestSendAction_HTTPMode(t *testing.T) {
	var (
		gotPath string
		gotAuth string
		gotBody surface.Action
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/surfaces":
			assert.Equal(t, "booking-agent", r.URL.Query().Get("agentId"))
			_ = json.NewEncoder(w).Encode(map[string]any{"surfaces": []surface.Surface{row("s-1", "booking-agent", 3)}})
		case "/v1/agents/booking-agent/actions":
			gotPath, gotAuth = r.URL.Path, r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			w.WriteHeader(http.StatusAccepted)
		default:
			errmodel.WriteHTTP(w, r, errmodel.Conflict("version_conflict", "stale", nil))
		}
	}))
	defer srv.Close()

	api, err := NewHTTP(srv.URL, StaticToken("tok"))
	require.NoError(t, err)
	ctx := context.Background()
	sy, err := New(store.Filter{UserID: "u-1", AgentID: "booking-agent"}, api, nil, WithActionPoster(api))
	require.NoError(t, err)
	require.NoError(t, sy.Load(ctx))
	require.Len(t, sy.Surfaces(), 1)

	require.NoError(t, sy.SendAction(ctx, surface.Action{SurfaceID: "s-1", ActionID: surface.ActionSelectDate, Payload: map[string]any{"date": "2025-02-03"}}))
	assert.Equal(t, "/v1/agents/booking-agent/actions", gotPath)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.Equal(t, "u-1", gotBody.UserID)
	assert.Equal(t, "2025-02-03", gotBody.Payload["date"])

	err = api.PostAction(ctx, "missing-agent", surface.Action{ActionID: "click"})
	require.Error(t, err)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryConflict))
}
