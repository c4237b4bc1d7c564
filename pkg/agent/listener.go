package agent

import (
	"context"
	"log/slog"
	"sync"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Listener consumes actions that clients broadcast on user channels and
// dispatches them to the agent owning the target surface. The acting user is
// the channel's user; a userId inside the message is ignored.
type Listener struct {
	broker     channel.Broker
	surfaces   store.SurfaceStore
	dispatcher *Dispatcher
	log        *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	watched map[string]channel.Subscription
	wg      sync.WaitGroup
}

// NewListener returns a listener. Nothing is consumed until Start.
func NewListener(b channel.Broker, surfaces store.SurfaceStore, d *Dispatcher, log *slog.Logger) *Listener {
	return &Listener{broker: b, surfaces: surfaces, dispatcher: d, log: logging.OrDiscard(log), watched: map[string]channel.Subscription{}}
}

// Start watches every user that already owns a surface. Watches end when ctx
// is done.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	l.ctx = ctx
	l.mu.Unlock()
	all, err := l.surfaces.ListSurfaces(ctx, store.Filter{})
	if err != nil {
		return err
	}
	for _, s := range all {
		if err := l.Watch(s.UserID); err != nil {
			return err
		}
	}
	return nil
}

// Watch subscribes to the channel of userID unless it is already watched.
// A watch that the broker drops is forgotten so the next Watch renews it.
func (l *Listener) Watch(userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ctx == nil || userID == "" {
		return nil
	}
	if _, on := l.watched[userID]; on {
		return nil
	}
	sub, err := l.broker.Subscribe(l.ctx, channel.Name(userID))
	if err != nil {
		return err
	}
	l.watched[userID] = sub
	l.wg.Add(1)
	go l.consume(l.ctx, userID, sub)
	return nil
}

// Watching reports whether userID has a live watch.
func (l *Listener) Watching(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, on := l.watched[userID]
	return on
}

func (l *Listener) consume(ctx context.Context, userID string, sub channel.Subscription) {
	defer l.wg.Done()
	for d := range sub.Deliveries() {
		msg, err := d.Decode()
		if err != nil {
			l.log.Warn("dropping undecodable message", slog.String("channel", d.Channel), slog.Any("err", err))
			continue
		}
		am, isAction := msg.(surface.ActionMessage)
		if !isAction {
			continue
		}
		l.handle(ctx, userID, am)
	}
	if err := sub.Err(); err != nil {
		l.log.Warn("channel watch ended", slog.String("user_id", userID), slog.Any("err", err))
	}
	l.mu.Lock()
	if l.watched[userID] == sub {
		delete(l.watched, userID)
	}
	l.mu.Unlock()
}

func (l *Listener) handle(ctx context.Context, userID string, am surface.ActionMessage) {
	a := am.Action()
	a.UserID = userID
	s, err := l.surfaces.GetSurface(ctx, a.SurfaceID)
	if err != nil || s.UserID != userID {
		l.log.Warn("action for unknown surface", slog.String("surface_id", a.SurfaceID), slog.String("user_id", userID))
		return
	}
	// Failures are reported by the dispatcher; clients learn the outcome from
	// the surface updates on the same channel.
	_, _ = l.dispatcher.Dispatch(ctx, s.AgentID, a)
}

// Close ends every watch and waits for the consumers to finish.
func (l *Listener) Close() error {
	l.mu.Lock()
	subs := make([]channel.Subscription, 0, len(l.watched))
	for _, s := range l.watched {
		subs = append(subs, s)
	}
	l.ctx = nil
	l.mu.Unlock()
	for _, s := range subs {
		_ = s.Close()
	}
	l.wg.Wait()
	return nil
}
