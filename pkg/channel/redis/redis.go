// Package redis is a cross-process channel.Broker on Redis pub/sub.
package redis

import (
	"context"
	"log/slog"
	"sync"

	goredis "github.com/redis/go-redis/v9"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
)

// Broker publishes through one shared client; each subscription holds its own
// pub/sub connection.
type Broker struct {
	client *goredis.Client
	log    *slog.Logger
	buffer int

	mu     sync.Mutex
	subs   map[*subscription]struct{}
	closed bool
}

// Options configures New.
type Options struct {
	Addr     string
	Password string
	DB       int
	// Buffer is the per-subscription delivery buffer.
	Buffer int
	Log    *slog.Logger
}

// New connects lazily to the Redis server at opts.Addr.
func New(opts Options) *Broker {
	return NewWithClient(goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), opts.Buffer, opts.Log)
}

// NewWithClient wraps an existing client. Close closes it.
func NewWithClient(c *goredis.Client, buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{client: c, log: logging.OrDiscard(log), buffer: buffer, subs: map[*subscription]struct{}{}}
}

// Ping checks the connection.
func (b *Broker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return errmodel.Transport("redis_unavailable", "redis is unreachable", nil, err)
	}
	return nil
}

func (b *Broker) Publish(ctx context.Context, name string, payload []byte) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return channel.ErrClosed
	}
	if err := b.client.Publish(ctx, name, payload).Err(); err != nil {
		return errmodel.Transport("publish_failed", "could not publish to channel", map[string]any{"channel": name}, err)
	}
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, name string) (channel.Subscription, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, channel.ErrClosed
	}
	b.mu.Unlock()

	ps := b.client.Subscribe(ctx, name)
	// Wait for the server to confirm so no message published after return is missed.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, errmodel.Transport("subscribe_failed", "could not subscribe to channel", map[string]any{"channel": name}, err)
	}
	s := &subscription{broker: b, ps: ps, out: make(chan channel.Delivery, b.buffer), done: make(chan struct{})}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	go s.pump(ctx, name)
	return s, nil
}

// Close ends every subscription and closes the client.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	subs := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()
	for _, s := range subs {
		s.end(channel.ErrDisconnected)
	}
	return b.client.Close()
}

func (b *Broker) forget(s *subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

type subscription struct {
	broker *Broker
	ps     *goredis.PubSub
	out    chan channel.Delivery
	done   chan struct{}

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (s *subscription) pump(ctx context.Context, name string) {
	defer close(s.out)
	defer s.broker.forget(s)
	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.end(nil)
			return
		case <-s.done:
			return
		case m, open := <-msgs:
			if !open {
				s.end(channel.ErrDisconnected)
				return
			}
			select {
			case s.out <- channel.Delivery{Channel: name, Payload: []byte(m.Payload)}:
			case <-s.done:
				return
			case <-ctx.Done():
				s.end(nil)
				return
			}
		}
	}
}

func (s *subscription) end(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.done)
		if cerr := s.ps.Close(); cerr != nil {
			s.broker.log.Debug("redis pubsub close", slog.Any("error", cerr))
		}
	})
}

func (s *subscription) Deliveries() <-chan channel.Delivery { return s.out }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.end(nil)
	return nil
}

var _ channel.Broker = (*Broker)(nil)
