// Package gochannel is an in-process channel.Broker on watermill's GoChannel.
package gochannel

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/logging"
)

// Broker fans messages out to every subscriber of a channel in this process.
type Broker struct {
	pubsub *gochannel.GoChannel
	buffer int

	mu     sync.Mutex
	closed bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithBuffer sets the per-subscription delivery buffer.
func WithBuffer(n int) Option { return func(b *Broker) { b.buffer = n } }

// New returns a Broker logging through log.
func New(log *slog.Logger, opts ...Option) *Broker {
	b := &Broker{buffer: 64}
	for _, opt := range opts {
		opt(b)
	}
	b.pubsub = gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(b.buffer),
		BlockPublishUntilSubscriberAck: false,
	}, watermill.NewSlogLogger(logging.OrDiscard(log)))
	return b
}

func (b *Broker) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Publish delivers payload to the current subscribers of name. Messages
// published while nobody listens are dropped.
func (b *Broker) Publish(ctx context.Context, name string, payload []byte) error {
	if b.isClosed() {
		return channel.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.pubsub.Publish(name, msg); err != nil {
		return channel.ErrClosed
	}
	return nil
}

// Subscribe streams name until ctx ends or the subscription is closed.
func (b *Broker) Subscribe(ctx context.Context, name string) (channel.Subscription, error) {
	if b.isClosed() {
		return nil, channel.ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	msgs, err := b.pubsub.Subscribe(subCtx, name)
	if err != nil {
		cancel()
		return nil, channel.ErrClosed
	}
	s := &subscription{out: make(chan channel.Delivery, b.buffer), cancel: cancel}
	go s.pump(subCtx, name, msgs)
	return s, nil
}

// Close ends every subscription.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.pubsub.Close()
}

type subscription struct {
	out    chan channel.Delivery
	cancel context.CancelFunc

	mu      sync.Mutex
	err     error
	stopped bool
}

func (s *subscription) pump(ctx context.Context, name string, msgs <-chan *message.Message) {
	defer close(s.out)
	for {
		select {
		case <-ctx.Done():
			return
		case m, open := <-msgs:
			if !open {
				s.mu.Lock()
				if !s.stopped && ctx.Err() == nil {
					s.err = channel.ErrDisconnected
				}
				s.mu.Unlock()
				return
			}
			select {
			case s.out <- channel.Delivery{Channel: name, Payload: m.Payload}:
				m.Ack()
			case <-ctx.Done():
				m.Nack()
				return
			}
		}
	}
}

func (s *subscription) Deliveries() <-chan channel.Delivery { return s.out }

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *subscription) Close() error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	return nil
}

var _ channel.Broker = (*Broker)(nil)
