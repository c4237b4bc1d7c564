// Package channel carries surface messages between agents and clients. Every
// user has one channel named by Name; brokers move encoded envelopes and leave
// decoding to the consumer so a bad message can be dropped without ending the
// subscription.
package channel

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/a2ui/pkg/errmodel"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Prefix starts every channel name.
const Prefix = "a2ui:"

// Name returns the channel of a user.
func Name(userID string) string { return Prefix + userID }

// UserID extracts the user id from a channel name.
func UserID(name string) (string, bool) {
	if !strings.HasPrefix(name, Prefix) || len(name) == len(Prefix) {
		return "", false
	}
	return name[len(Prefix):], true
}

// Delivery is one payload received on a channel.
type Delivery struct {
	Channel string
	Payload []byte
}

// Decode parses the payload into a message.
func (d Delivery) Decode() (surface.Message, error) { return surface.Decode(d.Payload) }

// Subscription streams deliveries until it is closed or the broker drops it.
// Deliveries is closed in both cases; callers tell them apart with Err.
type Subscription interface {
	Deliveries() <-chan Delivery
	// Err is nil after Close and non-nil when the broker ended the stream.
	Err() error
	Close() error
}

// Broker publishes and subscribes to named channels.
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (Subscription, error)
	Close() error
}

// ErrClosed is returned by brokers used after Close.
var ErrClosed = errmodel.Transport("channel_closed", "channel is closed", nil, nil)

// ErrDisconnected ends a subscription the broker could not keep alive.
var ErrDisconnected = errmodel.Transport("channel_disconnected", "channel subscription was interrupted", nil, nil)

// Send encodes m and publishes it on the channel of userID.
func Send(ctx context.Context, b Broker, userID string, m surface.Message) error {
	payload, err := surface.Encode(m)
	if err != nil {
		return err
	}
	return b.Publish(ctx, Name(userID), payload)
}

var tracer = a2otel.Tracer("channel")

type traced struct {
	Broker
}

// Traced wraps b so every publish runs in a span.
func Traced(b Broker) Broker { return traced{Broker: b} }

func (t traced) Publish(ctx context.Context, channel string, payload []byte) error {
	ctx, span := tracer.Start(ctx, "channel.publish", trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("a2ui.channel", channel), attribute.Int("a2ui.payload_bytes", len(payload))))
	defer span.End()
	if err := t.Broker.Publish(ctx, channel, payload); err != nil {
		a2otel.Fail(span, err)
		return err
	}
	return nil
}
