// Package channeltest holds the behaviour every channel.Broker must share.
package channeltest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/surface"
)

const wait = 2 * time.Second

func receive(t *testing.T, sub channel.Subscription) channel.Delivery {
	t.Helper()
	select {
	case d, open := <-sub.Deliveries():
		require.True(t, open, "subscription ended early")
		return d
	case <-time.After(wait):
		t.Fatal("timed out waiting for delivery")
	}
	return channel.Delivery{}
}

func drained(t *testing.T, sub channel.Subscription) {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case _, open := <-sub.Deliveries():
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("subscription did not end")
		}
	}
}

// Run exercises a broker built fresh by newBroker for each subtest.
func Run(t *testing.T, newBroker func(t *testing.T) channel.Broker) {
	t.Run("publish reaches subscriber", func(t *testing.T) {
		ctx := context.Background()
		b := newBroker(t)
		sub, err := b.Subscribe(ctx, channel.Name("u-1"))
		require.NoError(t, err)
		defer sub.Close()

		msg := surface.DeleteSurface{SurfaceID: "s-1"}
		require.NoError(t, channel.Send(ctx, b, "u-1", msg))
		d := receive(t, sub)
		assert.Equal(t, "a2ui:u-1", d.Channel)
		got, err := d.Decode()
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("channels are isolated and ordered", func(t *testing.T) {
		ctx := context.Background()
		b := newBroker(t)
		one, err := b.Subscribe(ctx, channel.Name("u-1"))
		require.NoError(t, err)
		defer one.Close()
		two, err := b.Subscribe(ctx, channel.Name("u-2"))
		require.NoError(t, err)
		defer two.Close()

		require.NoError(t, b.Publish(ctx, channel.Name("u-2"), []byte(`{"n":0}`)))
		for _, p := range []string{`{"n":1}`, `{"n":2}`, `{"n":3}`} {
			require.NoError(t, b.Publish(ctx, channel.Name("u-1"), []byte(p)))
		}
		assert.JSONEq(t, `{"n":1}`, string(receive(t, one).Payload))
		assert.JSONEq(t, `{"n":2}`, string(receive(t, one).Payload))
		assert.JSONEq(t, `{"n":3}`, string(receive(t, one).Payload))
		assert.JSONEq(t, `{"n":0}`, string(receive(t, two).Payload))
	})

	t.Run("close ends subscription cleanly", func(t *testing.T) {
		b := newBroker(t)
		sub, err := b.Subscribe(context.Background(), channel.Name("u-1"))
		require.NoError(t, err)
		require.NoError(t, sub.Close())
		drained(t, sub)
		assert.NoError(t, sub.Err())
	})

	t.Run("cancelled context ends subscription", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		b := newBroker(t)
		sub, err := b.Subscribe(ctx, channel.Name("u-1"))
		require.NoError(t, err)
		cancel()
		drained(t, sub)
	})

	t.Run("broker close interrupts subscribers", func(t *testing.T) {
		ctx := context.Background()
		b := newBroker(t)
		sub, err := b.Subscribe(ctx, channel.Name("u-1"))
		require.NoError(t, err)
		require.NoError(t, b.Close())
		drained(t, sub)
		assert.ErrorIs(t, sub.Err(), channel.ErrDisconnected)
		assert.Error(t, b.Publish(ctx, channel.Name("u-1"), []byte(`{}`)))
		_, err = b.Subscribe(ctx, channel.Name("u-1"))
		assert.Error(t, err)
	})
}
