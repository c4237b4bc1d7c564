package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/channel/channeltest"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
)

func TestBroker(t *testing.T) {
	channeltest.Run(t, func(t *testing.T) channel.Broker {
		srv := miniredis.RunT(t)
		b := New(Options{Addr: srv.Addr(), Buffer: 8, Log: logging.Discard()})
		t.Cleanup(func() { _ = b.Close() })
		require.NoError(t, b.Ping(context.Background()))
		return b
	})
}

func TestPublish_Unreachable(t *testing.T) {
	srv := miniredis.RunT(t)
	b := New(Options{Addr: srv.Addr()})
	defer b.Close()
	srv.Close()
	err := b.Publish(context.Background(), channel.Name("u-1"), []byte(`{}`))
	require.Error(t, err)
	require.True(t, errmodel.IsCategory(err, errmodel.CategoryTransport))
}
