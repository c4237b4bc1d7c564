package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

func TestHTTP_ListSurfacesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/surfaces", r.URL.Path)
		assert.Equal(t, "s-1", r.URL.Query().Get("surfaceId"))
		assert.Empty(t, r.URL.Query().Get("agentId"))
		_, _ = w.Write([]byte(`{"surfaces":[{"surfaceId":"s-1","userId":"u-1","agentId":"a","version":2}]}`))
	}))
	defer srv.Close()

	api, err := NewHTTP(srv.URL+"/api", nil)
	require.NoError(t, err)
	got, err := api.ListSurfaces(context.Background(), store.Filter{SurfaceID: "s-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)
	assert.NotNil(t, got[0].DataModel)
	assert.NotNil(t, got[0].Components)
}

func TestHTTP_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/surfaces":
			errmodel.WriteHTTP(w, r, errmodel.Policy("unauthorized", "missing token", nil))
		default:
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("<html>upstream</html>"))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	api, err := NewHTTP(srv.URL, StaticToken("tok"))
	require.NoError(t, err)
	_, err = api.ListSurfaces(ctx, store.Filter{})
	e := errmodel.From(err)
	assert.Equal(t, errmodel.CategoryPolicy, e.Category)
	assert.Equal(t, "unauthorized", e.Code)

	err = api.PostAction(ctx, "booking-agent", actionFixture())
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryTransport))
	assert.Equal(t, http.StatusBadGateway, errmodel.From(err).Context["status"])

	boom := errors.New("no credential")
	noTok, err := NewHTTP(srv.URL, func(context.Context) (string, error) { return "", boom })
	require.NoError(t, err)
	require.ErrorIs(t, noTok.PostAction(ctx, "booking-agent", actionFixture()), boom)
}

func actionFixture() surface.Action {
	return surface.Action{SurfaceID: "s-1", ActionID: surface.ActionConfirmBooking, Timestamp: t0}
}
