// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Sample returns a version-1 surface owned by userID.
func Sample(id, userID string, at time.Time) surface.Surface {
	return surface.Surface{
		SurfaceID: id,
		UserID:    userID,
		AgentID:   "booking-agent",
		Components: []surface.Component{{
			ID: "root", Type: "Card",
			Children: []surface.Component{{ID: "title", Type: "CardTitle", Props: map[string]any{"children": "Hi"}}},
		}},
		DataModel: map[string]any{"user": map[string]any{"name": "Ada"}},
		Metadata:  map[string]any{"step": string(surface.StepTherapistSelection)},
		Version:   1,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

// Run exercises st. Each call must receive a fresh, empty store.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	t.Run("create and get", func(t *testing.T) {
		created, err := st.CreateSurface(ctx, Sample("s-1", "u-1", at))
		require.NoError(t, err)
		assert.Equal(t, 1, created.Version)

		got, err := st.GetSurface(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", got.UserID)
		assert.Equal(t, "booking-agent", got.AgentID)
		require.Len(t, got.Components, 1)
		assert.Equal(t, "title", got.Components[0].Children[0].ID)
		assert.Equal(t, "Ada", got.DataModel["user"].(map[string]any)["name"])
		assert.Equal(t, string(surface.StepTherapistSelection), got.Metadata["step"])
		assert.True(t, got.CreatedAt.Equal(at), "created_at=%v", got.CreatedAt)

		_, err = st.CreateSurface(ctx, Sample("s-1", "u-1", at))
		assert.True(t, errors.Is(err, store.ErrExists), "err=%v", err)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := st.GetSurface(ctx, "nope")
		assert.True(t, errors.Is(err, store.ErrNotFound), "err=%v", err)
		assert.Equal(t, errmodel.CategoryNotFound, errmodel.From(err).Category)
	})

	t.Run("empty containers are normalized", func(t *testing.T) {
		bare := surface.Surface{SurfaceID: "s-bare", UserID: "u-2", AgentID: "other", Version: 1, CreatedAt: at, UpdatedAt: at}
		_, err := st.CreateSurface(ctx, bare)
		require.NoError(t, err)
		got, err := st.GetSurface(ctx, "s-bare")
		require.NoError(t, err)
		assert.NotNil(t, got.Components)
		assert.NotNil(t, got.DataModel)
		assert.NotNil(t, got.Metadata)
	})

	t.Run("list filters", func(t *testing.T) {
		_, err := st.CreateSurface(ctx, Sample("s-2", "u-1", at.Add(time.Minute)))
		require.NoError(t, err)
		all, err := st.ListSurfaces(ctx, store.Filter{UserID: "u-1"})
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "s-1", all[0].SurfaceID)

		one, err := st.ListSurfaces(ctx, store.Filter{UserID: "u-1", SurfaceID: "s-2"})
		require.NoError(t, err)
		require.Len(t, one, 1)

		byAgent, err := st.ListSurfaces(ctx, store.Filter{AgentID: "other"})
		require.NoError(t, err)
		require.Len(t, byAgent, 1)
		assert.Equal(t, "s-bare", byAgent[0].SurfaceID)

		none, err := st.ListSurfaces(ctx, store.Filter{UserID: "ghost"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("conditional update", func(t *testing.T) {
		cur, err := st.GetSurface(ctx, "s-1")
		require.NoError(t, err)
		next := cur
		next.Metadata = map[string]any{"step": string(surface.StepDateTimeSelection)}
		next.Version = cur.Version + 1
		next.UpdatedAt = at.Add(time.Hour)
		updated, err := st.UpdateSurface(ctx, next, cur.Version)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Version)

		stale := cur
		stale.Version = cur.Version + 1
		_, err = st.UpdateSurface(ctx, stale, cur.Version)
		assert.True(t, errors.Is(err, store.ErrConflict), "err=%v", err)
		assert.Equal(t, 409, errmodel.HTTPStatus(errmodel.From(err)))

		got, err := st.GetSurface(ctx, "s-1")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Version)
		assert.Equal(t, string(surface.StepDateTimeSelection), got.Metadata["step"])
		assert.True(t, got.CreatedAt.Equal(at))

		missing := Sample("ghost", "u-1", at)
		_, err = st.UpdateSurface(ctx, missing, 1)
		assert.Error(t, err)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, st.DeleteSurface(ctx, "s-2"))
		_, err := st.GetSurface(ctx, "s-2")
		assert.True(t, errors.Is(err, store.ErrNotFound))
		assert.True(t, errors.Is(st.DeleteSurface(ctx, "s-2"), store.ErrNotFound))
	})

	t.Run("action log", func(t *testing.T) {
		for i, id := range []string{surface.ActionSelectTherapist, surface.ActionSelectDate} {
			_, err := st.AppendAction(ctx, store.ActionRecord{
				SurfaceID: "s-1", UserID: "u-1", AgentID: "booking-agent",
				ActionID: id, Payload: map[string]any{"therapistId": "t-1"},
				Version: i + 2, CreatedAt: at.Add(time.Duration(i) * time.Second),
			})
			require.NoError(t, err)
		}
		got, err := st.ListActions(ctx, "s-1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, surface.ActionSelectTherapist, got[0].ActionID)
		assert.Equal(t, surface.ActionSelectDate, got[1].ActionID)
		assert.NotEmpty(t, got[0].ID)
		assert.Equal(t, "t-1", got[0].Payload["therapistId"])

		empty, err := st.ListActions(ctx, "nope")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("audit log", func(t *testing.T) {
		err := st.AppendAudit(ctx, audit.Event{
			ID: "01HZAUDIT0000000000000000", Type: audit.UserAction, SurfaceID: "s-1", UserID: "u-1",
			ActionID: surface.ActionSelectTherapist, Details: map[string]any{"k": "v"}, At: at,
		})
		require.NoError(t, err)
	})
}
