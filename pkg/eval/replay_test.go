package eval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/adapters/rooms/fake"
	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/booking/memdir"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/store/memstore"
	"github.com/wilhg/a2ui/pkg/surface"
)

func newAgent(st *memstore.Store) *booking.Agent {
	dir := memdir.New(booking.Provider{ID: "t-1", FullName: "Dr. Ada Park", Specialization: "Anxiety"})
	clk := clock.Fake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	return booking.New(st, st, dir, booking.WithRooms(fake.New()), booking.WithClock(clk))
}

func TestReplay_FromActionLog(t *testing.T) {
	ctx := context.Background()
	recorded := memstore.New()
	a := newAgent(recorded)
	cap := Capture{
		UserID: "user-1",
		Init:   agent.InitRequest{Specialization: "anxiety"},
		Actions: []surface.Action{
			{ActionID: surface.ActionSelectTherapist, Payload: map[string]any{"therapistId": "t-1"}},
			{ActionID: surface.ActionSelectTimeSlot, Payload: map[string]any{"therapistId": "t-1", "date": "2026-03-02", "time": "11:00 AM", "endTime": "11:45 AM"}},
			{ActionID: surface.ActionConfirmBooking},
		},
	}
	first, err := Replay(ctx, a, cap)
	require.NoError(t, err)
	assert.Equal(t, surface.StepCompleted, first.Surface.Step())
	assert.Equal(t, 4, first.Version)

	rebuilt, err := CaptureFromLog(ctx, recorded, recorded, first.SurfaceID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", rebuilt.UserID)
	assert.Equal(t, "anxiety", rebuilt.Init.Specialization)
	require.Len(t, rebuilt.Actions, 3)

	again, err := Replay(ctx, newAgent(memstore.New()), rebuilt)
	require.NoError(t, err)
	assert.Equal(t, first.Version, again.Version)
	assert.Equal(t, first.Surface.Step(), again.Surface.Step())
}

func TestReplay_StopsAtFailingStep(t *testing.T) {
	cap := Capture{UserID: "user-1", Actions: []surface.Action{{ActionID: surface.ActionConfirmBooking}}}
	_, err := Replay(context.Background(), newAgent(memstore.New()), cap)
	assert.ErrorContains(t, err, "replay action 0")
}
