package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/adapters/rooms/fake"
	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/booking/memdir"
	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/channel/gochannel"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/store/memstore"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
)

const user = "user-1234567890"

var monday = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fixture struct {
	agent    *booking.Agent
	store    *memstore.Store
	dir      *memdir.Directory
	rooms    *fake.Provisioner
	broker   *gochannel.Broker
	reporter *telemetry.Recorder
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: memstore.New(),
		dir: memdir.New(
			booking.Provider{ID: "t-1", FullName: "Dr. Ada Park", Specialization: "Anxiety", Rating: 4.8},
			booking.Provider{ID: "t-2", FullName: "Dr. Ben Ode", Specialization: "Couples", Rating: 4.6},
		),
		rooms:    fake.New(),
		broker:   gochannel.New(nil),
		reporter: &telemetry.Recorder{},
		clock:    clock.Fake(monday),
	}
	t.Cleanup(func() { _ = f.broker.Close() })
	f.agent = booking.New(f.store, f.store, f.dir,
		booking.WithRooms(f.rooms),
		booking.WithBroker(f.broker),
		booking.WithReporter(f.reporter),
		booking.WithClock(f.clock),
	)
	return f
}

func (f *fixture) act(t *testing.T, sid, actionID string, payload map[string]any) agent.Result {
	t.Helper()
	res, err := f.agent.HandleAction(context.Background(), surface.Action{SurfaceID: sid, UserID: user, ActionID: actionID, Payload: payload})
	require.NoError(t, err, actionID)
	return res
}

func (f *fixture) init(t *testing.T) agent.Result {
	t.Helper()
	res, err := f.agent.Init(context.Background(), agent.InitRequest{UserID: user})
	require.NoError(t, err)
	return res
}

func find(t *testing.T, s surface.Surface, id string) surface.Component {
	t.Helper()
	c, ok := surface.Find(s.Components, id)
	require.True(t, ok, "component %s missing", id)
	return c
}

func TestInit_CreatesTherapistSelection(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)

	assert.Equal(t, "booking-user-123-1772438400000", res.SurfaceID)
	assert.Equal(t, 1, res.Version)
	assert.Contains(t, res.TextResponse, "Booking Assistant")

	s, err := f.store.GetSurface(context.Background(), res.SurfaceID)
	require.NoError(t, err)
	assert.Equal(t, surface.StepTherapistSelection, s.Step())
	assert.Equal(t, booking.AgentID, s.AgentID)
	card := find(t, s, "therapist-card-t-1")
	assert.Equal(t, "Dr. Ada Park", card.Props["name"])
	assert.Equal(t, map[string]any{"therapistId": "t-1"}, card.ActionPayload)
}

func TestSelectTherapist_ShowsTodaysSlots(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.dir.CreateAppointment(ctx, booking.Appointment{
		ProviderID: "t-1", PatientID: "someone-else",
		StartTime: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	res := f.init(t)

	sub, err := f.broker.Subscribe(ctx, channel.Name(user))
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	next := f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})
	assert.Equal(t, 2, next.Version)
	assert.Contains(t, next.TextResponse, "**Dr. Ada Park**")
	assert.Equal(t, surface.StepDateTimeSelection, next.Surface.Step())
	assert.Equal(t, "2026-03-02", next.Surface.Metadata[booking.MetaSelectedDate])

	picker := find(t, next.Surface, "calendar-picker")
	assert.Len(t, picker.Props["availableDates"], booking.BookingWindowDays)
	slots := find(t, next.Surface, "time-slots-content").Children
	require.Len(t, slots, 10)
	assert.Equal(t, "9:00 AM", slots[0].Props["time"])
	assert.Equal(t, false, slots[1].Props["available"], "10:00 overlaps the booking")
	assert.Equal(t, true, slots[2].Props["available"])

	select {
	case d := <-sub.Deliveries():
		msg, err := d.Decode()
		require.NoError(t, err)
		up, ok := msg.(surface.SurfaceUpdate)
		require.True(t, ok, "got %T", msg)
		assert.Equal(t, surface.OpUpdate, up.Operation)
		require.NotNil(t, up.Version)
		assert.Equal(t, 2, *up.Version)
	case <-time.After(2 * time.Second):
		t.Fatal("no broadcast")
	}

	logged, err := f.store.ListActions(ctx, res.SurfaceID)
	require.NoError(t, err)
	require.Len(t, logged, 1)
	assert.Equal(t, surface.ActionSelectTherapist, logged[0].ActionID)
	assert.Equal(t, 2, logged[0].Version)
	assert.Equal(t, booking.AgentID, logged[0].Metadata["agent"])
}

func TestSelectDate_RejectsPast(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})

	_, err := f.agent.HandleAction(context.Background(), surface.Action{
		SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionSelectDate,
		Payload: map[string]any{"date": "2026-03-01"},
	})
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation), "%v", err)

	next := f.act(t, res.SurfaceID, surface.ActionSelectDate, map[string]any{"date": "2026-03-04"})
	assert.Equal(t, "2026-03-04", next.Surface.Metadata[booking.MetaSelectedDate])
	assert.Equal(t, "t-1", next.Surface.Metadata[booking.MetaSelectedTherapist])
}

func toConfirmation(t *testing.T, f *fixture) agent.Result {
	t.Helper()
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})
	next := f.act(t, res.SurfaceID, surface.ActionSelectTimeSlot, map[string]any{
		"therapistId": "t-1", "date": "2026-03-02", "time": "11:00 AM", "endTime": "11:45 AM",
	})
	require.Equal(t, surface.StepConfirmation, next.Surface.Step())
	return next
}

func TestConfirm_CreatesAppointmentWithRoom(t *testing.T) {
	f := newFixture(t)
	res := toConfirmation(t, f)
	preview := find(t, res.Surface, "appointment-preview")
	assert.Equal(t, surface.ActionConfirmBooking, preview.Props["onConfirm"])

	done := f.act(t, res.SurfaceID, surface.ActionConfirmBooking, nil)
	assert.Equal(t, surface.StepCompleted, done.Surface.Step())
	assert.Equal(t, 4, done.Version)
	assert.Contains(t, done.TextResponse, "is confirmed")

	id, _ := done.Surface.Metadata[booking.MetaAppointmentID].(string)
	appt, err := f.dir.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, user, appt.PatientID)
	assert.Equal(t, booking.DefaultPrice, appt.Price)
	assert.Equal(t, time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC), appt.StartTime)
	require.NotNil(t, appt.MeetingLink)

	card := find(t, done.Surface, "success-appointment-card")
	assert.Equal(t, surface.ActionViewAppointments, card.Props["onJoin"])
	_, retry := surface.Find(done.Surface.Components, "retry-video-room")
	assert.False(t, retry)
}

func TestConfirm_ProvisioningFailureDegradesAndRetries(t *testing.T) {
	f := newFixture(t)
	res := toConfirmation(t, f)
	f.rooms.FailNext(1)

	done := f.act(t, res.SurfaceID, surface.ActionConfirmBooking, nil)
	assert.Equal(t, surface.StepCompleted, done.Surface.Step())
	id, _ := done.Surface.Metadata[booking.MetaAppointmentID].(string)
	appt, err := f.dir.GetAppointment(context.Background(), id)
	require.NoError(t, err, "appointment must persist without a room")
	assert.Nil(t, appt.MeetingLink)

	find(t, done.Surface, "retry-video-room")
	card := find(t, done.Surface, "success-appointment-card")
	assert.NotEmpty(t, card.Props["notice"])

	reports := f.reporter.Snapshot()
	require.NotEmpty(t, reports)
	assert.True(t, errmodel.IsCategory(reports[0].Err, errmodel.CategoryProvisioning))
	assert.Equal(t, res.SurfaceID, reports[0].Context.SurfaceID)

	again := f.act(t, res.SurfaceID, surface.ActionRetryVideoRoom, map[string]any{"appointmentId": id})
	assert.Equal(t, 5, again.Version)
	_, retry := surface.Find(again.Surface.Components, "retry-video-room")
	assert.False(t, retry)
	appt, err = f.dir.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, appt.MeetingLink)
}

func TestConfirm_SlotTakenReturnsToSelection(t *testing.T) {
	f := newFixture(t)
	res := toConfirmation(t, f)
	_, err := f.dir.CreateAppointment(context.Background(), booking.Appointment{
		ProviderID: "t-1", PatientID: "faster-user",
		StartTime: time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 11, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	next := f.act(t, res.SurfaceID, surface.ActionConfirmBooking, nil)
	assert.Equal(t, surface.StepDateTimeSelection, next.Surface.Step())
	assert.Contains(t, next.TextResponse, "just booked")
	slots := find(t, next.Surface, "time-slots-content").Children
	assert.Equal(t, false, slots[2].Props["available"])
}

func TestConfirm_WrongStepIsConflict(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	_, err := f.agent.HandleAction(context.Background(), surface.Action{SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionConfirmBooking})
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryConflict), "%v", err)
}

func TestSelectTimeSlot_OnlyOfferedSlots(t *testing.T) {
	cases := []struct {
		name, date, time, code string
	}{
		{"off grid", "2026-03-02", "3:17 AM", "unknown_slot"},
		{"between slots", "2026-03-02", "9:30 AM", "unknown_slot"},
		{"after hours", "2026-03-02", "7:00 PM", "unknown_slot"},
		{"past date", "2020-01-01", "10:00 AM", "date_in_past"},
		{"beyond window", "2026-03-16", "10:00 AM", "date_out_of_range"},
		{"garbled time", "2026-03-02", "ten", "bad_slot"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			res := f.init(t)
			f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})

			_, err := f.agent.HandleAction(context.Background(), surface.Action{
				SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionSelectTimeSlot,
				Payload: map[string]any{"therapistId": "t-1", "date": tc.date, "time": tc.time, "endTime": "11:00 PM"},
			})
			require.Error(t, err)
			assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation), "%v", err)
			assert.Equal(t, tc.code, errmodel.From(err).Code)

			s, err := f.store.GetSurface(context.Background(), res.SurfaceID)
			require.NoError(t, err)
			assert.Equal(t, surface.StepDateTimeSelection, s.Step())
			assert.Equal(t, 2, s.Version)
		})
	}
}

func TestSelectTimeSlot_UsesSlotBounds(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})
	next := f.act(t, res.SurfaceID, surface.ActionSelectTimeSlot, map[string]any{
		"therapistId": "t-1", "date": "2026-03-13", "time": "2:00 PM", "endTime": "11:00 PM",
	})
	assert.Equal(t, "2:45 PM", next.Surface.Metadata[booking.MetaSelectedEndTime])

	done := f.act(t, res.SurfaceID, surface.ActionConfirmBooking, nil)
	require.Equal(t, surface.StepCompleted, done.Surface.Step())
	id, _ := done.Surface.Metadata[booking.MetaAppointmentID].(string)
	appt, err := f.dir.GetAppointment(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 13, 14, 0, 0, 0, time.UTC), appt.StartTime)
	assert.Equal(t, time.Date(2026, 3, 13, 14, 45, 0, 0, time.UTC), appt.EndTime)
}

func TestSelectTimeSlot_BookedSlotReturnsToSelection(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})
	_, err := f.dir.CreateAppointment(context.Background(), booking.Appointment{
		ProviderID: "t-1", PatientID: "earlier-user",
		StartTime: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 10, 45, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	next := f.act(t, res.SurfaceID, surface.ActionSelectTimeSlot, map[string]any{
		"therapistId": "t-1", "date": "2026-03-02", "time": "10:00 AM",
	})
	assert.Equal(t, surface.StepDateTimeSelection, next.Surface.Step())
	assert.Nil(t, next.Surface.Metadata[booking.MetaSelectedTime])
}

func TestSelectDate_RejectsBeyondWindow(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})
	_, err := f.agent.HandleAction(context.Background(), surface.Action{
		SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionSelectDate,
		Payload: map[string]any{"therapistId": "t-1", "date": "2026-03-16"},
	})
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation), "%v", err)
}

// lossyStore fails the first write that completes a booking.
type lossyStore struct {
	*memstore.Store
	dropped bool
}

func (s *lossyStore) UpdateSurface(ctx context.Context, sf surface.Surface, expectedVersion int) (surface.Surface, error) {
	if !s.dropped && sf.Step() == surface.StepCompleted {
		s.dropped = true
		return surface.Surface{}, store.ErrConflict
	}
	return s.Store.UpdateSurface(ctx, sf, expectedVersion)
}

func TestConfirm_RetryAfterLostWriteReusesAppointment(t *testing.T) {
	f := newFixture(t)
	res := toConfirmation(t, f)
	lossy := booking.New(&lossyStore{Store: f.store}, f.store, f.dir,
		booking.WithRooms(f.rooms),
		booking.WithClock(f.clock),
	)
	confirm := surface.Action{SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionConfirmBooking}

	_, err := lossy.HandleAction(context.Background(), confirm)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict), "%v", err)

	done, err := lossy.HandleAction(context.Background(), confirm)
	require.NoError(t, err)
	assert.Equal(t, surface.StepCompleted, done.Surface.Step())
	assert.Equal(t, 4, done.Version)

	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	booked, err := f.dir.AppointmentsOn(context.Background(), "t-1", day, day.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, booked, 1)
	assert.Equal(t, booked[0].ID, done.Surface.Metadata[booking.MetaAppointmentID])
	assert.Len(t, f.rooms.Calls(), 1)
}

func TestCancel_ResetsMetadata(t *testing.T) {
	f := newFixture(t)
	res := toConfirmation(t, f)
	next := f.act(t, res.SurfaceID, surface.ActionCancelBooking, nil)
	assert.Equal(t, map[string]any{booking.MetaStep: string(surface.StepTherapistSelection)}, next.Surface.Metadata)
	find(t, next.Surface, "therapist-card-t-2")
}

func TestHandleAction_ForeignSurfaceIsNotFound(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	_, err := f.agent.HandleAction(context.Background(), surface.Action{
		SurfaceID: res.SurfaceID, UserID: "intruder", ActionID: surface.ActionSelectTherapist,
		Payload: map[string]any{"therapistId": "t-1"},
	})
	assert.True(t, errors.Is(err, store.ErrNotFound), "%v", err)
}

func TestHandleAction_UnknownAction(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	_, err := f.agent.HandleAction(context.Background(), surface.Action{SurfaceID: res.SurfaceID, UserID: user, ActionID: "export_report"})
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryUnknownAction), "%v", err)
}

// staleStore serves reads one version behind to force a lost update.
type staleStore struct{ *memstore.Store }

func (s staleStore) GetSurface(ctx context.Context, id string) (surface.Surface, error) {
	sf, err := s.Store.GetSurface(ctx, id)
	sf.Version--
	return sf, err
}

func TestHandleAction_StaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	res := f.init(t)
	f.act(t, res.SurfaceID, surface.ActionSelectTherapist, map[string]any{"therapistId": "t-1"})

	stale := booking.New(staleStore{f.store}, f.store, f.dir, booking.WithClock(f.clock))
	_, err := stale.HandleAction(context.Background(), surface.Action{SurfaceID: res.SurfaceID, UserID: user, ActionID: surface.ActionCancelBooking})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrConflict), "%v", err)
	assert.Equal(t, 409, errmodel.HTTPStatus(errmodel.From(err)))
}
