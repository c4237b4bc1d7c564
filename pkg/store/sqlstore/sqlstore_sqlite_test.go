package sqlstore

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/store/storetest"
)

func openSQLite(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	st, err := Open(ctx, "sqlite:file:"+name+"?mode=memory&cache=shared&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	require.NoError(t, err)
	st.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(ctx))
	return st
}

func TestSQLite_Conformance(t *testing.T) {
	storetest.Run(t, openSQLite(t))
}

func TestSQLite_MigrateIsIdempotent(t *testing.T) {
	st := openSQLite(t)
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_AuditRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	at := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.AppendAudit(ctx, audit.Event{Type: audit.ComponentRender, SurfaceID: "s", ComponentType: "Card", At: at}))
	require.NoError(t, st.AppendAudit(ctx, audit.Event{Type: audit.SecurityViolation, SurfaceID: "s", ActionID: "x", Details: map[string]any{"reason": "rate"}, At: at.Add(time.Second)}))
	got, err := st.ListAudits(ctx, "s")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.ComponentRender, got[0].Type)
	assert.Equal(t, "Card", got[0].ComponentType)
	assert.Equal(t, "rate", got[1].Details["reason"])
	assert.True(t, got[1].At.Equal(at.Add(time.Second)))
}

func TestSQLite_Directory(t *testing.T) {
	ctx := context.Background()
	st := openSQLite(t)
	for _, p := range []booking.Provider{
		{ID: "t-1", FullName: "Dr. Ana Ruiz", Specialization: "Anxiety", Bio: "CBT for anxiety", Expertise: []string{"CBT"}, Rating: 4.9},
		{ID: "t-2", FullName: "Dr. Ben Cole", Specialization: "Couples", Bio: "Relationship work", Rating: 4.7},
		{ID: "t-3", FullName: "Dr. Cy Dunn", Specialization: "Anxiety and Depression", Bio: "Mindfulness", Rating: 4.8},
	} {
		require.NoError(t, st.UpsertProvider(ctx, p))
	}
	require.NoError(t, st.UpsertProvider(ctx, booking.Provider{ID: "t-2", FullName: "Dr. Ben Cole", Specialization: "Couples", Rating: 4.95}))

	anx, err := st.SearchProviders(ctx, booking.ProviderQuery{Specialization: "anxiety"})
	require.NoError(t, err)
	require.Len(t, anx, 2)
	assert.Equal(t, "t-1", anx[0].ID)
	assert.Equal(t, []string{"CBT"}, anx[0].Expertise)

	byText, err := st.SearchProviders(ctx, booking.ProviderQuery{Text: "mindful"})
	require.NoError(t, err)
	require.Len(t, byText, 1)
	assert.Equal(t, "t-3", byText[0].ID)

	limited, err := st.SearchProviders(ctx, booking.ProviderQuery{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "t-2", limited[0].ID)

	_, err = st.GetProvider(ctx, "ghost")
	assert.True(t, errors.Is(err, booking.ErrProviderNotFound))

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	appt, err := st.CreateAppointment(ctx, booking.Appointment{
		ProviderID: "t-1", PatientID: "u-1",
		StartTime: day.Add(10 * time.Hour), EndTime: day.Add(10*time.Hour + 45*time.Minute), Price: 1500,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, appt.ID)
	assert.Nil(t, appt.MeetingLink)

	_, err = st.CreateAppointment(ctx, booking.Appointment{
		ProviderID: "t-1", PatientID: "u-2",
		StartTime: day.Add(10*time.Hour + 30*time.Minute), EndTime: day.Add(11*time.Hour + 15*time.Minute),
	})
	assert.True(t, errors.Is(err, booking.ErrSlotTaken), "err=%v", err)

	_, err = st.CreateAppointment(ctx, booking.Appointment{
		ProviderID: "t-1", PatientID: "u-3", Status: booking.StatusCancelled,
		StartTime: day.Add(14 * time.Hour), EndTime: day.Add(14*time.Hour + 45*time.Minute),
	})
	require.NoError(t, err)

	booked, err := st.AppointmentsOn(ctx, "t-1", day, day.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, booked, 1, "cancelled appointments are not returned")
	assert.True(t, booked[0].StartTime.Equal(day.Add(10*time.Hour)))

	require.NoError(t, st.SetMeetingLink(ctx, appt.ID, "https://rooms.example/a", "Session-a"))
	got, err := st.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MeetingLink)
	assert.Equal(t, "https://rooms.example/a", *got.MeetingLink)
	assert.True(t, errors.Is(st.SetMeetingLink(ctx, "ghost", "x", "y"), booking.ErrAppointmentNotFound))
	_, err = st.GetAppointment(ctx, "ghost")
	assert.True(t, errors.Is(err, booking.ErrAppointmentNotFound))
}

func TestParseURL(t *testing.T) {
	cases := []struct {
		in, drv, dialect string
		wantErr          bool
	}{
		{in: "sqlite:file:x.db", drv: "sqlite3", dialect: "sqlite3"},
		{in: "SQLITE:file:x.db?_pragma=foreign_keys(1)", drv: "sqlite3", dialect: "sqlite3"},
		{in: "postgres://u:p@h:5432/db", drv: "pgx", dialect: "postgres"},
		{in: "host=h user=u dbname=d", drv: "pgx", dialect: "postgres"},
		{in: "mysql://x", wantErr: true},
		{in: "", wantErr: true},
		{in: "garbage", wantErr: true},
	}
	for _, tc := range cases {
		drv, dsn, d, err := parseURL(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.drv, drv)
		assert.Equal(t, tc.dialect, d)
		if drv == "sqlite3" {
			assert.Contains(t, dsn, "foreign_keys(1)")
		}
	}
}
