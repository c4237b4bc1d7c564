package memdir

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wilhg/a2ui/pkg/booking"
)

func TestDirectory_SearchAndDoubleBooking(t *testing.T) {
	ctx := context.Background()
	d := New(
		booking.Provider{ID: "a", FullName: "Ada", Specialization: "Anxiety", Rating: 4.1},
		booking.Provider{ID: "b", FullName: "Ben", Specialization: "anxiety and stress", Rating: 4.9},
		booking.Provider{ID: "c", FullName: "Cy", Specialization: "Couples", Bio: "Anxious couples", Rating: 5},
	)
	got, err := d.SearchProviders(ctx, booking.ProviderQuery{Specialization: "ANX"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" {
		t.Fatalf("search %+v", got)
	}
	got, _ = d.SearchProviders(ctx, booking.ProviderQuery{Text: "anxious", Limit: 1})
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("text search %+v", got)
	}

	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	first, err := d.CreateAppointment(ctx, booking.Appointment{ProviderID: "a", PatientID: "u", StartTime: at(10, 0), EndTime: at(10, 45)})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID == "" || first.Status != booking.StatusConfirmed {
		t.Fatalf("defaults %+v", first)
	}
	_, err = d.CreateAppointment(ctx, booking.Appointment{ProviderID: "a", PatientID: "v", StartTime: at(10, 30), EndTime: at(11, 15)})
	if !errors.Is(err, booking.ErrSlotTaken) {
		t.Fatalf("want slot taken, got %v", err)
	}
	if _, err := d.CreateAppointment(ctx, booking.Appointment{ProviderID: "a", PatientID: "v", StartTime: at(10, 45), EndTime: at(11, 30)}); err != nil {
		t.Fatalf("adjacent slot: %v", err)
	}

	if err := d.SetMeetingLink(ctx, first.ID, "https://v/1", "Session-x"); err != nil {
		t.Fatal(err)
	}
	stored, _ := d.GetAppointment(ctx, first.ID)
	if stored.MeetingLink == nil || *stored.MeetingLink != "https://v/1" {
		t.Fatalf("link %+v", stored)
	}
	day, _ := d.AppointmentsOn(ctx, "a", at(0, 0), at(23, 59))
	if len(day) != 2 || !day[0].StartTime.Equal(at(10, 0)) {
		t.Fatalf("appointments %+v", day)
	}
	if err := d.SetMeetingLink(ctx, "missing", "x", "y"); !errors.Is(err, booking.ErrAppointmentNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
}
