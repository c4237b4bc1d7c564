package booking

import (
	"testing"
	"time"
)

func TestDaySlots_HalfOpenOverlap(t *testing.T) {
	day := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	at := func(h, m int) time.Time { return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC) }
	booked := []Appointment{
		{StartTime: at(10, 0), EndTime: at(10, 45), Status: StatusConfirmed},
		{StartTime: at(12, 45), EndTime: at(13, 0), Status: StatusConfirmed},
		{StartTime: at(15, 0), EndTime: at(15, 45), Status: StatusCancelled},
	}
	slots := DaySlots(day, booked)
	if len(slots) != 10 {
		t.Fatalf("want 10 slots, got %d", len(slots))
	}
	if slots[0].Time != "9:00 AM" || slots[0].EndTime != "9:45 AM" || slots[9].Time != "6:00 PM" {
		t.Fatalf("layout %+v ... %+v", slots[0], slots[9])
	}
	for i, s := range slots {
		want := i != 1
		if s.Available != want {
			t.Errorf("slot %s available=%v want %v", s.Time, s.Available, want)
		}
	}
}

func TestSlotBounds(t *testing.T) {
	start, end, err := SlotBounds("2026-03-02", "2:00 PM", "", time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(time.Date(2026, 3, 2, 14, 0, 0, 0, time.UTC)) || end.Sub(start) != SlotLength {
		t.Fatalf("bounds %v %v", start, end)
	}
	if _, _, err := SlotBounds("03/02/2026", "2:00 PM", "", time.UTC); err == nil {
		t.Fatal("expected date error")
	}
	if _, _, err := SlotBounds("2026-03-02", "14h", "", time.UTC); err == nil {
		t.Fatal("expected time error")
	}
}

func TestLoadProviders(t *testing.T) {
	ps, err := LoadProviders([]byte(`
providers:
  - id: t-1
    full_name: Dr. Ada Park
    specialization: Anxiety
    expertise: [CBT, Mindfulness]
    rating: 4.8
`))
	if err != nil {
		t.Fatal(err)
	}
	if len(ps) != 1 || ps[0].FullName != "Dr. Ada Park" || len(ps[0].Expertise) != 2 {
		t.Fatalf("providers %+v", ps)
	}
	if _, err := LoadProviders([]byte("providers:\n  - id: x\n")); err == nil {
		t.Fatal("missing name should fail")
	}
	if _, err := LoadProviders([]byte("providers:\n  - {id: x, full_name: A}\n  - {id: x, full_name: B}\n")); err == nil {
		t.Fatal("duplicate id should fail")
	}
}

func TestSuccess_DegradedWithoutLink(t *testing.T) {
	p := Provider{ID: "t-1", FullName: "Dr. Ada Park"}
	a := Appointment{ID: "0123456789", StartTime: time.Now(), EndTime: time.Now().Add(SlotLength)}
	comps := Success(p, a)
	if len(comps) != 1 || len(comps[0].Children) != 3 {
		t.Fatalf("want header, card and retry button, got %+v", comps)
	}
	if comps[0].Children[2].ID != "retry-video-room" {
		t.Fatalf("retry button missing: %+v", comps[0].Children[2])
	}
	link := "https://video.local/x"
	a.MeetingLink = &link
	comps = Success(p, a)
	if len(comps[0].Children) != 2 || comps[0].Children[1].Props["onJoin"] == nil {
		t.Fatalf("join action missing: %+v", comps[0].Children)
	}
}
