package booking

import (
	"context"
	"fmt"
	"time"
)

// Day schedule of every provider.
const (
	DayStartHour   = 9
	DayEndHour     = 19
	SlotLength     = 45 * time.Minute
	SlotInterval   = 60 * time.Minute
	SlotTimeLayout = "3:04 PM"
)

// Slot is one bookable window of a provider's day.
type Slot struct {
	Time      string    `json:"time"`
	EndTime   string    `json:"endTime"`
	Available bool      `json:"available"`
	Start     time.Time `json:"-"`
	End       time.Time `json:"-"`
}

// DaySlots lays out the slots of day in day's location and marks those
// overlapping a non-cancelled appointment as unavailable.
func DaySlots(day time.Time, booked []Appointment) []Slot {
	y, m, d := day.Date()
	loc := day.Location()
	open := time.Date(y, m, d, DayStartHour, 0, 0, 0, loc)
	closing := time.Date(y, m, d, DayEndHour, 0, 0, 0, loc)

	var out []Slot
	for start := open; start.Before(closing); start = start.Add(SlotInterval) {
		end := start.Add(SlotLength)
		free := true
		for _, a := range booked {
			if a.Status == StatusCancelled {
				continue
			}
			if Overlaps(start, end, a.StartTime, a.EndTime) {
				free = false
				break
			}
		}
		out = append(out, Slot{
			Time:      start.Format(SlotTimeLayout),
			EndTime:   end.Format(SlotTimeLayout),
			Available: free,
			Start:     start,
			End:       end,
		})
	}
	return out
}

// Availability loads the provider's appointments on day and returns its slots.
func Availability(ctx context.Context, dir Directory, providerID string, day time.Time) ([]Slot, error) {
	y, m, d := day.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	booked, err := dir.AppointmentsOn(ctx, providerID, from, from.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("availability of %s: %w", providerID, err)
	}
	return DaySlots(from, booked), nil
}

// SlotBounds parses a date ("2006-01-02") and a slot start and end time into
// instants in loc.
func SlotBounds(date, start, end string, loc *time.Location) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date %q: %w", date, err)
	}
	at := func(clock string) (time.Time, error) {
		t, err := time.Parse(SlotTimeLayout, clock)
		if err != nil {
			return time.Time{}, fmt.Errorf("time %q: %w", clock, err)
		}
		return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc), nil
	}
	from, err := at(start)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end == "" {
		return from, from.Add(SlotLength), nil
	}
	to, err := at(end)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
