// Package memdir is an in-process booking.Directory for tests, replays and
// the single-binary demo.
package memdir

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/ids"
)

// Directory keeps providers and appointments in memory. Safe for concurrent use.
type Directory struct {
	mu           sync.RWMutex
	providers    map[string]booking.Provider
	appointments map[string]booking.Appointment
}

// New returns a directory seeded with providers.
func New(providers ...booking.Provider) *Directory {
	d := &Directory{providers: map[string]booking.Provider{}, appointments: map[string]booking.Appointment{}}
	for _, p := range providers {
		d.providers[p.ID] = p
	}
	return d
}

// UpsertProvider adds or replaces p.
func (d *Directory) UpsertProvider(_ context.Context, p booking.Provider) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.providers[p.ID] = p
	return nil
}

func (d *Directory) SearchProviders(_ context.Context, q booking.ProviderQuery) ([]booking.Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	spec := strings.ToLower(q.Specialization)
	text := strings.ToLower(q.Text)
	out := []booking.Provider{}
	for _, p := range d.providers {
		if spec != "" && !strings.Contains(strings.ToLower(p.Specialization), spec) {
			continue
		}
		if text != "" && !strings.Contains(strings.ToLower(p.FullName), text) && !strings.Contains(strings.ToLower(p.Bio), text) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].FullName < out[j].FullName
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (d *Directory) GetProvider(_ context.Context, id string) (booking.Provider, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	if !ok {
		return booking.Provider{}, fmt.Errorf("%w: %s", booking.ErrProviderNotFound, id)
	}
	return p, nil
}

func (d *Directory) AppointmentsOn(_ context.Context, providerID string, from, to time.Time) ([]booking.Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.appointmentsOn(providerID, from, to), nil
}

func (d *Directory) appointmentsOn(providerID string, from, to time.Time) []booking.Appointment {
	out := []booking.Appointment{}
	for _, a := range d.appointments {
		if a.ProviderID != providerID || a.Status == booking.StatusCancelled {
			continue
		}
		if a.StartTime.Before(from) || !a.StartTime.Before(to) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

// CreateAppointment refuses to double-book a provider with booking.ErrSlotTaken.
func (d *Directory) CreateAppointment(_ context.Context, a booking.Appointment) (booking.Appointment, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.providers[a.ProviderID]; !ok {
		return booking.Appointment{}, fmt.Errorf("%w: %s", booking.ErrProviderNotFound, a.ProviderID)
	}
	for _, b := range d.appointments {
		if b.ProviderID == a.ProviderID && b.Status != booking.StatusCancelled && booking.Overlaps(a.StartTime, a.EndTime, b.StartTime, b.EndTime) {
			return booking.Appointment{}, fmt.Errorf("%w: %s at %s", booking.ErrSlotTaken, a.ProviderID, a.StartTime.Format(time.RFC3339))
		}
	}
	if a.ID == "" {
		a.ID = ids.UUID()
	}
	if a.Status == "" {
		a.Status = booking.StatusConfirmed
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	d.appointments[a.ID] = a
	return a, nil
}

func (d *Directory) GetAppointment(_ context.Context, id string) (booking.Appointment, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.appointments[id]
	if !ok {
		return booking.Appointment{}, fmt.Errorf("%w: %s", booking.ErrAppointmentNotFound, id)
	}
	return a, nil
}

func (d *Directory) SetMeetingLink(_ context.Context, appointmentID, link, roomName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.appointments[appointmentID]
	if !ok {
		return fmt.Errorf("%w: %s", booking.ErrAppointmentNotFound, appointmentID)
	}
	a.MeetingLink = &link
	a.RoomName = roomName
	d.appointments[appointmentID] = a
	return nil
}

var _ booking.Directory = (*Directory)(nil)
