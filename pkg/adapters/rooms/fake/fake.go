// Package fake is a scriptable booking.RoomProvisioner for tests and demos.
package fake

import (
	"context"
	"sync"

	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

// Provisioner hands out rooms at https://video.local/<room>. Queued failures
// are returned first, one per call.
type Provisioner struct {
	mu       sync.Mutex
	failures []error
	calls    []string
}

func New() *Provisioner { return &Provisioner{} }

// FailNext makes the next n calls fail.
func (p *Provisioner) FailNext(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := 0; i < n; i++ {
		p.failures = append(p.failures, errmodel.Provisioning("room_rejected", "video provider unavailable", nil, nil))
	}
}

// Calls returns the appointment ids seen so far.
func (p *Provisioner) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *Provisioner) Provision(_ context.Context, appointmentID string) (booking.Room, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, appointmentID)
	if len(p.failures) > 0 {
		err := p.failures[0]
		p.failures = p.failures[1:]
		return booking.Room{}, err
	}
	name := booking.RoomName(appointmentID)
	return booking.Room{Name: name, URL: "https://video.local/" + name}, nil
}

var _ booking.RoomProvisioner = (*Provisioner)(nil)
