package booking

import (
	"context"
	"time"

	"github.com/wilhg/a2ui/pkg/errmodel"
)

// Appointment statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
	StatusCompleted = "completed"
)

// Provider is a bookable therapist.
type Provider struct {
	ID             string   `json:"id" yaml:"id"`
	FullName       string   `json:"full_name" yaml:"full_name"`
	Specialization string   `json:"specialization,omitempty" yaml:"specialization"`
	Bio            string   `json:"bio,omitempty" yaml:"bio"`
	AvatarURL      string   `json:"avatar_url,omitempty" yaml:"avatar_url"`
	Expertise      []string `json:"expertise,omitempty" yaml:"expertise"`
	Rating         float64  `json:"rating,omitempty" yaml:"rating"`
}

// Appointment is a booked session.
type Appointment struct {
	ID          string    `json:"id"`
	ProviderID  string    `json:"provider_id"`
	PatientID   string    `json:"patient_id"`
	SurfaceID   string    `json:"surface_id,omitempty"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Status      string    `json:"status"`
	Price       int       `json:"price"`
	Notes       string    `json:"notes,omitempty"`
	MeetingLink *string   `json:"meeting_link"`
	RoomName    string    `json:"room_name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProviderQuery filters a provider search. Matching is case-insensitive and
// substring based: Specialization against the specialization, Text against
// name and bio.
type ProviderQuery struct {
	Specialization string
	Text           string
	Limit          int
}

// Directory is the booking domain service.
type Directory interface {
	SearchProviders(ctx context.Context, q ProviderQuery) ([]Provider, error)
	GetProvider(ctx context.Context, id string) (Provider, error)
	// AppointmentsOn lists the provider's non-cancelled appointments starting within [from, to).
	AppointmentsOn(ctx context.Context, providerID string, from, to time.Time) ([]Appointment, error)
	CreateAppointment(ctx context.Context, a Appointment) (Appointment, error)
	GetAppointment(ctx context.Context, id string) (Appointment, error)
	SetMeetingLink(ctx context.Context, appointmentID, link, roomName string) error
}

// Room is a provisioned video room.
type Room struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// RoomProvisioner creates joinable video rooms for appointments.
type RoomProvisioner interface {
	Provision(ctx context.Context, appointmentID string) (Room, error)
}

// Directory errors. Implementations wrap them with %w.
var (
	ErrProviderNotFound    = errmodel.NotFound("provider_not_found", "provider not found", nil)
	ErrAppointmentNotFound = errmodel.NotFound("appointment_not_found", "appointment not found", nil)
	ErrSlotTaken           = errmodel.Conflict("slot_taken", "the selected time is no longer available", nil)
)

// Overlaps reports whether [aStart,aEnd) and [bStart,bEnd) intersect.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}
