// Package narrate composes the short text response that accompanies every
// agent step. Templates give a deterministic answer; a language model can
// rephrase it when one is configured.
package narrate

import (
	"context"

	"github.com/wilhg/a2ui/pkg/prompt"
)

// Event names with a default template.
const (
	EventInit            = "booking.init"
	EventSelectTherapist = "booking.select_therapist"
	EventSelectDate      = "booking.select_date"
	EventSelectTimeSlot  = "booking.select_time_slot"
	EventConfirmed       = "booking.confirmed"
	EventConfirmedNoRoom = "booking.confirmed_no_room"
	EventCancelled       = "booking.cancelled"
	EventRoomReady       = "booking.room_ready"
	EventRoomFailed      = "booking.room_failed"
	EventSlotTaken       = "booking.slot_taken"

	// SystemPrompt instructs language-model narrators.
	SystemPrompt = "narrator.system"
)

// Event is one agent step to describe. Vars feed the template; keys are
// also offered to model narrators as context.
type Event struct {
	Name string
	Vars map[string]string
}

// Narrator produces the text response for an event.
type Narrator interface {
	Narrate(ctx context.Context, ev Event) (string, error)
}

var defaults = []prompt.Prompt{
	{Name: EventInit, Body: "Hello! I'm your Booking Assistant. Let's find the perfect therapist for you.{{if .specialization}} Here are some {{.specialization}} specialists currently available.{{else}} Here are some specialists currently available.{{end}}"},
	{Name: EventSelectTherapist, Body: "Chosen therapist: **{{.therapist}}**. When would you like to schedule your session? I've loaded available slots for {{.date}}."},
	{Name: EventSelectDate, Body: "Showing availability for **{{.date}}**. Does any of these slots work for you?"},
	{Name: EventSelectTimeSlot, Body: "Perfect. You've selected **{{.time}}** on **{{.date}}**. Shall I go ahead and book this for you?"},
	{Name: EventConfirmed, Body: "Success! Your session with **{{.therapist}}** is confirmed. You can join the session using the link in the card below."},
	{Name: EventConfirmedNoRoom, Body: "Your session with **{{.therapist}}** is confirmed, but the video room could not be prepared yet. Use the retry button in the card below."},
	{Name: EventCancelled, Body: "No problem. Let's start over. Here are some of our top-rated therapists."},
	{Name: EventRoomReady, Body: "Your video room is ready. You can join the session using the link in the card below."},
	{Name: EventRoomFailed, Body: "The video room is still unavailable. Please try again in a moment."},
	{Name: EventSlotTaken, Body: "Sorry, **{{.time}}** on **{{.date}}** was just booked by someone else. Please pick another slot."},
	{Name: SystemPrompt, Body: "You are the voice of a therapy booking assistant. Rewrite the draft reply so it stays friendly and brief. Keep every name, date, time and markdown emphasis exactly as given. Never add facts or links."},
}

// DefaultPrompts returns a store seeded with the built-in templates.
func DefaultPrompts() *prompt.Store {
	s := prompt.NewStore()
	for _, p := range defaults {
		if _, _, err := s.Save(p); err != nil {
			panic("narrate: default prompt " + p.Name + ": " + err.Error())
		}
	}
	return s
}

// Templates renders events from a prompt store.
type Templates struct {
	prompts *prompt.Store
}

// NewTemplates returns a template narrator. A nil store selects DefaultPrompts.
func NewTemplates(prompts *prompt.Store) *Templates {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	return &Templates{prompts: prompts}
}

// Prompts exposes the underlying store.
func (t *Templates) Prompts() *prompt.Store { return t.prompts }

func (t *Templates) Narrate(_ context.Context, ev Event) (string, error) {
	return t.prompts.Render(ev.Name, ev.Vars)
}
