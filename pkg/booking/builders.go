package booking

import (
	"fmt"
	"strconv"
	"time"

	"github.com/wilhg/a2ui/pkg/surface"
)

// Provider card defaults for sparse directory rows.
const (
	DefaultRole      = "Mental Health Professional"
	DefaultBio       = "Experienced therapist dedicated to your mental well-being."
	DefaultRating    = 4.9
	PlaceholderImage = "https://images.unsplash.com/photo-1559839734-2b71ea197ec2?auto=format&fit=crop&q=80&w=400&h=400"
)

var defaultExpertise = []string{"CBT", "Anxiety", "Work-Life Balance"}

// Selection is the slot a user picked.
type Selection struct {
	TherapistID string
	Date        string
	Time        string
	EndTime     string
	Start       time.Time
	End         time.Time
}

func (s Selection) payload() map[string]any {
	return map[string]any{"therapistId": s.TherapistID, "date": s.Date, "time": s.Time, "endTime": s.EndTime}
}

func text(id, typ, body string) surface.Component {
	return surface.Component{ID: id, Type: typ, Props: map[string]any{"children": body}}
}

// section is the Card "<id>-card" holding a header with title and
// description followed by body.
func section(id, title, desc string, body ...surface.Component) surface.Component {
	return surface.Component{
		ID:   id + "-card",
		Type: "Card",
		Children: append([]surface.Component{{
			ID:   id + "-header",
			Type: "CardHeader",
			Children: []surface.Component{
				text(id+"-title", "CardTitle", title),
				text(id+"-desc", "CardDescription", desc),
			},
		}}, body...),
	}
}

// TherapistSelection lists providers as selectable cards.
func TherapistSelection(providers []Provider) []surface.Component {
	cards := make([]surface.Component, 0, len(providers))
	for _, p := range providers {
		role := p.Specialization
		if role == "" {
			role = DefaultRole
		}
		bio := p.Bio
		if bio == "" {
			bio = DefaultBio
		}
		image := p.AvatarURL
		if image == "" {
			image = PlaceholderImage
		}
		rating := p.Rating
		if rating == 0 {
			rating = DefaultRating
		}
		expertise := p.Expertise
		if len(expertise) == 0 {
			expertise = defaultExpertise
		}
		cards = append(cards, surface.Component{
			ID:   "therapist-card-" + p.ID,
			Type: "TherapistCard",
			Props: map[string]any{
				"name":      p.FullName,
				"role":      role,
				"imageUrl":  image,
				"rating":    rating,
				"bio":       bio,
				"expertise": append([]string(nil), expertise...),
				"isOnline":  true,
				"onClick":   surface.ActionSelectTherapist,
			},
			ActionPayload: map[string]any{"therapistId": p.ID},
		})
	}
	return []surface.Component{
		section("therapist-selection", "Select your therapist",
			"Find the right specialist for your specific needs and goals.",
			surface.Component{ID: "therapist-grid", Type: "CardContent", Children: cards}),
	}
}

// DateTimeSelection shows a calendar for day and the slots of that day.
// bookable lists the dates the calendar offers.
func DateTimeSelection(p Provider, day time.Time, bookable []time.Time, slots []Slot) []surface.Component {
	date := day.Format(time.DateOnly)
	available := make([]string, 0, len(bookable))
	for _, d := range bookable {
		available = append(available, midnight(d).Format(time.RFC3339))
	}
	buttons := make([]surface.Component, 0, len(slots))
	for i, s := range slots {
		buttons = append(buttons, surface.Component{
			ID:   "time-slot-" + strconv.Itoa(i),
			Type: "TimeSlotButton",
			Props: map[string]any{
				"time":       s.Time,
				"endTime":    s.EndTime,
				"available":  s.Available,
				"disabled":   !s.Available,
				"isSelected": false,
				"onPress":    surface.ActionSelectTimeSlot,
			},
			ActionPayload: map[string]any{"therapistId": p.ID, "date": date, "time": s.Time, "endTime": s.EndTime},
		})
	}
	return []surface.Component{
		section("datetime", "Session with "+p.FullName,
			"Please select a date and an available time slot.",
			surface.Component{
				ID:   "datetime-content",
				Type: "CardContent",
				Children: []surface.Component{
					{
						ID:   "calendar-picker",
						Type: "CalendarPicker",
						Props: map[string]any{
							"selectedDate":   midnight(day).Format(time.RFC3339),
							"onDateSelect":   surface.ActionSelectDate,
							"availableDates": available,
						},
						ActionPayload: map[string]any{"therapistId": p.ID},
					},
					{
						ID:   "time-slots-container",
						Type: "Card",
						Children: []surface.Component{
							{ID: "time-slots-content", Type: "CardContent", Children: buttons},
						},
					},
				},
			}),
	}
}

// Confirmation previews the pending appointment.
func Confirmation(p Provider, sel Selection) []surface.Component {
	return []surface.Component{
		section("confirmation", "Review and Confirm",
			"Check your appointment details before finalizing.",
			surface.Component{
				ID:   "appointment-preview",
				Type: "AppointmentCard",
				Props: map[string]any{
					"appointment": appointmentProps(p, sel.Start, sel.End, StatusPending, nil),
					"variant":     "upcoming",
					"onConfirm":   surface.ActionConfirmBooking,
					"onCancel":    surface.ActionCancelBooking,
				},
				ActionPayload: sel.payload(),
			}),
	}
}

// Success shows the confirmed appointment. Without a meeting link the card
// carries a notice and a retry_video_room button instead of the join action.
func Success(p Provider, a Appointment) []surface.Component {
	card := surface.Component{
		ID:   "success-appointment-card",
		Type: "AppointmentCard",
		Props: map[string]any{
			"appointment": appointmentProps(p, a.StartTime, a.EndTime, StatusConfirmed, a.MeetingLink),
			"variant":     "upcoming",
		},
		ActionPayload: map[string]any{"appointmentId": a.ID},
	}
	body := []surface.Component{card}
	if a.MeetingLink != nil {
		card.Props["onJoin"] = surface.ActionViewAppointments
	} else {
		card.Props["notice"] = "Your video room is not ready yet."
		body = append(body, surface.Component{
			ID:            "retry-video-room",
			Type:          "Button",
			Props:         map[string]any{"children": "Retry video room", "variant": "outline", "onClick": surface.ActionRetryVideoRoom},
			ActionPayload: map[string]any{"appointmentId": a.ID},
		})
	}
	return []surface.Component{
		section("success", "Reservation Successful!",
			"Your therapeutic session has been confirmed and added to your schedule.", body...),
	}
}

func appointmentProps(p Provider, start, end time.Time, status string, link *string) map[string]any {
	var meeting any
	if link != nil {
		meeting = *link
	}
	return map[string]any{
		"therapist": map[string]any{
			"full_name":      p.FullName,
			"avatar_url":     p.AvatarURL,
			"specialization": p.Specialization,
		},
		"start_time":   start.Format(time.RFC3339),
		"end_time":     end.Format(time.RFC3339),
		"status":       status,
		"meeting_link": meeting,
	}
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// RoomName names the video room of an appointment.
func RoomName(appointmentID string) string {
	if len(appointmentID) > 8 {
		appointmentID = appointmentID[:8]
	}
	return fmt.Sprintf("Session-%s", appointmentID)
}
