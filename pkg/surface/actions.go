package surface

// Action identifiers accepted from clients.
const (
	ActionSelectTherapist    = "select_therapist"
	ActionSelectDate         = "select_date"
	ActionSelectTimeSlot     = "select_time_slot"
	ActionConfirmBooking     = "confirm_booking"
	ActionCancelBooking      = "cancel_booking"
	ActionRetryVideoRoom     = "retry_video_room"
	ActionViewAppointments   = "view_appointments"
	ActionBookAppointment    = "book_appointment"
	ActionCancelAppointment  = "cancel_appointment"
	ActionConfirmAppointment = "confirm_appointment"
	ActionStartSession       = "start_session"
	ActionEndSession         = "end_session"
)

// AllowedActions is the static whitelist of action ids.
var AllowedActions = map[string]bool{
	// booking
	ActionSelectTherapist:    true,
	ActionSelectDate:         true,
	ActionSelectTimeSlot:     true,
	ActionConfirmBooking:     true,
	ActionCancelBooking:      true,
	ActionRetryVideoRoom:     true,
	ActionViewAppointments:   true,
	ActionBookAppointment:    true,
	ActionCancelAppointment:  true,
	ActionConfirmAppointment: true,

	// session
	"apply_intervention":   true,
	"open_risk_assessment": true,
	"flag_for_review":      true,
	"save_soap_note":       true,
	ActionStartSession:     true,
	ActionEndSession:       true,

	// insights
	"view_detailed_insights": true,
	"export_report":          true,
	"filter_data":            true,
	"change_date_range":      true,

	// follow-up
	"submit_wellness_check": true,
	"skip_question":         true,
	"save_draft":            true,

	// generic UI events
	"click":  true,
	"change": true,
	"submit": true,
	"select": true,
	"toggle": true,

	// component event names used directly as ids
	"onClick":          true,
	"onChange":         true,
	"onFocus":          true,
	"onBlur":           true,
	"onValueChange":    true,
	"onCheckedChange":  true,
	"onJoin":           true,
	"onConfirm":        true,
	"onCancel":         true,
	"onDateSelect":     true,
	"onApply":          true,
	"onOpenAssessment": true,
	"onFlagForReview":  true,
	"onPress":          true,
}

// BookingPayload is the payload shape shared by the booking actions.
type BookingPayload struct {
	TherapistID string `json:"therapistId,omitempty"`
	SlotID      string `json:"slotId,omitempty"`
	Date        string `json:"date,omitempty"`
	Time        string `json:"time,omitempty"`
	EndTime     string `json:"endTime,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// SessionPayload is the payload shape of session actions.
type SessionPayload struct {
	SessionID      string `json:"sessionId,omitempty"`
	Note           string `json:"note,omitempty"`
	InterventionID string `json:"interventionId,omitempty"`
	RiskLevel      string `json:"riskLevel,omitempty"`
}

// RoomPayload identifies an appointment whose video room should be provisioned again.
type RoomPayload struct {
	AppointmentID string `json:"appointmentId,omitempty"`
}
