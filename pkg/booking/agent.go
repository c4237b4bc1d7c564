package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/channel"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/ids"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/narrate"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
)

// AgentID identifies the booking agent.
const AgentID = "booking-agent"

// Booking defaults.
const (
	DefaultPrice      = 1500
	DefaultNotes      = "Booked via BookingAgent"
	SearchLimit       = 6
	BookingWindowDays = 14
)

// Metadata keys written by the agent.
const (
	MetaStep              = "step"
	MetaSpecialization    = "specialization"
	MetaInitializedAt     = "initializedAt"
	MetaSelectedTherapist = "selectedTherapistId"
	MetaSelectedDate      = "selectedDate"
	MetaSelectedTime      = "selectedTime"
	MetaSelectedEndTime   = "selectedEndTime"
	MetaAppointmentID     = "appointmentId"
)

var tracer = a2otel.Tracer("booking")

// Agent drives the therapist booking flow:
// THERAPIST_SELECTION → DATE_TIME_SELECTION → CONFIRMATION → COMPLETED, with
// cancel_booking returning to THERAPIST_SELECTION from any step.
type Agent struct {
	surfaces store.SurfaceStore
	actions  store.ActionLog
	dir      Directory
	rooms    RoomProvisioner
	broker   channel.Broker
	narrator narrate.Narrator
	reporter telemetry.Reporter
	audit    audit.Recorder
	clock    clock.Clock
	loc      *time.Location
	log      *slog.Logger
}

// Option configures an Agent.
type Option func(*Agent)

func WithRooms(r RoomProvisioner) Option     { return func(a *Agent) { a.rooms = r } }
func WithBroker(b channel.Broker) Option     { return func(a *Agent) { a.broker = b } }
func WithNarrator(n narrate.Narrator) Option { return func(a *Agent) { a.narrator = n } }
func WithReporter(r telemetry.Reporter) Option {
	return func(a *Agent) { a.reporter = r }
}
func WithAudit(r audit.Recorder) Option { return func(a *Agent) { a.audit = r } }
func WithClock(c clock.Clock) Option    { return func(a *Agent) { a.clock = c } }
func WithLogger(l *slog.Logger) Option  { return func(a *Agent) { a.log = l } }

// WithLocation sets the time zone of the provider schedule. Defaults to UTC.
func WithLocation(loc *time.Location) Option { return func(a *Agent) { a.loc = loc } }

// New returns a booking agent. Without a broker updates are persisted but not
// broadcast; without a room provisioner every booking takes the degraded path.
func New(surfaces store.SurfaceStore, actions store.ActionLog, dir Directory, opts ...Option) *Agent {
	a := &Agent{
		surfaces: surfaces,
		actions:  actions,
		dir:      dir,
		reporter: telemetry.Nop{},
		audit:    audit.Nop{},
		clock:    clock.Real(),
		loc:      time.UTC,
	}
	for _, o := range opts {
		o(a)
	}
	if a.narrator == nil {
		a.narrator = narrate.NewTemplates(nil)
	}
	a.log = logging.OrDiscard(a.log)
	return a
}

func (a *Agent) ID() string { return AgentID }

// Init creates a therapist-selection surface for req.UserID.
func (a *Agent) Init(ctx context.Context, req agent.InitRequest) (agent.Result, error) {
	ctx, span := tracer.Start(ctx, "booking.init")
	defer span.End()
	now := a.clock.Now()

	providers, err := a.dir.SearchProviders(ctx, ProviderQuery{Specialization: req.Specialization, Text: req.Query, Limit: SearchLimit})
	if err != nil {
		a2otel.Fail(span, err)
		return agent.Result{}, err
	}
	short := req.UserID
	if len(short) > 8 {
		short = short[:8]
	}
	s := surface.Surface{
		SurfaceID:  fmt.Sprintf("booking-%s-%d", short, now.UnixMilli()),
		UserID:     req.UserID,
		AgentID:    AgentID,
		Components: TherapistSelection(providers),
		DataModel:  map[string]any{"providerCount": len(providers)},
		Metadata: map[string]any{
			MetaStep:           string(surface.StepTherapistSelection),
			MetaSpecialization: req.Specialization,
			MetaInitializedAt:  now.UTC().Format(time.RFC3339),
		},
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	created, err := a.surfaces.CreateSurface(ctx, s)
	if err != nil {
		a2otel.Fail(span, err)
		return agent.Result{}, err
	}
	span.SetAttributes(attribute.String("a2ui.surface_id", created.SurfaceID))
	a.publish(ctx, created, surface.OpCreate)
	text := a.narrate(ctx, created, "", narrate.Event{Name: narrate.EventInit, Vars: map[string]string{"specialization": req.Specialization}})
	return agent.Result{SurfaceID: created.SurfaceID, Version: created.Version, TextResponse: text, Surface: created}, nil
}

// outcome is what one action contributes to the next surface.
type outcome struct {
	components []surface.Component
	metadata   map[string]any
	// reset replaces the metadata instead of merging into it.
	reset bool
	event narrate.Event
}

// HandleAction advances the surface named by act.SurfaceID.
func (a *Agent) HandleAction(ctx context.Context, act surface.Action) (agent.Result, error) {
	ctx, span := tracer.Start(ctx, "booking."+act.ActionID, trace.WithAttributes(
		attribute.String("a2ui.surface_id", act.SurfaceID),
		attribute.String("a2ui.action_id", act.ActionID),
	))
	defer span.End()

	cur, err := a.load(ctx, act)
	if err != nil {
		a2otel.Fail(span, err)
		return agent.Result{}, err
	}
	var p surface.BookingPayload
	if err := decodePayload(act.Payload, &p); err != nil {
		return agent.Result{}, err
	}

	var out outcome
	switch act.ActionID {
	case surface.ActionSelectTherapist:
		out, err = a.selectTherapist(ctx, cur, p)
	case surface.ActionSelectDate:
		out, err = a.selectDate(ctx, cur, p)
	case surface.ActionSelectTimeSlot:
		out, err = a.selectTimeSlot(ctx, cur, p)
	case surface.ActionConfirmBooking:
		out, err = a.confirm(ctx, cur, p)
	case surface.ActionCancelBooking:
		out, err = a.cancel(ctx)
	case surface.ActionRetryVideoRoom:
		var rp surface.RoomPayload
		if err := decodePayload(act.Payload, &rp); err != nil {
			return agent.Result{}, err
		}
		out, err = a.retryRoom(ctx, cur, rp)
	default:
		err = errmodel.UnknownAction(act.ActionID, map[string]any{"agent_id": AgentID})
	}
	if err != nil {
		a2otel.Fail(span, err)
		return agent.Result{}, err
	}

	now := a.clock.Now()
	next := *cur.Clone()
	next.Components = out.components
	if out.reset {
		next.Metadata = out.metadata
	} else {
		next.Metadata = surface.MergeMaps(cur.Metadata, out.metadata)
	}
	next.Version = cur.Version + 1
	next.UpdatedAt = now
	saved, err := a.surfaces.UpdateSurface(ctx, next, cur.Version)
	if err != nil {
		a2otel.Fail(span, err)
		return agent.Result{}, err
	}
	span.SetAttributes(attribute.Int("a2ui.version", saved.Version))

	a.publish(ctx, saved, surface.OpUpdate)
	if _, err := a.actions.AppendAction(ctx, store.ActionRecord{
		ID:         ids.ULID(now),
		SurfaceID:  saved.SurfaceID,
		UserID:     saved.UserID,
		AgentID:    AgentID,
		ActionID:   act.ActionID,
		ActionType: act.Type,
		Payload:    act.Payload,
		Metadata:   map[string]any{"agent": AgentID},
		Version:    saved.Version,
		CreatedAt:  now,
	}); err != nil {
		a.report(ctx, saved, act.ActionID, err)
	}
	text := a.narrate(ctx, saved, act.ActionID, out.event)
	return agent.Result{SurfaceID: saved.SurfaceID, Version: saved.Version, TextResponse: text, Surface: saved}, nil
}

// load returns the surface if act's user owns it. Foreign surfaces are
// indistinguishable from missing ones.
func (a *Agent) load(ctx context.Context, act surface.Action) (surface.Surface, error) {
	s, err := a.surfaces.GetSurface(ctx, act.SurfaceID)
	if err != nil {
		return surface.Surface{}, err
	}
	if s.UserID != act.UserID || s.AgentID != AgentID {
		return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrNotFound, act.SurfaceID)
	}
	return s, nil
}

func (a *Agent) selectTherapist(ctx context.Context, cur surface.Surface, p surface.BookingPayload) (outcome, error) {
	if p.TherapistID == "" {
		return outcome{}, errmodel.Validation("missing_therapist", "therapistId is required", nil)
	}
	prov, err := a.dir.GetProvider(ctx, p.TherapistID)
	if err != nil {
		return outcome{}, err
	}
	today := a.today()
	comps, err := a.dayView(ctx, prov, today)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		components: comps,
		metadata: map[string]any{
			MetaStep:              string(surface.StepDateTimeSelection),
			MetaSelectedTherapist: prov.ID,
			MetaSelectedDate:      today.Format(time.DateOnly),
		},
		event: narrate.Event{Name: narrate.EventSelectTherapist, Vars: map[string]string{"therapist": prov.FullName, "date": "today"}},
	}, nil
}

func (a *Agent) selectDate(ctx context.Context, cur surface.Surface, p surface.BookingPayload) (outcome, error) {
	day, err := a.bookableDay(p.Date)
	if err != nil {
		return outcome{}, err
	}
	prov, err := a.dir.GetProvider(ctx, therapistOf(cur, p))
	if err != nil {
		return outcome{}, err
	}
	comps, err := a.dayView(ctx, prov, day)
	if err != nil {
		return outcome{}, err
	}
	date := day.Format(time.DateOnly)
	return outcome{
		components: comps,
		metadata: map[string]any{
			MetaStep:              string(surface.StepDateTimeSelection),
			MetaSelectedTherapist: prov.ID,
			MetaSelectedDate:      date,
		},
		event: narrate.Event{Name: narrate.EventSelectDate, Vars: map[string]string{"date": date}},
	}, nil
}

func (a *Agent) selectTimeSlot(ctx context.Context, cur surface.Surface, p surface.BookingPayload) (outcome, error) {
	sel, slot, err := a.selection(ctx, cur, p)
	if err != nil {
		return outcome{}, err
	}
	prov, err := a.dir.GetProvider(ctx, sel.TherapistID)
	if err != nil {
		return outcome{}, err
	}
	if !slot.Available {
		return a.slotTaken(ctx, prov, sel)
	}
	return outcome{
		components: Confirmation(prov, sel),
		metadata: map[string]any{
			MetaStep:              string(surface.StepConfirmation),
			MetaSelectedTherapist: prov.ID,
			MetaSelectedDate:      sel.Date,
			MetaSelectedTime:      sel.Time,
			MetaSelectedEndTime:   sel.EndTime,
		},
		event: narrate.Event{Name: narrate.EventSelectTimeSlot, Vars: map[string]string{"time": sel.Time, "date": sel.Date}},
	}, nil
}

func (a *Agent) confirm(ctx context.Context, cur surface.Surface, p surface.BookingPayload) (outcome, error) {
	if step := cur.Step(); step != surface.StepConfirmation {
		return outcome{}, errmodel.Conflict("wrong_step", "there is no booking awaiting confirmation", map[string]any{"step": string(step)})
	}
	sel, slot, err := a.selection(ctx, cur, p)
	if err != nil {
		return outcome{}, err
	}
	prov, err := a.dir.GetProvider(ctx, sel.TherapistID)
	if err != nil {
		return outcome{}, err
	}
	appt, held, err := a.heldBy(ctx, cur, sel)
	if err != nil {
		return outcome{}, err
	}
	if !held {
		if !slot.Available {
			return a.slotTaken(ctx, prov, sel)
		}
		appt, err = a.dir.CreateAppointment(ctx, Appointment{
			ProviderID: prov.ID,
			PatientID:  cur.UserID,
			SurfaceID:  cur.SurfaceID,
			StartTime:  sel.Start,
			EndTime:    sel.End,
			Status:     StatusConfirmed,
			Price:      DefaultPrice,
			Notes:      DefaultNotes,
			CreatedAt:  a.clock.Now(),
		})
		if errors.Is(err, ErrSlotTaken) {
			return a.slotTaken(ctx, prov, sel)
		}
		if err != nil {
			return outcome{}, err
		}
	}

	event := narrate.EventConfirmed
	if appt.MeetingLink == nil && !a.attachRoom(ctx, cur, surface.ActionConfirmBooking, &appt) {
		event = narrate.EventConfirmedNoRoom
	}
	return outcome{
		components: Success(prov, appt),
		metadata: map[string]any{
			MetaStep:          string(surface.StepCompleted),
			MetaAppointmentID: appt.ID,
		},
		event: narrate.Event{Name: event, Vars: map[string]string{"therapist": prov.FullName, "date": sel.Date, "time": sel.Time}},
	}, nil
}

func (a *Agent) retryRoom(ctx context.Context, cur surface.Surface, rp surface.RoomPayload) (outcome, error) {
	if step := cur.Step(); step != surface.StepCompleted {
		return outcome{}, errmodel.Conflict("wrong_step", "there is no completed booking on this surface", map[string]any{"step": string(step)})
	}
	id := rp.AppointmentID
	if id == "" {
		id, _ = cur.Metadata[MetaAppointmentID].(string)
	}
	appt, err := a.dir.GetAppointment(ctx, id)
	if err != nil {
		return outcome{}, err
	}
	if appt.PatientID != cur.UserID {
		return outcome{}, fmt.Errorf("%w: %s", ErrAppointmentNotFound, id)
	}
	prov, err := a.dir.GetProvider(ctx, appt.ProviderID)
	if err != nil {
		return outcome{}, err
	}
	event := narrate.EventRoomReady
	if appt.MeetingLink == nil && !a.attachRoom(ctx, cur, surface.ActionRetryVideoRoom, &appt) {
		event = narrate.EventRoomFailed
	}
	return outcome{
		components: Success(prov, appt),
		metadata:   map[string]any{MetaAppointmentID: appt.ID},
		event:      narrate.Event{Name: event},
	}, nil
}

func (a *Agent) cancel(ctx context.Context) (outcome, error) {
	providers, err := a.dir.SearchProviders(ctx, ProviderQuery{Limit: SearchLimit})
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		components: TherapistSelection(providers),
		metadata:   map[string]any{MetaStep: string(surface.StepTherapistSelection)},
		reset:      true,
		event:      narrate.Event{Name: narrate.EventCancelled},
	}, nil
}

// attachRoom provisions a video room for appt and stores its link. Failures
// are reported and leave the appointment without a link.
func (a *Agent) attachRoom(ctx context.Context, cur surface.Surface, actionID string, appt *Appointment) bool {
	if a.rooms == nil {
		a.report(ctx, cur, actionID, errmodel.Provisioning("rooms_unconfigured", "no video room provider is configured", map[string]any{"appointment_id": appt.ID}, nil))
		return false
	}
	room, err := a.rooms.Provision(ctx, appt.ID)
	if err == nil {
		err = a.dir.SetMeetingLink(ctx, appt.ID, room.URL, room.Name)
	}
	if err != nil {
		if !errmodel.IsCategory(err, errmodel.CategoryProvisioning) {
			err = errmodel.Provisioning("room_failed", "video room could not be provisioned", map[string]any{"appointment_id": appt.ID}, err)
		}
		a.report(ctx, cur, actionID, err)
		return false
	}
	appt.MeetingLink = &room.URL
	appt.RoomName = room.Name
	return true
}

func (a *Agent) dayView(ctx context.Context, prov Provider, day time.Time) ([]surface.Component, error) {
	slots, err := Availability(ctx, a.dir, prov.ID, day)
	if err != nil {
		return nil, err
	}
	today := a.today()
	bookable := make([]time.Time, 0, BookingWindowDays)
	for i := 0; i < BookingWindowDays; i++ {
		bookable = append(bookable, today.AddDate(0, 0, i))
	}
	return DateTimeSelection(prov, day, bookable, slots), nil
}

// selection resolves the picked slot from the payload, falling back to the
// selections recorded in the surface metadata. The time must name one of the
// provider's slots on a bookable day; the slot's own bounds are used.
func (a *Agent) selection(ctx context.Context, cur surface.Surface, p surface.BookingPayload) (Selection, Slot, error) {
	meta := func(key, given string) string {
		if given != "" {
			return given
		}
		v, _ := cur.Metadata[key].(string)
		return v
	}
	sel := Selection{
		TherapistID: therapistOf(cur, p),
		Date:        meta(MetaSelectedDate, p.Date),
		Time:        meta(MetaSelectedTime, p.Time),
	}
	if sel.TherapistID == "" || sel.Date == "" || sel.Time == "" {
		return Selection{}, Slot{}, errmodel.Validation("incomplete_selection", "therapist, date and time are required", nil)
	}
	day, err := a.bookableDay(sel.Date)
	if err != nil {
		return Selection{}, Slot{}, err
	}
	start, _, err := SlotBounds(sel.Date, sel.Time, "", a.loc)
	if err != nil {
		return Selection{}, Slot{}, errmodel.Validation("bad_slot", err.Error(), nil)
	}
	slots, err := Availability(ctx, a.dir, sel.TherapistID, day)
	if err != nil {
		return Selection{}, Slot{}, err
	}
	for _, slot := range slots {
		if slot.Start.Equal(start) {
			sel.Time, sel.EndTime = slot.Time, slot.EndTime
			sel.Start, sel.End = slot.Start, slot.End
			return sel, slot, nil
		}
	}
	return Selection{}, Slot{}, errmodel.Validation("unknown_slot", "the selected time is not one of the offered slots",
		map[string]any{"date": sel.Date, "time": sel.Time})
}

// heldBy returns the live appointment this surface already holds for sel.
// A confirm whose surface write was lost finds its own booking here.
func (a *Agent) heldBy(ctx context.Context, cur surface.Surface, sel Selection) (Appointment, bool, error) {
	booked, err := a.dir.AppointmentsOn(ctx, sel.TherapistID, sel.Start, sel.End)
	if err != nil {
		return Appointment{}, false, err
	}
	for _, appt := range booked {
		if appt.SurfaceID == cur.SurfaceID && appt.PatientID == cur.UserID &&
			appt.Status != StatusCancelled && appt.StartTime.Equal(sel.Start) {
			return appt, true, nil
		}
	}
	return Appointment{}, false, nil
}

// slotTaken sends the user back to the day's slots after losing sel.
func (a *Agent) slotTaken(ctx context.Context, prov Provider, sel Selection) (outcome, error) {
	day, err := a.parseDay(sel.Date)
	if err != nil {
		return outcome{}, err
	}
	comps, err := a.dayView(ctx, prov, day)
	if err != nil {
		return outcome{}, err
	}
	return outcome{
		components: comps,
		metadata: map[string]any{
			MetaStep:            string(surface.StepDateTimeSelection),
			MetaSelectedTime:    nil,
			MetaSelectedEndTime: nil,
		},
		event: narrate.Event{Name: narrate.EventSlotTaken, Vars: map[string]string{"time": sel.Time, "date": sel.Date}},
	}, nil
}

func therapistOf(cur surface.Surface, p surface.BookingPayload) string {
	if p.TherapistID != "" {
		return p.TherapistID
	}
	v, _ := cur.Metadata[MetaSelectedTherapist].(string)
	return v
}

func (a *Agent) today() time.Time { return midnight(a.clock.Now().In(a.loc)) }

func (a *Agent) parseDay(date string) (time.Time, error) {
	day, err := time.ParseInLocation(time.DateOnly, date, a.loc)
	if err != nil {
		return time.Time{}, errmodel.Validation("bad_date", "date must be YYYY-MM-DD", map[string]any{"date": date})
	}
	return day, nil
}

// bookableDay parses date and checks it lies within the booking window
// starting today.
func (a *Agent) bookableDay(date string) (time.Time, error) {
	day, err := a.parseDay(date)
	if err != nil {
		return time.Time{}, err
	}
	today := a.today()
	if day.Before(today) {
		return time.Time{}, errmodel.Validation("date_in_past", "the selected date is in the past", map[string]any{"date": date})
	}
	if !day.Before(today.AddDate(0, 0, BookingWindowDays)) {
		return time.Time{}, errmodel.Validation("date_out_of_range", "the selected date is beyond the booking window",
			map[string]any{"date": date, "window_days": BookingWindowDays})
	}
	return day, nil
}

func (a *Agent) publish(ctx context.Context, s surface.Surface, op surface.Operation) {
	a.audit.Record(ctx, audit.Event{Type: audit.SurfaceUpdate, SurfaceID: s.SurfaceID, UserID: s.UserID, AgentID: AgentID, Details: map[string]any{"operation": string(op), "version": s.Version}})
	if a.broker == nil {
		return
	}
	v := s.Version
	msg := surface.SurfaceUpdate{
		Operation:  op,
		SurfaceID:  s.SurfaceID,
		UserID:     s.UserID,
		AgentID:    s.AgentID,
		Components: s.Components,
		DataModel:  s.DataModel,
		Metadata:   s.Metadata,
		Version:    &v,
		Timestamp:  s.UpdatedAt,
	}
	if err := channel.Send(ctx, a.broker, s.UserID, msg); err != nil {
		a.report(ctx, s, "", err)
	}
}

func (a *Agent) narrate(ctx context.Context, s surface.Surface, actionID string, ev narrate.Event) string {
	if ev.Name == "" {
		return ""
	}
	text, err := a.narrator.Narrate(ctx, ev)
	if err != nil {
		a.report(ctx, s, actionID, err)
	}
	return text
}

func (a *Agent) report(ctx context.Context, s surface.Surface, actionID string, err error) {
	a.log.WarnContext(ctx, "booking side effect failed",
		slog.String("surface_id", s.SurfaceID),
		slog.String("action_id", actionID),
		slog.Any("err", err))
	a.reporter.Report(ctx, err, telemetry.Context{SurfaceID: s.SurfaceID, ActionID: actionID, UserID: s.UserID, AgentID: AgentID}, nil)
}

func decodePayload(payload map[string]any, dst any) error {
	if len(payload) == 0 {
		return nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return errmodel.Validation("bad_payload", "payload is not serializable", nil)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return errmodel.Validation("bad_payload", "payload has the wrong shape", map[string]any{"error": err.Error()})
	}
	return nil
}

var _ agent.Agent = (*Agent)(nil)
