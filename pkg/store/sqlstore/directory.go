package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/ids"
)

var (
	providerColumns    = []string{"id", "full_name", "specialization", "bio", "avatar_url", "expertise", "rating"}
	appointmentColumns = []string{"id", "provider_id", "patient_id", "surface_id", "start_time", "end_time", "status", "price", "notes", "meeting_link", "room_name", "created_at"}
)

// UpsertProvider inserts or replaces a provider row.
func (s *Store) UpsertProvider(ctx context.Context, p booking.Provider) error {
	expertise, err := encodeJSON(p.Expertise, "[]")
	if err != nil {
		return err
	}
	q, args := s.builder().Insert(ProvidersTable.Name).
		Columns(providerColumns...).
		Values(p.ID, p.FullName, p.Specialization, p.Bio, p.AvatarURL, expertise, p.Rating).
		OnConflict(entsql.ConflictColumns("id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert provider: %w", err)
	}
	return nil
}

// SearchProviders implements booking.Directory.
func (s *Store) SearchProviders(ctx context.Context, pq booking.ProviderQuery) ([]booking.Provider, error) {
	t := s.builder().Table(ProvidersTable.Name)
	sel := s.builder().Select(providerColumns...).From(t)
	var preds []*entsql.Predicate
	if pq.Specialization != "" {
		preds = append(preds, entsql.ContainsFold("specialization", pq.Specialization))
	}
	if pq.Text != "" {
		preds = append(preds, entsql.Or(entsql.ContainsFold("full_name", pq.Text), entsql.ContainsFold("bio", pq.Text)))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	sel = sel.OrderBy(entsql.Desc("rating"), entsql.Asc("full_name"))
	if pq.Limit > 0 {
		sel = sel.Limit(pq.Limit)
	}
	q, args := sel.Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("search providers: %w", err)
	}
	defer rows.Close()
	out := []booking.Provider{}
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetProvider implements booking.Directory.
func (s *Store) GetProvider(ctx context.Context, id string) (booking.Provider, error) {
	t := s.builder().Table(ProvidersTable.Name)
	q, args := s.builder().Select(providerColumns...).From(t).Where(entsql.EQ("id", id)).Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return booking.Provider{}, fmt.Errorf("get provider: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return booking.Provider{}, err
		}
		return booking.Provider{}, fmt.Errorf("%w: %s", booking.ErrProviderNotFound, id)
	}
	return scanProvider(rows)
}

func scanProvider(r scanner) (booking.Provider, error) {
	var (
		p         booking.Provider
		expertise []byte
	)
	if err := r.Scan(&p.ID, &p.FullName, &p.Specialization, &p.Bio, &p.AvatarURL, &expertise, &p.Rating); err != nil {
		return booking.Provider{}, fmt.Errorf("scan provider: %w", err)
	}
	if err := decodeJSON(expertise, &p.Expertise); err != nil {
		return booking.Provider{}, err
	}
	return p, nil
}

// AppointmentsOn implements booking.Directory.
func (s *Store) AppointmentsOn(ctx context.Context, providerID string, from, to time.Time) ([]booking.Appointment, error) {
	return s.appointmentsOn(ctx, s.db, providerID, from, to)
}

func (s *Store) appointmentsOn(ctx context.Context, q querier, providerID string, from, to time.Time) ([]booking.Appointment, error) {
	t := s.builder().Table(AppointmentsTable.Name)
	query, args := s.builder().Select(appointmentColumns...).From(t).
		Where(entsql.And(
			entsql.EQ("provider_id", providerID),
			entsql.GTE("start_time", from.UTC()),
			entsql.LT("start_time", to.UTC()),
			entsql.NEQ("status", booking.StatusCancelled),
		)).
		OrderBy(entsql.Asc("start_time")).
		Query()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()
	out := []booking.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateAppointment implements booking.Directory. It refuses to double-book
// the provider: an overlapping non-cancelled appointment yields booking.ErrSlotTaken.
func (s *Store) CreateAppointment(ctx context.Context, a booking.Appointment) (booking.Appointment, error) {
	if a.ID == "" {
		a.ID = ids.UUID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock.Now().UTC()
	}
	if a.Status == "" {
		a.Status = booking.StatusConfirmed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return booking.Appointment{}, err
	}
	defer func() { _ = tx.Rollback() }()

	day := a.StartTime.UTC().Truncate(24 * time.Hour)
	existing, err := s.appointmentsOn(ctx, tx, a.ProviderID, day.Add(-24*time.Hour), day.Add(48*time.Hour))
	if err != nil {
		return booking.Appointment{}, err
	}
	for _, e := range existing {
		if booking.Overlaps(a.StartTime, a.EndTime, e.StartTime, e.EndTime) {
			return booking.Appointment{}, fmt.Errorf("%w: provider %s at %s", booking.ErrSlotTaken, a.ProviderID, a.StartTime.Format(time.RFC3339))
		}
	}
	var link sql.NullString
	if a.MeetingLink != nil {
		link = sql.NullString{String: *a.MeetingLink, Valid: true}
	}
	q, args := s.builder().Insert(AppointmentsTable.Name).
		Columns(appointmentColumns...).
		Values(a.ID, a.ProviderID, a.PatientID, nullString(a.SurfaceID), a.StartTime.UTC(), a.EndTime.UTC(),
			a.Status, a.Price, nullString(a.Notes), link, nullString(a.RoomName), a.CreatedAt.UTC()).
		Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return booking.Appointment{}, fmt.Errorf("%w: appointment %s", booking.ErrSlotTaken, a.ID)
		}
		return booking.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return booking.Appointment{}, err
	}
	return a, nil
}

// GetAppointment implements booking.Directory.
func (s *Store) GetAppointment(ctx context.Context, id string) (booking.Appointment, error) {
	t := s.builder().Table(AppointmentsTable.Name)
	q, args := s.builder().Select(appointmentColumns...).From(t).Where(entsql.EQ("id", id)).Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return booking.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return booking.Appointment{}, err
		}
		return booking.Appointment{}, fmt.Errorf("%w: %s", booking.ErrAppointmentNotFound, id)
	}
	return scanAppointment(rows)
}

// SetMeetingLink implements booking.Directory.
func (s *Store) SetMeetingLink(ctx context.Context, appointmentID, link, roomName string) error {
	q, args := s.builder().Update(AppointmentsTable.Name).
		Set("meeting_link", link).
		Set("room_name", roomName).
		Where(entsql.EQ("id", appointmentID)).
		Query()
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("set meeting link: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", booking.ErrAppointmentNotFound, appointmentID)
	}
	return nil
}

func scanAppointment(r scanner) (booking.Appointment, error) {
	var (
		a                     booking.Appointment
		surfaceID, notes      sql.NullString
		link, room            sql.NullString
		start, end, createdAt dbTime
	)
	if err := r.Scan(&a.ID, &a.ProviderID, &a.PatientID, &surfaceID, &start, &end, &a.Status, &a.Price, &notes, &link, &room, &createdAt); err != nil {
		return booking.Appointment{}, fmt.Errorf("scan appointment: %w", err)
	}
	a.SurfaceID, a.Notes, a.RoomName = surfaceID.String, notes.String, room.String
	if link.Valid {
		l := link.String
		a.MeetingLink = &l
	}
	a.StartTime, a.EndTime, a.CreatedAt = start.Time, end.Time, createdAt.Time
	return a, nil
}

var _ booking.Directory = (*Store)(nil)
