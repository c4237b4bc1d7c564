package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/ids"
	"github.com/wilhg/a2ui/pkg/store"
)

var actionColumns = []string{"id", "surface_id", "user_id", "agent_id", "action_id", "action_type", "payload", "metadata", "version", "created_at"}

// AppendAction appends an immutable action-log record.
func (s *Store) AppendAction(ctx context.Context, r store.ActionRecord) (store.ActionRecord, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = s.clock.Now().UTC()
	}
	if r.ID == "" {
		r.ID = ids.ULID(r.CreatedAt)
	}
	payload, err := encodeJSON(r.Payload, "{}")
	if err != nil {
		return store.ActionRecord{}, fmt.Errorf("encode payload: %w", err)
	}
	metadata, err := encodeJSON(r.Metadata, "{}")
	if err != nil {
		return store.ActionRecord{}, fmt.Errorf("encode metadata: %w", err)
	}
	q, args := s.builder().Insert(ActionLogsTable.Name).
		Columns(actionColumns...).
		Values(r.ID, r.SurfaceID, r.UserID, r.AgentID, r.ActionID, nullString(r.ActionType), payload, metadata, r.Version, r.CreatedAt.UTC()).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return store.ActionRecord{}, fmt.Errorf("append action: %w", err)
	}
	return r, nil
}

// ListActions lists a surface's actions in append order.
func (s *Store) ListActions(ctx context.Context, surfaceID string) ([]store.ActionRecord, error) {
	t := s.builder().Table(ActionLogsTable.Name)
	q, args := s.builder().Select(actionColumns...).From(t).
		Where(entsql.EQ("surface_id", surfaceID)).
		OrderBy(entsql.Asc("id")).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rows.Close()
	out := []store.ActionRecord{}
	for rows.Next() {
		var (
			r          store.ActionRecord
			actionType sql.NullString
			payload    []byte
			metadata   []byte
			createdAt  dbTime
		)
		if err := rows.Scan(&r.ID, &r.SurfaceID, &r.UserID, &r.AgentID, &r.ActionID, &actionType, &payload, &metadata, &r.Version, &createdAt); err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		r.ActionType = actionType.String
		if err := decodeJSON(payload, &r.Payload); err != nil {
			return nil, err
		}
		if err := decodeJSON(metadata, &r.Metadata); err != nil {
			return nil, err
		}
		r.CreatedAt = createdAt.Time
		out = append(out, r)
	}
	return out, rows.Err()
}

// AppendAudit persists an audit event.
func (s *Store) AppendAudit(ctx context.Context, ev audit.Event) error {
	if ev.At.IsZero() {
		ev.At = s.clock.Now().UTC()
	}
	if ev.ID == "" {
		ev.ID = ids.ULID(ev.At)
	}
	details, err := encodeJSON(ev.Details, "{}")
	if err != nil {
		return fmt.Errorf("encode details: %w", err)
	}
	q, args := s.builder().Insert(AuditLogsTable.Name).
		Columns("id", "event_type", "surface_id", "user_id", "agent_id", "component_id", "component_type", "action_id", "details", "created_at").
		Values(ev.ID, string(ev.Type), nullString(ev.SurfaceID), nullString(ev.UserID), nullString(ev.AgentID),
			nullString(ev.ComponentID), nullString(ev.ComponentType), nullString(ev.ActionID), details, ev.At.UTC()).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

// ListAudits returns the audit events recorded for a surface, oldest first.
func (s *Store) ListAudits(ctx context.Context, surfaceID string) ([]audit.Event, error) {
	t := s.builder().Table(AuditLogsTable.Name)
	q, args := s.builder().
		Select("id", "event_type", "surface_id", "user_id", "agent_id", "component_id", "component_type", "action_id", "details", "created_at").
		From(t).
		Where(entsql.EQ("surface_id", surfaceID)).
		OrderBy(entsql.Asc("id")).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()
	var out []audit.Event
	for rows.Next() {
		var (
			ev                                  audit.Event
			typ                                 string
			sid, uid, aid, cid, ctype, actionID sql.NullString
			details                             []byte
			at                                  dbTime
		)
		if err := rows.Scan(&ev.ID, &typ, &sid, &uid, &aid, &cid, &ctype, &actionID, &details, &at); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		ev.Type = audit.EventType(typ)
		ev.SurfaceID, ev.UserID, ev.AgentID = sid.String, uid.String, aid.String
		ev.ComponentID, ev.ComponentType, ev.ActionID = cid.String, ctype.String, actionID.String
		if err := decodeJSON(details, &ev.Details); err != nil {
			return nil, err
		}
		ev.At = at.Time
		out = append(out, ev)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
