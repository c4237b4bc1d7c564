package store

import (
	"context"
	"time"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Filter selects surfaces. Empty fields match everything.
type Filter struct {
	UserID    string
	AgentID   string
	SurfaceID string
}

// Matches reports whether s passes the filter.
func (f Filter) Matches(s surface.Surface) bool {
	return (f.UserID == "" || f.UserID == s.UserID) &&
		(f.AgentID == "" || f.AgentID == s.AgentID) &&
		(f.SurfaceID == "" || f.SurfaceID == s.SurfaceID)
}

// SurfaceStore persists surfaces keyed by SurfaceID.
type SurfaceStore interface {
	// CreateSurface inserts s. It fails with ErrExists when the id is taken.
	CreateSurface(ctx context.Context, s surface.Surface) (surface.Surface, error)
	GetSurface(ctx context.Context, surfaceID string) (surface.Surface, error)
	ListSurfaces(ctx context.Context, f Filter) ([]surface.Surface, error)
	// UpdateSurface writes s only if the stored version equals expectedVersion;
	// otherwise it returns ErrConflict. s.Version must be the new version.
	UpdateSurface(ctx context.Context, s surface.Surface, expectedVersion int) (surface.Surface, error)
	DeleteSurface(ctx context.Context, surfaceID string) error
}

// ActionRecord is one immutable action-log entry.
type ActionRecord struct {
	ID         string         `json:"id"`
	SurfaceID  string         `json:"surfaceId"`
	UserID     string         `json:"userId"`
	AgentID    string         `json:"agentId"`
	ActionID   string         `json:"actionId"`
	ActionType string         `json:"actionType,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// ActionLog is the append-only action history.
type ActionLog interface {
	AppendAction(ctx context.Context, r ActionRecord) (ActionRecord, error)
	// ListActions returns a surface's actions in append order.
	ListActions(ctx context.Context, surfaceID string) ([]ActionRecord, error)
}

// AuditLog persists audit events.
type AuditLog = audit.Sink

// Store aggregates the persistence interfaces.
type Store interface {
	SurfaceStore
	ActionLog
	AuditLog
}
