// Package agent defines the contract between surface-authoring agents and
// the transports that drive them, plus the registry and dispatcher that
// route init requests and user actions to the right agent.
//
// An agent owns the surfaces it creates. Each step loads the surface,
// derives the next component tree and metadata, persists it conditionally on
// the version it read and broadcasts the update to the user's channel:
//
//	res, err := dispatcher.Dispatch(ctx, "booking-agent", surface.Action{
//		SurfaceID: "booking-1a2b3c4d-1700000000000",
//		UserID:    userID,
//		ActionID:  surface.ActionSelectTherapist,
//		Payload:   map[string]any{"therapistId": "t-1"},
//	})
package agent

import (
	"context"

	"github.com/wilhg/a2ui/pkg/surface"
)

// InitRequest asks an agent to start a new surface for UserID.
type InitRequest struct {
	// UserID is the authenticated caller; it never comes from the request body.
	UserID         string `json:"-"`
	Specialization string `json:"specialization,omitempty"`
	Query          string `json:"query,omitempty"`
}

// Result is the outcome of one agent step.
type Result struct {
	SurfaceID    string `json:"surfaceId"`
	Version      int    `json:"version"`
	TextResponse string `json:"textResponse"`
	// Surface is the persisted state after the step.
	Surface surface.Surface `json:"-"`
}

// Agent authors surfaces and reacts to actions on them.
//
// HandleAction receives an action whose UserID is the authenticated caller.
// Implementations must refuse surfaces owned by another user with a
// not-found error and must write with the version they read so a concurrent
// step fails with a conflict instead of being lost.
type Agent interface {
	ID() string
	Init(ctx context.Context, req InitRequest) (Result, error)
	HandleAction(ctx context.Context, a surface.Action) (Result, error)
}
