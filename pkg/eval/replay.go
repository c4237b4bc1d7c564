package eval

import (
	"context"
	"fmt"

	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Capture is a recorded session: the init request and the actions that
// followed, in order. Action surface ids are rewritten to the replayed
// surface.
type Capture struct {
	UserID  string            `json:"userId"`
	Init    agent.InitRequest `json:"init"`
	Actions []surface.Action  `json:"actions"`
}

// Replay runs cap against a and returns the result of the last step.
func Replay(ctx context.Context, a agent.Agent, cap Capture) (agent.Result, error) {
	req := cap.Init
	req.UserID = cap.UserID
	res, err := a.Init(ctx, req)
	if err != nil {
		return agent.Result{}, fmt.Errorf("eval: replay init: %w", err)
	}
	for i, act := range cap.Actions {
		act.SurfaceID = res.SurfaceID
		act.UserID = cap.UserID
		res, err = a.HandleAction(ctx, act)
		if err != nil {
			return agent.Result{}, fmt.Errorf("eval: replay action %d (%s): %w", i, act.ActionID, err)
		}
	}
	return res, nil
}

// CaptureFromLog rebuilds a capture from the action log of a stored surface.
// The init parameters come from the surface metadata.
func CaptureFromLog(ctx context.Context, surfaces store.SurfaceStore, log store.ActionLog, surfaceID string) (Capture, error) {
	s, err := surfaces.GetSurface(ctx, surfaceID)
	if err != nil {
		return Capture{}, err
	}
	recs, err := log.ListActions(ctx, surfaceID)
	if err != nil {
		return Capture{}, err
	}
	cap := Capture{UserID: s.UserID}
	if spec, ok := s.Metadata["specialization"].(string); ok {
		cap.Init.Specialization = spec
	}
	for _, r := range recs {
		cap.Actions = append(cap.Actions, surface.Action{
			SurfaceID: r.SurfaceID,
			UserID:    r.UserID,
			ActionID:  r.ActionID,
			Type:      r.ActionType,
			Payload:   r.Payload,
			Timestamp: r.CreatedAt,
		})
	}
	return cap, nil
}
