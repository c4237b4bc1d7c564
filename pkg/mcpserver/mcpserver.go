// Package mcpserver exposes the booking agent as MCP tools for one user.
// A host such as a desktop assistant launches it over stdio and drives the
// same surfaces the HTTP API serves.
package mcpserver

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wilhg/a2ui/pkg/agent"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// InitInput starts a booking surface.
type InitInput struct {
	Specialization string `json:"specialization,omitempty" jsonschema:"therapist specialization to filter by, e.g. anxiety"`
	Query          string `json:"query,omitempty" jsonschema:"free text matched against therapist names and bios"`
}

// ActionInput performs one user action on a surface.
type ActionInput struct {
	SurfaceID string         `json:"surfaceId" jsonschema:"surface returned by booking_init"`
	ActionID  string         `json:"actionId" jsonschema:"action id such as select_therapist or confirm_booking"`
	Payload   map[string]any `json:"payload,omitempty" jsonschema:"action payload taken from the component actionPayload"`
}

// ListInput narrows list_surfaces.
type ListInput struct {
	AgentID string `json:"agentId,omitempty" jsonschema:"only surfaces of this agent"`
}

// StepOutput is the outcome of an init or action.
type StepOutput struct {
	SurfaceID    string `json:"surfaceId"`
	Version      int    `json:"version"`
	Step         string `json:"step,omitempty"`
	TextResponse string `json:"textResponse"`
	Surface      any    `json:"surface,omitempty" jsonschema:"the full surface after the step"`
}

// SurfaceSummary is one entry of list_surfaces.
type SurfaceSummary struct {
	SurfaceID string `json:"surfaceId"`
	AgentID   string `json:"agentId"`
	Step      string `json:"step,omitempty"`
	Version   int    `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// ListOutput is the result of list_surfaces.
type ListOutput struct {
	Surfaces []SurfaceSummary `json:"surfaces"`
}

// Server binds the tools to a dispatcher acting as a fixed user.
type Server struct {
	dispatcher *agent.Dispatcher
	surfaces   store.SurfaceStore
	userID     string
	log        *slog.Logger
	srv        *mcp.Server
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.log = l } }

// New registers booking_init, booking_action and list_surfaces.
func New(d *agent.Dispatcher, surfaces store.SurfaceStore, userID, version string, opts ...Option) (*Server, error) {
	if userID == "" {
		return nil, errors.New("mcpserver: a user id is required")
	}
	s := &Server{dispatcher: d, surfaces: surfaces, userID: userID}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrDiscard(s.log)
	s.srv = mcp.NewServer(&mcp.Implementation{Name: "a2ui", Version: version}, nil)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "booking_init",
		Description: "Start a therapist booking surface and return its components.",
	}, s.bookingInit)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "booking_action",
		Description: "Perform a user action (select_therapist, select_date, select_time_slot, confirm_booking, cancel_booking, retry_video_room) on a booking surface.",
	}, s.bookingAction)
	mcp.AddTool(s.srv, &mcp.Tool{
		Name:        "list_surfaces",
		Description: "List the user's surfaces with their current step and version.",
	}, s.listSurfaces)
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcp.Server { return s.srv }

// Run serves over stdio until ctx ends or the host disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.log.Info("mcp server starting", slog.String("user_id", s.userID))
	return s.srv.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) bookingInit(ctx context.Context, _ *mcp.CallToolRequest, in InitInput) (*mcp.CallToolResult, StepOutput, error) {
	res, err := s.dispatcher.Init(ctx, booking.AgentID, agent.InitRequest{UserID: s.userID, Specialization: in.Specialization, Query: in.Query})
	if err != nil {
		return nil, StepOutput{}, err
	}
	return nil, stepOutput(res), nil
}

func (s *Server) bookingAction(ctx context.Context, _ *mcp.CallToolRequest, in ActionInput) (*mcp.CallToolResult, StepOutput, error) {
	res, err := s.dispatcher.Dispatch(ctx, booking.AgentID, surface.Action{
		SurfaceID: in.SurfaceID,
		UserID:    s.userID,
		ActionID:  in.ActionID,
		Type:      "mcp",
		Payload:   in.Payload,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return nil, StepOutput{}, err
	}
	return nil, stepOutput(res), nil
}

func (s *Server) listSurfaces(ctx context.Context, _ *mcp.CallToolRequest, in ListInput) (*mcp.CallToolResult, ListOutput, error) {
	all, err := s.surfaces.ListSurfaces(ctx, store.Filter{UserID: s.userID, AgentID: in.AgentID})
	if err != nil {
		return nil, ListOutput{}, err
	}
	out := ListOutput{Surfaces: make([]SurfaceSummary, 0, len(all))}
	for _, sf := range all {
		out.Surfaces = append(out.Surfaces, SurfaceSummary{
			SurfaceID: sf.SurfaceID,
			AgentID:   sf.AgentID,
			Step:      string(sf.Step()),
			Version:   sf.Version,
			UpdatedAt: sf.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

func stepOutput(res agent.Result) StepOutput {
	return StepOutput{
		SurfaceID:    res.SurfaceID,
		Version:      res.Version,
		Step:         string(res.Surface.Step()),
		TextResponse: res.TextResponse,
		Surface:      res.Surface,
	}
}
