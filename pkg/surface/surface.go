// Package surface defines the declarative UI model shared by agents and clients:
// surfaces, component trees, data models, actions and the message envelopes that
// carry them between the two sides.
package surface

import (
	"time"

	"github.com/mohae/deepcopy"
)

// Step is the booking flow position stored under metadata["step"].
type Step string

const (
	StepTherapistSelection Step = "THERAPIST_SELECTION"
	StepDateTimeSelection  Step = "DATE_TIME_SELECTION"
	StepConfirmation       Step = "CONFIRMATION"
	StepCompleted          Step = "COMPLETED"
)

// Limits enforced by validation and rendering.
const (
	MaxTreeDepth      = 20
	MaxDataModelBytes = 1 << 20
	MaxPayloadBytes   = 16 << 10
)

// Binding resolves a prop from the data model through a JSON Pointer.
type Binding struct {
	Path      string `json:"path"`
	Fallback  any    `json:"fallback,omitempty"`
	Transform string `json:"transform,omitempty"`
}

// Component is one node of a surface's component tree.
type Component struct {
	ID            string             `json:"id"`
	Type          string             `json:"type"`
	Props         map[string]any     `json:"props,omitempty"`
	Children      []Component        `json:"children,omitempty"`
	ActionPayload map[string]any     `json:"actionPayload,omitempty"`
	DataBinding   map[string]Binding `json:"dataBinding,omitempty"`
	Actions       []string           `json:"actions,omitempty"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
}

// Surface is an agent-authored UI document owned by one user.
type Surface struct {
	SurfaceID  string         `json:"surfaceId"`
	UserID     string         `json:"userId"`
	AgentID    string         `json:"agentId"`
	Components []Component    `json:"components"`
	DataModel  map[string]any `json:"dataModel"`
	Metadata   map[string]any `json:"metadata"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Action is a user interaction reported by a client.
type Action struct {
	SurfaceID string         `json:"surfaceId"`
	UserID    string         `json:"userId,omitempty"`
	ActionID  string         `json:"actionId"`
	Type      string         `json:"type,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Step returns the booking step recorded in the surface metadata.
func (s *Surface) Step() Step {
	if s == nil || s.Metadata == nil {
		return ""
	}
	v, _ := s.Metadata["step"].(string)
	return Step(v)
}

// Clone returns a deep copy of the surface.
func (s *Surface) Clone() *Surface {
	if s == nil {
		return nil
	}
	return deepcopy.Copy(s).(*Surface)
}

// Normalize defaults missing containers to empty values so readers never see nil maps.
func Normalize(s *Surface) *Surface {
	if s == nil {
		return nil
	}
	if s.Components == nil {
		s.Components = []Component{}
	}
	if s.DataModel == nil {
		s.DataModel = map[string]any{}
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	return s
}

// Walk visits every node depth-first. Returning false from fn skips the node's children.
func Walk(nodes []Component, fn func(c *Component, depth int) bool) {
	var visit func(ns []Component, depth int)
	visit = func(ns []Component, depth int) {
		for i := range ns {
			if fn(&ns[i], depth) {
				visit(ns[i].Children, depth+1)
			}
		}
	}
	visit(nodes, 1)
}

// Find returns the first node with the given id.
func Find(nodes []Component, id string) (Component, bool) {
	var out Component
	found := false
	Walk(nodes, func(c *Component, _ int) bool {
		if found {
			return false
		}
		if c.ID == id {
			out, found = *c, true
			return false
		}
		return true
	})
	return out, found
}

// MergeMaps returns a new map holding base overlaid with patch, key by key.
func MergeMaps(base, patch map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(patch))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}
