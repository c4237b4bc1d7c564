package surface

import (
	"encoding/json"
	"time"

	"github.com/wilhg/a2ui/pkg/errmodel"
)

// Kind is the `type` discriminator of a message envelope.
type Kind string

const (
	KindSurfaceUpdate   Kind = "surfaceUpdate"
	KindDataModelUpdate Kind = "dataModelUpdate"
	KindDeleteSurface   Kind = "deleteSurface"
	KindAction          Kind = "action"
)

// Operation selects how a SurfaceUpdate is applied.
type Operation string

const (
	OpCreate  Operation = "create"
	OpReplace Operation = "replace"
	OpUpdate  Operation = "update"
	OpDelete  Operation = "delete"
	// OpPatch is accepted on the wire and applied like OpUpdate.
	OpPatch Operation = "patch"
)

// Valid reports whether op is a known operation.
func (op Operation) Valid() bool {
	switch op {
	case OpCreate, OpReplace, OpUpdate, OpDelete, OpPatch:
		return true
	}
	return false
}

// Message is the closed set of envelopes exchanged over a channel.
// The concrete types are SurfaceUpdate, DataModelUpdate, DeleteSurface and ActionMessage.
type Message interface {
	Kind() Kind
	// Target is the surface the message addresses.
	Target() string
	sealed()
}

type SurfaceUpdate struct {
	Operation  Operation      `json:"operation"`
	SurfaceID  string         `json:"surfaceId"`
	UserID     string         `json:"userId,omitempty"`
	AgentID    string         `json:"agentId,omitempty"`
	Components []Component    `json:"components,omitempty"`
	DataModel  map[string]any `json:"dataModel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Version    *int           `json:"version,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

type DataModelUpdate struct {
	SurfaceID string         `json:"surfaceId"`
	Updates   map[string]any `json:"updates"`
	Version   *int           `json:"version,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type DeleteSurface struct {
	SurfaceID string `json:"surfaceId"`
}

type ActionMessage struct {
	SurfaceID  string         `json:"surfaceId"`
	UserID     string         `json:"userId,omitempty"`
	ActionID   string         `json:"actionId"`
	ActionType string         `json:"actionType,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

func (SurfaceUpdate) Kind() Kind   { return KindSurfaceUpdate }
func (DataModelUpdate) Kind() Kind { return KindDataModelUpdate }
func (DeleteSurface) Kind() Kind   { return KindDeleteSurface }
func (ActionMessage) Kind() Kind   { return KindAction }

func (m SurfaceUpdate) Target() string   { return m.SurfaceID }
func (m DataModelUpdate) Target() string { return m.SurfaceID }
func (m DeleteSurface) Target() string   { return m.SurfaceID }
func (m ActionMessage) Target() string   { return m.SurfaceID }

func (SurfaceUpdate) sealed()   {}
func (DataModelUpdate) sealed() {}
func (DeleteSurface) sealed()   {}
func (ActionMessage) sealed()   {}

func (m SurfaceUpdate) MarshalJSON() ([]byte, error) {
	type alias SurfaceUpdate
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindSurfaceUpdate, alias(m)})
}

func (m DataModelUpdate) MarshalJSON() ([]byte, error) {
	type alias DataModelUpdate
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindDataModelUpdate, alias(m)})
}

func (m DeleteSurface) MarshalJSON() ([]byte, error) {
	type alias DeleteSurface
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindDeleteSurface, alias(m)})
}

func (m ActionMessage) MarshalJSON() ([]byte, error) {
	type alias ActionMessage
	return json.Marshal(struct {
		Type Kind `json:"type"`
		alias
	}{KindAction, alias(m)})
}

// Action converts the envelope into the Action consumed by agents.
func (m ActionMessage) Action() Action {
	return Action{
		SurfaceID: m.SurfaceID,
		UserID:    m.UserID,
		ActionID:  m.ActionID,
		Type:      m.ActionType,
		Payload:   m.Payload,
		Metadata:  m.Metadata,
		Timestamp: m.Timestamp,
	}
}

// NewActionMessage wraps an Action for transmission.
func NewActionMessage(a Action) ActionMessage {
	return ActionMessage{
		SurfaceID:  a.SurfaceID,
		UserID:     a.UserID,
		ActionID:   a.ActionID,
		ActionType: a.Type,
		Payload:    a.Payload,
		Metadata:   a.Metadata,
		Timestamp:  a.Timestamp,
	}
}

// Encode serializes a message with its `type` discriminator.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, errmodel.Validation("nil_message", "message is nil", nil)
	}
	return json.Marshal(m)
}

// Decode parses an envelope by peeking at its discriminator.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, errmodel.Validation("bad_json", "message is not a JSON object", map[string]any{"error": err.Error()})
	}
	var (
		m   Message
		err error
	)
	switch head.Type {
	case KindSurfaceUpdate:
		var v SurfaceUpdate
		err = json.Unmarshal(data, &v)
		m = v
	case KindDataModelUpdate:
		var v DataModelUpdate
		err = json.Unmarshal(data, &v)
		m = v
	case KindDeleteSurface:
		var v DeleteSurface
		err = json.Unmarshal(data, &v)
		m = v
	case KindAction:
		var v ActionMessage
		err = json.Unmarshal(data, &v)
		m = v
	default:
		return nil, errmodel.Validation("unknown_type", "unrecognized message type", map[string]any{"type": string(head.Type)})
	}
	if err != nil {
		return nil, errmodel.Validation("bad_message", "message does not match its type", map[string]any{"type": string(head.Type), "error": err.Error()})
	}
	return m, nil
}

// DecodeValue decodes an already parsed JSON value.
func DecodeValue(v any) (Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errmodel.Validation("bad_message", "message is not serializable", map[string]any{"error": err.Error()})
	}
	return Decode(b)
}
