package validate

import (
	"bytes"
	"encoding/json"
	"regexp"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/wilhg/a2ui/pkg/surface"
)

const maxPayloadProperties = 20

var suspicious = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<\s*script`),
	regexp.MustCompile(`(?i)(java|vb)script\s*:`),
	regexp.MustCompile(`(?i)\bdata:(text|application|image)/`),
	regexp.MustCompile(`(?i)<[^>]*\bon[a-z]+\s*=`),
	regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|blur|submit|change)\s*=`),
}

type payloadSchema struct {
	resolved *jsonschema.Resolved
}

func (p payloadSchema) validate(payload map[string]any) error {
	if p.resolved == nil {
		return nil
	}
	return p.resolved.Validate(payload)
}

// schemaFor derives a payload schema from T. Unknown keys are tolerated so
// components can carry extra context in their action payloads.
func schemaFor[T any](tweak func(*jsonschema.Schema)) payloadSchema {
	s, err := jsonschema.For[T](nil)
	if err != nil {
		panic(err)
	}
	s.AdditionalProperties = nil
	max := maxPayloadProperties
	s.MaxProperties = &max
	if tweak != nil {
		tweak(s)
	}
	rs, err := s.Resolve(nil)
	if err != nil {
		panic(err)
	}
	return payloadSchema{resolved: rs}
}

func maxLength(field string, n int) func(*jsonschema.Schema) {
	return func(s *jsonschema.Schema) {
		if p, found := s.Properties[field]; found {
			p.MaxLength = &n
		}
	}
}

func defaultPayloadSchemas() map[string]payloadSchema {
	booking := schemaFor[surface.BookingPayload](maxLength("reason", 500))
	session := schemaFor[surface.SessionPayload](func(s *jsonschema.Schema) {
		maxLength("note", 5000)(s)
		if p, found := s.Properties["riskLevel"]; found {
			p.Enum = []any{"low", "medium", "high", "critical"}
		}
	})
	room := schemaFor[surface.RoomPayload](nil)
	return map[string]payloadSchema{
		surface.ActionBookAppointment:  booking,
		surface.ActionSelectTherapist:  booking,
		surface.ActionSelectDate:       booking,
		surface.ActionSelectTimeSlot:   booking,
		surface.ActionConfirmBooking:   booking,
		surface.ActionCancelBooking:    booking,
		surface.ActionStartSession:     session,
		surface.ActionEndSession:       session,
		"save_soap_note":               session,
		surface.ActionRetryVideoRoom:   room,
	}
}

// IsActionAllowed reports whether id is on the whitelist.
func (v *Validator) IsActionAllowed(id string) bool { return v.allowed[id] }

// ValidateAction checks the whitelist, payload size, injection patterns and the payload shape.
func (v *Validator) ValidateAction(a surface.Action) Result {
	if a.ActionID == "" {
		return fail("action requires actionId")
	}
	if !v.IsActionAllowed(a.ActionID) {
		return fail("action %q is not allowed", a.ActionID)
	}
	payload := a.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(payload); err != nil {
		return fail("action payload is not serializable: %v", err)
	}
	if buf.Len()-1 > surface.MaxPayloadBytes {
		return fail("action payload exceeds %d bytes", surface.MaxPayloadBytes)
	}
	if s, bad := findSuspicious(payload); bad {
		return fail("suspicious content in action payload: %q", clip(s, 64))
	}
	if ps, found := v.payloads[a.ActionID]; found {
		if err := ps.validate(payload); err != nil {
			return fail("action %s payload: %v", a.ActionID, err)
		}
	}
	return ok()
}

// findSuspicious scans every key and string leaf.
func findSuspicious(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		for _, re := range suspicious {
			if re.MatchString(t) {
				return t, true
			}
		}
	case map[string]any:
		for k, c := range t {
			if s, bad := findSuspicious(k); bad {
				return s, true
			}
			if s, bad := findSuspicious(c); bad {
				return s, true
			}
		}
	case []any:
		for _, c := range t {
			if s, bad := findSuspicious(c); bad {
				return s, true
			}
		}
	}
	return "", false
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
