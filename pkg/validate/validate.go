// Package validate checks inbound messages, component trees, data models and
// actions before they reach a surface, and strips markup from user-visible text.
// Everything here fails closed except string sanitization, which repairs.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/wilhg/a2ui/pkg/catalog"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Result is the outcome of a validation call.
type Result struct {
	Valid  bool
	Errors []string
}

func ok() Result { return Result{Valid: true} }

func fail(format string, args ...any) Result {
	return Result{Valid: false, Errors: []string{fmt.Sprintf(format, args...)}}
}

// Err converts an invalid result into a validation error. It returns nil for valid results.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	msg := "validation failed"
	if len(r.Errors) > 0 {
		msg = r.Errors[0]
	}
	return errmodel.Validation("invalid", msg, map[string]any{"errors": r.Errors})
}

// Validator holds the catalog and action rules used by the checks.
type Validator struct {
	catalog  *catalog.Registry
	allowed  map[string]bool
	payloads map[string]payloadSchema
}

// Option configures a Validator.
type Option func(*Validator)

// WithCatalog enables prop schema checks for known component types.
func WithCatalog(r *catalog.Registry) Option { return func(v *Validator) { v.catalog = r } }

// WithAllowedActions adds action ids to the whitelist.
func WithAllowedActions(ids ...string) Option {
	return func(v *Validator) {
		for _, id := range ids {
			v.allowed[id] = true
		}
	}
}

// New returns a Validator using the default whitelist and payload schemas.
func New(opts ...Option) *Validator {
	v := &Validator{allowed: make(map[string]bool, len(surface.AllowedActions)), payloads: defaultPayloadSchemas()}
	for id := range surface.AllowedActions {
		v.allowed[id] = true
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateMessage checks a decoded JSON envelope.
func (v *Validator) ValidateMessage(raw any) Result {
	msg, isObj := raw.(map[string]any)
	if !isObj || msg == nil {
		return fail("message must be a JSON object")
	}
	typ, _ := msg["type"].(string)
	switch surface.Kind(typ) {
	case surface.KindSurfaceUpdate:
		return v.validateSurfaceUpdate(msg)
	case surface.KindDataModelUpdate:
		if !hasString(msg, "surfaceId") {
			return fail("dataModelUpdate requires surfaceId")
		}
		updates, isMap := msg["updates"].(map[string]any)
		if !isMap || len(updates) == 0 {
			return fail("dataModelUpdate requires a non-empty updates object")
		}
		for ptr := range updates {
			if ptr != "" && !strings.HasPrefix(ptr, "/") {
				return fail("update key %q is not a JSON pointer", ptr)
			}
		}
		return v.ValidateDataModel(updates)
	case surface.KindDeleteSurface:
		if !hasString(msg, "surfaceId") {
			return fail("deleteSurface requires surfaceId")
		}
		return ok()
	case surface.KindAction:
		if !hasString(msg, "actionId") {
			return fail("action requires actionId")
		}
		if p, present := msg["payload"]; present && p != nil {
			if _, isMap := p.(map[string]any); !isMap {
				return fail("action payload must be an object")
			}
		}
		return ok()
	case "":
		return fail("message must have a type")
	default:
		return fail("unrecognized message type %q", typ)
	}
}

func (v *Validator) validateSurfaceUpdate(msg map[string]any) Result {
	if !hasString(msg, "surfaceId") {
		return fail("surfaceUpdate requires surfaceId")
	}
	op := surface.OpUpdate
	if raw, present := msg["operation"]; present {
		s, _ := raw.(string)
		op = surface.Operation(s)
		if !op.Valid() {
			return fail("unknown operation %q", s)
		}
	}
	if op == surface.OpDelete {
		return ok()
	}
	comps, hasComps := msg["components"]
	dm, hasDM := msg["dataModel"]
	md, hasMD := msg["metadata"]
	hasComps = hasComps && comps != nil
	hasDM = hasDM && dm != nil
	hasMD = hasMD && md != nil
	if !hasComps && !hasDM && !hasMD {
		return fail("surfaceUpdate requires components, dataModel or metadata")
	}
	if hasComps {
		nodes, err := decodeComponents(comps)
		if err != nil {
			return fail("components must be an array of components: %v", err)
		}
		if r := v.ValidateComponentTree(nodes); !r.Valid {
			return r
		}
	}
	if hasDM {
		if r := v.ValidateDataModel(dm); !r.Valid {
			return r
		}
	}
	if hasMD {
		if _, isMap := md.(map[string]any); !isMap {
			return fail("metadata must be an object")
		}
	}
	return ok()
}

func decodeComponents(raw any) ([]surface.Component, error) {
	if nodes, isTyped := raw.([]surface.Component); isTyped {
		return nodes, nil
	}
	if _, isArr := raw.([]any); !isArr {
		return nil, errNotArray
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var nodes []surface.Component
	if err := json.Unmarshal(b, &nodes); err != nil {
		return nil, err
	}
	return nodes, nil
}

var errNotArray = errors.New("not an array")

func hasString(m map[string]any, key string) bool {
	s, isStr := m[key].(string)
	return isStr && s != ""
}
