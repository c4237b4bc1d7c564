package validate

import (
	"encoding/json"
	"reflect"
	"regexp"

	"github.com/wilhg/a2ui/pkg/surface"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.:-]{0,127}$`)

// ValidateComponent checks one node and its descendants. Props of catalog
// types must satisfy the type's schema; unknown types are left to the renderer.
func (v *Validator) ValidateComponent(node surface.Component) Result {
	if node.Type == "" {
		return fail("component must have a type")
	}
	if node.ID == "" {
		return fail("component of type %s must have an id", node.Type)
	}
	if !idPattern.MatchString(node.ID) {
		return fail("component id %q has an invalid shape", node.ID)
	}
	if v.catalog != nil {
		if e, known := v.catalog.Lookup(node.Type); known {
			if err := e.ValidateProps(node.Props); err != nil {
				return fail("[%s] %s: %v", node.Type, node.ID, err)
			}
			if bad := e.Disallowed(node.Props, node.Actions); len(bad) > 0 {
				return fail("[%s] %s: event %s is not allowed", node.Type, node.ID, bad[0])
			}
		}
	}
	for path, b := range node.DataBinding {
		if b.Path != "" && b.Path[0] != '/' {
			return fail("component %s binding %s: path %q is not a JSON pointer", node.ID, path, b.Path)
		}
	}
	for _, child := range node.Children {
		if r := v.ValidateComponent(child); !r.Valid {
			return r
		}
	}
	return ok()
}

// ValidateComponentTree checks a forest: every node is valid, ids are unique
// across the whole forest and no chain is deeper than surface.MaxTreeDepth.
func (v *Validator) ValidateComponentTree(nodes []surface.Component) Result {
	type frame struct {
		node  surface.Component
		depth int
	}
	seen := make(map[string]struct{})
	stack := make([]frame, 0, len(nodes))
	for i := len(nodes) - 1; i >= 0; i-- {
		stack = append(stack, frame{nodes[i], 1})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if f.depth > surface.MaxTreeDepth {
			return fail("component tree depth exceeds %d levels", surface.MaxTreeDepth)
		}
		if _, dup := seen[f.node.ID]; dup {
			return fail("duplicate component id %q", f.node.ID)
		}
		seen[f.node.ID] = struct{}{}
		leaf := f.node
		leaf.Children = nil
		if r := v.ValidateComponent(leaf); !r.Valid {
			return r
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{f.node.Children[i], f.depth + 1})
		}
	}
	return ok()
}

// ValidateDataModel rejects non-objects, reference cycles and documents whose
// serialized form exceeds surface.MaxDataModelBytes.
func (v *Validator) ValidateDataModel(obj any) Result {
	m, isMap := obj.(map[string]any)
	if !isMap || m == nil {
		return fail("data model must be an object")
	}
	if hasCycle(m, map[uintptr]bool{}) {
		return fail("data model contains a circular reference")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return fail("data model is not serializable: %v", err)
	}
	if len(b) > surface.MaxDataModelBytes {
		return fail("data model exceeds %d bytes", surface.MaxDataModelBytes)
	}
	return ok()
}

// hasCycle walks containers keeping the identities of the current ancestors.
// Shared subtrees that do not loop back are allowed.
func hasCycle(node any, onPath map[uintptr]bool) bool {
	var (
		id       uintptr
		children []any
	)
	switch n := node.(type) {
	case map[string]any:
		if n == nil {
			return false
		}
		id = reflect.ValueOf(n).Pointer()
		children = make([]any, 0, len(n))
		for _, c := range n {
			children = append(children, c)
		}
	case []any:
		if len(n) == 0 {
			return false
		}
		id = reflect.ValueOf(n).Pointer()
		children = n
	default:
		return false
	}
	if onPath[id] {
		return true
	}
	onPath[id] = true
	defer delete(onPath, id)
	for _, c := range children {
		if hasCycle(c, onPath) {
			return true
		}
	}
	return false
}
