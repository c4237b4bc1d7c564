// Package catalog is the closed registry of component types a surface may use.
// Each entry carries the events it may bind to action ids, default props and a
// compiled JSON Schema for its props.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Factory turns validated node props into the props handed to a renderer.
type Factory func(props map[string]any) map[string]any

// Entry describes one component type.
type Entry struct {
	Type            string
	Category        string
	Description     string
	Actions         []string
	RequiredActions []string
	Defaults        map[string]any

	schema  *jsonschema.Schema
	factory Factory
}

// Allows reports whether the type may bind event to an action id.
func (e *Entry) Allows(event string) bool {
	for _, a := range e.Actions {
		if a == event {
			return true
		}
	}
	return false
}

// ValidateProps checks props against the entry's schema.
func (e *Entry) ValidateProps(props map[string]any) error {
	if e.schema == nil {
		return nil
	}
	if props == nil {
		props = map[string]any{}
	}
	// Round-trip so numbers match the validator's JSON model.
	b, err := json.Marshal(props)
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return err
	}
	return e.schema.Validate(inst)
}

// Build returns the renderer props: defaults overlaid with props, passed through the factory.
func (e *Entry) Build(props map[string]any) map[string]any {
	out := make(map[string]any, len(e.Defaults)+len(props))
	for k, v := range e.Defaults {
		out[k] = v
	}
	for k, v := range props {
		out[k] = v
	}
	if e.factory != nil {
		return e.factory(out)
	}
	return out
}

// Registry is an immutable set of entries keyed by type.
type Registry struct {
	entries map[string]*Entry
}

// Option customizes a Registry at load time.
type Option func(map[string]*Entry) error

// WithFactory attaches a props factory to a type.
func WithFactory(typ string, f Factory) Option {
	return func(m map[string]*Entry) error {
		e, ok := m[typ]
		if !ok {
			return fmt.Errorf("catalog: factory for unknown type %q", typ)
		}
		e.factory = f
		return nil
	}
}

type fileEntry struct {
	Type            string         `yaml:"type"`
	Category        string         `yaml:"category"`
	Description     string         `yaml:"description"`
	Actions         []string       `yaml:"actions"`
	RequiredActions []string       `yaml:"required_actions"`
	Defaults        map[string]any `yaml:"defaults"`
	Props           map[string]any `yaml:"props"`
}

type file struct {
	Components []fileEntry `yaml:"components"`
}

// Load parses a YAML catalog definition and compiles every prop schema.
func Load(data []byte, opts ...Option) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	c := jsonschema.NewCompiler()
	entries := make(map[string]*Entry, len(f.Components))
	for _, fe := range f.Components {
		if fe.Type == "" {
			return nil, fmt.Errorf("catalog: entry without type")
		}
		if _, dup := entries[fe.Type]; dup {
			return nil, fmt.Errorf("catalog: duplicate type %q", fe.Type)
		}
		e := &Entry{
			Type:            fe.Type,
			Category:        fe.Category,
			Description:     fe.Description,
			Actions:         fe.Actions,
			RequiredActions: fe.RequiredActions,
			Defaults:        fe.Defaults,
		}
		if len(fe.Props) > 0 {
			sch, err := compile(c, fe.Type, fe.Props)
			if err != nil {
				return nil, err
			}
			e.schema = sch
		}
		entries[fe.Type] = e
	}
	for _, opt := range opts {
		if err := opt(entries); err != nil {
			return nil, err
		}
	}
	return &Registry{entries: entries}, nil
}

func compile(c *jsonschema.Compiler, typ string, props map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", typ, err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", typ, err)
	}
	url := "mem://catalog/" + typ + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", typ, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: %s schema: %w", typ, err)
	}
	return sch, nil
}

var (
	defaultOnce sync.Once
	defaultReg  *Registry
	defaultErr  error
)

// Default returns the registry built from the embedded catalog.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultReg, defaultErr = Load(defaultCatalog)
	})
	if defaultErr != nil {
		panic(defaultErr)
	}
	return defaultReg
}

// Lookup returns the entry for typ.
func (r *Registry) Lookup(typ string) (*Entry, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.entries[typ]
	return e, ok
}

// Has reports whether typ is registered.
func (r *Registry) Has(typ string) bool {
	_, ok := r.Lookup(typ)
	return ok
}

// Types lists registered types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ByCategory lists the entries of a category sorted by type.
func (r *Registry) ByCategory(category string) []*Entry {
	var out []*Entry
	for _, t := range r.Types() {
		if e := r.entries[t]; e.Category == category {
			out = append(out, e)
		}
	}
	return out
}

// IsEvent reports whether a prop key names an event handler such as onClick.
func IsEvent(key string) bool {
	return len(key) > 2 && key[0] == 'o' && key[1] == 'n' && key[2] >= 'A' && key[2] <= 'Z'
}

// Events returns the events a node binds: event-shaped props holding an
// action id plus the names listed in actions, deduplicated and sorted.
func Events(props map[string]any, actions []string) []string {
	seen := make(map[string]struct{}, len(actions))
	for k, v := range props {
		if _, isStr := v.(string); isStr && IsEvent(k) {
			seen[k] = struct{}{}
		}
	}
	for _, a := range actions {
		seen[a] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// Disallowed returns the bound events e does not permit, in sorted order.
func (e *Entry) Disallowed(props map[string]any, actions []string) []string {
	var out []string
	for _, ev := range Events(props, actions) {
		if !e.Allows(ev) {
			out = append(out, ev)
		}
	}
	return out
}
