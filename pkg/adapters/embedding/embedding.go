// Package embedding turns text into dense vectors for semantic search.
// Provider profiles are embedded once at seed time and free-text therapist
// queries are embedded per search.
// Providers register a Factory under their name from an init function; the
// embedder config key selects one.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Vector is one embedding.
type Vector []float32

// Embedder produces embedding vectors from text inputs.
type Embedder interface {
	// Name returns the provider name, e.g. "openai".
	Name() string
	// Embed returns one vector per input, in order. opts may override "model".
	Embed(ctx context.Context, inputs []string, opts map[string]any) ([]Vector, error)
}

// Factory constructs an Embedder from provider config. Common keys: api_key, model, base_url.
type Factory func(ctx context.Context, cfg map[string]any) (Embedder, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers an Embedder factory under a provider name.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("embedding: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("embedding: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("embedding: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve retrieves a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// New builds the named provider.
func New(ctx context.Context, name string, cfg map[string]any) (Embedder, error) {
	f, ok := Resolve(name)
	if !ok {
		return nil, fmt.Errorf("embedding: unknown provider %q (registered: %v)", name, Names())
	}
	return f(ctx, cfg)
}

// Names lists the registered providers, sorted.
func Names() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for n := range factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// StringOpt reads a non-empty string option.
func StringOpt(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
