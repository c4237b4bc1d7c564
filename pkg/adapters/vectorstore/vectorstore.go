// Package vectorstore indexes embedding vectors for similarity search.
// Items are provider profiles keyed by provider id, carrying the
// specialization in their metadata.
// Providers register a Factory under their name from an init function; the
// vector_store config key selects one.
package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Vector is a single dense embedding vector.
type Vector []float32

// Item is one indexed vector with filterable metadata.
type Item struct {
	ID string
	// Namespace groups items, e.g. one per indexed entity kind.
	Namespace string
	Vector    Vector
	Metadata  map[string]any
}

// Match is a search result; higher Score is more similar.
type Match struct {
	Item  Item
	Score float32
}

// VectorStore upserts items and answers top-k similarity queries.
type VectorStore interface {
	// Upsert inserts or replaces items by ID within their namespace.
	Upsert(ctx context.Context, items []Item) error
	// Query returns up to k items most similar to query. k <= 0 returns all.
	Query(ctx context.Context, query Vector, k int, filter Filter) ([]Match, error)
}

// Filter constrains query results.
type Filter struct {
	Namespace string
	// Equals matches exact metadata values, all keys required.
	Equals map[string]any
}

// Factory constructs a VectorStore from provider config.
type Factory func(ctx context.Context, cfg map[string]any) (VectorStore, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register registers a VectorStore factory.
func Register(name string, f Factory) error {
	if name == "" {
		return fmt.Errorf("vectorstore: empty provider name")
	}
	if f == nil {
		return fmt.Errorf("vectorstore: nil factory for %q", name)
	}
	regMu.Lock()
	defer regMu.Unlock()
	if _, exists := factories[name]; exists {
		return fmt.Errorf("vectorstore: provider %q already registered", name)
	}
	factories[name] = f
	return nil
}

// Resolve gets a registered factory by name.
func Resolve(name string) (Factory, bool) {
	regMu.RLock()
	defer regMu.RUnlock()
	f, ok := factories[name]
	return f, ok
}

// New builds the named provider.
func New(ctx context.Context, name string, cfg map[string]any) (VectorStore, error) {
	f, ok := Resolve(name)
	if !ok {
		return nil, fmt.Errorf("vectorstore: unknown provider %q (registered: %v)", name, Names())
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
