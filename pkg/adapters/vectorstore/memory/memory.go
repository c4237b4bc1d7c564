// Package memory registers the in-process "memory" vector store.
package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/wilhg/a2ui/pkg/adapters/vectorstore"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

const defaultNamespace = "default"

// Store keeps items per namespace and scans them with cosine similarity.
type Store struct {
	mu    sync.RWMutex
	items map[string]map[string]vectorstore.Item // namespace -> id -> item
}

func New() *Store {
	return &Store{items: make(map[string]map[string]vectorstore.Item)}
}

func (s *Store) Upsert(_ context.Context, items []vectorstore.Item) error {
	for _, it := range items {
		if it.ID == "" {
			return errmodel.Validation("vector_id_required", "vector item has no id", nil)
		}
		if len(it.Vector) == 0 {
			return errmodel.Validation("vector_empty", "vector item has no vector", map[string]any{"id": it.ID})
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		ns := namespace(it.Namespace)
		bucket, ok := s.items[ns]
		if !ok {
			bucket = make(map[string]vectorstore.Item)
			s.items[ns] = bucket
		}
		bucket[it.ID] = it
	}
	return nil
}

// Query skips items whose dimension differs from query. Ties keep id order.
func (s *Store) Query(_ context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	qnorm := math.Sqrt(dot(query, query))
	if qnorm == 0 {
		return nil, errmodel.Validation("vector_zero", "query vector has zero norm", nil)
	}
	s.mu.RLock()
	bucket := s.items[namespace(filter.Namespace)]
	matches := make([]vectorstore.Match, 0, len(bucket))
	for _, it := range bucket {
		if len(it.Vector) != len(query) || !metaEquals(it.Metadata, filter.Equals) {
			continue
		}
		matches = append(matches, vectorstore.Match{Item: it, Score: cosine(query, it.Vector, qnorm)})
	}
	s.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Item.ID < matches[j].Item.ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func namespace(ns string) string {
	if ns == "" {
		return defaultNamespace
	}
	return ns
}

func metaEquals(have, want map[string]any) bool {
	for k, v := range want {
		if hv, ok := have[k]; !ok || hv != v {
			return false
		}
	}
	return true
}

func cosine(a, b vectorstore.Vector, qnorm float64) float32 {
	denom := qnorm * math.Sqrt(dot(b, b))
	if denom == 0 {
		return 0
	}
	return float32(dot(a, b) / denom)
}

func dot(a, b vectorstore.Vector) float64 {
	var s float64
	for i := range min(len(a), len(b)) {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func init() {
	_ = vectorstore.Register("memory", func(context.Context, map[string]any) (vectorstore.VectorStore, error) {
		return New(), nil
	})
}
