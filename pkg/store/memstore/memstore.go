// Package memstore is an in-process store.Store used by tests, replays and
// single-binary demos.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/ids"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Store keeps deep copies so callers can never alias stored state.
type Store struct {
	mu       sync.RWMutex
	surfaces map[string]*surface.Surface
	actions  map[string][]store.ActionRecord
	audits   []audit.Event
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		surfaces: make(map[string]*surface.Surface),
		actions:  make(map[string][]store.ActionRecord),
	}
}

func (s *Store) CreateSurface(_ context.Context, sf surface.Surface) (surface.Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.surfaces[sf.SurfaceID]; taken {
		return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrExists, sf.SurfaceID)
	}
	c := surface.Normalize(sf.Clone())
	s.surfaces[sf.SurfaceID] = c
	return *c.Clone(), nil
}

func (s *Store) GetSurface(_ context.Context, surfaceID string) (surface.Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, found := s.surfaces[surfaceID]
	if !found {
		return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrNotFound, surfaceID)
	}
	return *c.Clone(), nil
}

func (s *Store) ListSurfaces(_ context.Context, f store.Filter) ([]surface.Surface, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []surface.Surface{}
	for _, c := range s.surfaces {
		if f.Matches(*c) {
			out = append(out, *c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SurfaceID < out[j].SurfaceID
	})
	return out, nil
}

func (s *Store) UpdateSurface(_ context.Context, sf surface.Surface, expectedVersion int) (surface.Surface, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, found := s.surfaces[sf.SurfaceID]
	if !found {
		return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrNotFound, sf.SurfaceID)
	}
	if cur.Version != expectedVersion {
		return surface.Surface{}, fmt.Errorf("%w: %s at version %d, expected %d", store.ErrConflict, sf.SurfaceID, cur.Version, expectedVersion)
	}
	c := surface.Normalize(sf.Clone())
	c.CreatedAt = cur.CreatedAt
	s.surfaces[sf.SurfaceID] = c
	return *c.Clone(), nil
}

func (s *Store) DeleteSurface(_ context.Context, surfaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, found := s.surfaces[surfaceID]; !found {
		return fmt.Errorf("%w: %s", store.ErrNotFound, surfaceID)
	}
	delete(s.surfaces, surfaceID)
	return nil
}

func (s *Store) AppendAction(_ context.Context, r store.ActionRecord) (store.ActionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == "" {
		r.ID = ids.ULID(r.CreatedAt)
	}
	s.actions[r.SurfaceID] = append(s.actions[r.SurfaceID], r)
	return r, nil
}

func (s *Store) ListActions(_ context.Context, surfaceID string) ([]store.ActionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]store.ActionRecord(nil), s.actions[surfaceID]...), nil
}

func (s *Store) AppendAudit(_ context.Context, ev audit.Event) error {
	s.mu.Lock()
	s.audits = append(s.audits, ev)
	s.mu.Unlock()
	return nil
}

// Audits returns the recorded audit events.
func (s *Store) Audits() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.audits...)
}

var _ store.Store = (*Store)(nil)
