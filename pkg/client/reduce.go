package client

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/wilhg/a2ui/pkg/pointer"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Surfaces is an immutable snapshot of a client's surfaces keyed by id.
// Reducers never modify a Surfaces value; they return a new one.
type Surfaces map[string]surface.Surface

func (s Surfaces) with(sf surface.Surface) Surfaces {
	out := make(Surfaces, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out[sf.SurfaceID] = sf
	return out
}

func (s Surfaces) without(id string) Surfaces {
	out := make(Surfaces, len(s))
	for k, v := range s {
		if k != id {
			out[k] = v
		}
	}
	return out
}

// Sorted lists the surfaces ordered by creation time, then id.
func (s Surfaces) Sorted() []surface.Surface {
	out := make([]surface.Surface, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].SurfaceID < out[j].SurfaceID
	})
	return out
}

// Outcome is what a reducer did with a message.
type Outcome int

const (
	Ignored Outcome = iota
	Upserted
	Removed
)

func (o Outcome) String() string {
	switch o {
	case Upserted:
		return "upserted"
	case Removed:
		return "removed"
	default:
		return "ignored"
	}
}

// Reduce applies m to cur. now stamps messages that carry no timestamp.
func Reduce(cur Surfaces, m surface.Message, now time.Time) (Surfaces, Outcome) {
	switch msg := m.(type) {
	case surface.SurfaceUpdate:
		return ReduceSurfaceUpdate(cur, msg, now)
	case surface.DataModelUpdate:
		return ReduceDataModelUpdate(cur, msg, now)
	case surface.DeleteSurface:
		return remove(cur, msg.SurfaceID)
	case surface.ActionMessage:
		// actions flow client to agent; an echo changes nothing
		return cur, Ignored
	default:
		return cur, Ignored
	}
}

// ReduceSurfaceUpdate applies create, replace, update and delete operations.
// A missing operation means update. A message that would grow the data model
// past surface.MaxDataModelBytes is ignored.
func ReduceSurfaceUpdate(cur Surfaces, m surface.SurfaceUpdate, now time.Time) (Surfaces, Outcome) {
	existing, found := cur[m.SurfaceID]
	at := stamp(m.Timestamp, now)
	switch m.Operation {
	case surface.OpDelete:
		return remove(cur, m.SurfaceID)
	case surface.OpCreate, surface.OpReplace:
		var prev *surface.Surface
		if found {
			prev = &existing
		}
		version, ok := nextVersion(prev, m.Version)
		if !ok {
			return cur, Ignored
		}
		created := at
		if found {
			created = existing.CreatedAt
		}
		next := surface.Surface{
			SurfaceID:  m.SurfaceID,
			UserID:     m.UserID,
			AgentID:    m.AgentID,
			Components: m.Components,
			DataModel:  m.DataModel,
			Metadata:   m.Metadata,
			Version:    version,
			CreatedAt:  created,
			UpdatedAt:  at,
		}
		if !fits(next.DataModel) {
			return cur, Ignored
		}
		if found {
			if next.UserID == "" {
				next.UserID = existing.UserID
			}
			if next.AgentID == "" {
				next.AgentID = existing.AgentID
			}
		}
		return cur.with(*surface.Normalize(&next)), Upserted
	case surface.OpUpdate, surface.OpPatch, "":
		if !found {
			return cur, Ignored
		}
		version, ok := nextVersion(&existing, m.Version)
		if !ok {
			return cur, Ignored
		}
		next := existing
		if m.Components != nil {
			next.Components = m.Components
		}
		if m.DataModel != nil {
			next.DataModel = surface.MergeMaps(existing.DataModel, m.DataModel)
		}
		if m.Metadata != nil {
			next.Metadata = surface.MergeMaps(existing.Metadata, m.Metadata)
		}
		if !fits(next.DataModel) {
			return cur, Ignored
		}
		next.Version = version
		next.UpdatedAt = at
		return cur.with(next), Upserted
	default:
		return cur, Ignored
	}
}

// ReduceDataModelUpdate writes every pointer of m into the surface's data
// model in sorted pointer order and bumps the version once. If the result
// would exceed surface.MaxDataModelBytes the surface is left as it was.
func ReduceDataModelUpdate(cur Surfaces, m surface.DataModelUpdate, now time.Time) (Surfaces, Outcome) {
	existing, found := cur[m.SurfaceID]
	if !found {
		return cur, Ignored
	}
	version, ok := nextVersion(&existing, m.Version)
	if !ok {
		return cur, Ignored
	}
	ptrs := make([]string, 0, len(m.Updates))
	for p := range m.Updates {
		ptrs = append(ptrs, p)
	}
	sort.Strings(ptrs)
	dm := existing.DataModel
	for _, p := range ptrs {
		dm = pointer.Apply(dm, p, m.Updates[p])
	}
	if !fits(dm) {
		return cur, Ignored
	}
	next := existing
	next.DataModel = dm
	next.Version = version
	next.UpdatedAt = stamp(m.Timestamp, now)
	return cur.with(next), Upserted
}

func remove(cur Surfaces, id string) (Surfaces, Outcome) {
	if _, found := cur[id]; !found {
		return cur, Ignored
	}
	return cur.without(id), Removed
}

func fits(dm map[string]any) bool {
	b, err := json.Marshal(dm)
	return err == nil && len(b) <= surface.MaxDataModelBytes
}

// nextVersion returns the version after a mutation. An explicit version must
// move forward; otherwise the message is stale and ok is false.
func nextVersion(existing *surface.Surface, explicit *int) (version int, ok bool) {
	if explicit != nil {
		if existing != nil && *explicit <= existing.Version {
			return 0, false
		}
		return *explicit, true
	}
	if existing == nil {
		return 1, true
	}
	return existing.Version + 1, true
}

func stamp(t, now time.Time) time.Time {
	if t.IsZero() {
		return now
	}
	return t
}
