package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	entsql "entgo.io/ent/dialect/sql"
	"entgo.io/ent/dialect/sql/sqlgraph"

	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

var surfaceColumns = []string{"surface_id", "user_id", "agent_id", "components", "data_model", "metadata", "version", "created_at", "updated_at"}

type surfaceRow struct {
	components, dataModel, metadata string
}

func encodeSurface(sf surface.Surface) (surfaceRow, error) {
	var (
		r   surfaceRow
		err error
	)
	if r.components, err = encodeJSON(sf.Components, "[]"); err != nil {
		return r, fmt.Errorf("encode components: %w", err)
	}
	if r.dataModel, err = encodeJSON(sf.DataModel, "{}"); err != nil {
		return r, fmt.Errorf("encode data model: %w", err)
	}
	if r.metadata, err = encodeJSON(sf.Metadata, "{}"); err != nil {
		return r, fmt.Errorf("encode metadata: %w", err)
	}
	return r, nil
}

// CreateSurface inserts a new surface row.
func (s *Store) CreateSurface(ctx context.Context, sf surface.Surface) (surface.Surface, error) {
	row, err := encodeSurface(sf)
	if err != nil {
		return surface.Surface{}, err
	}
	now := s.clock.Now().UTC()
	if sf.CreatedAt.IsZero() {
		sf.CreatedAt = now
	}
	if sf.UpdatedAt.IsZero() {
		sf.UpdatedAt = sf.CreatedAt
	}
	q, args := s.builder().Insert(SurfacesTable.Name).
		Columns(surfaceColumns...).
		Values(sf.SurfaceID, sf.UserID, sf.AgentID, row.components, row.dataModel, row.metadata, sf.Version, sf.CreatedAt.UTC(), sf.UpdatedAt.UTC()).
		Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		if sqlgraph.IsUniqueConstraintError(err) {
			return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrExists, sf.SurfaceID)
		}
		return surface.Surface{}, fmt.Errorf("insert surface: %w", err)
	}
	return *surface.Normalize(&sf), nil
}

// GetSurface loads one surface by id.
func (s *Store) GetSurface(ctx context.Context, surfaceID string) (surface.Surface, error) {
	t := s.builder().Table(SurfacesTable.Name)
	q, args := s.builder().Select(surfaceColumns...).From(t).
		Where(entsql.EQ("surface_id", surfaceID)).
		Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return surface.Surface{}, fmt.Errorf("select surface: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return surface.Surface{}, err
		}
		return surface.Surface{}, fmt.Errorf("%w: %s", store.ErrNotFound, surfaceID)
	}
	return scanSurface(rows)
}

// ListSurfaces returns the surfaces matching f ordered by creation time.
func (s *Store) ListSurfaces(ctx context.Context, f store.Filter) ([]surface.Surface, error) {
	t := s.builder().Table(SurfacesTable.Name)
	sel := s.builder().Select(surfaceColumns...).From(t)
	var preds []*entsql.Predicate
	if f.UserID != "" {
		preds = append(preds, entsql.EQ("user_id", f.UserID))
	}
	if f.AgentID != "" {
		preds = append(preds, entsql.EQ("agent_id", f.AgentID))
	}
	if f.SurfaceID != "" {
		preds = append(preds, entsql.EQ("surface_id", f.SurfaceID))
	}
	if len(preds) > 0 {
		sel = sel.Where(entsql.And(preds...))
	}
	q, args := sel.OrderBy(entsql.Asc("created_at"), entsql.Asc("surface_id")).Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list surfaces: %w", err)
	}
	defer rows.Close()
	out := []surface.Surface{}
	for rows.Next() {
		sf, err := scanSurface(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sf)
	}
	return out, rows.Err()
}

// UpdateSurface replaces the row's content when its version still equals expectedVersion.
func (s *Store) UpdateSurface(ctx context.Context, sf surface.Surface, expectedVersion int) (surface.Surface, error) {
	row, err := encodeSurface(sf)
	if err != nil {
		return surface.Surface{}, err
	}
	if sf.UpdatedAt.IsZero() {
		sf.UpdatedAt = s.clock.Now().UTC()
	}
	q, args := s.builder().Update(SurfacesTable.Name).
		Set("components", row.components).
		Set("data_model", row.dataModel).
		Set("metadata", row.metadata).
		Set("version", sf.Version).
		Set("updated_at", sf.UpdatedAt.UTC()).
		Where(entsql.And(
			entsql.EQ("surface_id", sf.SurfaceID),
			entsql.EQ("version", expectedVersion),
		)).
		Query()
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return surface.Surface{}, fmt.Errorf("update surface: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return surface.Surface{}, fmt.Errorf("update surface: %w", err)
	}
	if n == 0 {
		// Distinguish a vanished row from a lost race.
		cur, gerr := s.GetSurface(ctx, sf.SurfaceID)
		if gerr != nil {
			return surface.Surface{}, gerr
		}
		return surface.Surface{}, fmt.Errorf("%w: %s at version %d, expected %d", store.ErrConflict, sf.SurfaceID, cur.Version, expectedVersion)
	}
	return s.GetSurface(ctx, sf.SurfaceID)
}

// DeleteSurface removes a surface row.
func (s *Store) DeleteSurface(ctx context.Context, surfaceID string) error {
	q, args := s.builder().Delete(SurfacesTable.Name).Where(entsql.EQ("surface_id", surfaceID)).Query()
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("delete surface: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, surfaceID)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSurface(r scanner) (surface.Surface, error) {
	var (
		sf                  surface.Surface
		comps, dm, md       []byte
		createdAt, updateAt dbTime
	)
	if err := r.Scan(&sf.SurfaceID, &sf.UserID, &sf.AgentID, &comps, &dm, &md, &sf.Version, &createdAt, &updateAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return surface.Surface{}, store.ErrNotFound
		}
		return surface.Surface{}, fmt.Errorf("scan surface: %w", err)
	}
	if err := decodeJSON(comps, &sf.Components); err != nil {
		return surface.Surface{}, fmt.Errorf("decode components: %w", err)
	}
	if err := decodeJSON(dm, &sf.DataModel); err != nil {
		return surface.Surface{}, fmt.Errorf("decode data model: %w", err)
	}
	if err := decodeJSON(md, &sf.Metadata); err != nil {
		return surface.Surface{}, fmt.Errorf("decode metadata: %w", err)
	}
	sf.CreatedAt, sf.UpdatedAt = createdAt.Time, updateAt.Time
	return *surface.Normalize(&sf), nil
}
