// Package cache keeps a client's surfaces on disk between restarts. Records
// are CBOR encoded into a single sqlite table indexed by user and update time.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/fxamacker/cbor/v2"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/surface"
)

// DefaultTTL is how long an untouched surface stays cached.
const DefaultTTL = 7 * 24 * time.Hour

const table = "a2ui_surface_cache"

const ddl = `CREATE TABLE IF NOT EXISTS a2ui_surface_cache (
	surface_id TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	record     BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS a2ui_surface_cache_user ON a2ui_surface_cache (user_id);
CREATE INDEX IF NOT EXISTS a2ui_surface_cache_updated ON a2ui_surface_cache (updated_at);`

// Cache is safe for concurrent use.
type Cache struct {
	db    *sql.DB
	clock clock.Clock
	ttl   time.Duration
	enc   cbor.EncMode
	dec   cbor.DecMode
}

// Option configures a Cache.
type Option func(*Cache)

func WithClock(c clock.Clock) Option { return func(ca *Cache) { ca.clock = c } }

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) Option {
	return func(ca *Cache) {
		if d > 0 {
			ca.ttl = d
		}
	}
}

// Open opens or creates the cache database at path. An empty path keeps the
// cache in memory for the life of the process.
func Open(ctx context.Context, path string, opts ...Option) (*Cache, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
	if path == "" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if path == "" {
		// each connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}
	enc, err := cbor.EncOptions{Sort: cbor.SortCoreDeterministic, Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	dec, err := cbor.DecOptions{DefaultMapType: reflect.TypeOf(map[string]any(nil))}.DecMode()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	c := &Cache{db: db, clock: clock.Real(), ttl: DefaultTTL, enc: enc, dec: dec}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Cache) Close() error { return c.db.Close() }

func (c *Cache) builder() *entsql.DialectBuilder { return entsql.Dialect(dialect.SQLite) }

// Put stores s, replacing any earlier record for the same surface.
func (c *Cache) Put(ctx context.Context, s surface.Surface) error {
	rec, err := c.enc.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode surface %s: %w", s.SurfaceID, err)
	}
	at := s.UpdatedAt
	if at.IsZero() {
		at = c.clock.Now()
	}
	q, args := c.builder().Insert(table).
		Columns("surface_id", "user_id", "updated_at", "record").
		Values(s.SurfaceID, s.UserID, at.UnixMilli(), rec).
		OnConflict(entsql.ConflictColumns("surface_id"), entsql.ResolveWithNewValues()).
		Query()
	if _, err := c.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("cache surface %s: %w", s.SurfaceID, err)
	}
	return nil
}

// Get returns the cached surface and whether it was present.
func (c *Cache) Get(ctx context.Context, surfaceID string) (surface.Surface, bool, error) {
	q, args := c.builder().Select("record").From(c.builder().Table(table)).
		Where(entsql.EQ("surface_id", surfaceID)).Query()
	var rec []byte
	if err := c.db.QueryRowContext(ctx, q, args...).Scan(&rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return surface.Surface{}, false, nil
		}
		return surface.Surface{}, false, err
	}
	s, err := c.decode(rec)
	if err != nil {
		return surface.Surface{}, false, err
	}
	return s, true, nil
}

// List returns the user's cached surfaces ordered by surface id. Surfaces
// older than the TTL are left out even before Prune removes them.
func (c *Cache) List(ctx context.Context, userID string) ([]surface.Surface, error) {
	cutoff := c.clock.Now().Add(-c.ttl).UnixMilli()
	q, args := c.builder().Select("record").From(c.builder().Table(table)).
		Where(entsql.And(entsql.EQ("user_id", userID), entsql.GTE("updated_at", cutoff))).
		OrderBy(entsql.Asc("surface_id")).Query()
	rows, err := c.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []surface.Surface
	for rows.Next() {
		var rec []byte
		if err := rows.Scan(&rec); err != nil {
			return nil, err
		}
		s, err := c.decode(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (c *Cache) Delete(ctx context.Context, surfaceID string) error {
	q, args := c.builder().Delete(table).Where(entsql.EQ("surface_id", surfaceID)).Query()
	_, err := c.db.ExecContext(ctx, q, args...)
	return err
}

// Prune removes surfaces not updated within the TTL and reports how many went.
func (c *Cache) Prune(ctx context.Context) (int, error) {
	cutoff := c.clock.Now().Add(-c.ttl).UnixMilli()
	q, args := c.builder().Delete(table).Where(entsql.LT("updated_at", cutoff)).Query()
	res, err := c.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (c *Cache) decode(rec []byte) (surface.Surface, error) {
	var s surface.Surface
	if err := c.dec.Unmarshal(rec, &s); err != nil {
		return surface.Surface{}, fmt.Errorf("decode cached surface: %w", err)
	}
	normalizeNumbers(s.DataModel)
	normalizeNumbers(s.Metadata)
	for i := range s.Components {
		normalizeComponent(&s.Components[i])
	}
	return *surface.Normalize(&s), nil
}

func normalizeComponent(c *surface.Component) {
	normalizeNumbers(c.Props)
	normalizeNumbers(c.ActionPayload)
	normalizeNumbers(c.Metadata)
	for k, b := range c.DataBinding {
		b.Fallback = normalizeNumbers(b.Fallback)
		c.DataBinding[k] = b
	}
	for i := range c.Children {
		normalizeComponent(&c.Children[i])
	}
}

// normalizeNumbers rewrites CBOR integers to float64 in place so decoded
// documents hold the same number type as JSON decoded ones.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case uint64:
		return float64(t)
	case int64:
		return float64(t)
	case map[string]any:
		for k, e := range t {
			t[k] = normalizeNumbers(e)
		}
	case []any:
		for i, e := range t {
			t[i] = normalizeNumbers(e)
		}
	}
	return v
}
