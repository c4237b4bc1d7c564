// Package semantic ranks therapists by meaning rather than substring. It wraps
// a booking.Directory: free-text queries are embedded and matched against an
// index of provider profiles, everything else goes to the wrapped directory.
package semantic

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/wilhg/a2ui/pkg/adapters/embedding"
	"github.com/wilhg/a2ui/pkg/adapters/vectorstore"
	"github.com/wilhg/a2ui/pkg/booking"
	"github.com/wilhg/a2ui/pkg/logging"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
)

// Namespace holds provider vectors in the vector store.
const Namespace = "providers"

// DefaultMinScore drops weak matches; below it a query falls back to
// substring search.
const DefaultMinScore = 0.2

var tracer = a2otel.Tracer("booking/semantic")

// Directory is a booking.Directory with semantic provider search.
type Directory struct {
	booking.Directory
	embedder embedding.Embedder
	index    vectorstore.VectorStore
	minScore float32
	log      *slog.Logger
}

// Option configures a Directory.
type Option func(*Directory)

func WithMinScore(s float32) Option    { return func(d *Directory) { d.minScore = s } }
func WithLogger(l *slog.Logger) Option { return func(d *Directory) { d.log = l } }

// New wraps base. Providers must be indexed with Index or UpsertProvider
// before semantic queries can find them.
func New(base booking.Directory, e embedding.Embedder, index vectorstore.VectorStore, opts ...Option) *Directory {
	d := &Directory{Directory: base, embedder: e, index: index, minScore: DefaultMinScore}
	for _, o := range opts {
		o(d)
	}
	d.log = logging.OrDiscard(d.log)
	return d
}

// Profile is the text embedded for p.
func Profile(p booking.Provider) string {
	parts := []string{p.FullName, p.Specialization, p.Bio}
	parts = append(parts, p.Expertise...)
	return strings.Join(parts, ". ")
}

// Index embeds and stores the given providers.
func (d *Directory) Index(ctx context.Context, providers ...booking.Provider) error {
	if len(providers) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "semantic.index")
	defer span.End()
	texts := make([]string, len(providers))
	for i, p := range providers {
		texts[i] = Profile(p)
	}
	vecs, err := d.embedder.Embed(ctx, texts, nil)
	if err != nil {
		a2otel.Fail(span, err)
		return err
	}
	if len(vecs) != len(providers) {
		return fmt.Errorf("semantic: %s returned %d vectors for %d providers", d.embedder.Name(), len(vecs), len(providers))
	}
	items := make([]vectorstore.Item, len(providers))
	for i, p := range providers {
		items[i] = vectorstore.Item{
			ID:        p.ID,
			Namespace: Namespace,
			Vector:    vectorstore.Vector(vecs[i]),
			Metadata:  map[string]any{"specialization": strings.ToLower(p.Specialization)},
		}
	}
	return d.index.Upsert(ctx, items)
}

// Reindex indexes every provider of the wrapped directory.
func (d *Directory) Reindex(ctx context.Context) (int, error) {
	all, err := d.Directory.SearchProviders(ctx, booking.ProviderQuery{})
	if err != nil {
		return 0, err
	}
	return len(all), d.Index(ctx, all...)
}

type upserter interface {
	UpsertProvider(ctx context.Context, p booking.Provider) error
}

// UpsertProvider saves p in the wrapped directory and indexes it.
func (d *Directory) UpsertProvider(ctx context.Context, p booking.Provider) error {
	up, ok := d.Directory.(upserter)
	if !ok {
		return fmt.Errorf("semantic: %T cannot store providers", d.Directory)
	}
	if err := up.UpsertProvider(ctx, p); err != nil {
		return err
	}
	return d.Index(ctx, p)
}

// SearchProviders ranks by similarity to q.Text. Queries without text, and
// queries the index cannot answer, use the wrapped directory.
func (d *Directory) SearchProviders(ctx context.Context, q booking.ProviderQuery) ([]booking.Provider, error) {
	if strings.TrimSpace(q.Text) == "" {
		return d.Directory.SearchProviders(ctx, q)
	}
	ctx, span := tracer.Start(ctx, "semantic.search")
	defer span.End()
	out, err := d.search(ctx, q)
	if err != nil {
		a2otel.Fail(span, err)
		d.log.WarnContext(ctx, "semantic search failed; using substring search", slog.Any("err", err))
		return d.Directory.SearchProviders(ctx, q)
	}
	if len(out) == 0 {
		return d.Directory.SearchProviders(ctx, q)
	}
	return out, nil
}

func (d *Directory) search(ctx context.Context, q booking.ProviderQuery) ([]booking.Provider, error) {
	vecs, err := d.embedder.Embed(ctx, []string{q.Text}, nil)
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("semantic: %s returned %d vectors for one query", d.embedder.Name(), len(vecs))
	}
	matches, err := d.index.Query(ctx, vectorstore.Vector(vecs[0]), 0, vectorstore.Filter{Namespace: Namespace})
	if err != nil {
		return nil, err
	}
	spec := strings.ToLower(q.Specialization)
	out := []booking.Provider{}
	for _, m := range matches {
		if m.Score < d.minScore {
			break
		}
		if s, _ := m.Item.Metadata["specialization"].(string); spec != "" && !strings.Contains(s, spec) {
			continue
		}
		p, err := d.Directory.GetProvider(ctx, m.Item.ID)
		if err != nil {
			// stale index entry
			continue
		}
		out = append(out, p)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

var _ booking.Directory = (*Directory)(nil)
