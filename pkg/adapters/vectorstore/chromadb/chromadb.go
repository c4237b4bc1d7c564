// Package chromadb registers the "chromadb" vector store, backed by a Chroma
// server's REST API. Collections are created with cosine distance so scores
// compare with the in-memory store.
package chromadb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/a2ui/pkg/adapters/vectorstore"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

// DefaultBaseURL is used when neither cfg nor A2UI_CHROMADB_URL name a server.
const DefaultBaseURL = "http://localhost:8000"

// queryAll bounds k <= 0 queries; Chroma needs an explicit result count.
const queryAll = 1000

// Store maps namespaces to Chroma collections.
type Store struct {
	base       *url.URL
	single     string
	autoCreate bool
	http       *http.Client

	mu  sync.RWMutex
	ids map[string]string // collection name -> id
}

// Factory reads cfg keys base_url (else A2UI_CHROMADB_URL), collection (one
// collection for every namespace) and create_if_missing (default true).
func Factory(_ context.Context, cfg map[string]any) (vectorstore.VectorStore, error) {
	base := DefaultBaseURL
	if v := os.Getenv("A2UI_CHROMADB_URL"); v != "" {
		base = v
	}
	if v, ok := cfg["base_url"].(string); ok && v != "" {
		base = v
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("chromadb: invalid base_url: %w", err)
	}
	single, _ := cfg["collection"].(string)
	create := true
	if v, ok := cfg["create_if_missing"].(bool); ok {
		create = v
	}
	return &Store{
		base:       u,
		single:     single,
		autoCreate: create,
		http:       &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		ids:        make(map[string]string),
	}, nil
}

func (s *Store) Upsert(ctx context.Context, items []vectorstore.Item) error {
	groups := map[string][]vectorstore.Item{}
	for _, it := range items {
		coll := s.collection(it.Namespace)
		groups[coll] = append(groups[coll], it)
	}
	for coll, batch := range groups {
		id, err := s.ensureCollection(ctx, coll)
		if err != nil {
			return err
		}
		req := upsertRequest{
			IDs:        make([]string, 0, len(batch)),
			Embeddings: make([][]float32, 0, len(batch)),
			Metadatas:  make([]map[string]any, 0, len(batch)),
		}
		for _, it := range batch {
			md := it.Metadata
			if md == nil {
				md = map[string]any{}
			}
			req.IDs = append(req.IDs, it.ID)
			req.Embeddings = append(req.Embeddings, it.Vector)
			req.Metadatas = append(req.Metadatas, md)
		}
		if err := s.post(ctx, path.Join("/api/v1/collections", id, "upsert"), req, nil); err != nil {
			return err
		}
	}
	return nil
}

// Query converts Chroma's cosine distance into similarity (1 - distance).
func (s *Store) Query(ctx context.Context, query vectorstore.Vector, k int, filter vectorstore.Filter) ([]vectorstore.Match, error) {
	id, err := s.ensureCollection(ctx, s.collection(filter.Namespace))
	if err != nil {
		return nil, err
	}
	if k <= 0 {
		k = queryAll
	}
	req := queryRequest{
		QueryEmbeddings: [][]float32{query},
		NResults:        k,
		Include:         []string{"distances", "metadatas"},
	}
	if len(filter.Equals) > 0 {
		req.Where = filter.Equals
	}
	var resp queryResponse
	if err := s.post(ctx, path.Join("/api/v1/collections", id, "query"), req, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	out := make([]vectorstore.Match, 0, len(resp.IDs[0]))
	for i, itemID := range resp.IDs[0] {
		m := vectorstore.Match{Item: vectorstore.Item{ID: itemID, Namespace: filter.Namespace}}
		if len(resp.Metadatas) > 0 && i < len(resp.Metadatas[0]) {
			m.Item.Metadata = resp.Metadatas[0][i]
		}
		if len(resp.Distances) > 0 && i < len(resp.Distances[0]) {
			m.Score = 1 - resp.Distances[0][i]
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) collection(namespace string) string {
	if s.single != "" {
		return s.single
	}
	if namespace == "" {
		return "default"
	}
	return namespace
}

func (s *Store) ensureCollection(ctx context.Context, name string) (string, error) {
	s.mu.RLock()
	id, ok := s.ids[name]
	s.mu.RUnlock()
	if ok {
		return id, nil
	}
	var c collection
	err := s.get(ctx, "/api/v1/collections/"+url.PathEscape(name), &c)
	if err != nil {
		if !s.autoCreate {
			return "", err
		}
		err = s.post(ctx, "/api/v1/collections", createRequest{
			Name:        name,
			Metadata:    map[string]any{"hnsw:space": "cosine"},
			GetOrCreate: true,
		}, &c)
	}
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.ids[name] = c.ID
	s.mu.Unlock()
	return c.ID, nil
}

func (s *Store) get(ctx context.Context, p string, out any) error {
	return s.do(ctx, http.MethodGet, p, nil, out)
}

func (s *Store) post(ctx context.Context, p string, body, out any) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	return s.do(ctx, http.MethodPost, p, &buf, out)
}

func (s *Store) do(ctx context.Context, method, p string, body *bytes.Buffer, out any) error {
	u := s.base.JoinPath(p)
	var req *http.Request
	var err error
	if body != nil {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, u.String(), nil)
	}
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.http.Do(req)
	if err != nil {
		return errmodel.Transport("vectorstore_unreachable", "chroma is unreachable", map[string]any{"path": p}, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return errmodel.Transport("vectorstore_rejected", "chroma rejected the request", map[string]any{"path": p, "status": resp.StatusCode}, nil)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type collection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type createRequest struct {
	Name        string         `json:"name"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	GetOrCreate bool           `json:"get_or_create"`
}

type upsertRequest struct {
	IDs        []string         `json:"ids"`
	Embeddings [][]float32      `json:"embeddings"`
	Metadatas  []map[string]any `json:"metadatas"`
}

type queryRequest struct {
	QueryEmbeddings [][]float32    `json:"query_embeddings"`
	NResults        int            `json:"n_results"`
	Where           map[string]any `json:"where,omitempty"`
	Include         []string       `json:"include,omitempty"`
}

type queryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float32        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
}

func init() { _ = vectorstore.Register("chromadb", Factory) }
