package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/store"
	"github.com/wilhg/a2ui/pkg/surface"
)

// Source answers the initial load.
type Source interface {
	ListSurfaces(ctx context.Context, f store.Filter) ([]surface.Surface, error)
}

// ActionPoster delivers actions to an agent over a request/response transport.
type ActionPoster interface {
	PostAction(ctx context.Context, agentID string, a surface.Action) error
}

// HTTP talks to the a2ui HTTP API as one user.
type HTTP struct {
	base   *url.URL
	token  func(ctx context.Context) (string, error)
	client *http.Client
}

// HTTPOption configures HTTP.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(c *http.Client) HTTPOption { return func(h *HTTP) { h.client = c } }

// NewHTTP returns a client for the API rooted at baseURL. token yields the
// bearer credential for each request.
func NewHTTP(baseURL string, token func(ctx context.Context) (string, error), opts ...HTTPOption) (*HTTP, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("client: base url: %w", err)
	}
	h := &HTTP{
		base:   u,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, o := range opts {
		o(h)
	}
	return h, nil
}

// StaticToken returns a token func that always yields tok.
func StaticToken(tok string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return tok, nil }
}

// ListSurfaces calls GET /v1/surfaces. The user is implied by the credential.
func (h *HTTP) ListSurfaces(ctx context.Context, f store.Filter) ([]surface.Surface, error) {
	q := url.Values{}
	if f.AgentID != "" {
		q.Set("agentId", f.AgentID)
	}
	if f.SurfaceID != "" {
		q.Set("surfaceId", f.SurfaceID)
	}
	var out struct {
		Surfaces []surface.Surface `json:"surfaces"`
	}
	if err := h.do(ctx, http.MethodGet, "/v1/surfaces", q, nil, &out); err != nil {
		return nil, err
	}
	for i := range out.Surfaces {
		surface.Normalize(&out.Surfaces[i])
	}
	return out.Surfaces, nil
}

// PostAction calls POST /v1/agents/{agentId}/actions.
func (h *HTTP) PostAction(ctx context.Context, agentID string, a surface.Action) error {
	return h.do(ctx, http.MethodPost, "/v1/agents/"+url.PathEscape(agentID)+"/actions", nil, a, nil)
}

func (h *HTTP) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	u := h.base.JoinPath(path)
	u.RawQuery = q.Encode()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.token != nil {
		tok, err := h.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return errmodel.Transport("http_unavailable", "request failed", map[string]any{"path": path}, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errmodel.Transport("http_read", "reading response failed", map[string]any{"path": path}, err)
	}
	if resp.StatusCode/100 != 2 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// decodeError rebuilds the server's error envelope. Unknown bodies become
// transport errors carrying the status.
func decodeError(status int, data []byte) error {
	var env struct {
		Error *errmodel.Error `json:"error"`
	}
	if json.Unmarshal(data, &env) == nil && env.Error != nil && env.Error.Category != "" {
		return env.Error
	}
	return errmodel.Transport("http_status", http.StatusText(status), map[string]any{"status": status}, nil)
}

// StoreSource reads surfaces directly from a store.
type StoreSource struct {
	Store store.SurfaceStore
}

func (s StoreSource) ListSurfaces(ctx context.Context, f store.Filter) ([]surface.Surface, error) {
	return s.Store.ListSurfaces(ctx, f)
}
