// Package gemini registers the "gemini" embedding provider.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	genai "google.golang.org/genai"

	"github.com/wilhg/a2ui/pkg/adapters/embedding"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

const defaultModel = "gemini-embedding-001"

type embedClient struct {
	client *genai.Client
	model  string
}

func (e *embedClient) Name() string { return "gemini" }

func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := embedding.StringOpt(opts, "model", e.model)
	contents := make([]*genai.Content, 0, len(inputs))
	for _, s := range inputs {
		contents = append(contents, genai.NewContentFromText(s, genai.RoleUser))
	}
	res, err := e.client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, errmodel.Transport("embedding_failed", "gemini embedding failed", map[string]any{"model": model}, err)
	}
	out := make([]embedding.Vector, 0, len(res.Embeddings))
	for _, emb := range res.Embeddings {
		out = append(out, embedding.Vector(emb.Values))
	}
	return out, nil
}

// Factory builds the provider. cfg keys: api_key (else GOOGLE_API_KEY), model, base_url.
func Factory(ctx context.Context, cfg map[string]any) (embedding.Embedder, error) {
	apiKey := embedding.StringOpt(cfg, "api_key", os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	if base := embedding.StringOpt(cfg, "base_url", ""); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &embedClient{client: client, model: embedding.StringOpt(cfg, "model", defaultModel)}, nil
}

func init() {
	_ = embedding.Register("gemini", Factory)
}
