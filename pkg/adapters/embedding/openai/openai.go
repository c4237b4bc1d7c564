// Package openai registers the "openai" embedding provider.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"os"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/wilhg/a2ui/pkg/adapters/embedding"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

const defaultModel = "text-embedding-3-small"

type embedClient struct {
	client oa.Client
	model  string
}

func (e *embedClient) Name() string { return "openai" }

func (e *embedClient) Embed(ctx context.Context, inputs []string, opts map[string]any) ([]embedding.Vector, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	model := embedding.StringOpt(opts, "model", e.model)
	resp, err := e.client.Embeddings.New(ctx, oa.EmbeddingNewParams{
		Model: oa.EmbeddingModel(model),
		Input: oa.EmbeddingNewParamsInputUnion{OfArrayOfStrings: inputs},
	})
	if err != nil {
		return nil, errmodel.Transport("embedding_failed", "openai embedding failed", map[string]any{"model": model}, err)
	}
	out := make([]embedding.Vector, len(inputs))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) {
			continue
		}
		vec := make(embedding.Vector, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}

// Factory builds the provider. cfg keys: api_key (else OPENAI_API_KEY), model, base_url.
func Factory(_ context.Context, cfg map[string]any) (embedding.Embedder, error) {
	apiKey := embedding.StringOpt(cfg, "api_key", os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing API key; set OPENAI_API_KEY or cfg.api_key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(&http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}),
	}
	if base := embedding.StringOpt(cfg, "base_url", ""); base != "" {
		opts = append(opts, option.WithBaseURL(base), option.WithMaxRetries(0))
	}
	return &embedClient{client: oa.NewClient(opts...), model: embedding.StringOpt(cfg, "model", defaultModel)}, nil
}

func init() {
	_ = embedding.Register("openai", Factory)
}
