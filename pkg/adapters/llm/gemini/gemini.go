// Package gemini registers the "gemini" chat provider.
package gemini

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	genai "google.golang.org/genai"

	"github.com/wilhg/a2ui/pkg/adapters/llm"
	"github.com/wilhg/a2ui/pkg/errmodel"
)

const defaultModel = "gemini-2.5-flash-lite"

type clientWrapper struct {
	client *genai.Client
	model  string
}

func (c *clientWrapper) Name() string { return "gemini" }

func (c *clientWrapper) Generate(ctx context.Context, messages []llm.Message, opts map[string]any) (llm.GenerateResult, error) {
	model := llm.StringOpt(opts, "model", c.model)

	var (
		cfg   *genai.GenerateContentConfig
		turns []*genai.Content
	)
	for _, m := range messages {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		switch m.Role {
		case llm.RoleSystem:
			cfg = &genai.GenerateContentConfig{SystemInstruction: genai.NewContentFromText(m.Content, genai.RoleUser)}
		case llm.RoleAssistant:
			turns = append(turns, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			turns = append(turns, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	res, err := c.client.Models.GenerateContent(ctx, model, turns, cfg)
	if err != nil {
		return llm.GenerateResult{}, errmodel.Transport("llm_failed", "gemini completion failed", map[string]any{"model": model}, err)
	}
	out := llm.GenerateResult{Text: res.Text(), Model: model}
	if u := res.UsageMetadata; u != nil {
		out.PromptTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
		out.TotalTokens = int(u.TotalTokenCount)
	}
	return out, nil
}

// Factory builds the provider. cfg keys: api_key (else GOOGLE_API_KEY), model, base_url.
func Factory(ctx context.Context, cfg map[string]any) (llm.LLM, error) {
	apiKey := llm.StringOpt(cfg, "api_key", os.Getenv("GOOGLE_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing API key; set GOOGLE_API_KEY or cfg.api_key")
	}
	cc := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	if base := llm.StringOpt(cfg, "base_url", ""); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return &clientWrapper{client: client, model: llm.StringOpt(cfg, "model", defaultModel)}, nil
}

func init() {
	_ = llm.Register("gemini", Factory)
}
