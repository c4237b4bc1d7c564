package narrate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/wilhg/a2ui/pkg/adapters/llm"
	"github.com/wilhg/a2ui/pkg/logging"
	a2otel "github.com/wilhg/a2ui/pkg/otel"
)

// DefaultPromptTokens bounds what a model narrator sends per event.
const DefaultPromptTokens = 512

var tracer = a2otel.Tracer("narrate")

// Model rephrases the template text of an event with a language model. Any
// model failure, or a reply that drops the emphasized values, falls back to
// the template text.
type Model struct {
	base   *Templates
	model  llm.LLM
	budget Budget
	log    *slog.Logger
}

// ModelOption configures a Model.
type ModelOption func(*Model)

func WithBudget(b Budget) ModelOption       { return func(m *Model) { m.budget = b } }
func WithLogger(l *slog.Logger) ModelOption { return func(m *Model) { m.log = l } }

// NewModel wraps base with model.
func NewModel(base *Templates, model llm.LLM, opts ...ModelOption) *Model {
	m := &Model{base: base, model: model, budget: NewBudget(RuneEstimator, DefaultPromptTokens)}
	for _, o := range opts {
		o(m)
	}
	m.log = logging.OrDiscard(m.log)
	return m
}

func (m *Model) Narrate(ctx context.Context, ev Event) (string, error) {
	draft, err := m.base.Narrate(ctx, ev)
	if err != nil {
		return "", err
	}
	ctx, span := tracer.Start(ctx, "narrate.model")
	defer span.End()

	system, err := m.base.Prompts().Render(SystemPrompt, nil)
	if err != nil {
		return draft, nil
	}
	reserved := m.budget.Cost(system) + m.budget.Cost(draft)
	if !m.budget.Fits(system + draft) {
		return draft, nil
	}
	facts := make([]Fact, 0, len(ev.Vars))
	for k, v := range ev.Vars {
		facts = append(facts, Fact{Key: k, Text: v})
	}
	chosen, dropped := m.budget.Select(reserved, facts)
	if dropped > 0 {
		m.log.Debug("narrator context trimmed", slog.String("event", ev.Name), slog.Int("dropped", dropped))
	}

	var user strings.Builder
	user.WriteString("Draft reply:\n")
	user.WriteString(draft)
	if len(chosen) > 0 {
		user.WriteString("\n\nContext:\n")
		for _, f := range chosen {
			user.WriteString("- " + f.Key + ": " + f.Text + "\n")
		}
	}
	res, err := m.model.Generate(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user.String()},
	}, nil)
	if err != nil {
		a2otel.Fail(span, err)
		m.log.Warn("narrator model failed; using template", slog.String("event", ev.Name), slog.String("provider", m.model.Name()), slog.Any("err", err))
		return draft, nil
	}
	text := strings.TrimSpace(res.Text)
	if text == "" || !keepsEmphasis(draft, text) {
		return draft, nil
	}
	return text, nil
}

// keepsEmphasis reports whether every **value** of draft survives in text.
func keepsEmphasis(draft, text string) bool {
	parts := strings.Split(draft, "**")
	var want []string
	for i := 1; i < len(parts); i += 2 {
		want = append(want, parts[i])
	}
	for _, w := range want {
		if !strings.Contains(text, "**"+w+"**") {
			return false
		}
	}
	return true
}
