//go:build integration

package gemini

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/wilhg/a2ui/pkg/adapters/llm"
	"github.com/wilhg/a2ui/pkg/narrate"
)

func TestGeminiRephrasesBookingReply(t *testing.T) {
	if os.Getenv("GOOGLE_API_KEY") == "" {
		t.Skip("GOOGLE_API_KEY not set")
	}
	ctx := context.Background()
	m, err := Factory(ctx, map[string]any{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	tpl := narrate.NewTemplates(nil)
	system, err := tpl.Prompts().Render(narrate.SystemPrompt, nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := m.Generate(ctx, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: "Draft reply:\nYour session with **Dr. Ada Park** is confirmed."},
	}, nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if strings.TrimSpace(res.Text) == "" {
		t.Fatal("empty response text")
	}

	text, err := narrate.NewModel(tpl, m).Narrate(ctx, narrate.Event{Name: narrate.EventConfirmed, Vars: map[string]string{"therapist": "Dr. Ada Park"}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(text, "**Dr. Ada Park**") {
		t.Fatalf("narration lost the therapist: %q", text)
	}
}
