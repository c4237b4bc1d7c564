package prompt

import (
	"strings"
	"testing"
)

func TestLineDiff(t *testing.T) {
	d := LineDiff("a", "b", "Hello\nWorld", "Hello\nEveryone")
	want := "--- a\n+++ b\n Hello\n-World\n+Everyone\n"
	if d != want {
		t.Fatalf("diff=%q want %q", d, want)
	}
	if LineDiff("a", "b", "same", "same") != "" {
		t.Fatal("equal inputs must not diff")
	}
}

func TestLineDiff_InsertKeepsFollowingLines(t *testing.T) {
	d := LineDiff("a", "b", "one\ntwo\nthree", "one\nextra\ntwo\nthree")
	if strings.Contains(d, "-two") || strings.Contains(d, "-three") {
		t.Fatalf("insertion rewrote unchanged lines: %q", d)
	}
	if !strings.Contains(d, "+extra\n") {
		t.Fatalf("missing insertion: %q", d)
	}
}

func TestStoreOverrides(t *testing.T) {
	s := NewStore()
	for _, body := range []string{"A", "B"} {
		if _, _, err := s.Save(Prompt{Name: "x", Body: body}); err != nil {
			t.Fatal(err)
		}
	}
	if _, _, err := s.Save(Prompt{Name: "y", Body: "only"}); err != nil {
		t.Fatal(err)
	}
	if d := s.Diff("x", 1, 2); !strings.HasPrefix(d, "--- x@v1\n+++ x@v2\n") {
		t.Fatalf("diff header %q", d)
	}
	if d := s.Diff("x", 1, 9); d != "" {
		t.Fatalf("missing version should yield no diff, got %q", d)
	}
	ov := s.Overrides()
	if len(ov) != 1 || ov["x"] == "" {
		t.Fatalf("overrides=%v", ov)
	}
}
