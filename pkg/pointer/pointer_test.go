package pointer

import (
	"encoding/json"
	"reflect"
	"testing"
)

func snapshot(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestParse(t *testing.T) {
	got, err := Parse("/a~1b/m~0n/~01")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"a/b", "m~n", "~1"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("tokens=%q want %q", got, want)
	}
	if _, err := Parse("a/b"); err == nil {
		t.Fatal("expected syntax error")
	}
	for _, root := range []string{"", "/"} {
		if toks, err := Parse(root); err != nil || len(toks) != 0 {
			t.Fatalf("root %q: %v %v", root, toks, err)
		}
	}
}

func TestApply_RootReplace(t *testing.T) {
	root := map[string]any{"a": 1.0}
	next := map[string]any{"b": 2.0}
	if got := Apply(root, "", next); !reflect.DeepEqual(got, next) {
		t.Fatalf("\"\" got %v", got)
	}
	if got := Apply(root, "/", next); !reflect.DeepEqual(got, next) {
		t.Fatalf("\"/\" got %v", got)
	}
	if got := Apply(root, "/", "scalar"); !reflect.DeepEqual(got, root) {
		t.Fatalf("scalar root replace should be dropped, got %v", got)
	}
}

func TestApply_CreatesIntermediatesAndDoesNotMutate(t *testing.T) {
	root := map[string]any{"keep": map[string]any{"x": 1.0}}
	before := snapshot(t, root)
	got := Apply(root, "/a/b/c", "v")
	if snapshot(t, root) != before {
		t.Fatal("input mutated")
	}
	v, ok := Get(got, "/a/b/c")
	if !ok || v != "v" {
		t.Fatalf("read back=%v ok=%v", v, ok)
	}
	// untouched subtree is shared
	if reflect.ValueOf(got["keep"]).Pointer() != reflect.ValueOf(root["keep"]).Pointer() {
		t.Fatal("untouched subtree was copied")
	}
}

func TestApply_EscapedKeys(t *testing.T) {
	got := Apply(map[string]any{}, "/a~1b/m~0n", 1.0)
	inner, ok := got["a/b"].(map[string]any)
	if !ok || inner["m~n"] != 1.0 {
		t.Fatalf("got %v", got)
	}
}

func TestApply_Arrays(t *testing.T) {
	root := map[string]any{"list": []any{map[string]any{"name": "a"}, map[string]any{"name": "b"}}}
	before := snapshot(t, root)

	got := Apply(root, "/list/1/name", "B")
	if v, _ := Get(got, "/list/1/name"); v != "B" {
		t.Fatalf("index write got %v", v)
	}
	if v, _ := Get(got, "/list/0/name"); v != "a" {
		t.Fatalf("sibling changed: %v", v)
	}

	appended := Apply(root, "/list/2", "c")
	if l := appended["list"].([]any); len(l) != 3 || l[2] != "c" {
		t.Fatalf("append got %v", l)
	}

	for _, bad := range []string{"/list/x", "/list/-1", "/list/-", "/list/9", "/list/01", "/list/1.5"} {
		if out := Apply(root, bad, "z"); !reflect.DeepEqual(out, root) {
			t.Fatalf("%s should be dropped, got %v", bad, out)
		}
	}
	if snapshot(t, root) != before {
		t.Fatal("input mutated")
	}
}

func TestApply_ScalarIntermediateDropped(t *testing.T) {
	root := map[string]any{"n": 5.0}
	if out := Apply(root, "/n/child", 1.0); !reflect.DeepEqual(out, root) {
		t.Fatalf("got %v", out)
	}
}

func TestApply_Idempotent(t *testing.T) {
	root := map[string]any{"a": map[string]any{"b": []any{map[string]any{"c": 0.0}}}}
	once := Apply(root, "/a/b/0/c", 42.0)
	twice := Apply(once, "/a/b/0/c", 42.0)
	if !reflect.DeepEqual(once, twice) {
		t.Fatalf("not idempotent: %v vs %v", once, twice)
	}
	if v, ok := Get(twice, "/a/b/0/c"); !ok || v != 42.0 {
		t.Fatalf("read back=%v", v)
	}
}

func TestGet_Missing(t *testing.T) {
	root := map[string]any{"a": []any{1.0}}
	if _, ok := Get(root, "/b"); ok {
		t.Fatal("expected missing")
	}
	if _, ok := Get(root, "/a/3"); ok {
		t.Fatal("expected out of range")
	}
	if v, ok := Get(root, ""); !ok || !reflect.DeepEqual(v, root) {
		t.Fatalf("root read=%v", v)
	}
}

func TestEscapeRoundTrip(t *testing.T) {
	for _, k := range []string{"plain", "a/b", "~x", "~1/"} {
		if got := Unescape(Escape(k)); got != k {
			t.Fatalf("round trip %q -> %q", k, got)
		}
	}
}
