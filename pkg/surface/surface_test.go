package surface

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/wilhg/a2ui/pkg/errmodel"
)

func TestDecode_Discriminator(t *testing.T) {
	cases := map[string]Kind{
		`{"type":"surfaceUpdate","operation":"create","surfaceId":"s1","components":[]}`: KindSurfaceUpdate,
		`{"type":"dataModelUpdate","surfaceId":"s1","updates":{"/a":1}}`:                 KindDataModelUpdate,
		`{"type":"deleteSurface","surfaceId":"s1"}`:                                       KindDeleteSurface,
		`{"type":"action","surfaceId":"s1","actionId":"select_therapist"}`:                KindAction,
	}
	for raw, want := range cases {
		m, err := Decode([]byte(raw))
		if err != nil {
			t.Fatalf("decode %s: %v", raw, err)
		}
		if m.Kind() != want || m.Target() != "s1" {
			t.Fatalf("decode %s: kind=%s target=%s", raw, m.Kind(), m.Target())
		}
	}
}

func TestDecode_Rejects(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `{"type":"launch"}`, `{}`} {
		_, err := Decode([]byte(raw))
		if err == nil {
			t.Fatalf("expected error for %s", raw)
		}
		if !errmodel.IsCategory(err, errmodel.CategoryValidation) {
			t.Fatalf("category for %s: %v", raw, err)
		}
	}
}

func TestEncode_WritesType(t *testing.T) {
	v := 3
	b, err := Encode(SurfaceUpdate{Operation: OpUpdate, SurfaceID: "s1", Metadata: map[string]any{"step": "X"}, Version: &v, Timestamp: time.Unix(0, 0).UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"type":"surfaceUpdate"`) || !strings.Contains(string(b), `"version":3`) {
		t.Fatalf("encoded=%s", b)
	}
	m, err := Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	su, ok := m.(SurfaceUpdate)
	if !ok || su.Operation != OpUpdate || su.Version == nil || *su.Version != 3 {
		t.Fatalf("round trip=%#v", m)
	}
}

func TestActionMessage_Conversion(t *testing.T) {
	a := Action{SurfaceID: "s1", UserID: "u1", ActionID: ActionSelectDate, Type: "onDateSelect", Payload: map[string]any{"date": "2025-01-02"}}
	m := NewActionMessage(a)
	b, _ := json.Marshal(m)
	if !strings.Contains(string(b), `"actionType":"onDateSelect"`) {
		t.Fatalf("encoded=%s", b)
	}
	if got := m.Action(); got.ActionID != a.ActionID || got.Type != a.Type || got.Payload["date"] != "2025-01-02" {
		t.Fatalf("action=%#v", got)
	}
}

func TestClone_IsDeep(t *testing.T) {
	s := &Surface{
		SurfaceID:  "s1",
		Components: []Component{{ID: "root", Type: "Card", Props: map[string]any{"title": "a"}}},
		DataModel:  map[string]any{"nested": map[string]any{"x": 1.0}},
		Metadata:   map[string]any{"step": string(StepTherapistSelection)},
		CreatedAt:  time.Now(),
	}
	c := s.Clone()
	c.Components[0].Props["title"] = "b"
	c.DataModel["nested"].(map[string]any)["x"] = 2.0
	if s.Components[0].Props["title"] != "a" || s.DataModel["nested"].(map[string]any)["x"] != 1.0 {
		t.Fatal("clone shares state with original")
	}
	if !c.CreatedAt.Equal(s.CreatedAt) || c.Step() != StepTherapistSelection {
		t.Fatalf("clone lost fields: %#v", c)
	}
}

func TestNormalizeAndFind(t *testing.T) {
	s := Normalize(&Surface{SurfaceID: "s1"})
	if s.Components == nil || s.DataModel == nil || s.Metadata == nil {
		t.Fatalf("not normalized: %#v", s)
	}
	tree := []Component{{ID: "a", Type: "Card", Children: []Component{{ID: "b", Type: "Button"}}}}
	if c, ok := Find(tree, "b"); !ok || c.Type != "Button" {
		t.Fatalf("find b=%v %v", c, ok)
	}
	if _, ok := Find(tree, "zz"); ok {
		t.Fatal("unexpected match")
	}
}
