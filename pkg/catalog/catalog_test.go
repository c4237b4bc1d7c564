package catalog

import (
	"strings"
	"testing"
)

func TestDefault_KnownTypes(t *testing.T) {
	r := Default()
	for _, typ := range []string{"Button", "Card", "TherapistCard", "CalendarPicker", "TimeSlotButton", "AppointmentCard", "PieChart"} {
		if !r.Has(typ) {
			t.Fatalf("missing %s", typ)
		}
	}
	if r.Has("Iframe") {
		t.Fatal("unexpected type Iframe")
	}
	e, _ := r.Lookup("AppointmentCard")
	if !e.Allows("onJoin") || e.Allows("onClick") {
		t.Fatalf("AppointmentCard actions=%v", e.Actions)
	}
	if c, _ := r.Lookup("CalendarPicker"); len(c.RequiredActions) != 1 || c.RequiredActions[0] != "onDateSelect" {
		t.Fatalf("CalendarPicker required=%v", c.RequiredActions)
	}
}

func TestValidateProps(t *testing.T) {
	e, _ := Default().Lookup("TherapistCard")
	ok := map[string]any{"name": "Dr. A", "role": "CBT", "bio": "x", "expertise": []any{"CBT"}, "rating": 4.9, "onClick": "select_therapist"}
	if err := e.ValidateProps(ok); err != nil {
		t.Fatalf("valid props rejected: %v", err)
	}
	bad := map[string]any{"name": 12, "role": "CBT", "bio": "x", "expertise": []any{"CBT"}, "onClick": "select_therapist"}
	if err := e.ValidateProps(bad); err == nil {
		t.Fatal("expected type error")
	}
	missing := map[string]any{"name": "Dr. A"}
	if err := e.ValidateProps(missing); err == nil {
		t.Fatal("expected required error")
	}

	appt, _ := Default().Lookup("AppointmentCard")
	degraded := map[string]any{"appointment": map[string]any{
		"therapist":    map[string]any{"full_name": "Dr. A"},
		"start_time":   "2025-01-02T10:00:00Z",
		"end_time":     "2025-01-02T10:45:00Z",
		"status":       "confirmed",
		"meeting_link": nil,
	}}
	if err := appt.ValidateProps(degraded); err != nil {
		t.Fatalf("null meeting link rejected: %v", err)
	}
}

func TestBuild_DefaultsAndFactory(t *testing.T) {
	r, err := Load(defaultCatalog, WithFactory("Button", func(p map[string]any) map[string]any {
		p["children"] = strings.ToUpper(p["children"].(string))
		return p
	}))
	if err != nil {
		t.Fatal(err)
	}
	e, _ := r.Lookup("Button")
	got := e.Build(map[string]any{"children": "ok", "size": "sm"})
	if got["variant"] != "default" || got["size"] != "sm" || got["children"] != "OK" {
		t.Fatalf("build=%v", got)
	}
	if _, err := Load(defaultCatalog, WithFactory("Nope", nil)); err == nil {
		t.Fatal("expected unknown type error")
	}
}

func TestLoad_Rejects(t *testing.T) {
	if _, err := Load([]byte("components:\n  - type: A\n  - type: A\n")); err == nil {
		t.Fatal("expected duplicate error")
	}
	if _, err := Load([]byte("components:\n  - category: x\n")); err == nil {
		t.Fatal("expected missing type error")
	}
	if _, err := Load([]byte("components:\n  - type: A\n    props: {type: 12}\n")); err == nil {
		t.Fatal("expected schema compile error")
	}
	if got := Default().ByCategory("visualization"); len(got) != 3 {
		t.Fatalf("visualization=%d", len(got))
	}
}

func TestEvents(t *testing.T) {
	got := Events(map[string]any{"onClick": "go", "onion": "x", "onChange": 3, "title": "t"}, []string{"onBlur", "onClick"})
	if strings.Join(got, ",") != "onBlur,onClick" {
		t.Fatalf("events=%v", got)
	}
	e, _ := Default().Lookup("TimeSlotButton")
	if bad := e.Disallowed(map[string]any{"onPress": "select_time_slot", "onClick": "x"}, nil); len(bad) != 1 || bad[0] != "onClick" {
		t.Fatalf("disallowed=%v", bad)
	}
}
