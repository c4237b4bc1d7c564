package agent

import (
	"context"
	"testing"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/telemetry"
)

func newDispatcher(t *testing.T, a *stubAgent) (*Dispatcher, *audit.Memory, *telemetry.Recorder) {
	t.Helper()
	reg, err := NewRegistry(a)
	if err != nil {
		t.Fatal(err)
	}
	mem := audit.NewMemory()
	rec := &telemetry.Recorder{}
	return NewDispatcher(reg, WithAudit(audit.New(nil, audit.WithSink(mem))), WithReporter(rec)), mem, rec
}

func TestDispatch_RoutesValidAction(t *testing.T) {
	stub := &stubAgent{id: "booking-agent"}
	d, mem, _ := newDispatcher(t, stub)
	res, err := d.Dispatch(context.Background(), "booking-agent", surface.Action{
		SurfaceID: "s1", UserID: "u1", ActionID: surface.ActionSelectTherapist,
		Payload: map[string]any{"therapistId": "t-1", "reason": "  <b>stress</b>  "},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Version != 2 {
		t.Fatalf("result %+v", res)
	}
	got := stub.seen()
	if len(got) != 1 || got[0].Payload["therapistId"] != "t-1" {
		t.Fatalf("agent saw %+v", got)
	}
	if reason := got[0].Payload["reason"]; reason == "  <b>stress</b>  " {
		t.Fatalf("payload not sanitized: %q", reason)
	}
	if evs := mem.Events(audit.UserAction); len(evs) != 1 || evs[0].ActionID != surface.ActionSelectTherapist {
		t.Fatalf("audit %+v", evs)
	}
}

func TestDispatch_Rejections(t *testing.T) {
	cases := []struct {
		name     string
		action   surface.Action
		category string
	}{
		{"no user", surface.Action{SurfaceID: "s1", ActionID: surface.ActionCancelBooking}, errmodel.CategoryPolicy},
		{"unknown action", surface.Action{SurfaceID: "s1", UserID: "u1", ActionID: "rm_rf"}, errmodel.CategoryUnknownAction},
		{"script payload", surface.Action{SurfaceID: "s1", UserID: "u1", ActionID: surface.ActionSelectTherapist,
			Payload: map[string]any{"therapistId": "<script>alert(1)</script>"}}, errmodel.CategoryValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubAgent{id: "booking-agent"}
			d, mem, rec := newDispatcher(t, stub)
			_, err := d.Dispatch(context.Background(), "booking-agent", tc.action)
			if !errmodel.IsCategory(err, tc.category) {
				t.Fatalf("want %s, got %v", tc.category, err)
			}
			if len(stub.seen()) != 0 {
				t.Fatal("agent must not see rejected actions")
			}
			if len(rec.Snapshot()) != 1 {
				t.Fatalf("reports %+v", rec.Snapshot())
			}
			if tc.category != errmodel.CategoryPolicy && len(mem.Events(audit.SecurityViolation)) != 1 {
				t.Fatalf("security violation not audited: %+v", mem.Events())
			}
		})
	}
}

func TestDispatch_UnknownAgentAndAgentErrors(t *testing.T) {
	stub := &stubAgent{id: "booking-agent", err: errmodel.Conflict("version_conflict", "retry", nil)}
	d, _, rec := newDispatcher(t, stub)
	a := surface.Action{SurfaceID: "s1", UserID: "u1", ActionID: surface.ActionCancelBooking}

	if _, err := d.Dispatch(context.Background(), "nobody", a); !errmodel.IsCategory(err, errmodel.CategoryNotFound) {
		t.Fatalf("want not found, got %v", err)
	}
	_, err := d.Dispatch(context.Background(), "booking-agent", a)
	if !errmodel.IsCategory(err, errmodel.CategoryConflict) {
		t.Fatalf("want conflict, got %v", err)
	}
	reports := rec.Snapshot()
	if len(reports) != 2 || reports[1].Context.SurfaceID != "s1" || reports[1].Metadata["category"] != errmodel.CategoryConflict {
		t.Fatalf("reports %+v", reports)
	}
}

func TestInit_RequiresUserAndSanitizes(t *testing.T) {
	stub := &stubAgent{id: "booking-agent"}
	d, _, _ := newDispatcher(t, stub)
	if _, err := d.Init(context.Background(), "booking-agent", InitRequest{}); !errmodel.IsCategory(err, errmodel.CategoryPolicy) {
		t.Fatalf("want policy error, got %v", err)
	}
	res, err := d.Init(context.Background(), "booking-agent", InitRequest{UserID: "u1", Specialization: " <i>Anxiety</i> "})
	if err != nil {
		t.Fatal(err)
	}
	if res.SurfaceID != "s-u1" {
		t.Fatalf("result %+v", res)
	}
	if got := stub.inits[0].Specialization; got != " Anxiety " {
		t.Fatalf("specialization %q", got)
	}
}
