package errmodel

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewAndFrom(t *testing.T) {
	e := Validation("missing", "field missing", map[string]any{"field": "surfaceId"})
	if e.Category != CategoryValidation || e.Code != "missing" {
		t.Fatalf("unexpected: %#v", e)
	}
	if got := From(e); got != e {
		t.Fatalf("From should return same error instance")
	}
}

func TestFrom_Wrapped(t *testing.T) {
	base := NotFound("surface_not_found", "surface not found", nil)
	wrapped := fmt.Errorf("load s-1: %w", base)
	if got := From(wrapped); got != base {
		t.Fatalf("From(wrapped)=%v want %v", got, base)
	}
	if !IsCategory(wrapped, CategoryNotFound) {
		t.Fatal("expected not_found category")
	}
	if got := From(errors.New("boom")); got.Category != CategorySystem {
		t.Fatalf("plain error category=%s", got.Category)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *Error
		want int
	}{
		{Validation("bad", "x", nil), http.StatusBadRequest},
		{NotFound("nf", "x", nil), http.StatusNotFound},
		{Conflict("version_conflict", "x", nil), http.StatusConflict},
		{UnknownAction("fly", nil), http.StatusUnprocessableEntity},
		{Policy("unauthorized", "x", nil), http.StatusUnauthorized},
		{Policy("rate_limited", "x", nil), http.StatusTooManyRequests},
		{Policy("forbidden", "x", nil), http.StatusForbidden},
		{Transport("channel_unavailable", "x", nil, nil), http.StatusServiceUnavailable},
		{Provisioning("room_failed", "x", nil, errors.New("upstream")), http.StatusBadGateway},
		{System("internal", "x", nil, nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.want {
			t.Fatalf("%s/%s: status=%d want %d", c.err.Category, c.err.Code, got, c.want)
		}
	}
}

func TestUnknownAction_Context(t *testing.T) {
	e := UnknownAction("launch_rocket", map[string]any{"surface_id": "s-1"})
	if e.Context["action_id"] != "launch_rocket" || e.Context["surface_id"] != "s-1" {
		t.Fatalf("context=%v", e.Context)
	}
	if UserMessage(e) == "" || strings.Contains(UserMessage(e), "launch_rocket") {
		t.Fatalf("user message leaks or is empty: %q", UserMessage(e))
	}
}

func TestWriteHTTP_StatusAndEnvelope(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	WriteHTTP(rr, req, Validation("bad_json", "oops", nil))
	if rr.Code != 400 {
		t.Fatalf("status=%d want 400", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "\"category\":\"validation\"") {
		t.Fatalf("body missing category: %s", body)
	}
	if !strings.Contains(body, "\"code\":\"bad_json\"") {
		t.Fatalf("body missing code: %s", body)
	}
}
