package render

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/wilhg/a2ui/pkg/audit"
	"github.com/wilhg/a2ui/pkg/clock"
	"github.com/wilhg/a2ui/pkg/errmodel"
	"github.com/wilhg/a2ui/pkg/logging"
	"github.com/wilhg/a2ui/pkg/surface"
)

var t0 = time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC)

func bookingSurface() surface.Surface {
	return surface.Surface{
		SurfaceID: "s-1",
		UserID:    "u-1",
		AgentID:   "booking-agent",
		DataModel: map[string]any{"user": map[string]any{"name": "ana"}, "total": 1234567.891},
		Components: []surface.Component{{
			ID:   "card",
			Type: "Card",
			Children: []surface.Component{
				{ID: "title", Type: "CardTitle", DataBinding: map[string]surface.Binding{
					"children": {Path: "/user/name", Transform: TransformUppercase},
				}},
				{ID: "therapist-card-t-1", Type: "TherapistCard",
					Props: map[string]any{
						"name": "Dr. Rao", "role": "CBT", "bio": "Calm.", "expertise": []any{"Anxiety"},
						"onClick": surface.ActionSelectTherapist,
					},
					ActionPayload: map[string]any{"therapistId": "t-1"}},
				{ID: "mystery", Type: "Marquee", Props: map[string]any{"text": "hi"}},
				{ID: "sneaky", Type: "Button", Props: map[string]any{"onDateSelect": "select_date"}},
			},
		}},
	}
}

func TestRender_TreeAndPlaceholders(t *testing.T) {
	mem := audit.NewMemory()
	r := New(WithAudit(audit.New(logging.Discard(), audit.WithSink(mem))))
	root := r.Render(context.Background(), bookingSurface(), nil)

	require.Equal(t, SurfaceType, root.Type)
	require.Len(t, root.Children, 1)
	card := root.Children[0]
	require.Len(t, card.Children, 4)

	assert.Equal(t, "ANA", root.Find("title").Props["children"])

	tc := root.Find("therapist-card-t-1")
	require.NotNil(t, tc)
	assert.False(t, tc.Placeholder)
	assert.Equal(t, []string{"onClick"}, tc.Events)

	assert.Equal(t, ReasonUnknown, root.Find("mystery").Reason)
	sneaky := root.Find("sneaky")
	assert.True(t, sneaky.Placeholder)
	assert.Empty(t, sneaky.Events)

	assert.Len(t, mem.Events(audit.ComponentRender), 5)
	assert.Len(t, mem.Events(audit.DataAccess), 1)
	assert.Len(t, mem.Events(audit.SecurityViolation), 2)
	assert.Equal(t, 1, r.Monitor().Stats().RenderCount)
}

func TestRender_TooDeep(t *testing.T) {
	leaf := surface.Component{ID: "n-21", Type: "Card"}
	for i := 20; i >= 1; i-- {
		leaf = surface.Component{ID: "n-" + string(rune('a'+i)), Type: "Card", Children: []surface.Component{leaf}}
	}
	root := New().Render(context.Background(), surface.Surface{SurfaceID: "s", Components: []surface.Component{leaf}}, nil)
	el := root.Children[0]
	for depth := 1; depth < surface.MaxTreeDepth; depth++ {
		require.False(t, el.Placeholder)
		el = el.Children[0]
	}
	assert.False(t, el.Placeholder, "depth 20 renders")
	assert.Equal(t, ReasonDepth, el.Children[0].Reason)
}

func TestHandler_PayloadAndAudit(t *testing.T) {
	mem := audit.NewMemory()
	r := New(WithAudit(audit.New(logging.Discard(), audit.WithSink(mem))), WithClock(clock.Fake(t0)))
	var got []surface.Action
	onAction := func(_ context.Context, a surface.Action) error {
		got = append(got, a)
		return nil
	}
	root := r.Render(context.Background(), bookingSurface(), onAction)
	tc := root.Find("therapist-card-t-1")

	require.NoError(t, tc.Trigger(context.Background(), "onClick", map[string]any{"date": "2025-02-03"}))
	require.Len(t, got, 1)
	a := got[0]
	assert.Equal(t, surface.ActionSelectTherapist, a.ActionID)
	assert.Equal(t, "onClick", a.Type)
	assert.Equal(t, map[string]any{"therapistId": "t-1", "date": "2025-02-03"}, a.Payload)
	assert.Equal(t, map[string]any{"componentId": "therapist-card-t-1", "componentType": "TherapistCard"}, a.Metadata)
	assert.Equal(t, "u-1", a.UserID)
	assert.Equal(t, t0, a.Timestamp)
	assert.Len(t, mem.Events(audit.UserAction), 1)

	err := tc.Trigger(context.Background(), "onClick", map[string]any{"reason": "<script>alert(1)</script>"})
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryValidation))
	assert.Len(t, got, 1, "blocked actions never reach onAction")

	err = tc.Trigger(context.Background(), "onHover", nil)
	assert.True(t, errmodel.IsCategory(err, errmodel.CategoryUnknownAction))
}

func TestHandler_RateLimitPerSurface(t *testing.T) {
	fc := clock.Fake(t0)
	r := New(WithClock(fc))
	calls := 0
	root := r.Render(context.Background(), bookingSurface(), func(context.Context, surface.Action) error {
		calls++
		return nil
	})
	tc := root.Find("therapist-card-t-1")
	for i := 0; i < DefaultActionsPerSecond; i++ {
		require.NoError(t, tc.Trigger(context.Background(), "onClick", nil))
	}
	require.ErrorIs(t, tc.Trigger(context.Background(), "onClick", nil), ErrRateLimited)

	other := bookingSurface()
	other.SurfaceID = "s-2"
	require.NoError(t, r.Render(context.Background(), other, func(context.Context, surface.Action) error { return nil }).
		Find("therapist-card-t-1").Trigger(context.Background(), "onClick", nil))

	fc.Advance(time.Second)
	require.NoError(t, tc.Trigger(context.Background(), "onClick", nil))
	assert.Equal(t, DefaultActionsPerSecond+2, calls)
}

func TestResolve(t *testing.T) {
	r := New(WithTransform("initials", func(v any) any {
		s, _ := v.(string)
		return strings.ToUpper(s[:1])
	}))
	dm := map[string]any{
		"name":  "Ana <b>Silva</b>",
		"total": 1234567.891,
		"count": "1500",
		"when":  "2025-02-03T10:00:00Z",
		"day":   "2025-02-03",
		"bio":   strings.Repeat("x", 60),
		"slots": []any{"09:00", "10:00"},
	}
	cases := []struct {
		b    surface.Binding
		want any
	}{
		{surface.Binding{Path: "/name"}, "Ana Silva"},
		{surface.Binding{Path: "/name", Transform: TransformLowercase}, "ana silva"},
		{surface.Binding{Path: "/total", Transform: TransformNumberFormat}, "1,234,567.89"},
		{surface.Binding{Path: "/count", Transform: TransformNumberFormat}, "1,500"},
		{surface.Binding{Path: "/when", Transform: TransformDateFormat}, "Feb 3, 2025"},
		{surface.Binding{Path: "/day", Transform: TransformDateFormat}, "Feb 3, 2025"},
		{surface.Binding{Path: "/name", Transform: TransformDateFormat}, "Ana Silva"},
		{surface.Binding{Path: "/bio", Transform: TransformTruncate}, strings.Repeat("x", 47) + "..."},
		{surface.Binding{Path: "/slots/1"}, "10:00"},
		{surface.Binding{Path: "/name", Transform: "initials"}, "A"},
		{surface.Binding{Path: "/name", Transform: "nope"}, "Ana Silva"},
		{surface.Binding{Path: "/missing", Fallback: "n/a"}, "n/a"},
		{surface.Binding{Path: "/missing"}, nil},
		{surface.Binding{Path: "/slots/9", Fallback: "-"}, "-"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, r.Resolve(tc.b, dm), "%s|%s", tc.b.Path, tc.b.Transform)
	}

	de := New(WithLocale(language.German))
	assert.Equal(t, "1.234,5", de.Resolve(surface.Binding{Path: "/x", Transform: TransformNumberFormat}, map[string]any{"x": 1234.5}))
}

func TestMonitor(t *testing.T) {
	var buf bytes.Buffer
	m := NewMonitor(logging.New(logging.Config{Output: &buf}), 3, 0)
	for i := 1; i <= 4; i++ {
		m.TrackRender("s-1", time.Duration(i)*10*time.Millisecond)
	}
	s := m.Stats()
	assert.Equal(t, 3, s.RenderCount)
	assert.Equal(t, 30*time.Millisecond, s.AvgRender)
	assert.Equal(t, 40*time.Millisecond, s.LastRender)
	assert.Empty(t, buf.String())

	m.TrackRender("s-1", 150*time.Millisecond)
	assert.Contains(t, buf.String(), "slow render")
	m.TrackAction("click", 4*time.Millisecond)
	assert.Equal(t, 1, m.Stats().ActionCount)
}
