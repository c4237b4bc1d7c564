package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/wilhg/a2ui/pkg/pointer"
	"github.com/wilhg/a2ui/pkg/surface"
	"github.com/wilhg/a2ui/pkg/validate"
)

// Transform maps a bound value to its displayed form. Transforms must be pure.
type Transform func(v any) any

// Names of the built-in transforms.
const (
	TransformUppercase    = "uppercase"
	TransformLowercase    = "lowercase"
	TransformDateFormat   = "date-format"
	TransformNumberFormat = "number-format"
	TransformTruncate     = "truncate"
)

const truncateAt = 50

func builtinTransforms(tag language.Tag) map[string]Transform {
	return map[string]Transform{
		TransformUppercase: func(v any) any { return cases.Upper(tag).String(stringify(v)) },
		TransformLowercase: func(v any) any { return cases.Lower(tag).String(stringify(v)) },
		TransformDateFormat: func(v any) any {
			t, ok := toTime(v)
			if !ok {
				return v
			}
			return t.Format("Jan 2, 2006")
		},
		TransformNumberFormat: func(v any) any {
			f, ok := toFloat(v)
			if !ok {
				return v
			}
			return message.NewPrinter(tag).Sprint(number.Decimal(f, number.MaxFractionDigits(2)))
		},
		TransformTruncate: func(v any) any {
			s := []rune(stringify(v))
			if len(s) <= truncateAt {
				return string(s)
			}
			return string(s[:truncateAt-3]) + "..."
		},
	}
}

// Resolve reads b from dm. A missing path yields the fallback, which may be
// nil. Bound strings are stripped of markup before the transform runs;
// unknown transform names leave the value as is.
func (r *Renderer) Resolve(b surface.Binding, dm map[string]any) any {
	v, found := pointer.Get(dm, b.Path)
	if !found || v == nil {
		return b.Fallback
	}
	if s, isStr := v.(string); isStr {
		v = validate.SanitizeString(s)
	}
	if b.Transform == "" {
		return v
	}
	if fn, known := r.transforms[b.Transform]; known {
		return fn(v)
	}
	return v
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, !t.IsZero()
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
