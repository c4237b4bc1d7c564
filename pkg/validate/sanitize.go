package validate

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strict = bluemonday.StrictPolicy()
	// bluemonday escapes what it keeps; only markup removal is wanted here.
	unescape = strings.NewReplacer("&#39;", "'", "&#34;", `"`, "&quot;", `"`, "&amp;", "&")
)

// SanitizeString removes HTML tags and the bodies of script and style elements.
func SanitizeString(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	return unescape.Replace(strict.Sanitize(s))
}

// Sanitize returns a copy of v with every string leaf stripped of markup.
// Map keys and non-string scalars are left as they are.
func Sanitize(v any) any {
	switch t := v.(type) {
	case string:
		return SanitizeString(t)
	case map[string]any:
		return SanitizeMessage(t)
	case []any:
		out := make([]any, len(t))
		for i, c := range t {
			out[i] = Sanitize(c)
		}
		return out
	default:
		return v
	}
}

// SanitizeMessage sanitizes every string reachable from obj.
func SanitizeMessage(obj map[string]any) map[string]any {
	if obj == nil {
		return nil
	}
	out := make(map[string]any, len(obj))
	for k, c := range obj {
		out[k] = Sanitize(c)
	}
	return out
}
