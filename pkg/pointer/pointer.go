// Package pointer reads and writes JSON documents addressed by RFC 6901 pointers.
//
// Writes never mutate their input: Apply copies the containers along the
// written path and shares every untouched subtree with the original.
package pointer

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-openapi/jsonpointer"
)

// ErrSyntax is returned by Parse for pointers that do not start with '/'.
var ErrSyntax = errors.New("pointer: must be empty or start with '/'")

// Parse splits ptr into decoded reference tokens. "" and "/" address the root and yield no tokens.
func Parse(ptr string) ([]string, error) {
	if IsRoot(ptr) {
		return nil, nil
	}
	if ptr[0] != '/' {
		return nil, ErrSyntax
	}
	tokens := strings.Split(ptr[1:], "/")
	for i, t := range tokens {
		tokens[i] = Unescape(t)
	}
	return tokens, nil
}

// IsRoot reports whether ptr addresses the whole document.
func IsRoot(ptr string) bool { return ptr == "" || ptr == "/" }

// Unescape decodes a single reference token: "~1" becomes "/" and "~0" becomes "~".
func Unescape(token string) string {
	if !strings.Contains(token, "~") {
		return token
	}
	return strings.ReplaceAll(strings.ReplaceAll(token, "~1", "/"), "~0", "~")
}

// Escape encodes a key so it can be used as a reference token.
func Escape(key string) string {
	return strings.ReplaceAll(strings.ReplaceAll(key, "~", "~0"), "/", "~1")
}

// Get reads the value at ptr. The boolean is false when the location does not exist.
func Get(root map[string]any, ptr string) (any, bool) {
	if IsRoot(ptr) {
		return root, root != nil
	}
	p, err := jsonpointer.New(ptr)
	if err != nil {
		return nil, false
	}
	v, _, err := p.Get(root)
	if err != nil {
		return nil, false
	}
	return v, true
}

// Apply returns a document equal to root with value written at ptr.
//
// A root pointer replaces the document when value is an object. Missing object
// keys on the way are created as empty objects. Array tokens must be base-10
// non-negative integers no greater than the array length (equal appends).
// When any of these rules is violated the update is dropped and root is
// returned unchanged.
func Apply(root map[string]any, ptr string, value any) map[string]any {
	tokens, err := Parse(ptr)
	if err != nil {
		return root
	}
	if len(tokens) == 0 {
		if m, ok := value.(map[string]any); ok {
			return m
		}
		return root
	}
	if root == nil {
		root = map[string]any{}
	}
	out, ok := set(root, tokens, value)
	if !ok {
		return root
	}
	return out.(map[string]any)
}

func set(node any, tokens []string, value any) (any, bool) {
	if len(tokens) == 0 {
		return value, true
	}
	tok, rest := tokens[0], tokens[1:]
	switch n := node.(type) {
	case map[string]any:
		child, exists := n[tok]
		if len(rest) > 0 && (!exists || child == nil) {
			child = map[string]any{}
		}
		next, ok := set(child, rest, value)
		if !ok {
			return nil, false
		}
		out := make(map[string]any, len(n)+1)
		for k, v := range n {
			out[k] = v
		}
		out[tok] = next
		return out, true
	case []any:
		idx, ok := index(tok)
		if !ok || idx > len(n) {
			return nil, false
		}
		var child any
		if idx < len(n) {
			child = n[idx]
		}
		if len(rest) > 0 && child == nil {
			child = map[string]any{}
		}
		next, ok := set(child, rest, value)
		if !ok {
			return nil, false
		}
		size := len(n)
		if idx == size {
			size++
		}
		out := make([]any, size)
		copy(out, n)
		out[idx] = next
		return out, true
	default:
		// scalars cannot hold children
		return nil, false
	}
}

func index(tok string) (int, bool) {
	if tok == "" || len(tok) > 9 {
		return 0, false
	}
	for _, r := range tok {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	if len(tok) > 1 && tok[0] == '0' {
		return 0, false
	}
	i, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return i, true
}
