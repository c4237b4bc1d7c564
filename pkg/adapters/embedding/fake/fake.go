// Package fake registers a deterministic "fake" embedder: texts sharing
// words get similar vectors, so ranking behaves sensibly offline.
package fake

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"strings"
	"unicode"

	"github.com/wilhg/a2ui/pkg/adapters/embedding"
)

// DefaultDim is the vector size when none is configured.
const DefaultDim = 64

// Embedder hashes each lowercased word into one of dim buckets.
type Embedder struct {
	dim int
}

// New returns a fake embedder with the given dimension (>= 4).
func New(dim int) *Embedder {
	if dim < 4 {
		dim = 4
	}
	return &Embedder{dim: dim}
}

func (e *Embedder) Name() string { return "fake" }

func (e *Embedder) Embed(_ context.Context, inputs []string, _ map[string]any) ([]embedding.Vector, error) {
	out := make([]embedding.Vector, len(inputs))
	for i, s := range inputs {
		vec := make(embedding.Vector, e.dim)
		for _, w := range words(s) {
			h := sha256.Sum256([]byte(w))
			vec[binary.LittleEndian.Uint32(h[:4])%uint32(e.dim)]++
		}
		out[i] = vec
	}
	return out, nil
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Factory reads cfg key "dim".
func Factory(_ context.Context, cfg map[string]any) (embedding.Embedder, error) {
	dim := DefaultDim
	if v, ok := cfg["dim"].(int); ok && v > 0 {
		dim = v
	}
	return New(dim), nil
}

func init() {
	_ = embedding.Register("fake", Factory)
}
