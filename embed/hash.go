// Deterministic local embedder.
//
// Hashing token n-grams into a fixed-size vector gives a cheap, fully
// deterministic embedding with no network dependency. Quality is far below
// a learned model, but overlap-based similarity is good enough for offline
// use and makes tests reproducible.

package embed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

// HashEmbedder implements Embedder with hashed bag-of-words vectors.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder producing vectors of the given
// dimension (default 256 when dim <= 0).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

// Name returns the provider name.
func (e *HashEmbedder) Name() string {
	return "hash"
}

// Embed returns a normalized hashed bag-of-words vector. Identical input
// always yields an identical vector.
func (e *HashEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	vector := make([]float64, e.dim)

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		bucket := int(h.Sum32()) % e.dim
		if bucket < 0 {
			bucket += e.dim
		}
		vector[bucket]++
	}

	var norm float64
	for _, v := range vector {
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vector {
			vector[i] /= norm
		}
	}
	return vector, nil
}

// tokenize lowercases and splits text on non-alphanumeric runes.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
