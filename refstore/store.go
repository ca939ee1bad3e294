// Package refstore holds the indexed reference corpus used for grounding.
//
// Information Hiding:
// - Chunk storage layout hidden behind the Store type
// - Similarity scoring internal to Nearest
// - Read-only after Index; no mutation paths exposed
package refstore

import (
	"fmt"
	"math"
	"sort"
)

// Chunk is one unit of reference text with its precomputed embedding.
// Chunks are immutable once indexed.
type Chunk struct {
	ID     string    `json:"id"`
	Title  string    `json:"title,omitempty"`
	Text   string    `json:"text"`
	Source string    `json:"source,omitempty"`
	Tokens int       `json:"tokens"`
	Vector []float64 `json:"vector,omitempty"`
}

// LoadError reports malformed reference data. It is fatal at startup.
type LoadError struct {
	ChunkID string
	Reason  string
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if e.ChunkID == "" {
		return fmt.Sprintf("reference load failed: %s", e.Reason)
	}
	return fmt.Sprintf("reference load failed: chunk %s: %s", e.ChunkID, e.Reason)
}

// Store is an in-memory index over reference chunks. It is loaded once at
// startup and read-only afterwards; the corpus is small and static, so
// Nearest performs a plain O(n) scan rather than maintaining an index
// structure.
type Store struct {
	chunks []Chunk
	dim    int
}

// NewStore creates an empty store. Call Index before querying.
func NewStore() *Store {
	return &Store{}
}

// Index loads chunks into the store. It may be called once; malformed input
// (duplicate IDs, empty text, inconsistent vector dimensions) fails with a
// *LoadError and leaves the store empty.
func (s *Store) Index(chunks []Chunk) error {
	if len(s.chunks) > 0 {
		return &LoadError{Reason: "store already indexed"}
	}

	seen := make(map[string]bool, len(chunks))
	dim := 0
	for _, c := range chunks {
		if c.ID == "" {
			return &LoadError{Reason: "chunk with empty id"}
		}
		if seen[c.ID] {
			return &LoadError{ChunkID: c.ID, Reason: "duplicate id"}
		}
		seen[c.ID] = true
		if c.Text == "" {
			return &LoadError{ChunkID: c.ID, Reason: "empty text"}
		}
		if len(c.Vector) == 0 {
			return &LoadError{ChunkID: c.ID, Reason: "missing embedding vector"}
		}
		if dim == 0 {
			dim = len(c.Vector)
		} else if len(c.Vector) != dim {
			return &LoadError{ChunkID: c.ID, Reason: fmt.Sprintf(
				"vector dimension %d does not match corpus dimension %d", len(c.Vector), dim)}
		}
		if c.Tokens <= 0 {
			return &LoadError{ChunkID: c.ID, Reason: "non-positive token count"}
		}
	}

	s.chunks = make([]Chunk, len(chunks))
	copy(s.chunks, chunks)
	s.dim = dim
	return nil
}

// Len returns the number of indexed chunks.
func (s *Store) Len() int {
	return len(s.chunks)
}

// TotalTokens returns the summed token cost of the whole corpus.
func (s *Store) TotalTokens() int {
	total := 0
	for _, c := range s.chunks {
		total += c.Tokens
	}
	return total
}

// Scored pairs a chunk with its similarity to a query vector.
type Scored struct {
	Chunk Chunk
	Score float64
}

// Nearest returns the k chunks most similar to query by cosine similarity,
// highest first. Ties are broken by ascending chunk ID so results are stable
// across runs. k larger than the corpus returns the whole corpus.
func (s *Store) Nearest(query []float64, k int) []Scored {
	if k <= 0 || len(s.chunks) == 0 {
		return nil
	}

	scored := make([]Scored, 0, len(s.chunks))
	for _, c := range s.chunks {
		scored = append(scored, Scored{Chunk: c, Score: cosine(query, c.Vector)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if k > len(scored) {
		k = len(scored)
	}
	return scored[:k]
}

// cosine returns the cosine similarity of a and b, or 0 when either vector
// is zero or the dimensions differ.
func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
