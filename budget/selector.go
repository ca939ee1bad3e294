// Package budget selects grounding chunks under a token budget.
//
// Information Hiding:
// - Relevance scoring and greedy packing internal to Select
// - Embedding provider hidden behind the embed.Embedder interface
package budget

import (
	"context"
	"fmt"

	"github.com/richinex/tabula/embed"
	"github.com/richinex/tabula/refstore"
)

// Budget bounds the token cost of selected grounding material for one query.
type Budget struct {
	MaxTokens           int
	ReservedForResponse int
}

// Available returns the tokens usable for grounding chunks.
func (b Budget) Available() int {
	avail := b.MaxTokens - b.ReservedForResponse
	if avail < 0 {
		return 0
	}
	return avail
}

// DefaultBudget returns the budget used when the caller supplies none.
func DefaultBudget() Budget {
	return Budget{MaxTokens: 16000, ReservedForResponse: 4000}
}

// Options configures a Selector.
type Options struct {
	// RelevanceThreshold excludes chunks scoring below it regardless of
	// remaining budget.
	RelevanceThreshold float64
	// Oversample is how many chunks to pull from the store per query
	// before budget packing. Zero means the whole corpus.
	Oversample int
}

// Selector picks the highest-relevance chunk subset fitting a budget.
// Selection is deterministic given identical inputs and embedder.
type Selector struct {
	store    *refstore.Store
	embedder embed.Embedder
	opts     Options
}

// NewSelector creates a selector over the given store and embedder.
func NewSelector(store *refstore.Store, embedder embed.Embedder, opts Options) *Selector {
	return &Selector{store: store, embedder: embedder, opts: opts}
}

// Select embeds the query, ranks the corpus by similarity, and greedily
// accepts chunks in descending similarity order while the running token
// total stays within budget. Chunks that do not fit are skipped, not
// terminal: a smaller later chunk may still be accepted. Chunks below the
// relevance threshold are never selected. The result may be empty.
func (s *Selector) Select(ctx context.Context, query string, budget Budget) ([]refstore.Chunk, error) {
	available := budget.Available()
	if available <= 0 || s.store.Len() == 0 {
		return nil, nil
	}

	vector, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	k := s.opts.Oversample
	if k <= 0 || k > s.store.Len() {
		k = s.store.Len()
	}
	ranked := s.store.Nearest(vector, k)

	var selected []refstore.Chunk
	total := 0
	for _, cand := range ranked {
		if cand.Score < s.opts.RelevanceThreshold {
			// Ranked descending: everything after is below threshold too.
			break
		}
		if total+cand.Chunk.Tokens > available {
			continue
		}
		selected = append(selected, cand.Chunk)
		total += cand.Chunk.Tokens
	}

	return selected, nil
}

// TotalTokens sums the token cost of a selection.
func TotalTokens(chunks []refstore.Chunk) int {
	total := 0
	for _, c := range chunks {
		total += c.Tokens
	}
	return total
}
