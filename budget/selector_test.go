package budget

import (
	"context"
	"fmt"
	"testing"

	"github.com/richinex/tabula/embed"
	"github.com/richinex/tabula/refstore"
)

// fixedEmbedder returns the same vector for every input so ranking is
// controlled entirely by the chunk vectors.
type fixedEmbedder struct {
	vector []float64
}

func (e *fixedEmbedder) Name() string { return "fixed" }

func (e *fixedEmbedder) Embed(context.Context, string) ([]float64, error) {
	return e.vector, nil
}

var _ embed.Embedder = (*fixedEmbedder)(nil)

func buildStore(t *testing.T, chunks []refstore.Chunk) *refstore.Store {
	t.Helper()
	store := refstore.NewStore()
	if err := store.Index(chunks); err != nil {
		t.Fatalf("failed to index: %v", err)
	}
	return store
}

func TestSelectNeverExceedsBudget(t *testing.T) {
	var chunks []refstore.Chunk
	for i := 0; i < 20; i++ {
		chunks = append(chunks, refstore.Chunk{
			ID:     fmt.Sprintf("c%02d", i),
			Text:   "chunk",
			Tokens: 100 + i*37,
			Vector: []float64{1, float64(i) / 20},
		})
	}
	store := buildStore(t, chunks)
	selector := NewSelector(store, &fixedEmbedder{vector: []float64{1, 0}}, Options{})

	for _, max := range []int{0, 150, 500, 1200, 5000, 100000} {
		b := Budget{MaxTokens: max, ReservedForResponse: 100}
		selected, err := selector.Select(context.Background(), "q", b)
		if err != nil {
			t.Fatalf("budget %d: unexpected error: %v", max, err)
		}
		if total := TotalTokens(selected); total > b.Available() {
			t.Errorf("budget %d: selected %d tokens, available %d", max, total, b.Available())
		}
	}
}

func TestSelectSkipsOversizedAndKeepsSmaller(t *testing.T) {
	store := buildStore(t, []refstore.Chunk{
		{ID: "big", Text: "big", Tokens: 900, Vector: []float64{1, 0}},
		{ID: "mid", Text: "mid", Tokens: 400, Vector: []float64{0.9, 0.1}},
		{ID: "small", Text: "small", Tokens: 100, Vector: []float64{0.8, 0.2}},
	})
	selector := NewSelector(store, &fixedEmbedder{vector: []float64{1, 0}}, Options{})

	selected, err := selector.Select(context.Background(), "q", Budget{MaxTokens: 600, ReservedForResponse: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// "big" fills 900 > 600 and is skipped; "mid" and "small" both fit.
	if len(selected) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(selected))
	}
	if selected[0].ID != "mid" || selected[1].ID != "small" {
		t.Errorf("unexpected selection: %s, %s", selected[0].ID, selected[1].ID)
	}
}

func TestSelectHonorsRelevanceThreshold(t *testing.T) {
	store := buildStore(t, []refstore.Chunk{
		{ID: "on-topic", Text: "a", Tokens: 10, Vector: []float64{1, 0}},
		{ID: "off-topic", Text: "b", Tokens: 10, Vector: []float64{0, 1}},
	})
	selector := NewSelector(store, &fixedEmbedder{vector: []float64{1, 0}}, Options{RelevanceThreshold: 0.5})

	selected, err := selector.Select(context.Background(), "q", DefaultBudget())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != "on-topic" {
		t.Errorf("expected only the on-topic chunk, got %+v", selected)
	}
}

func TestSelectZeroBudget(t *testing.T) {
	store := buildStore(t, []refstore.Chunk{
		{ID: "a", Text: "a", Tokens: 10, Vector: []float64{1}},
	})
	selector := NewSelector(store, &fixedEmbedder{vector: []float64{1}}, Options{})

	selected, err := selector.Select(context.Background(), "q", Budget{MaxTokens: 100, ReservedForResponse: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(selected) != 0 {
		t.Errorf("expected empty selection, got %d chunks", len(selected))
	}
}

func TestSelectEmptyCorpus(t *testing.T) {
	selector := NewSelector(refstore.NewStore(), &fixedEmbedder{vector: []float64{1}}, Options{})
	selected, err := selector.Select(context.Background(), "q", DefaultBudget())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if selected != nil {
		t.Errorf("expected nil selection, got %v", selected)
	}
}

func TestBudgetAvailableClamped(t *testing.T) {
	b := Budget{MaxTokens: 100, ReservedForResponse: 500}
	if got := b.Available(); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
