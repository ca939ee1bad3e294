package refstore

import (
	"context"
	"strings"
	"testing"
)

func chunk(id string, tokens int, vector ...float64) Chunk {
	return Chunk{ID: id, Text: "text for " + id, Tokens: tokens, Vector: vector}
}

func TestIndexAndNearestOrdering(t *testing.T) {
	store := NewStore()
	err := store.Index([]Chunk{
		chunk("a", 10, 1, 0),
		chunk("b", 10, 0, 1),
		chunk("c", 10, 0.7, 0.7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.Nearest([]float64{1, 0}, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 results, got %d", len(got))
	}
	if got[0].Chunk.ID != "a" || got[1].Chunk.ID != "c" || got[2].Chunk.ID != "b" {
		t.Errorf("unexpected order: %s, %s, %s", got[0].Chunk.ID, got[1].Chunk.ID, got[2].Chunk.ID)
	}
	if got[0].Score <= got[1].Score {
		t.Errorf("expected descending scores, got %v then %v", got[0].Score, got[1].Score)
	}
}

func TestNearestTieBreaksByID(t *testing.T) {
	store := NewStore()
	err := store.Index([]Chunk{
		chunk("zeta", 10, 1, 0),
		chunk("alpha", 10, 1, 0),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := store.Nearest([]float64{1, 0}, 2)
	if got[0].Chunk.ID != "alpha" {
		t.Errorf("expected alpha first on tie, got %s", got[0].Chunk.ID)
	}
}

func TestNearestKClamped(t *testing.T) {
	store := NewStore()
	if err := store.Index([]Chunk{chunk("a", 10, 1, 0)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := store.Nearest([]float64{1, 0}, 10); len(got) != 1 {
		t.Errorf("expected 1 result, got %d", len(got))
	}
	if got := store.Nearest([]float64{1, 0}, 0); got != nil {
		t.Errorf("expected nil for k=0, got %v", got)
	}
}

func TestIndexRejectsMalformedCorpus(t *testing.T) {
	tests := []struct {
		name   string
		chunks []Chunk
		reason string
	}{
		{"empty id", []Chunk{chunk("", 10, 1)}, "empty id"},
		{"duplicate id", []Chunk{chunk("a", 10, 1), chunk("a", 10, 1)}, "duplicate"},
		{"empty text", []Chunk{{ID: "a", Tokens: 10, Vector: []float64{1}}}, "empty text"},
		{"missing vector", []Chunk{{ID: "a", Text: "x", Tokens: 10}}, "missing embedding"},
		{"dimension mismatch", []Chunk{chunk("a", 10, 1, 0), chunk("b", 10, 1)}, "dimension"},
		{"bad tokens", []Chunk{chunk("a", 0, 1)}, "token count"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			err := store.Index(tt.chunks)
			if err == nil {
				t.Fatal("expected LoadError")
			}
			if _, ok := err.(*LoadError); !ok {
				t.Fatalf("expected *LoadError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("expected reason containing %q, got %q", tt.reason, err.Error())
			}
			if store.Len() != 0 {
				t.Error("failed index must leave the store empty")
			}
		})
	}
}

func TestIndexOnlyOnce(t *testing.T) {
	store := NewStore()
	if err := store.Index([]Chunk{chunk("a", 10, 1)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Index([]Chunk{chunk("b", 10, 1)}); err == nil {
		t.Error("expected error on second index")
	}
}

func TestChunkMarkdownSplitsOnHeadings(t *testing.T) {
	content := "# Guide\nintro text\n\n## Records\nhow records work\n\n## Schema\nhow schema works\n"
	sections := ChunkMarkdown(content, "guide")

	if len(sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(sections))
	}
	if sections[1].Title != "guide: Records" {
		t.Errorf("unexpected title: %q", sections[1].Title)
	}
	if !strings.Contains(sections[2].Text, "how schema works") {
		t.Errorf("section text lost content: %q", sections[2].Text)
	}
}

func TestChunkMarkdownSplitsLargeSections(t *testing.T) {
	big := strings.Repeat("filler content ", 600) // over the split threshold
	content := "## Huge\n" + big + "\n### Part A\ndetails a\n### Part B\ndetails b\n"
	sections := ChunkMarkdown(content, "guide")

	if len(sections) < 2 {
		t.Fatalf("expected subsection split, got %d sections", len(sections))
	}
	last := sections[len(sections)-1]
	if !strings.Contains(last.Title, "Part B") {
		t.Errorf("expected subsection title, got %q", last.Title)
	}
}

func TestIndexMarkdownUsesCache(t *testing.T) {
	cache, err := NewSqliteCacheInMemory()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cache.Close()

	embedder := &countingEmbedder{}
	content := "## A\nalpha content\n\n## B\nbeta content\n"

	first := NewStore()
	if err := first.IndexMarkdown(context.Background(), content, "doc", embedder, cache); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callsAfterFirst := embedder.calls

	second := NewStore()
	if err := second.IndexMarkdown(context.Background(), content, "doc", embedder, cache); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if embedder.calls != callsAfterFirst {
		t.Errorf("expected cached embeddings on reindex, calls went %d -> %d", callsAfterFirst, embedder.calls)
	}
	if second.Len() != first.Len() {
		t.Errorf("reindex produced %d chunks, want %d", second.Len(), first.Len())
	}
}

type countingEmbedder struct {
	calls int
}

func (e *countingEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	e.calls++
	return []float64{float64(len(text)), 1}, nil
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 1 {
		t.Errorf("expected minimum 1, got %d", got)
	}
	if got := EstimateTokens(strings.Repeat("a", 400)); got != 100 {
		t.Errorf("expected 100, got %d", got)
	}
}
