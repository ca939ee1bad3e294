// Corpus loading and markdown chunking.
//
// Reference documentation ships as markdown files; IndexMarkdown splits them
// on section headings so each chunk covers one topic. Prepared corpora can
// also be loaded directly from a JSON file with precomputed vectors.

package refstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Embedder maps text to a fixed-length vector. It mirrors embed.Embedder so
// refstore does not import the embed package.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// LoadFile reads a prepared JSON corpus (an array of chunks with vectors)
// and indexes it.
func (s *Store) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &LoadError{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}

	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return &LoadError{Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	return s.Index(chunks)
}

// IndexMarkdown chunks a markdown document, embeds each chunk, and indexes
// the result. Source tags every produced chunk. An optional cache avoids
// recomputing embeddings for unchanged content.
func (s *Store) IndexMarkdown(ctx context.Context, content, source string, embedder Embedder, cache *SqliteCache) error {
	sections := ChunkMarkdown(content, source)
	chunks := make([]Chunk, 0, len(sections))

	for _, sec := range sections {
		id := chunkID(sec.Text, sec.Title, source)

		var vector []float64
		if cache != nil {
			if v, ok := cache.Get(id); ok {
				vector = v
			}
		}
		if vector == nil {
			v, err := embedder.Embed(ctx, sec.Text)
			if err != nil {
				return &LoadError{ChunkID: id, Reason: fmt.Sprintf("embedding failed: %v", err)}
			}
			vector = v
			if cache != nil {
				if err := cache.Put(id, vector); err != nil {
					return &LoadError{ChunkID: id, Reason: fmt.Sprintf("cache write failed: %v", err)}
				}
			}
		}

		chunks = append(chunks, Chunk{
			ID:     id,
			Title:  sec.Title,
			Text:   sec.Text,
			Source: source,
			Tokens: EstimateTokens(sec.Text),
			Vector: vector,
		})
	}

	return s.Index(chunks)
}

// Section is one markdown section produced by ChunkMarkdown.
type Section struct {
	Title string
	Text  string
}

// largeSectionBytes is the size above which a section is split further by
// its subsections (roughly 2000 tokens).
const largeSectionBytes = 8000

// ChunkMarkdown splits markdown content into sections on "##" headings,
// and large sections further on "###" headings. Titles are prefixed with
// the document title so chunk provenance survives selection.
func ChunkMarkdown(content, titlePrefix string) []Section {
	var out []Section

	sections := strings.Split(content, "\n## ")
	for i, section := range sections {
		if strings.TrimSpace(section) == "" {
			continue
		}
		if i > 0 {
			section = "## " + section
		}
		title := headingTitle(section)

		if len(section) > largeSectionBytes {
			subs := strings.Split(section, "\n### ")
			for j, sub := range subs {
				if strings.TrimSpace(sub) == "" {
					continue
				}
				if j > 0 {
					sub = "### " + sub
				}
				out = append(out, Section{
					Title: fmt.Sprintf("%s: %s - %s", titlePrefix, title, headingTitle(sub)),
					Text:  sub,
				})
			}
		} else {
			out = append(out, Section{
				Title: fmt.Sprintf("%s: %s", titlePrefix, title),
				Text:  section,
			})
		}
	}

	return out
}

// headingTitle extracts the first line of a section with heading markers
// stripped.
func headingTitle(section string) string {
	line, _, _ := strings.Cut(section, "\n")
	line = strings.TrimLeft(line, "# ")
	return strings.TrimSpace(line)
}

// chunkID derives a stable chunk identifier from content, title, and source.
func chunkID(text, title, source string) string {
	sum := sha256.Sum256([]byte(text + title + source))
	return hex.EncodeToString(sum[:])[:16]
}

// EstimateTokens approximates the token cost of text. Reference corpora are
// budgeted with a chars/4 heuristic; exact tokenizer counts are not needed
// because the budgeter compares like against like.
func EstimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}
