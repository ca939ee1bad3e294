// Package embed provides the text embedding boundary.
//
// Embedding is consumed as a black-box function mapping text to a
// fixed-length vector, assumed deterministic for identical input. Each
// provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific error handling
package embed

import "context"

// Embedder maps text to a fixed-length numeric vector.
type Embedder interface {
	// Name returns the provider name (for logging/debugging).
	Name() string

	// Embed returns the embedding vector for the given text.
	Embed(ctx context.Context, text string) ([]float64, error)
}
