// Embedder factory.

package embed

import (
	"fmt"
	"os"
	"strings"
)

// FromEnv creates an embedder for the given provider, reading the API key
// from the provider's environment variable. The "hash" provider needs no
// key and is the offline default.
func FromEnv(provider, model string) (Embedder, error) {
	switch strings.ToLower(provider) {
	case "", "hash", "local":
		return NewHashEmbedder(0), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openai embedder: OPENAI_API_KEY environment variable not set")
		}
		return NewOpenAIEmbedder(key, model), nil
	case "gemini", "google":
		key := os.Getenv("GEMINI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("gemini embedder: GEMINI_API_KEY environment variable not set")
		}
		return NewGeminiEmbedder(key, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %q", provider)
	}
}
