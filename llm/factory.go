// Chat provider factory.

package llm

import (
	"fmt"
	"os"
	"strings"
)

// Default model identifiers.
const (
	DefaultAnthropicModel = "claude-sonnet-4-20250514"
	DefaultOpenAIModel    = "gpt-4o"
)

// FromEnv creates a provider by name, reading the API key from the
// provider's environment variable. An empty model selects the provider
// default.
func FromEnv(provider, model string) (Provider, error) {
	const (
		maxTokens   = 4096
		temperature = 0.2
	)

	switch strings.ToLower(provider) {
	case "anthropic", "claude":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("anthropic: ANTHROPIC_API_KEY environment variable not set")
		}
		if model == "" {
			model = DefaultAnthropicModel
		}
		return NewAnthropicProvider(key, model, maxTokens, temperature), nil
	case "openai", "gpt":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("openai: OPENAI_API_KEY environment variable not set")
		}
		if model == "" {
			model = DefaultOpenAIModel
		}
		return NewOpenAIProvider(key, model, maxTokens, temperature), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", provider)
	}
}
