// Package json extracts JSON from chat-model responses.
//
// Models asked for structured output still wrap it in markdown fences or
// commentary often enough that callers cannot unmarshal responses directly.
package json

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONFromResponse extracts and parses a JSON object from a model
// response. Handles pure JSON, fenced blocks, and objects embedded in
// surrounding text (first '{' to last '}').
func ExtractJSONFromResponse[T any](response string) (T, error) {
	var result T
	jsonStr, err := extract(response)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

func extract(response string) (string, error) {
	response = stripFences(response)

	var test any
	if err := json.Unmarshal([]byte(response), &test); err == nil {
		return response, nil
	}

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end > start {
		candidate := response[start : end+1]
		if err := json.Unmarshal([]byte(candidate), &test); err == nil {
			return candidate, nil
		}
	}

	preview := response
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("failed to extract valid JSON from response: %q", preview)
}

// stripFences removes ```json / ``` markers around a response.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)
	if strings.HasPrefix(trimmed, "```json") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```json"))
	} else if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}
	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "```"))
	}
	return trimmed
}
