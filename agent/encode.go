package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSON unmarshals a model reply into T. Markdown fences and any prose
// around the outermost JSON object are stripped first.
func DecodeJSON[T any](raw string) (*T, error) {
	clean := SanitizeJSON(raw)
	var out T
	if err := json.Unmarshal([]byte(clean), &out); err != nil {
		return nil, fmt.Errorf("decode JSON: %w", err)
	}
	return &out, nil
}

// SanitizeJSON extracts the JSON object from a model reply.
func SanitizeJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if idx := strings.Index(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	if strings.HasPrefix(trimmed, "{") {
		return trimmed
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start >= 0 && end > start {
		return trimmed[start : end+1]
	}
	return trimmed
}
