package agent

import (
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	jsonx "hermes/internal/shared/json"
)

// decodeLLMJSON extracts and decodes the JSON object a model was asked to
// produce: code fences (with an optional leading "json" marker) are stripped,
// and the remaining text is run through jsonrepair before decoding so minor
// model damage (trailing commas, single quotes) doesn't force the fallback
// path.
func decodeLLMJSON(text string, target any) error {
	candidate := stripCodeFences(text)
	if candidate == "" {
		return fmt.Errorf("empty response")
	}

	if err := jsonx.Unmarshal([]byte(candidate), target); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return fmt.Errorf("repair json: %w", err)
	}
	if err := jsonx.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// stripCodeFences removes a surrounding markdown fence and trims to the
// outermost JSON object when extra prose surrounds it.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimPrefix(trimmed, "json")
		trimmed = strings.TrimPrefix(trimmed, "JSON")
		if end := strings.LastIndex(trimmed, "```"); end >= 0 {
			trimmed = trimmed[:end]
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if !strings.HasPrefix(trimmed, "{") {
		start := strings.Index(trimmed, "{")
		end := strings.LastIndex(trimmed, "}")
		if start >= 0 && end > start {
			trimmed = trimmed[start : end+1]
		}
	}
	return trimmed
}
