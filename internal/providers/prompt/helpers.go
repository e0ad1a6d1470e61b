package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"storymaker/internal/domain"
)

// structureSchema is the JSON schema sent with the structure request.
var structureSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"title":        map[string]any{"type": "string"},
		"cover_prompt": map[string]any{"type": "string"},
		"parts": map[string]any{
			"type":     "array",
			"minItems": domain.PartsCount,
			"maxItems": domain.PartsCount,
			"items": map[string]any{
				"type":     "array",
				"minItems": 2,
				"maxItems": 2,
				"items":    map[string]any{"type": "string"},
			},
		},
	},
	"required": []string{"title", "cover_prompt", "parts"},
}

// languageName resolves a BCP 47 locale to an English language name the
// model understands. Unknown or empty locales yield "".
func languageName(locale string) string {
	locale = strings.TrimSpace(locale)
	if locale == "" {
		return ""
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return ""
	}
	return display.English.Tags().Name(tag)
}

func parseModelPayload[T any](raw string) (T, error) {
	var zero T
	cleaned := extractJSONFragment(raw)
	if cleaned == "" {
		return zero, errors.New("empty payload")
	}
	var decoded T
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return zero, err
	}
	return decoded, nil
}

// parseStructure decodes and validates model output. Any failure wraps
// domain.ErrMalformedResponse so the caller retries it.
func parseStructure(raw string) (*domain.Structure, error) {
	s, err := parseModelPayload[domain.Structure](raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedResponse, err)
	}
	s.Title = strings.TrimSpace(s.Title)
	s.CoverPrompt = strings.TrimSpace(s.CoverPrompt)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func extractJSONFragment(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "" {
		return ""
	}
	text = trimCodeFence(text)
	start := strings.IndexAny(text, "{[")
	end := strings.LastIndexAny(text, "]}")
	if start >= 0 && end >= start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

func trimCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```JSON")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSpace(trimmed)
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

func coalesce(values ...string) string {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			return v
		}
	}
	return ""
}
