package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/fairyhunter13/ai-job-agent/internal/domain"
)

// ResponseCleaner turns almost-JSON LLM output into parseable JSON.
// Models wrap payloads in code fences, leave trailing commas and chat
// around the object; the cleaner strips all of that. It never invents
// content: a response with no JSON object at all stays an error so the
// caller can fall back to its conservative default.
type ResponseCleaner struct{}

// NewResponseCleaner creates a response cleaner.
func NewResponseCleaner() *ResponseCleaner { return &ResponseCleaner{} }

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// CleanJSONResponse extracts the JSON object or array from a raw LLM
// response and repairs trailing commas.
func (rc *ResponseCleaner) CleanJSONResponse(response string) (string, error) {
	s := rc.stripCodeFences(response)
	s = rc.extractJSON(s)
	if s == "" {
		return "", fmt.Errorf("no JSON payload in response: %w", domain.ErrSchemaInvalid)
	}
	s = trailingCommaRe.ReplaceAllString(s, "$1")
	return s, nil
}

// Decode cleans the response and unmarshals it into v.
func (rc *ResponseCleaner) Decode(response string, v any) error {
	s, err := rc.CleanJSONResponse(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("decode llm json: %v: %w", err, domain.ErrSchemaInvalid)
	}
	return nil
}

// stripCodeFences removes ```json ... ``` wrappers, including fences
// buried inside surrounding prose.
func (rc *ResponseCleaner) stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, "```"); i >= 0 {
		rest := s[i+3:]
		rest = strings.TrimPrefix(rest, "json")
		rest = strings.TrimPrefix(rest, "JSON")
		if j := strings.Index(rest, "```"); j >= 0 {
			return strings.TrimSpace(rest[:j])
		}
		return strings.TrimSpace(rest)
	}
	return s
}

// extractJSON returns the first balanced JSON object or array in s,
// respecting string literals and escapes.
func (rc *ResponseCleaner) extractJSON(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' || s[i] == '[' {
			start = i
			open = s[i]
			if open == '{' {
				close = '}'
			} else {
				close = ']'
			}
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	// Unbalanced: return the tail and let the decoder report it.
	return s[start:]
}
