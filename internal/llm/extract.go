package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ExtractJSONObject pulls the first JSON object out of a completion.
// Router backends often wrap the payload in markdown fences or prose, so
// the parse is lenient: try the raw text, then a ```json fence, then the
// outermost brace pair.
func ExtractJSONObject(raw string) (json.RawMessage, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, fmt.Errorf("llm: empty completion")
	}

	if candidate, ok := tryObject(text); ok {
		return candidate, nil
	}

	if idx := strings.Index(text, "```json"); idx >= 0 {
		rest := text[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			if candidate, ok := tryObject(strings.TrimSpace(rest[:end])); ok {
				return candidate, nil
			}
		}
	}
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		if end := strings.Index(rest, "```"); end >= 0 {
			if candidate, ok := tryObject(strings.TrimSpace(rest[:end])); ok {
				return candidate, nil
			}
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if candidate, ok := tryObject(text[start : end+1]); ok {
			return candidate, nil
		}
	}
	return nil, fmt.Errorf("llm: no JSON object in completion")
}

func tryObject(s string) (json.RawMessage, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "{") {
		return nil, false
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}
