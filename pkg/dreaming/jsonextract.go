package dreaming

import (
	"encoding/json"
	"strings"

	"github.com/healer-ai/p8fs/pkg/errs"
)

// ExtractJSON recovers a JSON value from LLM response text: plain JSON,
// markdown-fenced JSON (```json or bare ```), or a brace/bracket-matched
// fragment embedded in surrounding prose. The recovered span is decoded
// with encoding/json, since callers need whole structured objects/arrays,
// not isolated scalar fields.
func ExtractJSON(text string, v any) error {
	candidate := strings.TrimSpace(text)

	if fenced := stripFence(candidate); fenced != "" {
		if err := json.Unmarshal([]byte(fenced), v); err == nil {
			return nil
		}
	}
	if err := json.Unmarshal([]byte(candidate), v); err == nil {
		return nil
	}
	if span := braceMatch(candidate); span != "" {
		if err := json.Unmarshal([]byte(span), v); err == nil {
			return nil
		}
	}
	return errs.Validation("dreaming.ExtractJSON", "no parseable JSON found in LLM response")
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return ""
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// braceMatch returns the outermost {...} or [...] span in s, whichever
// starts first, so a response mixing prose with a single JSON value can
// still be parsed.
func braceMatch(s string) string {
	objStart := strings.IndexByte(s, '{')
	arrStart := strings.IndexByte(s, '[')

	start := -1
	open, closeCh := byte('{'), byte('}')
	switch {
	case objStart == -1 && arrStart == -1:
		return ""
	case objStart == -1:
		start = arrStart
		open, closeCh = '[', ']'
	case arrStart == -1:
		start = objStart
	case arrStart < objStart:
		start = arrStart
		open, closeCh = '[', ']'
	default:
		start = objStart
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
