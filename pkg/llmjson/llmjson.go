// Package llmjson pulls a JSON object out of free-form completion text.
package llmjson

import (
	"encoding/json"
	"regexp"
	"strings"
)

// fencedPattern matches an object inside a markdown code fence: ```json { ... } ```
var fencedPattern = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(\\{.*?\\})\\s*```")

// Extract returns the first fenced JSON object in text, or failing that the
// region between the first '{' and the last '}'. The empty string means no
// candidate was found.
func Extract(text string) string {
	if m := fencedPattern.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return outermost(text)
}

// ExtractObject decodes the object located by Extract. It reports false when
// nothing decodes to a JSON object; it never panics and keeps no state, so the
// same input always yields the same result.
func ExtractObject(text string) (map[string]any, bool) {
	if m := fencedPattern.FindStringSubmatch(text); len(m) > 1 {
		if obj, ok := decode(m[1]); ok {
			return obj, true
		}
	}
	return decode(outermost(text))
}

func outermost(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func decode(raw string) (map[string]any, bool) {
	if raw == "" {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil && obj != nil {
		return obj, true
	}
	cleaned := stripTrailingCommas(raw)
	if cleaned == raw {
		return nil, false
	}
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}

// stripTrailingCommas drops commas that directly precede a closing ] or },
// ignoring whitespace. Text inside string literals is left alone.
func stripTrailingCommas(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	inString, escaped := false, false
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}
		if c == '"' {
			inString = true
		} else if c == ',' && closesNext(raw[i+1:]) {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func closesNext(rest string) bool {
	rest = strings.TrimLeft(rest, " \t\r\n")
	return rest != "" && (rest[0] == '}' || rest[0] == ']')
}
