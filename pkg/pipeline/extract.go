package pipeline

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// extractJSON finds JSON in a response that might contain markdown or prose. opens
// lists the accepted opening brackets, "{" for an object or "{[" for either. It returns
// the first valid JSON value that starts with one of them, or "" if none is found.
func extractJSON(response, opens string) string {
	response = strings.TrimSpace(response)

	accept := func(s string) bool {
		return s != "" && strings.IndexByte(opens, s[0]) != -1 && json.Valid([]byte(s))
	}

	// Look for JSON in code blocks first (most reliable)
	if start := strings.Index(response, "```json"); start != -1 {
		start += len("```json")
		if end := strings.Index(response[start:], "```"); end != -1 {
			if content := strings.TrimSpace(response[start : start+end]); accept(content) {
				return content
			}
		}
	}

	// Look for JSON in generic code blocks
	if start := strings.Index(response, "```"); start != -1 {
		start += 3
		if end := strings.Index(response[start:], "```"); end != -1 {
			if content := strings.TrimSpace(response[start : start+end]); accept(content) {
				return content
			}
		}
	}

	// Try to find a JSON value anywhere in the response. Bracketed prose such as
	// "[spend, roas]" balances but is not valid JSON, so scanning continues past it.
	start := strings.IndexAny(response, opens)
	for start != -1 {
		if s := extractJSONValue(response, start); accept(s) {
			return s
		}
		next := strings.IndexAny(response[start+1:], opens)
		if next == -1 {
			break
		}
		start += next + 1
	}

	return ""
}

// extractJSONValue extracts a complete JSON object or array starting at the given
// position, properly handling strings that may contain brackets.
func extractJSONValue(s string, start int) string {
	if start >= len(s) || (s[start] != '{' && s[start] != '[') {
		return ""
	}

	var stack []byte
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}

		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return ""
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1]
			}
		}
	}

	// Unbalanced
	return ""
}

// truncateString truncates s to at most maxLen bytes, adding "..." if truncated. The
// cut is moved back to a rune boundary.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
