package llm

import "strings"

// ExtractJSON isolates the first balanced JSON object from a completion,
// tolerating markdown code fences and surrounding prose. Returns "" when no
// balanced object is found.
func ExtractJSON(content string) string {
	if fenced := extractFenced(content); fenced != "" {
		content = fenced
	}

	start := strings.IndexByte(content, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(content); i++ {
		ch := content[i]

		if escaped {
			escaped = false

			continue
		}

		switch {
		case inString && ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == '{':
			depth++
		case ch == '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}

	return ""
}

// extractFenced returns the body of the first ```json / ``` code fence, or "".
func extractFenced(content string) string {
	open := strings.Index(content, "```")
	if open < 0 {
		return ""
	}

	rest := content[open+3:]

	// Skip an optional language tag up to the first newline.
	if newline := strings.IndexByte(rest, '\n'); newline >= 0 {
		rest = rest[newline+1:]
	}

	closing := strings.Index(rest, "```")
	if closing < 0 {
		return ""
	}

	return rest[:closing]
}
