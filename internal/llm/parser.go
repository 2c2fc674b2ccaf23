package llm

import (
	"strings"
	"unicode"

	"github.com/tidwall/gjson"
)

const fence = "```"

// StripCodeFences removes a markdown code fence wrapped around a model response.
// Text that is already valid JSON, or has no opening fence at the start of a
// line, is returned trimmed but otherwise unchanged.
func StripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	if gjson.Valid(content) {
		return content
	}

	start := -1
	if strings.HasPrefix(content, fence) {
		start = 0
	} else if i := strings.Index(content, "\n"+fence); i >= 0 {
		start = i + 1
	}
	if start < 0 {
		return content
	}

	rest := content[start+len(fence):]
	if end := strings.LastIndex(rest, fence); end >= 0 {
		rest = rest[:end]
	}

	// Drop the language tag ("json", "JSON", ...) that follows the opening fence.
	rest = strings.TrimLeftFunc(rest, unicode.IsLetter)

	return strings.TrimSpace(rest)
}
