package modelgw

import (
	"strings"
	"unicode"
)

var sentinels = []string{
	"<|eot_id|>",
	"<|end_of_text|>",
	"<|endoftext|>",
	"<|im_end|>",
	"<|end|>",
	"<end_of_turn>",
	"</s>",
}

var languageTags = map[string]bool{
	"javascript": true,
	"js":         true,
	"typescript": true,
	"ts":         true,
	"python":     true,
	"py":         true,
}

// Clean applies role-specific post-processing to model output.
func Clean(role Role, text string) string {
	if role != RoleCode {
		return strings.TrimSpace(text)
	}
	return cleanCode(text)
}

func cleanCode(text string) string {
	for _, s := range sentinels {
		text = strings.ReplaceAll(text, s, "")
	}
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	// A leading language tag ends at the first whitespace, on its own line or not.
	first, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		first, rest = text[:i], text[i:]
	}
	if languageTags[strings.ToLower(first)] {
		text = rest
	}
	return strings.TrimSpace(text)
}
