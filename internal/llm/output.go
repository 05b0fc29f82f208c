package llm

import "strings"

// CleanOutput strips a surrounding code fence (```json, ```markdown or bare).
func CleanOutput(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		if lang := strings.TrimSpace(text[:nl]); lang != "" && !strings.ContainsAny(lang, "{[") {
			text = text[nl+1:]
		}
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
