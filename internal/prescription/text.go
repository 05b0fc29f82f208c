package prescription

import "strings"

func clean(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return strings.TrimSpace(s)
}
