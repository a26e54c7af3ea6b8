package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and caps the result
// at maxLen runes. Zero maxLen means no cap.
func SanitizeString(input string, maxLen int) string {
	return sanitize(input, maxLen, false)
}

// SanitizeMultiline is SanitizeString for free text that may keep line breaks,
// such as staff notes.
func SanitizeMultiline(input string, maxLen int) string {
	return sanitize(input, maxLen, true)
}

func sanitize(input string, maxLen int, keepNewlines bool) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '\n' && keepNewlines {
			return r
		}
		if r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimSpace(cleaned)

	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
