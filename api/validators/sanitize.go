package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input, drops control characters and keeps at most
// maxRunes runes, so accented breeder and cock names never split mid rune.
func SanitizeString(input string, maxRunes int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxRunes <= 0 {
		return cleaned
	}
	if runes := []rune(cleaned); len(runes) > maxRunes {
		return strings.TrimSpace(string(runes[:maxRunes]))
	}
	return cleaned
}
