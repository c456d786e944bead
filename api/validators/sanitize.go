package validators

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var plainText = bluemonday.StrictPolicy()

// SanitizeString strips markup and surrounding whitespace, then caps the
// result at maxLen runes when maxLen is positive.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.TrimSpace(html.UnescapeString(plainText.Sanitize(input)))
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			return string(runes[:maxLen])
		}
	}
	return cleaned
}
