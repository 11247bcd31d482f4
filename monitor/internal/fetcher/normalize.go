package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	multiSpace   = regexp.MustCompile(`[ \t]{2,}`)
)

// Normalize collapses runs of blank lines and horizontal whitespace so that
// layout-only churn does not change the content hash. Three or more
// consecutive newlines become two; runs of spaces and tabs become one space;
// leading and trailing whitespace is trimmed.
func Normalize(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = multiSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// HashText returns the lowercase hex SHA-256 of text. Callers hash the
// normalized form so two captures compare by content, not formatting.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
