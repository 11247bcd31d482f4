package classify

import "strings"

const (
	maxExcerptLines = 30
	maxExcerptChars = 3000

	truncationMark = "... [truncated]"
)

// Excerpts builds the prompt-sized removed and added blocks: at most 30
// lines per side and 3000 characters across both sides combined, with an
// explicit truncation marker on every capped side. The removed side is
// budgeted first, matching the prompt order.
func Excerpts(removed, added []string) (removedExcerpt, addedExcerpt string) {
	budget := maxExcerptChars
	removedExcerpt, budget = capExcerpt(removed, budget)
	addedExcerpt, _ = capExcerpt(added, budget)
	return removedExcerpt, addedExcerpt
}

func capExcerpt(lines []string, budget int) (string, int) {
	truncated := false
	if len(lines) > maxExcerptLines {
		lines = lines[:maxExcerptLines]
		truncated = true
	}
	text := strings.Join(lines, "\n")
	if len(text) > budget {
		if budget < 0 {
			budget = 0
		}
		text = text[:budget]
		truncated = true
	}
	if truncated {
		text += "\n" + truncationMark
	}
	return text, budget - len(text)
}
