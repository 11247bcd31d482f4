// Package textdiff computes line-level differences between two snapshot
// texts and scans the changed lines for trust-relevant vocabulary.
package textdiff

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// defaultVocabulary are terms whose appearance in changed lines marks a
// diff as worth urgent human review regardless of its size.
var defaultVocabulary = []string{
	"train", "training data", "machine learning", "large language model", "llm",
	"ai model", "artificial intelligence", "generative", "opt out", "opt-out",
	"share your data", "share data with", "third party", "third-party",
	"sell your data", "data retention", "retain your data", "delete your data",
	"law enforcement", "government request", "subpoena",
	"license", "royalty", "intellectual property", "ownership",
}

// Result holds the changed lines of a two-text comparison.
type Result struct {
	// Added and Removed keep document order and exclude blank lines.
	Added   []string
	Removed []string

	// Signals are the trust-vocabulary phrases found in the changed lines,
	// matched case-insensitively, in vocabulary order without duplicates.
	Signals []string
}

// Empty reports whether no lines changed.
func (r *Result) Empty() bool {
	return len(r.Added) == 0 && len(r.Removed) == 0
}

// ChangedLineCount is the total number of changed lines on both sides.
func (r *Result) ChangedLineCount() int {
	return len(r.Added) + len(r.Removed)
}

// Summary renders the diff as a unified-style listing, removals first.
func (r *Result) Summary() string {
	var sb strings.Builder
	for _, line := range r.Removed {
		sb.WriteString("- ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range r.Added {
		sb.WriteString("+ ")
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Engine compares snapshot texts against a fixed trust vocabulary.
type Engine struct {
	vocab []string
}

// Option configures an Engine.
type Option func(*Engine)

// WithVocabulary replaces the default trust vocabulary.
func WithVocabulary(phrases []string) Option {
	return func(e *Engine) { e.vocab = phrases }
}

// New creates an Engine with the default vocabulary unless overridden.
func New(opts ...Option) *Engine {
	e := &Engine{vocab: defaultVocabulary}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Compare diffs two texts line by line with zero context lines and scans
// the changed lines for the engine's vocabulary. Blank changed lines are
// dropped; order within each side is preserved.
func (e *Engine) Compare(prev, curr string) (*Result, error) {
	diff := difflib.UnifiedDiff{
		A:       difflib.SplitLines(prev),
		B:       difflib.SplitLines(curr),
		Context: 0,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") ||
			strings.HasPrefix(line, "@@") {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+"):
			if s := strings.TrimSpace(line[1:]); s != "" {
				res.Added = append(res.Added, s)
			}
		case strings.HasPrefix(line, "-"):
			if s := strings.TrimSpace(line[1:]); s != "" {
				res.Removed = append(res.Removed, s)
			}
		}
	}
	res.Signals = e.scanSignals(res)
	return res, nil
}

func (e *Engine) scanSignals(r *Result) []string {
	if r.Empty() {
		return nil
	}
	var sb strings.Builder
	for _, line := range r.Removed {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	for _, line := range r.Added {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	haystack := strings.ToLower(sb.String())

	var found []string
	for _, phrase := range e.vocab {
		if strings.Contains(haystack, phrase) {
			found = append(found, phrase)
		}
	}
	return found
}
