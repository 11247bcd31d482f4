// Package classify assigns a severity to a detected page change. The
// primary path asks an OpenAI-compatible chat model for a structured
// verdict; a rule-based fallback covers model outages, and a severity
// floor guarantees trust-vocabulary hits are never scored low.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Score is the severity of a change.
type Score string

const (
	ScoreLow    Score = "low"
	ScoreMedium Score = "medium"
	ScoreHigh   Score = "high"
)

// Valid reports whether s is a known severity.
func (s Score) Valid() bool {
	return s == ScoreLow || s == ScoreMedium || s == ScoreHigh
}

// Input describes a change for assessment. Excerpts are already capped by
// the caller via Excerpt.
type Input struct {
	VendorName string
	PageLabel  string
	PageURL    string

	RemovedExcerpt string
	AddedExcerpt   string

	ChangedLines int
	// Signals are the trust-vocabulary phrases found in the changed lines.
	Signals []string
}

// Verdict is the classification outcome.
type Verdict struct {
	Score     Score
	Summary   string
	Reasoning string
	// Degraded marks verdicts produced by the rule-based fallback.
	Degraded bool
}

// Assessor produces a verdict for a change. The production implementation
// is the LLM client; tests supply stubs.
type Assessor interface {
	Assess(ctx context.Context, in Input) (*Verdict, error)
}

// AssessFunc adapts a function to the Assessor interface.
type AssessFunc func(ctx context.Context, in Input) (*Verdict, error)

func (f AssessFunc) Assess(ctx context.Context, in Input) (*Verdict, error) {
	return f(ctx, in)
}

// Classifier runs the assessment pipeline: assessor, fallback, floor.
type Classifier struct {
	assessor Assessor
	logger   *slog.Logger
}

// NewClassifier creates a Classifier. A nil assessor means every change is
// scored by the rule-based fallback.
func NewClassifier(assessor Assessor, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{assessor: assessor, logger: logger}
}

// Classify scores a change. Assessor failures degrade to the rule-based
// verdict instead of failing the check; the severity floor applies on
// every path.
func (c *Classifier) Classify(ctx context.Context, in Input) *Verdict {
	var v *Verdict
	if c.assessor != nil {
		var err error
		v, err = c.assessor.Assess(ctx, in)
		if err != nil {
			c.logger.Warn("classifier: assessor failed, using heuristic",
				"page", in.PageURL, "error", err)
			v = nil
		}
	}
	if v == nil {
		v = heuristicVerdict(in)
	}

	// Floor: trust-vocabulary hits are never low severity.
	if len(in.Signals) > 0 && v.Score == ScoreLow {
		v.Score = ScoreMedium
		v.Reasoning = strings.TrimSpace(v.Reasoning +
			fmt.Sprintf(" Raised to medium: changed lines mention %s.",
				strings.Join(in.Signals, ", ")))
	}
	return v
}

// heuristicVerdict is the rule-based fallback: trust vocabulary wins, then
// diff size, then low.
func heuristicVerdict(in Input) *Verdict {
	switch {
	case len(in.Signals) > 0:
		return &Verdict{
			Score:   ScoreHigh,
			Summary: fmt.Sprintf("Change touches sensitive terms: %s.", strings.Join(in.Signals, ", ")),
			Reasoning: "Rule-based assessment: changed lines contain trust-relevant vocabulary. " +
				"Manual review recommended.",
			Degraded: true,
		}
	case in.ChangedLines > 20:
		return &Verdict{
			Score:     ScoreMedium,
			Summary:   fmt.Sprintf("Large change: %d lines modified.", in.ChangedLines),
			Reasoning: "Rule-based assessment: substantial rewrite without obvious sensitive terms.",
			Degraded:  true,
		}
	default:
		return &Verdict{
			Score:     ScoreLow,
			Summary:   fmt.Sprintf("Small change: %d lines modified.", in.ChangedLines),
			Reasoning: "Rule-based assessment: minor edit without sensitive terms.",
			Degraded:  true,
		}
	}
}
