package monitor

import (
	"github.com/hazyhaar/trustwatch/monitor/internal/store"
)

// Domain types are stored types re-exported so API consumers do not import
// the internal store package.
type (
	Vendor      = store.Vendor
	WatchedPage = store.WatchedPage
	Snapshot    = store.Snapshot
	ChangeEvent = store.ChangeEvent
)

// Review verdicts.
const (
	VerdictPending   = store.VerdictPending
	VerdictConfirmed = store.VerdictConfirmed
	VerdictDismissed = store.VerdictDismissed
)

// Snapshot provenance.
const (
	ProvenanceLive    = store.ProvenanceLive
	ProvenanceManual  = store.ProvenanceManual
	ProvenanceArchive = store.ProvenanceArchive
)

// CheckOutcome says what a page check concluded.
type CheckOutcome string

const (
	// OutcomeBaseline: first capture stored, nothing to compare against.
	OutcomeBaseline CheckOutcome = "baseline"
	// OutcomeUnchanged: content hash matches the latest snapshot.
	OutcomeUnchanged CheckOutcome = "unchanged"
	// OutcomeChanged: a change event was recorded.
	OutcomeChanged CheckOutcome = "changed"
	// OutcomeBlocked: the fetch hit an anti-bot wall; nothing stored.
	OutcomeBlocked CheckOutcome = "blocked"
	// OutcomeError: the check failed; see Err.
	OutcomeError CheckOutcome = "error"
)

// CheckResult reports one page check.
type CheckResult struct {
	PageID  string       `json:"page_id"`
	URL     string       `json:"url"`
	Outcome CheckOutcome `json:"outcome"`

	// EventID is set when Outcome is changed.
	EventID  string `json:"event_id,omitempty"`
	Severity string `json:"severity,omitempty"`

	BlockSignal string `json:"block_signal,omitempty"`

	// PageMoved flags a fingerprint miss or a redirect to a materially
	// different URL. Advisory: the check still stores snapshots and events.
	MissingFingerprints []string `json:"missing_fingerprints,omitempty"`
	PageMoved           bool     `json:"page_moved,omitempty"`

	Err string `json:"error,omitempty"`
}
