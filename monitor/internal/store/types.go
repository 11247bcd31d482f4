package store

import "strings"

// Page lifecycle statuses.
const (
	StatusActive = "active"
	StatusPaused = "paused"
)

// Snapshot provenance tags. Live snapshots are never deleted; at most one
// manual-or-archive baseline exists per page at a time.
const (
	ProvenanceLive    = "live"
	ProvenanceManual  = "manual"
	ProvenanceArchive = "archive"
)

// Change event review verdicts.
const (
	VerdictPending   = "pending"
	VerdictConfirmed = "confirmed"
	VerdictDismissed = "dismissed"
)

// Vendor is a company whose trust pages are watched.
type Vendor struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Website   string `json:"website"`
	Notes     string `json:"notes"`
	CreatedAt int64  `json:"created_at"`

	// Aggregates populated by ListVendors.
	PageCount    int `json:"page_count"`
	PendingCount int `json:"pending_count"`
}

// WatchedPage is a single URL watched under a vendor.
type WatchedPage struct {
	ID                 string   `json:"id"`
	VendorID           string   `json:"vendor_id"`
	URL                string   `json:"url"`
	Label              string   `json:"label"`
	FingerprintPhrases []string `json:"fingerprint_phrases"`
	Status             string   `json:"status"`
	PageMoved          bool     `json:"page_moved"`
	LastChecked        *int64   `json:"last_checked"`
	LastChanged        *int64   `json:"last_changed"`
	CreatedAt          int64    `json:"created_at"`
}

// Snapshot is one captured version of a page's normalized text.
type Snapshot struct {
	ID          string `json:"id"`
	PageID      string `json:"page_id"`
	CapturedAt  int64  `json:"captured_at"`
	ContentHash string `json:"content_hash"`
	Text        string `json:"text"`
	Provenance  string `json:"provenance"`
}

// ChangeEvent is a detected content change awaiting (or past) human review.
// Immutable after creation except for UserVerdict.
type ChangeEvent struct {
	ID             string `json:"id"`
	PageID         string `json:"page_id"`
	DetectedAt     int64  `json:"detected_at"`
	PrevSnapshotID string `json:"prev_snapshot_id"`
	CurrSnapshotID string `json:"curr_snapshot_id"`
	DiffSummary    string `json:"diff_summary"`
	Severity       string `json:"severity"`
	Reasoning      string `json:"reasoning"`
	UserVerdict    string `json:"user_verdict"`
	PrevText       string `json:"prev_text,omitempty"`
	CurrText       string `json:"curr_text,omitempty"`

	// Joined context populated by Get/List.
	PageURL    string `json:"page_url,omitempty"`
	PageLabel  string `json:"page_label,omitempty"`
	VendorName string `json:"vendor_name,omitempty"`
}

// joinPhrases serialises fingerprint phrases to the stored comma-delimited
// form. Phrases are trimmed; empties dropped.
func joinPhrases(phrases []string) string {
	var kept []string
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, ",")
}

// splitPhrases parses the stored comma-delimited form back into a slice.
func splitPhrases(s string) []string {
	if s == "" {
		return nil
	}
	var phrases []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			phrases = append(phrases, p)
		}
	}
	return phrases
}
