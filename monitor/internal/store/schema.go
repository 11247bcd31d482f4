package store

import "database/sql"

// Schema is the complete trustwatch schema. Snapshots are append-only;
// change events are immutable except for user_verdict.
const Schema = `
-- Vendors whose trust/policy pages are watched
CREATE TABLE IF NOT EXISTS vendors (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    website     TEXT NOT NULL DEFAULT '',
    notes       TEXT NOT NULL DEFAULT '',
    created_at  INTEGER NOT NULL
);

-- Pages watched per vendor
CREATE TABLE IF NOT EXISTS watched_pages (
    id                  TEXT PRIMARY KEY,
    vendor_id           TEXT NOT NULL REFERENCES vendors(id) ON DELETE CASCADE,
    url                 TEXT NOT NULL,
    label               TEXT NOT NULL,
    fingerprint_phrases TEXT NOT NULL DEFAULT '',
    status              TEXT NOT NULL DEFAULT 'active',
    page_moved          INTEGER NOT NULL DEFAULT 0,
    last_checked        INTEGER,
    last_changed        INTEGER,
    created_at          INTEGER NOT NULL,
    UNIQUE(vendor_id, url)
);
CREATE INDEX IF NOT EXISTS idx_watched_pages_vendor ON watched_pages(vendor_id);

-- Content-hashed version log per page
CREATE TABLE IF NOT EXISTS snapshots (
    id            TEXT PRIMARY KEY,
    page_id       TEXT NOT NULL REFERENCES watched_pages(id) ON DELETE CASCADE,
    captured_at   INTEGER NOT NULL,
    content_hash  TEXT NOT NULL,
    text_content  TEXT NOT NULL,
    provenance    TEXT NOT NULL DEFAULT 'live'
);
CREATE INDEX IF NOT EXISTS idx_snapshots_page ON snapshots(page_id, captured_at DESC);

-- Detected changes pending human review
CREATE TABLE IF NOT EXISTS change_events (
    id               TEXT PRIMARY KEY,
    page_id          TEXT NOT NULL REFERENCES watched_pages(id) ON DELETE CASCADE,
    detected_at      INTEGER NOT NULL,
    prev_snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
    curr_snapshot_id TEXT NOT NULL REFERENCES snapshots(id),
    diff_summary     TEXT NOT NULL DEFAULT '',
    severity         TEXT NOT NULL DEFAULT '',
    reasoning        TEXT NOT NULL DEFAULT '',
    user_verdict     TEXT NOT NULL DEFAULT 'pending',
    prev_text        TEXT NOT NULL DEFAULT '',
    curr_text        TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_change_events_verdict ON change_events(user_verdict, detected_at DESC);
CREATE INDEX IF NOT EXISTS idx_change_events_page ON change_events(page_id, detected_at DESC);
`

// ApplySchema creates all tables and indexes on the given database.
func ApplySchema(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
