// Package store implements typed SQLite repositories for the four trustwatch
// entities: vendors, watched pages, snapshots, and change events. Row maps
// never leak past this boundary; every query scans into a struct.
package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store wraps a database handle with typed operations.
type Store struct {
	DB *sql.DB
}

// NewStore creates a Store on an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// RecordChange persists one detected change atomically: the new snapshot,
// the change event referencing it, and the page's last_changed timestamp.
// Either all three land or none do.
func (s *Store) RecordChange(ctx context.Context, snap *Snapshot, ev *ChangeEvent, changedAt int64) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, page_id, captured_at, content_hash, text_content, provenance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PageID, snap.CapturedAt, snap.ContentHash, snap.Text, snap.Provenance,
	); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO change_events (id, page_id, detected_at, prev_snapshot_id, curr_snapshot_id,
		diff_summary, severity, reasoning, user_verdict, prev_text, curr_text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.PageID, ev.DetectedAt, ev.PrevSnapshotID, ev.CurrSnapshotID,
		ev.DiffSummary, ev.Severity, ev.Reasoning, VerdictPending, ev.PrevText, ev.CurrText,
	); err != nil {
		return fmt.Errorf("insert change event: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE watched_pages SET last_changed = ? WHERE id = ?`,
		changedAt, ev.PageID,
	); err != nil {
		return fmt.Errorf("update last_changed: %w", err)
	}

	return tx.Commit()
}
