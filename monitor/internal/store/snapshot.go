package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertSnapshot appends a snapshot to a page's version log.
func (s *Store) InsertSnapshot(ctx context.Context, snap *Snapshot) error {
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().UnixMilli()
	}
	if snap.Provenance == "" {
		snap.Provenance = ProvenanceLive
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO snapshots (id, page_id, captured_at, content_hash, text_content, provenance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PageID, snap.CapturedAt, snap.ContentHash, snap.Text, snap.Provenance,
	)
	return err
}

// LatestSnapshot returns the page's most recent snapshot by capture time,
// or (nil, nil) when the page has never been captured. The id tiebreak is
// deterministic because IDs are time-sortable.
func (s *Store) LatestSnapshot(ctx context.Context, pageID string) (*Snapshot, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, page_id, captured_at, content_hash, text_content, provenance
		FROM snapshots WHERE page_id = ?
		ORDER BY captured_at DESC, id DESC LIMIT 1`, pageID)

	var snap Snapshot
	err := row.Scan(&snap.ID, &snap.PageID, &snap.CapturedAt,
		&snap.ContentHash, &snap.Text, &snap.Provenance)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}
	return &snap, nil
}

// CountSnapshots returns the number of snapshots for a page.
func (s *Store) CountSnapshots(ctx context.Context, pageID string) (int, error) {
	var count int
	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshots WHERE page_id = ?`, pageID).Scan(&count)
	return count, err
}

// ReplaceBaseline installs a manual or archive baseline snapshot. Prior
// non-live baselines for the page are removed first, except any a change
// event still references as its prev or curr side; those stay as the
// event's evidence (deleting them would also trip the foreign keys). Live
// history is never touched. Delete and insert share one transaction.
func (s *Store) ReplaceBaseline(ctx context.Context, snap *Snapshot) error {
	if snap.Provenance != ProvenanceManual && snap.Provenance != ProvenanceArchive {
		return fmt.Errorf("replace baseline: provenance must be manual or archive, got %q", snap.Provenance)
	}
	if snap.CapturedAt == 0 {
		snap.CapturedAt = time.Now().UnixMilli()
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snapshots WHERE page_id = ? AND provenance IN ('manual', 'archive')
		AND id NOT IN (SELECT prev_snapshot_id FROM change_events)
		AND id NOT IN (SELECT curr_snapshot_id FROM change_events)`,
		snap.PageID,
	); err != nil {
		return fmt.Errorf("delete prior baseline: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, page_id, captured_at, content_hash, text_content, provenance)
		VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.PageID, snap.CapturedAt, snap.ContentHash, snap.Text, snap.Provenance,
	); err != nil {
		return fmt.Errorf("insert baseline: %w", err)
	}

	return tx.Commit()
}
