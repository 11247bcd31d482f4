package store

import (
	"context"
	"database/sql"
	"fmt"
)

// GetChangeEvent retrieves an event with its full texts and joined page and
// vendor context. Returns (nil, nil) when absent.
func (s *Store) GetChangeEvent(ctx context.Context, id string) (*ChangeEvent, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT ce.id, ce.page_id, ce.detected_at, ce.prev_snapshot_id, ce.curr_snapshot_id,
		ce.diff_summary, ce.severity, ce.reasoning, ce.user_verdict, ce.prev_text, ce.curr_text,
		wp.url, wp.label, v.name
		FROM change_events ce
		JOIN watched_pages wp ON wp.id = ce.page_id
		JOIN vendors v ON v.id = wp.vendor_id
		WHERE ce.id = ?`, id)

	var e ChangeEvent
	err := row.Scan(&e.ID, &e.PageID, &e.DetectedAt, &e.PrevSnapshotID, &e.CurrSnapshotID,
		&e.DiffSummary, &e.Severity, &e.Reasoning, &e.UserVerdict, &e.PrevText, &e.CurrText,
		&e.PageURL, &e.PageLabel, &e.VendorName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan change event: %w", err)
	}
	return &e, nil
}

// ListChangeEvents returns event summaries newest first, optionally filtered
// by verdict. Texts are omitted; fetch a single event for the full bodies.
func (s *Store) ListChangeEvents(ctx context.Context, verdict string, limit int) ([]*ChangeEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ce.id, ce.page_id, ce.detected_at, ce.prev_snapshot_id, ce.curr_snapshot_id,
		ce.diff_summary, ce.severity, ce.reasoning, ce.user_verdict,
		wp.url, wp.label, v.name
		FROM change_events ce
		JOIN watched_pages wp ON wp.id = ce.page_id
		JOIN vendors v ON v.id = wp.vendor_id`
	var args []any
	if verdict != "" {
		q += ` WHERE ce.user_verdict = ?`
		args = append(args, verdict)
	}
	q += ` ORDER BY ce.detected_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*ChangeEvent
	for rows.Next() {
		var e ChangeEvent
		if err := rows.Scan(&e.ID, &e.PageID, &e.DetectedAt, &e.PrevSnapshotID, &e.CurrSnapshotID,
			&e.DiffSummary, &e.Severity, &e.Reasoning, &e.UserVerdict,
			&e.PageURL, &e.PageLabel, &e.VendorName); err != nil {
			return nil, fmt.Errorf("scan change event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// SetVerdict records a human review decision. The caller validates the
// verdict string; the store reports sql.ErrNoRows for unknown events.
func (s *Store) SetVerdict(ctx context.Context, eventID, verdict string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE change_events SET user_verdict = ? WHERE id = ?`, verdict, eventID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountEventsByVerdict returns how many events carry each verdict.
func (s *Store) CountEventsByVerdict(ctx context.Context) (map[string]int, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT user_verdict, COUNT(*) FROM change_events GROUP BY user_verdict`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var verdict string
		var n int
		if err := rows.Scan(&verdict, &n); err != nil {
			return nil, err
		}
		counts[verdict] = n
	}
	return counts, rows.Err()
}
