package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const pageColumns = `id, vendor_id, url, label, fingerprint_phrases, status,
	page_moved, last_checked, last_changed, created_at`

// InsertPage adds a watched page. The (vendor_id, url) pair is unique;
// violations surface as an SQLite constraint error for the caller to map.
func (s *Store) InsertPage(ctx context.Context, p *WatchedPage) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	if p.Status == "" {
		p.Status = StatusActive
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO watched_pages (id, vendor_id, url, label, fingerprint_phrases, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.VendorID, p.URL, p.Label, joinPhrases(p.FingerprintPhrases), p.Status, p.CreatedAt,
	)
	return err
}

// GetPage retrieves a page by ID. Returns (nil, nil) when absent.
func (s *Store) GetPage(ctx context.Context, id string) (*WatchedPage, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM watched_pages WHERE id = ?`, id)
	return scanPage(row)
}

// GetPageByURL returns the page watching url under a vendor, or nil.
func (s *Store) GetPageByURL(ctx context.Context, vendorID, url string) (*WatchedPage, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+pageColumns+` FROM watched_pages WHERE vendor_id = ? AND url = ?`,
		vendorID, url)
	return scanPage(row)
}

// ListPages returns all pages for a vendor, ordered by label.
func (s *Store) ListPages(ctx context.Context, vendorID string) ([]*WatchedPage, error) {
	return s.listPages(ctx,
		`SELECT `+pageColumns+` FROM watched_pages WHERE vendor_id = ? ORDER BY label`,
		vendorID)
}

// ListActivePages returns the vendor's pages eligible for checking.
func (s *Store) ListActivePages(ctx context.Context, vendorID string) ([]*WatchedPage, error) {
	return s.listPages(ctx,
		`SELECT `+pageColumns+` FROM watched_pages
		WHERE vendor_id = ? AND status = 'active' ORDER BY label`,
		vendorID)
}

// UpdateCheckStatus records the outcome flags of a check attempt. This runs
// on every check, success or not.
func (s *Store) UpdateCheckStatus(ctx context.Context, pageID string, checkedAt int64, pageMoved bool) error {
	moved := 0
	if pageMoved {
		moved = 1
	}
	_, err := s.DB.ExecContext(ctx,
		`UPDATE watched_pages SET last_checked = ?, page_moved = ? WHERE id = ?`,
		checkedAt, moved, pageID)
	return err
}

// SetPageStatus switches a page between active and paused.
func (s *Store) SetPageStatus(ctx context.Context, pageID, status string) error {
	res, err := s.DB.ExecContext(ctx,
		`UPDATE watched_pages SET status = ? WHERE id = ?`, status, pageID)
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

// DeletePage removes a page (cascades to snapshots and events).
func (s *Store) DeletePage(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM watched_pages WHERE id = ?`, id)
	return err
}

func (s *Store) listPages(ctx context.Context, query string, args ...any) ([]*WatchedPage, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*WatchedPage
	for rows.Next() {
		p, err := scanPageRows(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func scanPage(row *sql.Row) (*WatchedPage, error) {
	var p WatchedPage
	var phrases string
	var moved int
	err := row.Scan(&p.ID, &p.VendorID, &p.URL, &p.Label, &phrases, &p.Status,
		&moved, &p.LastChecked, &p.LastChanged, &p.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan page: %w", err)
	}
	p.FingerprintPhrases = splitPhrases(phrases)
	p.PageMoved = moved != 0
	return &p, nil
}

func scanPageRows(rows *sql.Rows) (*WatchedPage, error) {
	var p WatchedPage
	var phrases string
	var moved int
	err := rows.Scan(&p.ID, &p.VendorID, &p.URL, &p.Label, &phrases, &p.Status,
		&moved, &p.LastChecked, &p.LastChanged, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("scan page: %w", err)
	}
	p.FingerprintPhrases = splitPhrases(phrases)
	p.PageMoved = moved != 0
	return &p, nil
}
