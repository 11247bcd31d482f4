package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// InsertVendor adds a new vendor.
func (s *Store) InsertVendor(ctx context.Context, v *Vendor) error {
	if v.CreatedAt == 0 {
		v.CreatedAt = time.Now().UnixMilli()
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO vendors (id, name, website, notes, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		v.ID, v.Name, v.Website, v.Notes, v.CreatedAt,
	)
	return err
}

// GetVendor retrieves a vendor by ID. Returns (nil, nil) when absent.
func (s *Store) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT id, name, website, notes, created_at FROM vendors WHERE id = ?`, id)

	var v Vendor
	err := row.Scan(&v.ID, &v.Name, &v.Website, &v.Notes, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan vendor: %w", err)
	}
	return &v, nil
}

// ListVendors returns all vendors with active page and pending review counts.
func (s *Store) ListVendors(ctx context.Context) ([]*Vendor, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT v.id, v.name, v.website, v.notes, v.created_at,
		COUNT(DISTINCT wp.id), COUNT(DISTINCT ce.id)
		FROM vendors v
		LEFT JOIN watched_pages wp ON wp.vendor_id = v.id AND wp.status = 'active'
		LEFT JOIN change_events ce ON ce.page_id = wp.id AND ce.user_verdict = 'pending'
		GROUP BY v.id
		ORDER BY v.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var vendors []*Vendor
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Website, &v.Notes, &v.CreatedAt,
			&v.PageCount, &v.PendingCount); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		vendors = append(vendors, &v)
	}
	return vendors, rows.Err()
}

// DeleteVendor removes a vendor (cascades to pages, snapshots, events).
func (s *Store) DeleteVendor(ctx context.Context, id string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM vendors WHERE id = ?`, id)
	return err
}
