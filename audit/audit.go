// Package audit persists an operation trail for data-modifying trustwatch
// actions: vendor/page registration, baseline replacement, verdict changes.
// Entries are written asynchronously so the review workflow never blocks on
// the audit table.
package audit

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/trustwatch/idgen"
)

// Schema creates the audit_log table.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_log (
    id         TEXT PRIMARY KEY,
    recorded_at INTEGER NOT NULL,
    action     TEXT NOT NULL,
    vendor_id  TEXT NOT NULL DEFAULT '',
    page_id    TEXT NOT NULL DEFAULT '',
    event_id   TEXT NOT NULL DEFAULT '',
    detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_log_time ON audit_log(recorded_at DESC);
`

// Entry is a single record in the audit trail.
type Entry struct {
	ID         string `json:"id"`
	RecordedAt int64  `json:"recorded_at"`
	Action     string `json:"action"`
	VendorID   string `json:"vendor_id,omitempty"`
	PageID     string `json:"page_id,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Logger is the audit capability consumed by the monitor service.
// A nil *Trail satisfies callers that run without auditing.
type Logger interface {
	LogAsync(e *Entry)
}

// Trail is the SQLite-backed Logger.
type Trail struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *Entry
	stop  chan struct{}
	done  chan struct{}
}

// Option configures a Trail.
type Option func(*Trail)

// WithIDGenerator sets a custom ID generator for audit entry IDs.
func WithIDGenerator(gen idgen.Generator) Option {
	return func(t *Trail) { t.newID = gen }
}

// NewTrail creates an async audit trail writing to db. The schema must be
// applied by the caller (dbopen.WithSchema(audit.Schema)). Recommended
// bufferSize: 256.
func NewTrail(db *sql.DB, bufferSize int, opts ...Option) *Trail {
	t := &Trail{
		db:    db,
		newID: idgen.Prefixed("aud_", idgen.Default),
		ch:    make(chan *Entry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	go t.flushLoop()
	return t
}

// Log inserts an entry synchronously.
func (t *Trail) Log(ctx context.Context, e *Entry) error {
	t.fillDefaults(e)
	return t.insert(ctx, e)
}

// LogAsync queues an entry for async persistence.
// Falls back to synchronous insert if the buffer is full.
func (t *Trail) LogAsync(e *Entry) {
	t.fillDefaults(e)
	select {
	case t.ch <- e:
	default:
		slog.Warn("audit buffer full, sync fallback", "action", e.Action)
		if err := t.insert(context.Background(), e); err != nil {
			slog.Error("audit: sync fallback failed", "error", err)
		}
	}
}

// Recent returns the newest entries, optionally filtered by action.
func (t *Trail) Recent(ctx context.Context, action string, limit int) ([]*Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, recorded_at, action, vendor_id, page_id, event_id, detail
		FROM audit_log`
	var args []any
	if action != "" {
		q += ` WHERE action = ?`
		args = append(args, action)
	}
	q += ` ORDER BY recorded_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := t.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RecordedAt, &e.Action,
			&e.VendorID, &e.PageID, &e.EventID, &e.Detail); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}

// Close drains the buffer and stops the flush goroutine.
func (t *Trail) Close() error {
	close(t.stop)
	<-t.done
	return nil
}

func (t *Trail) fillDefaults(e *Entry) {
	if e.ID == "" {
		e.ID = t.newID()
	}
	if e.RecordedAt == 0 {
		e.RecordedAt = time.Now().UnixMilli()
	}
}

func (t *Trail) flushLoop() {
	defer close(t.done)
	for {
		select {
		case e := <-t.ch:
			if err := t.insert(context.Background(), e); err != nil {
				slog.Error("audit: insert failed", "action", e.Action, "error", err)
			}
		case <-t.stop:
			// Drain remaining entries before exiting.
			for {
				select {
				case e := <-t.ch:
					if err := t.insert(context.Background(), e); err != nil {
						slog.Error("audit: drain insert failed", "error", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (t *Trail) insert(ctx context.Context, e *Entry) error {
	_, err := t.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, recorded_at, action, vendor_id, page_id, event_id, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RecordedAt, e.Action, e.VendorID, e.PageID, e.EventID, e.Detail)
	return err
}
