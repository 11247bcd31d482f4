package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA foreign_keys=ON")
	if err := ApplySchema(db); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func seedPage(t *testing.T, s *Store) *WatchedPage {
	t.Helper()
	ctx := context.Background()
	if err := s.InsertVendor(ctx, &Vendor{ID: "v-1", Name: "Acme"}); err != nil {
		t.Fatalf("insert vendor: %v", err)
	}
	p := &WatchedPage{
		ID:       "p-1",
		VendorID: "v-1",
		URL:      "https://acme.example/privacy",
		Label:    "Privacy Policy",
	}
	if err := s.InsertPage(ctx, p); err != nil {
		t.Fatalf("insert page: %v", err)
	}
	return p
}

func TestApplySchema(t *testing.T) {
	// WHAT: Verify schema creates all tables without error.
	// WHY: Schema is the foundation — if it fails, nothing works.
	db := openTestDB(t)
	for _, table := range []string{"vendors", "watched_pages", "snapshots", "change_events"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not found: %v", table, err)
		}
	}
}

func TestInsertAndGetVendor(t *testing.T) {
	// WHAT: Insert a vendor and retrieve it by ID.
	// WHY: Vendor CRUD is the entry point for everything else.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	if err := s.InsertVendor(ctx, &Vendor{ID: "v-a", Name: "Acme", Website: "https://acme.example", Notes: "n"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	got, err := s.GetVendor(ctx, "v-a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Name != "Acme" || got.Website != "https://acme.example" {
		t.Errorf("vendor mismatch: %+v", got)
	}
	if got.CreatedAt == 0 {
		t.Error("created_at not defaulted")
	}

	missing, err := s.GetVendor(ctx, "nope")
	if err != nil || missing != nil {
		t.Errorf("missing vendor: got %+v, %v", missing, err)
	}
}

func TestPageFingerprintRoundTrip(t *testing.T) {
	// WHAT: Fingerprint phrases survive the delimited-string storage format.
	// WHY: Fetch validation reads the parsed set, not the raw column.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()

	s.InsertVendor(ctx, &Vendor{ID: "v-1", Name: "Acme"})
	p := &WatchedPage{
		ID:                 "p-fp",
		VendorID:           "v-1",
		URL:                "https://acme.example/ai",
		Label:              "AI Policy",
		FingerprintPhrases: []string{"GDPR", " training data ", ""},
	}
	if err := s.InsertPage(ctx, p); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := s.GetPage(ctx, "p-fp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	want := []string{"GDPR", "training data"}
	if len(got.FingerprintPhrases) != len(want) {
		t.Fatalf("phrases: got %v, want %v", got.FingerprintPhrases, want)
	}
	for i := range want {
		if got.FingerprintPhrases[i] != want[i] {
			t.Errorf("phrase %d: got %q, want %q", i, got.FingerprintPhrases[i], want[i])
		}
	}
	if got.Status != StatusActive {
		t.Errorf("status: got %q, want active", got.Status)
	}
}

func TestUniquePagePerVendorURL(t *testing.T) {
	// WHAT: Inserting the same URL twice for one vendor fails.
	// WHY: Duplicate watches would double-report every change.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)

	err := s.InsertPage(ctx, &WatchedPage{
		ID:       "p-dup",
		VendorID: "v-1",
		URL:      "https://acme.example/privacy",
		Label:    "Duplicate",
	})
	if err == nil {
		t.Fatal("expected UNIQUE violation")
	}
}

func TestUpdateCheckStatus(t *testing.T) {
	// WHAT: Check status update sets last_checked and page_moved.
	// WHY: These fields update on every check regardless of outcome.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)

	now := time.Now().UnixMilli()
	if err := s.UpdateCheckStatus(ctx, "p-1", now, true); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _ := s.GetPage(ctx, "p-1")
	if got.LastChecked == nil || *got.LastChecked != now {
		t.Errorf("last_checked: got %v", got.LastChecked)
	}
	if !got.PageMoved {
		t.Error("page_moved should be set")
	}
}

func TestSetPageStatus(t *testing.T) {
	// WHAT: Pause and resume flip the status; unknown page errors.
	// WHY: Paused pages are excluded from vendor-wide checks.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)

	if err := s.SetPageStatus(ctx, "p-1", StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	got, _ := s.GetPage(ctx, "p-1")
	if got.Status != StatusPaused {
		t.Errorf("status: got %q", got.Status)
	}

	if err := s.SetPageStatus(ctx, "ghost", StatusPaused); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown page: got %v, want ErrNoRows", err)
	}
}

func TestLatestSnapshot(t *testing.T) {
	// WHAT: LatestSnapshot picks the maximum captured_at.
	// WHY: Baseline-vs-change decisions hinge on reading the true latest.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)

	none, err := s.LatestSnapshot(ctx, "p-1")
	if err != nil || none != nil {
		t.Fatalf("empty page: got %+v, %v", none, err)
	}

	now := time.Now().UnixMilli()
	s.InsertSnapshot(ctx, &Snapshot{ID: "s-old", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "h1", Text: "old"})
	s.InsertSnapshot(ctx, &Snapshot{ID: "s-new", PageID: "p-1", CapturedAt: now, ContentHash: "h2", Text: "new"})

	latest, err := s.LatestSnapshot(ctx, "p-1")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.ID != "s-new" {
		t.Errorf("latest: got %s, want s-new", latest.ID)
	}
	if latest.Provenance != ProvenanceLive {
		t.Errorf("provenance not defaulted: %q", latest.Provenance)
	}
}

func TestReplaceBaseline(t *testing.T) {
	// WHAT: ReplaceBaseline removes the prior manual/archive snapshot and
	// keeps live history intact.
	// WHY: At most one non-live baseline may exist per page.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	s.InsertSnapshot(ctx, &Snapshot{ID: "s-live", PageID: "p-1", CapturedAt: now, ContentHash: "hl", Text: "live"})
	if err := s.ReplaceBaseline(ctx, &Snapshot{ID: "s-man1", PageID: "p-1", CapturedAt: now - 100, ContentHash: "hm1", Text: "m1", Provenance: ProvenanceManual}); err != nil {
		t.Fatalf("first baseline: %v", err)
	}
	if err := s.ReplaceBaseline(ctx, &Snapshot{ID: "s-arc1", PageID: "p-1", CapturedAt: now - 50, ContentHash: "ha1", Text: "a1", Provenance: ProvenanceArchive}); err != nil {
		t.Fatalf("second baseline: %v", err)
	}

	count, _ := s.CountSnapshots(ctx, "p-1")
	if count != 2 {
		t.Errorf("snapshots: got %d, want 2 (live + one baseline)", count)
	}

	var prov string
	db.QueryRow(`SELECT provenance FROM snapshots WHERE id = 's-arc1'`).Scan(&prov)
	if prov != ProvenanceArchive {
		t.Errorf("surviving baseline: got %q", prov)
	}
}

func TestReplaceBaselineKeepsEventReferencedSnapshot(t *testing.T) {
	// WHAT: A manual baseline that a change event references survives a
	// later ReplaceBaseline, and the replacement still lands.
	// WHY: The old baseline is the event's prev side; deleting it would
	// orphan the evidence and fail the snapshot foreign keys.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	if err := s.ReplaceBaseline(ctx, &Snapshot{ID: "s-man1", PageID: "p-1", CapturedAt: now - 2000, ContentHash: "hm", Text: "old policy", Provenance: ProvenanceManual}); err != nil {
		t.Fatalf("seed baseline: %v", err)
	}
	if err := s.RecordChange(ctx,
		&Snapshot{ID: "s-live", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "hl", Text: "new policy"},
		&ChangeEvent{ID: "ev-1", PageID: "p-1", DetectedAt: now - 1000, PrevSnapshotID: "s-man1", CurrSnapshotID: "s-live"},
		now-1000); err != nil {
		t.Fatalf("record change: %v", err)
	}

	if err := s.ReplaceBaseline(ctx, &Snapshot{ID: "s-arc2", PageID: "p-1", CapturedAt: now, ContentHash: "ha", Text: "archive copy", Provenance: ProvenanceArchive}); err != nil {
		t.Fatalf("replace baseline: %v", err)
	}

	count, _ := s.CountSnapshots(ctx, "p-1")
	if count != 3 {
		t.Errorf("snapshots: got %d, want 3 (referenced baseline, live, new baseline)", count)
	}
	ev, err := s.GetChangeEvent(ctx, "ev-1")
	if err != nil || ev == nil {
		t.Fatalf("event after replace: %+v, %v", ev, err)
	}
	if ev.PrevText != "old policy" {
		t.Errorf("prev side lost: %+v", ev)
	}
}

func TestReplaceBaselineRejectsLive(t *testing.T) {
	// WHAT: ReplaceBaseline refuses provenance "live".
	// WHY: Live history is append-only and must never be deleted.
	db := openTestDB(t)
	s := NewStore(db)
	seedPage(t, s)

	err := s.ReplaceBaseline(context.Background(),
		&Snapshot{ID: "s-x", PageID: "p-1", ContentHash: "h", Text: "t", Provenance: ProvenanceLive})
	if err == nil {
		t.Fatal("expected rejection of live provenance")
	}
}

func TestRecordChangeAtomic(t *testing.T) {
	// WHAT: RecordChange lands snapshot, event, and page timestamp together.
	// WHY: A failed check must never leave partial state behind.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	s.InsertSnapshot(ctx, &Snapshot{ID: "s-prev", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "h1", Text: "before"})

	snap := &Snapshot{ID: "s-curr", PageID: "p-1", CapturedAt: now, ContentHash: "h2", Text: "after", Provenance: ProvenanceLive}
	ev := &ChangeEvent{
		ID: "ev-1", PageID: "p-1", DetectedAt: now,
		PrevSnapshotID: "s-prev", CurrSnapshotID: "s-curr",
		DiffSummary: "changed", Severity: "medium", Reasoning: "r",
		PrevText: "before", CurrText: "after",
	}
	if err := s.RecordChange(ctx, snap, ev, now); err != nil {
		t.Fatalf("record change: %v", err)
	}

	got, err := s.GetChangeEvent(ctx, "ev-1")
	if err != nil || got == nil {
		t.Fatalf("get event: %+v, %v", got, err)
	}
	if got.UserVerdict != VerdictPending {
		t.Errorf("verdict: got %q, want pending", got.UserVerdict)
	}
	if got.VendorName != "Acme" || got.PageLabel != "Privacy Policy" {
		t.Errorf("joined context missing: %+v", got)
	}

	page, _ := s.GetPage(ctx, "p-1")
	if page.LastChanged == nil || *page.LastChanged != now {
		t.Errorf("last_changed: got %v", page.LastChanged)
	}
}

func TestRecordChangeRollsBack(t *testing.T) {
	// WHAT: A constraint failure inside RecordChange leaves no snapshot.
	// WHY: Transaction boundary covers snapshot + event + page update.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	// Event references a snapshot that does not exist: FK failure.
	snap := &Snapshot{ID: "s-orphan", PageID: "p-1", CapturedAt: now, ContentHash: "h", Text: "t", Provenance: ProvenanceLive}
	ev := &ChangeEvent{
		ID: "ev-bad", PageID: "p-1", DetectedAt: now,
		PrevSnapshotID: "s-missing", CurrSnapshotID: "s-orphan",
	}
	if err := s.RecordChange(ctx, snap, ev, now); err == nil {
		t.Fatal("expected FK failure")
	}

	count, _ := s.CountSnapshots(ctx, "p-1")
	if count != 0 {
		t.Errorf("snapshot leaked through rollback: count %d", count)
	}
}

func TestListChangeEventsFilter(t *testing.T) {
	// WHAT: Verdict filter narrows the event list; order is newest first.
	// WHY: The review queue is driven by the pending filter.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	s.InsertSnapshot(ctx, &Snapshot{ID: "s-1", PageID: "p-1", CapturedAt: now - 2000, ContentHash: "h1", Text: "a"})
	s.InsertSnapshot(ctx, &Snapshot{ID: "s-2", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "h2", Text: "b"})
	s.InsertSnapshot(ctx, &Snapshot{ID: "s-3", PageID: "p-1", CapturedAt: now, ContentHash: "h3", Text: "c"})

	mkEvent := func(id string, at int64, prev, curr string) {
		if err := s.RecordChange(ctx, &Snapshot{ID: "tmp-" + id, PageID: "p-1", CapturedAt: at, ContentHash: "x" + id, Text: "t"},
			&ChangeEvent{ID: id, PageID: "p-1", DetectedAt: at, PrevSnapshotID: prev, CurrSnapshotID: curr}, at); err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	mkEvent("ev-a", now-500, "s-1", "s-2")
	mkEvent("ev-b", now, "s-2", "s-3")

	if err := s.SetVerdict(ctx, "ev-a", VerdictDismissed); err != nil {
		t.Fatalf("set verdict: %v", err)
	}

	pending, err := s.ListChangeEvents(ctx, VerdictPending, 50)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "ev-b" {
		t.Errorf("pending: %+v", pending)
	}

	all, _ := s.ListChangeEvents(ctx, "", 50)
	if len(all) != 2 || all[0].ID != "ev-b" {
		t.Errorf("order: %+v", all)
	}

	counts, _ := s.CountEventsByVerdict(ctx)
	if counts[VerdictPending] != 1 || counts[VerdictDismissed] != 1 {
		t.Errorf("counts: %v", counts)
	}
}

func TestSetVerdictUnknownEvent(t *testing.T) {
	// WHAT: SetVerdict on a missing event reports ErrNoRows.
	// WHY: The API layer maps this to 404, not a silent success.
	db := openTestDB(t)
	s := NewStore(db)

	err := s.SetVerdict(context.Background(), "ghost", VerdictConfirmed)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("got %v, want ErrNoRows", err)
	}
}

func TestDeleteVendorCascades(t *testing.T) {
	// WHAT: Deleting a vendor removes pages, snapshots, and events.
	// WHY: Cascade prevents orphaned review data.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	s.InsertSnapshot(ctx, &Snapshot{ID: "s-1", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "h1", Text: "a"})
	s.RecordChange(ctx,
		&Snapshot{ID: "s-2", PageID: "p-1", CapturedAt: now, ContentHash: "h2", Text: "b"},
		&ChangeEvent{ID: "ev-1", PageID: "p-1", DetectedAt: now, PrevSnapshotID: "s-1", CurrSnapshotID: "s-2"}, now)

	if err := s.DeleteVendor(ctx, "v-1"); err != nil {
		t.Fatalf("delete vendor: %v", err)
	}

	for _, q := range []string{
		`SELECT COUNT(*) FROM watched_pages`,
		`SELECT COUNT(*) FROM snapshots`,
		`SELECT COUNT(*) FROM change_events`,
	} {
		var n int
		db.QueryRow(q).Scan(&n)
		if n != 0 {
			t.Errorf("%s: got %d, want 0", q, n)
		}
	}
}

func TestListVendorsCounts(t *testing.T) {
	// WHAT: ListVendors aggregates active page and pending event counts.
	// WHY: The vendor overview drives the review dashboard.
	db := openTestDB(t)
	s := NewStore(db)
	ctx := context.Background()
	seedPage(t, s)
	now := time.Now().UnixMilli()

	s.InsertSnapshot(ctx, &Snapshot{ID: "s-1", PageID: "p-1", CapturedAt: now - 1000, ContentHash: "h1", Text: "a"})
	s.RecordChange(ctx,
		&Snapshot{ID: "s-2", PageID: "p-1", CapturedAt: now, ContentHash: "h2", Text: "b"},
		&ChangeEvent{ID: "ev-1", PageID: "p-1", DetectedAt: now, PrevSnapshotID: "s-1", CurrSnapshotID: "s-2"}, now)

	vendors, err := s.ListVendors(ctx)
	if err != nil {
		t.Fatalf("list vendors: %v", err)
	}
	if len(vendors) != 1 {
		t.Fatalf("count: got %d", len(vendors))
	}
	if vendors[0].PageCount != 1 || vendors[0].PendingCount != 1 {
		t.Errorf("aggregates: %+v", vendors[0])
	}
}
