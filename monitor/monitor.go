// Package monitor is the trustwatch orchestrator: it watches vendor trust
// pages (privacy policies, terms, AI/data-usage statements), snapshots
// their text, detects and classifies changes, and runs the human review
// workflow over the resulting events.
package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/trustwatch/audit"
	"github.com/hazyhaar/trustwatch/idgen"
	"github.com/hazyhaar/trustwatch/monitor/internal/archive"
	"github.com/hazyhaar/trustwatch/monitor/internal/browser"
	"github.com/hazyhaar/trustwatch/monitor/internal/classify"
	"github.com/hazyhaar/trustwatch/monitor/internal/fetcher"
	"github.com/hazyhaar/trustwatch/monitor/internal/store"
	"github.com/hazyhaar/trustwatch/monitor/internal/textdiff"
	"github.com/hazyhaar/trustwatch/webguard"
)

// Renderer produces the rendered visible text of a URL and the final URL
// after redirects. The default implementation is the managed headless
// browser; tests inject stubs.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (text, finalURL string, err error)
}

// Service is the main trustwatch orchestrator.
type Service struct {
	store      *store.Store
	fetcher    *fetcher.Fetcher
	differ     *textdiff.Engine
	archive    *archive.Client
	classifier *classify.Classifier
	browser    *browser.Manager
	renderer   Renderer
	audit      audit.Logger
	logger     *slog.Logger
	cfg        Config
	newID      idgen.Generator
	locks      *pageLocks
	sanitizer  *bluemonday.Policy
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAudit attaches an audit trail. Nil disables auditing.
func WithAudit(a audit.Logger) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithIDGenerator sets a custom ID generator.
func WithIDGenerator(gen idgen.Generator) ServiceOption {
	return func(s *Service) { s.newID = gen }
}

// WithRenderer replaces the managed browser with a custom renderer.
func WithRenderer(r Renderer) ServiceOption {
	return func(s *Service) { s.renderer = r }
}

// WithArchiveClient overrides the Wayback client, mainly for tests.
func WithArchiveClient(c *archive.Client) ServiceOption {
	return func(s *Service) { s.archive = c }
}

// WithAssessor overrides the change assessor, bypassing the LLM config.
func WithAssessor(a classify.Assessor) ServiceOption {
	return func(s *Service) { s.classifier = classify.NewClassifier(a, s.logger) }
}

// New creates a monitor Service on top of db. Unless WithRenderer is
// given, a headless Chrome is managed internally; call Start to launch it
// and Close on shutdown.
func New(db *sql.DB, cfg Config, logger *slog.Logger, opts ...ServiceOption) (*Service, error) {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}

	svc := &Service{
		store:     store.NewStore(db),
		cfg:       cfg,
		logger:    logger,
		newID:     idgen.Default,
		locks:     newPageLocks(),
		sanitizer: bluemonday.StrictPolicy(),
	}

	for _, o := range opts {
		o(svc)
	}

	if svc.renderer == nil {
		svc.browser = browser.NewManager(browser.Config{
			RemoteURL:       cfg.Browser.RemoteURL,
			RecycleInterval: cfg.Browser.RecycleInterval,
			NavigateTimeout: cfg.Browser.NavigateTimeout,
			Logger:          logger,
		})
		svc.renderer = svc.browser
	}
	svc.fetcher = fetcher.New(svc.renderer, fetcher.WithLogger(logger))
	svc.differ = textdiff.New()

	if svc.archive == nil {
		svc.archive = archive.NewClient(
			archive.WithRenderer(svc.renderer),
			archive.WithLogger(logger),
		)
	}
	if svc.classifier == nil {
		var assessor classify.Assessor
		if cfg.LLM.BaseURL != "" {
			a, err := classify.NewLLMAssessor(classify.LLMConfig{
				BaseURL: cfg.LLM.BaseURL,
				APIKey:  cfg.LLM.APIKey,
				Model:   cfg.LLM.Model,
				Timeout: cfg.LLM.Timeout,
				Logger:  logger,
			})
			if err != nil {
				return nil, err
			}
			assessor = a
		}
		svc.classifier = classify.NewClassifier(assessor, logger)
	}

	return svc, nil
}

// Start launches the managed browser. It is a no-op when a custom renderer
// was injected. ctx cancellation stops the browser recycle loop.
func (s *Service) Start(ctx context.Context) error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Start(ctx)
}

// Close shuts down the managed browser.
func (s *Service) Close() error {
	if s.browser == nil {
		return nil
	}
	return s.browser.Close()
}

// ApplySchema creates the monitor tables on db. Idempotent.
func ApplySchema(db *sql.DB) error {
	return store.ApplySchema(db)
}

// ---- Vendors ----

// CreateVendor registers a vendor. Website is optional but validated when
// present.
func (s *Service) CreateVendor(ctx context.Context, name, website, notes string) (*Vendor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: vendor name is required", ErrInvalidInput)
	}
	website = strings.TrimSpace(website)
	if website != "" {
		if err := webguard.ValidateURL(website); err != nil {
			return nil, fmt.Errorf("%w: website: %v", ErrInvalidInput, err)
		}
	}

	v := &Vendor{ID: "ven_" + s.newID(), Name: name, Website: website, Notes: notes}
	if err := s.store.InsertVendor(ctx, v); err != nil {
		return nil, fmt.Errorf("create vendor: %w", err)
	}
	s.logAudit(&audit.Entry{Action: "vendor.create", VendorID: v.ID, Detail: name})
	return v, nil
}

// GetVendor returns a vendor by ID.
func (s *Service) GetVendor(ctx context.Context, id string) (*Vendor, error) {
	v, err := s.store.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, ErrNotFound
	}
	return v, nil
}

// ListVendors returns all vendors with their page and pending-review counts.
func (s *Service) ListVendors(ctx context.Context) ([]*Vendor, error) {
	return s.store.ListVendors(ctx)
}

// DeleteVendor removes a vendor and all its pages, snapshots, and events.
func (s *Service) DeleteVendor(ctx context.Context, id string) error {
	if _, err := s.GetVendor(ctx, id); err != nil {
		return err
	}
	if err := s.store.DeleteVendor(ctx, id); err != nil {
		return err
	}
	s.logAudit(&audit.Entry{Action: "vendor.delete", VendorID: id})
	return nil
}

// ---- Pages ----

// AddPage starts watching a URL under a vendor. Fingerprint phrases, when
// given, must all appear in future captures for a capture to be trusted.
func (s *Service) AddPage(ctx context.Context, vendorID, pageURL, label string, fingerprints []string) (*WatchedPage, error) {
	if _, err := s.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	pageURL = strings.TrimSpace(pageURL)
	if err := webguard.ValidateURL(pageURL); err != nil {
		return nil, fmt.Errorf("%w: url: %v", ErrInvalidInput, err)
	}
	existing, err := s.store.GetPageByURL(ctx, vendorID, pageURL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicatePage
	}
	if strings.TrimSpace(label) == "" {
		label = pageURL
	}

	p := &WatchedPage{
		ID:                 "pg_" + s.newID(),
		VendorID:           vendorID,
		URL:                pageURL,
		Label:              label,
		FingerprintPhrases: fingerprints,
	}
	if err := s.store.InsertPage(ctx, p); err != nil {
		return nil, fmt.Errorf("add page: %w", err)
	}
	s.logAudit(&audit.Entry{Action: "page.add", VendorID: vendorID, PageID: p.ID, Detail: pageURL})
	return p, nil
}

// GetPage returns a page by ID.
func (s *Service) GetPage(ctx context.Context, id string) (*WatchedPage, error) {
	p, err := s.store.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNotFound
	}
	return p, nil
}

// ListPages returns a vendor's watched pages.
func (s *Service) ListPages(ctx context.Context, vendorID string) ([]*WatchedPage, error) {
	if _, err := s.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	return s.store.ListPages(ctx, vendorID)
}

// PausePage excludes a page from checks without losing its history.
func (s *Service) PausePage(ctx context.Context, pageID string) error {
	return s.setPageStatus(ctx, pageID, store.StatusPaused, "page.pause")
}

// ResumePage puts a paused page back into rotation.
func (s *Service) ResumePage(ctx context.Context, pageID string) error {
	return s.setPageStatus(ctx, pageID, store.StatusActive, "page.resume")
}

func (s *Service) setPageStatus(ctx context.Context, pageID, status, action string) error {
	err := s.store.SetPageStatus(ctx, pageID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.logAudit(&audit.Entry{Action: action, PageID: pageID})
	return nil
}

// DeletePage stops watching a page and drops its history.
func (s *Service) DeletePage(ctx context.Context, pageID string) error {
	p, err := s.GetPage(ctx, pageID)
	if err != nil {
		return err
	}
	if err := s.store.DeletePage(ctx, pageID); err != nil {
		return err
	}
	s.logAudit(&audit.Entry{Action: "page.delete", VendorID: p.VendorID, PageID: pageID})
	return nil
}

// ---- Checks ----

// CheckPage fetches a page, compares it against the latest snapshot, and
// records a change event when the content moved. Checks of the same page
// are serialised; concurrent triggers produce at most one event.
func (s *Service) CheckPage(ctx context.Context, pageID string) (*CheckResult, error) {
	unlock := s.locks.lock(pageID)
	defer unlock()

	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if page.Status == store.StatusPaused {
		return nil, ErrPagePaused
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.CheckTimeout)
	defer cancel()

	result := &CheckResult{PageID: page.ID, URL: page.URL}
	now := time.Now().UnixMilli()

	res, err := s.fetcher.Fetch(ctx, page.URL, page.FingerprintPhrases)
	if err != nil {
		// The check still counts as an attempt; keep the old moved flag.
		if uerr := s.store.UpdateCheckStatus(ctx, page.ID, now, page.PageMoved); uerr != nil {
			s.logger.Error("update check status", "page", page.ID, "error", uerr)
		}
		result.Outcome = OutcomeError
		result.Err = err.Error()
		return result, nil
	}

	result.PageMoved = res.PageMoved
	result.MissingFingerprints = res.MissingFingerprints
	if err := s.store.UpdateCheckStatus(ctx, page.ID, now, res.PageMoved); err != nil {
		return nil, fmt.Errorf("update check status: %w", err)
	}

	if res.Blocked {
		result.Outcome = OutcomeBlocked
		result.BlockSignal = res.BlockSignal
		s.logger.Warn("check blocked", "page", page.ID, "url", page.URL, "signal", res.BlockSignal)
		return result, nil
	}
	if len(res.MissingFingerprints) > 0 {
		// Advisory only: the page is flagged as moved but the capture
		// still flows through snapshot, diff, and event recording.
		s.logger.Warn("fingerprint phrases missing, page may have moved",
			"page", page.ID, "url", page.URL, "missing", res.MissingFingerprints)
	}

	prev, err := s.store.LatestSnapshot(ctx, page.ID)
	if err != nil {
		return nil, err
	}

	if prev == nil {
		snap := s.newSnapshot(page.ID, res, now)
		if err := s.store.InsertSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("insert baseline: %w", err)
		}
		result.Outcome = OutcomeBaseline
		s.logger.Info("baseline captured", "page", page.ID, "url", page.URL)
		return result, nil
	}

	if prev.ContentHash == res.ContentHash {
		result.Outcome = OutcomeUnchanged
		return result, nil
	}

	diff, err := s.differ.Compare(prev.Text, res.Text)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}
	if diff.Empty() {
		// Hash moved but no visible line changed (blank-line churn).
		// Store the snapshot so the hash settles; no event.
		if err := s.store.InsertSnapshot(ctx, s.newSnapshot(page.ID, res, now)); err != nil {
			return nil, fmt.Errorf("insert snapshot: %w", err)
		}
		result.Outcome = OutcomeUnchanged
		return result, nil
	}

	vendor, err := s.GetVendor(ctx, page.VendorID)
	if err != nil {
		return nil, err
	}

	removedExcerpt, addedExcerpt := classify.Excerpts(diff.Removed, diff.Added)
	verdict := s.classifier.Classify(ctx, classify.Input{
		VendorName:     vendor.Name,
		PageLabel:      page.Label,
		PageURL:        page.URL,
		RemovedExcerpt: removedExcerpt,
		AddedExcerpt:   addedExcerpt,
		ChangedLines:   diff.ChangedLineCount(),
		Signals:        diff.Signals,
	})

	snap := s.newSnapshot(page.ID, res, now)
	event := &ChangeEvent{
		ID:             "evt_" + s.newID(),
		PageID:         page.ID,
		DetectedAt:     now,
		PrevSnapshotID: prev.ID,
		CurrSnapshotID: snap.ID,
		DiffSummary:    verdict.Summary + "\n\n" + diff.Summary(),
		Severity:       string(verdict.Score),
		Reasoning:      verdict.Reasoning,
		PrevText:       prev.Text,
		CurrText:       res.Text,
	}
	if err := s.store.RecordChange(ctx, snap, event, now); err != nil {
		return nil, fmt.Errorf("record change: %w", err)
	}

	s.logAudit(&audit.Entry{
		Action: "event.recorded", VendorID: page.VendorID,
		PageID: page.ID, EventID: event.ID, Detail: event.Severity,
	})
	s.logger.Info("change detected",
		"page", page.ID, "url", page.URL, "event", event.ID,
		"severity", event.Severity, "changed_lines", diff.ChangedLineCount(),
		"degraded", verdict.Degraded)

	result.Outcome = OutcomeChanged
	result.EventID = event.ID
	result.Severity = event.Severity
	return result, nil
}

// CheckVendorPages checks every active page of a vendor sequentially. A
// failing page does not stop the sweep; its result carries the error.
func (s *Service) CheckVendorPages(ctx context.Context, vendorID string) ([]*CheckResult, error) {
	if _, err := s.GetVendor(ctx, vendorID); err != nil {
		return nil, err
	}
	pages, err := s.store.ListActivePages(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	results := make([]*CheckResult, 0, len(pages))
	for _, p := range pages {
		r, err := s.CheckPage(ctx, p.ID)
		if err != nil {
			r = &CheckResult{PageID: p.ID, URL: p.URL, Outcome: OutcomeError, Err: err.Error()}
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Service) newSnapshot(pageID string, res *fetcher.Result, capturedAt int64) *Snapshot {
	return &Snapshot{
		ID:          "snp_" + s.newID(),
		PageID:      pageID,
		CapturedAt:  capturedAt,
		ContentHash: res.ContentHash,
		Text:        res.Text,
		Provenance:  ProvenanceLive,
	}
}

// ---- Baselines ----

// SetManualBaseline installs a human-pasted baseline text for a page. HTML
// markup is stripped, entities decoded, and whitespace normalized before
// storage. asOf backdates the capture; zero means now.
func (s *Service) SetManualBaseline(ctx context.Context, pageID, text string, asOf time.Time) (*Snapshot, error) {
	if _, err := s.GetPage(ctx, pageID); err != nil {
		return nil, err
	}

	clean := fetcher.Normalize(html.UnescapeString(s.sanitizer.Sanitize(text)))
	if clean == "" {
		return nil, ErrEmptyBaseline
	}

	capturedAt := time.Now().UnixMilli()
	if !asOf.IsZero() {
		capturedAt = asOf.UnixMilli()
	}

	snap := &Snapshot{
		ID:          "snp_" + s.newID(),
		PageID:      pageID,
		CapturedAt:  capturedAt,
		ContentHash: fetcher.HashText(clean),
		Text:        clean,
		Provenance:  ProvenanceManual,
	}
	if err := s.store.ReplaceBaseline(ctx, snap); err != nil {
		return nil, fmt.Errorf("set manual baseline: %w", err)
	}
	s.logAudit(&audit.Entry{Action: "baseline.manual", PageID: pageID, Detail: snap.ID})
	return snap, nil
}

// SeedFromArchive installs a baseline from the oldest Wayback capture in
// the lookback window. It only applies to pages with no snapshots; once a
// page has history, the archive cannot rewrite it.
func (s *Service) SeedFromArchive(ctx context.Context, pageID string, monthsBack int) (*Snapshot, error) {
	page, err := s.GetPage(ctx, pageID)
	if err != nil {
		return nil, err
	}

	count, err := s.store.CountSnapshots(ctx, pageID)
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrAlreadySeeded
	}

	if monthsBack <= 0 {
		monthsBack = s.cfg.ArchiveMonths
	}
	captures, err := s.archive.ListCaptures(ctx, page.URL, monthsBack, s.cfg.ArchiveLimit)
	if err != nil {
		return nil, fmt.Errorf("seed from archive: %w", err)
	}
	if len(captures) == 0 {
		return nil, ErrNoCaptures
	}

	capture := captures[0]
	text, err := s.archive.FetchText(ctx, page.URL, capture.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("seed from archive: %w", err)
	}
	if text == "" {
		return nil, ErrEmptyBaseline
	}

	capturedAt := time.Now().UnixMilli()
	if ts, err := time.Parse("20060102150405", capture.Timestamp); err == nil {
		capturedAt = ts.UnixMilli()
	}

	snap := &Snapshot{
		ID:          "snp_" + s.newID(),
		PageID:      pageID,
		CapturedAt:  capturedAt,
		ContentHash: fetcher.HashText(text),
		Text:        text,
		Provenance:  ProvenanceArchive,
	}
	if err := s.store.ReplaceBaseline(ctx, snap); err != nil {
		return nil, fmt.Errorf("seed from archive: %w", err)
	}
	s.logAudit(&audit.Entry{Action: "baseline.archive", PageID: pageID, Detail: capture.Timestamp})
	s.logger.Info("archive baseline seeded",
		"page", pageID, "url", page.URL, "timestamp", capture.Timestamp, "chars", len(text))
	return snap, nil
}

// ---- Review ----

// ListChangeEvents returns event summaries newest first, optionally
// filtered by verdict.
func (s *Service) ListChangeEvents(ctx context.Context, verdict string, limit int) ([]*ChangeEvent, error) {
	if verdict != "" && !validVerdict(verdict) {
		return nil, ErrInvalidVerdict
	}
	return s.store.ListChangeEvents(ctx, verdict, limit)
}

// GetChangeEvent returns one event with its full before/after texts.
func (s *Service) GetChangeEvent(ctx context.Context, eventID string) (*ChangeEvent, error) {
	e, err := s.store.GetChangeEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, ErrNotFound
	}
	return e, nil
}

// SetVerdict records a review decision, confirmed or dismissed.
// Corrections are allowed: a terminal event can be re-verdicted.
func (s *Service) SetVerdict(ctx context.Context, eventID, verdict string) error {
	if verdict != VerdictConfirmed && verdict != VerdictDismissed {
		return ErrInvalidVerdict
	}
	err := s.store.SetVerdict(ctx, eventID, verdict)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.logAudit(&audit.Entry{Action: "verdict.set", EventID: eventID, Detail: verdict})
	return nil
}

// SnapshotText returns one side of an event's comparison: "prev" or "curr".
func (s *Service) SnapshotText(ctx context.Context, eventID, side string) (string, error) {
	e, err := s.GetChangeEvent(ctx, eventID)
	if err != nil {
		return "", err
	}
	switch side {
	case "prev":
		return e.PrevText, nil
	case "curr":
		return e.CurrText, nil
	default:
		return "", fmt.Errorf("%w: side must be prev or curr", ErrInvalidInput)
	}
}

func validVerdict(v string) bool {
	switch v {
	case VerdictPending, VerdictConfirmed, VerdictDismissed:
		return true
	}
	return false
}

func (s *Service) logAudit(e *audit.Entry) {
	if s.audit != nil {
		s.audit.LogAsync(e)
	}
}
