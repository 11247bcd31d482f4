// Package fetcher acquires the current text of a watched page through a
// headless browser render, normalizes it, and runs the trust checks that
// decide whether the capture is usable: bot-block detection, fingerprint
// presence, and redirect tracking.
package fetcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Renderer produces the visible text of a URL after JS execution. The
// production implementation is the browser manager; tests supply a stub.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (text, finalURL string, err error)
}

// RenderFunc adapts a function to the Renderer interface.
type RenderFunc func(ctx context.Context, pageURL string) (string, string, error)

func (f RenderFunc) Render(ctx context.Context, pageURL string) (string, string, error) {
	return f(ctx, pageURL)
}

// Result is the outcome of a page capture.
type Result struct {
	URL      string
	FinalURL string

	// Text is the normalized rendered text; ContentHash its SHA-256 hex.
	Text        string
	ContentHash string

	// Blocked is set when the text matches an anti-bot signal.
	Blocked     bool
	BlockSignal string

	// MissingFingerprints lists required phrases absent from the text.
	MissingFingerprints []string

	// PageMoved is set when fingerprint phrases are missing from an
	// otherwise successful capture, or when the browser landed on a
	// materially different URL. Advisory: it never suppresses snapshot
	// or event creation.
	PageMoved bool
}

// Usable reports whether the capture can be stored as a snapshot.
func (r *Result) Usable() bool {
	return !r.Blocked && r.Text != ""
}

// Fetcher captures pages through a Renderer.
type Fetcher struct {
	renderer     Renderer
	blockSignals []string
	logger       *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// WithBlockSignals replaces the default anti-bot signal phrases.
func WithBlockSignals(signals []string) Option {
	return func(f *Fetcher) { f.blockSignals = signals }
}

// New creates a Fetcher backed by the given renderer.
func New(r Renderer, opts ...Option) *Fetcher {
	f := &Fetcher{
		renderer:     r,
		blockSignals: defaultBlockSignals,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Fetch renders pageURL, normalizes the text, and evaluates block signals,
// fingerprint phrases, and redirects. A non-nil Result with Blocked or
// MissingFingerprints set is not an error; the caller decides what to do.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string, fingerprints []string) (*Result, error) {
	raw, finalURL, err := f.renderer.Render(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	res := &Result{URL: pageURL, FinalURL: finalURL}
	res.Text = Normalize(raw)
	res.ContentHash = HashText(res.Text)
	res.BlockSignal, res.Blocked = DetectBlock(res.Text, f.blockSignals)
	if !res.Blocked {
		res.MissingFingerprints = MissingFingerprints(res.Text, fingerprints)
	}
	res.PageMoved = len(res.MissingFingerprints) > 0 || !urlsEquivalent(pageURL, finalURL)

	f.logger.Debug("fetched page",
		"url", pageURL, "final_url", finalURL, "chars", len(res.Text),
		"blocked", res.Blocked, "moved", res.PageMoved,
		"missing_fingerprints", len(res.MissingFingerprints))

	return res, nil
}

// urlsEquivalent treats a trailing slash, an http-to-https upgrade, a www
// prefix, and fragments as the same page. Anything else counts as a move.
func urlsEquivalent(requested, final string) bool {
	if final == "" || requested == final {
		return true
	}
	a, errA := url.Parse(requested)
	b, errB := url.Parse(final)
	if errA != nil || errB != nil {
		return strings.TrimRight(requested, "/") == strings.TrimRight(final, "/")
	}
	hostA := strings.TrimPrefix(strings.ToLower(a.Hostname()), "www.")
	hostB := strings.TrimPrefix(strings.ToLower(b.Hostname()), "www.")
	if hostA != hostB {
		return false
	}
	pathA := strings.TrimRight(a.Path, "/")
	pathB := strings.TrimRight(b.Path, "/")
	if pathA != pathB {
		return false
	}
	return a.RawQuery == b.RawQuery
}
