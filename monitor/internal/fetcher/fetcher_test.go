package fetcher

import (
	"context"
	"strings"
	"testing"
)

func stubRenderer(text, finalURL string) Renderer {
	return RenderFunc(func(_ context.Context, pageURL string) (string, string, error) {
		if finalURL == "" {
			finalURL = pageURL
		}
		return text, finalURL, nil
	})
}

func TestNormalize(t *testing.T) {
	// WHAT: Normalization collapses blank-line runs and horizontal whitespace.
	// WHY: The content hash must be stable across layout-only churn.
	cases := []struct {
		in, want string
	}{
		{"a\n\n\n\n\nb", "a\n\nb"},
		{"a  \t  b", "a b"},
		{"  padded  ", "padded"},
		{"a\n\nb", "a\n\nb"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestHashText(t *testing.T) {
	// WHAT: Hashing is deterministic and content-sensitive.
	// WHY: Snapshot dedup compares hashes, not texts.
	h1 := HashText("hello")
	h2 := HashText("hello")
	h3 := HashText("hello ")
	if h1 != h2 {
		t.Error("same input must hash identically")
	}
	if h1 == h3 {
		t.Error("different input must hash differently")
	}
	if len(h1) != 64 {
		t.Errorf("hash length: got %d, want 64 hex chars", len(h1))
	}
}

func TestDetectBlock(t *testing.T) {
	// WHAT: Anti-bot interstitials are recognized case-insensitively.
	// WHY: Storing a challenge page as a snapshot would report the whole
	// policy as changed.
	sig, blocked := DetectBlock("Just a Moment... Checking Your Browser", defaultBlockSignals)
	if !blocked || sig != "just a moment" {
		t.Errorf("got (%q, %v)", sig, blocked)
	}

	if _, blocked := DetectBlock("Our privacy policy explains how we use data.", defaultBlockSignals); blocked {
		t.Error("plain content flagged as blocked")
	}
}

func TestFetchCustomBlockSignals(t *testing.T) {
	// WHAT: An injected signal list fully replaces the default one.
	// WHY: The block phrases are configuration, not a compile-time constant.
	f := New(stubRenderer("Access denied by corporate proxy", ""),
		WithBlockSignals([]string{"access denied"}))
	res, err := f.Fetch(context.Background(), "https://acme.example/privacy", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.Blocked || res.BlockSignal != "access denied" {
		t.Errorf("got (%q, %v)", res.BlockSignal, res.Blocked)
	}

	f = New(stubRenderer("Just a moment...", ""), WithBlockSignals([]string{"access denied"}))
	res, err = f.Fetch(context.Background(), "https://acme.example/privacy", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Blocked {
		t.Error("default signal must not fire once the list is replaced")
	}
}

func TestMissingFingerprints(t *testing.T) {
	// WHAT: All fingerprint phrases must be present; matching ignores case.
	// WHY: A missing phrase means the page served something unexpected.
	text := "We comply with GDPR and never sell your data."

	if m := MissingFingerprints(text, []string{"gdpr", "Sell Your Data"}); len(m) != 0 {
		t.Errorf("unexpected missing: %v", m)
	}
	m := MissingFingerprints(text, []string{"GDPR", "training data"})
	if len(m) != 1 || m[0] != "training data" {
		t.Errorf("missing: %v", m)
	}
	if m := MissingFingerprints(text, nil); m != nil {
		t.Errorf("nil phrases: %v", m)
	}
}

func TestFetchNormalizesAndHashes(t *testing.T) {
	// WHAT: Fetch runs the render output through normalization and hashing.
	// WHY: Raw renderer text always carries layout whitespace.
	f := New(stubRenderer("Privacy   Policy\n\n\n\nWe collect data.", ""))
	res, err := f.Fetch(context.Background(), "https://acme.example/privacy", nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if res.Text != "Privacy Policy\n\nWe collect data." {
		t.Errorf("text: %q", res.Text)
	}
	if res.ContentHash != HashText(res.Text) {
		t.Error("hash does not match normalized text")
	}
	if !res.Usable() {
		t.Error("clean capture should be usable")
	}
}

func TestFetchDetectsBlock(t *testing.T) {
	// WHAT: A challenge page marks the result blocked and unusable.
	// WHY: Blocked captures must never become snapshots.
	f := New(stubRenderer("Please wait while we check your browser...", ""))
	res, err := f.Fetch(context.Background(), "https://acme.example/privacy", []string{"privacy"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !res.Blocked {
		t.Fatal("block not detected")
	}
	if res.Usable() {
		t.Error("blocked capture must be unusable")
	}
	if len(res.MissingFingerprints) != 0 {
		t.Error("fingerprints should not be evaluated on blocked pages")
	}
}

func TestFetchDetectsFingerprintMiss(t *testing.T) {
	// WHAT: A capture missing a required phrase stays usable but is flagged
	// as moved.
	// WHY: The flag warns reviewers the page may have changed identity; it
	// must never stop the snapshot from being stored.
	f := New(stubRenderer("404 not found", ""))
	res, err := f.Fetch(context.Background(), "https://acme.example/privacy", []string{"privacy policy"})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(res.MissingFingerprints) != 1 {
		t.Fatalf("missing: %v", res.MissingFingerprints)
	}
	if !res.PageMoved {
		t.Error("fingerprint miss must set the moved flag")
	}
	if !res.Usable() {
		t.Error("fingerprint miss must not make the capture unusable")
	}
}

func TestFetchPageMoved(t *testing.T) {
	// WHAT: Benign redirects are tolerated; real moves are flagged.
	// WHY: Vendors shuffle trust pages; the old URL silently serving a
	// different document is a signal, not noise.
	long := strings.Repeat("policy text ", 30)
	cases := []struct {
		name      string
		requested string
		final     string
		moved     bool
	}{
		{"identical", "https://a.example/privacy", "https://a.example/privacy", false},
		{"trailing slash", "https://a.example/privacy", "https://a.example/privacy/", false},
		{"https upgrade", "http://a.example/privacy", "https://a.example/privacy", false},
		{"www prefix", "https://a.example/privacy", "https://www.a.example/privacy", false},
		{"new path", "https://a.example/privacy", "https://a.example/legal/privacy-v2", true},
		{"new host", "https://a.example/privacy", "https://trust.a.example/privacy", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := New(stubRenderer(long, c.final))
			res, err := f.Fetch(context.Background(), c.requested, nil)
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if res.PageMoved != c.moved {
				t.Errorf("moved: got %v, want %v", res.PageMoved, c.moved)
			}
		})
	}
}
