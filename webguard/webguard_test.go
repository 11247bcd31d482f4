package webguard

import (
	"strings"
	"testing"
)

func TestValidateURLSchemes(t *testing.T) {
	// WHAT: Only http/https pass scheme validation.
	// WHY: file:// or gopher:// URLs must never reach the browser.
	cases := []struct {
		url string
		ok  bool
	}{
		{"https://example.com/privacy", true},
		{"http://example.com", true},
		{"ftp://example.com", false},
		{"file:///etc/passwd", false},
		{"javascript:alert(1)", false},
	}
	for _, c := range cases {
		err := ValidateURL(c.url)
		if c.ok && err != nil {
			t.Errorf("%s: unexpected error %v", c.url, err)
		}
		if !c.ok && err == nil {
			t.Errorf("%s: expected rejection", c.url)
		}
	}
}

func TestValidateURLPrivateIPs(t *testing.T) {
	// WHAT: Literal private and loopback IPs are rejected.
	// WHY: SSRF prevention for URLs registered by users.
	for _, u := range []string{
		"http://127.0.0.1/admin",
		"http://10.0.0.5/",
		"http://192.168.1.1/",
		"http://169.254.169.254/latest/meta-data",
		"http://0.0.0.0/",
	} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("%s: expected rejection", u)
		}
	}
}

func TestValidateURLNoHost(t *testing.T) {
	// WHAT: URLs without a hostname are rejected.
	// WHY: A bare path is never a valid watch target.
	if err := ValidateURL("https:///privacy"); err == nil {
		t.Error("expected rejection for empty host")
	}
}

func TestReadBounded(t *testing.T) {
	// WHAT: ReadBounded truncates at the limit.
	// WHY: Runaway archive responses must not exhaust memory.
	data, err := ReadBounded(strings.NewReader(strings.Repeat("x", 100)), 10)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(data) != 10 {
		t.Errorf("length: got %d, want 10", len(data))
	}
}
