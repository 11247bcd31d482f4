// Package webguard provides outbound-request safety checks for trustwatch:
// URL validation (SSRF prevention) and bounded response reads.
//
// Every URL a human registers for watching is fetched later by a headless
// browser running inside the service network, so watched URLs are validated
// on entry rather than at fetch time.
package webguard

import (
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
)

// MaxResponseBody is the default cap for HTTP response body reads (2 MiB).
// Trust/policy pages are text; anything larger is not a policy page.
const MaxResponseBody int64 = 2 << 20

// ErrSSRF is returned when a URL targets a private or loopback address.
var ErrSSRF = errors.New("webguard: URL targets a private or loopback address")

// ErrUnsafeScheme is returned when a URL uses a non-HTTP(S) scheme.
var ErrUnsafeScheme = errors.New("webguard: only http and https schemes are allowed")

// ErrNoHost is returned when a URL has no hostname.
var ErrNoHost = errors.New("webguard: URL has no hostname")

// ValidateURL checks that rawURL uses http/https, has a hostname, and does
// not resolve to a private or loopback IP. DNS resolution is performed to
// catch internal hostnames, not just literal IPs.
func ValidateURL(rawURL string) error {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrUnsafeScheme
	}
	host := u.Hostname()
	if host == "" {
		return ErrNoHost
	}

	if ip := net.ParseIP(host); ip != nil {
		if isForbidden(ip) {
			return ErrSSRF
		}
		return nil
	}

	addrs, err := net.LookupIP(host)
	if err != nil {
		// Unresolvable hosts are allowed through; the fetch itself will
		// fail with a clearer navigation error.
		return nil
	}
	for _, ip := range addrs {
		if isForbidden(ip) {
			return ErrSSRF
		}
	}
	return nil
}

func isForbidden(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast()
}

// ReadBounded reads at most limit bytes from r. A limit <= 0 falls back to
// MaxResponseBody.
func ReadBounded(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxResponseBody
	}
	return io.ReadAll(io.LimitReader(r, limit))
}
