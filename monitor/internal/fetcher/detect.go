package fetcher

import "strings"

// defaultBlockSignals are substrings that mark an anti-bot interstitial
// rather than real page content. Matched case-insensitively against the
// rendered text.
var defaultBlockSignals = []string{
	"just a moment",
	"enable javascript",
	"cf-browser-verification",
	"checking your browser",
	"ddos protection",
	"please wait while we check your browser",
}

// DetectBlock reports whether the text looks like a bot-challenge page,
// returning the first matching signal. Signals are matched lowercased.
func DetectBlock(text string, signals []string) (string, bool) {
	lower := strings.ToLower(text)
	for _, sig := range signals {
		if strings.Contains(lower, strings.ToLower(sig)) {
			return sig, true
		}
	}
	return "", false
}

// MissingFingerprints returns the phrases not present in the text,
// case-insensitively. A page that lost its fingerprint phrases probably
// serves a different document now, so the page is treated as moved.
func MissingFingerprints(text string, phrases []string) []string {
	if len(phrases) == 0 {
		return nil
	}
	lower := strings.ToLower(text)
	var missing []string
	for _, p := range phrases {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(lower, strings.ToLower(p)) {
			missing = append(missing, p)
		}
	}
	return missing
}
