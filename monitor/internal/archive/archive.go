// Package archive resolves historical captures of a page from the Wayback
// Machine: listing capture timestamps via the CDX API and recovering the
// page text of a chosen capture.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hazyhaar/trustwatch/monitor/internal/fetcher"
	"github.com/hazyhaar/trustwatch/webguard"
)

const (
	defaultCDXURL = "https://web.archive.org/cdx/search/cdx"
	defaultWebURL = "https://web.archive.org/web"

	// politenessDelay is the minimum spacing between archive.org requests,
	// applied before the first request as well.
	politenessDelay = 3 * time.Second

	// minTextLength is the threshold below which a lightweight fetch is
	// considered too thin and the browser fallback kicks in.
	minTextLength = 200
)

// Capture is one archived version of a URL.
type Capture struct {
	Timestamp  string // 14-digit wayback timestamp, e.g. 20240131120000
	StatusCode int
}

// Client talks to the Wayback Machine with politeness throttling.
type Client struct {
	http     *http.Client
	cdxURL   string
	webURL   string
	limiter  *rate.Limiter
	renderer fetcher.Renderer
	ua       string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithBaseURLs overrides the CDX and replay endpoints, mainly for tests.
func WithBaseURLs(cdxURL, webURL string) Option {
	return func(c *Client) { c.cdxURL = cdxURL; c.webURL = webURL }
}

// WithRenderer sets the browser fallback used when the lightweight fetch
// yields too little text. Nil disables the fallback.
func WithRenderer(r fetcher.Renderer) Option {
	return func(c *Client) { c.renderer = r }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithPolitenessDelay overrides the spacing between requests, for tests.
func WithPolitenessDelay(d time.Duration) Option {
	return func(c *Client) { c.limiter = newPrimedLimiter(d) }
}

// NewClient creates an archive client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		cdxURL:  defaultCDXURL,
		webURL:  defaultWebURL,
		limiter: newPrimedLimiter(politenessDelay),
		ua:      "trustwatch/1.0 (vendor trust page monitor)",
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// newPrimedLimiter builds a limiter with its initial token already spent so
// the delay applies to the very first request too.
func newPrimedLimiter(d time.Duration) *rate.Limiter {
	l := rate.NewLimiter(rate.Every(d), 1)
	l.Allow()
	return l
}

// ListCaptures queries the CDX API for successful captures of pageURL in
// the last monthsBack months, collapsed to at most one per day, newest
// last. limit caps the number of rows returned by the API.
func (c *Client) ListCaptures(ctx context.Context, pageURL string, monthsBack, limit int) ([]Capture, error) {
	if monthsBack <= 0 {
		monthsBack = 12
	}
	if limit <= 0 {
		limit = 50
	}
	from := time.Now().AddDate(0, 0, -monthsBack*30).Format("20060102")

	q := url.Values{}
	q.Set("url", pageURL)
	q.Set("output", "json")
	q.Set("fl", "timestamp,statuscode")
	q.Set("filter", "statuscode:200")
	q.Set("collapse", "timestamp:8")
	q.Set("from", from)
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.get(ctx, c.cdxURL+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("cdx query: %w", err)
	}

	// CDX JSON is an array of rows; the first row is the field header.
	var rows [][]string
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("cdx decode: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	captures := make([]Capture, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) < 2 {
			continue
		}
		status, err := strconv.Atoi(row[1])
		if err != nil {
			continue
		}
		captures = append(captures, Capture{Timestamp: row[0], StatusCode: status})
	}
	return captures, nil
}

// FetchText recovers the text of one capture. It first tries a lightweight
// HTTP fetch of the raw archived HTML; when that errors or yields less than
// minTextLength characters, it falls back to rendering the replay URL in
// the browser. The returned text is normalized.
func (c *Client) FetchText(ctx context.Context, pageURL, timestamp string) (string, error) {
	// The id_ modifier serves the original HTML without the replay toolbar.
	rawURL := c.webURL + "/" + timestamp + "id_/" + pageURL

	text, err := c.fetchLightweight(ctx, rawURL)
	if err == nil && len(text) >= minTextLength {
		return text, nil
	}
	if err != nil {
		c.logger.Warn("archive: lightweight fetch failed", "url", rawURL, "error", err)
	} else {
		c.logger.Info("archive: lightweight fetch too thin", "url", rawURL, "chars", len(text))
	}

	if c.renderer == nil {
		if err != nil {
			return "", fmt.Errorf("archive fetch %s: %w", rawURL, err)
		}
		return text, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	replayURL := c.webURL + "/" + timestamp + "/" + pageURL
	rendered, _, err := c.renderer.Render(ctx, replayURL)
	if err != nil {
		return "", fmt.Errorf("archive render %s: %w", replayURL, err)
	}
	return fetcher.Normalize(rendered), nil
}

func (c *Client) fetchLightweight(ctx context.Context, rawURL string) (string, error) {
	body, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	text, err := ExtractText(strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	return fetcher.Normalize(text), nil
}

// get performs a throttled bounded GET.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return webguard.ReadBounded(resp.Body, webguard.MaxResponseBody)
}
