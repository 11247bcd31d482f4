package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/trustwatch/monitor/internal/fetcher"
)

func fastClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithBaseURLs(srv.URL+"/cdx", srv.URL+"/web"),
		WithHTTPClient(srv.Client()),
		WithPolitenessDelay(time.Millisecond),
	}, opts...)
	return NewClient(opts...)
}

func TestListCaptures(t *testing.T) {
	// WHAT: CDX rows parse into captures; the header row is skipped.
	// WHY: The CDX JSON format is positional, not keyed.
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		fmt.Fprint(w, `[["timestamp","statuscode"],
			["20240101120000","200"],
			["20240215093000","200"]]`)
	}))
	defer srv.Close()

	c := fastClient(t, srv)
	caps, err := c.ListCaptures(context.Background(), "https://acme.example/privacy", 6, 20)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("captures: got %d", len(caps))
	}
	if caps[0].Timestamp != "20240101120000" || caps[0].StatusCode != 200 {
		t.Errorf("first capture: %+v", caps[0])
	}

	for _, want := range []string{"output=json", "filter=statuscode%3A200", "collapse=timestamp%3A8", "limit=20"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query missing %q: %s", want, gotQuery)
		}
	}
}

func TestListCapturesEmpty(t *testing.T) {
	// WHAT: A header-only response means no captures, not an error.
	// WHY: Rarely-archived pages return just the field header.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["timestamp","statuscode"]]`)
	}))
	defer srv.Close()

	caps, err := fastClient(t, srv).ListCaptures(context.Background(), "https://acme.example/x", 6, 20)
	if err != nil || caps != nil {
		t.Errorf("got %v, %v", caps, err)
	}
}

func TestFetchTextLightweight(t *testing.T) {
	// WHAT: A substantial archived page is served from the raw id_ endpoint
	// with tags stripped and text normalized.
	// WHY: The lightweight path avoids burning a browser page per capture.
	body := "<html><body><h1>Privacy Policy</h1><p>" +
		strings.Repeat("We respect your data. ", 20) + "</p></body></html>"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "id_/") {
			t.Errorf("expected raw id_ URL, got %s", r.URL.Path)
		}
		fmt.Fprint(w, body)
	}))
	defer srv.Close()

	text, err := fastClient(t, srv).FetchText(context.Background(), "https://acme.example/privacy", "20240101120000")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(text, "Privacy Policy") || strings.Contains(text, "<p>") {
		t.Errorf("text: %q", text)
	}
}

func TestFetchTextFallsBackToRenderer(t *testing.T) {
	// WHAT: A thin lightweight result triggers the browser fallback on the
	// replay URL.
	// WHY: Some archived pages are JS shells even in the archive.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div id="root"></div></body></html>`)
	}))
	defer srv.Close()

	var renderedURL string
	renderer := fetcher.RenderFunc(func(_ context.Context, u string) (string, string, error) {
		renderedURL = u
		return "Full rendered policy text recovered from the archive.", u, nil
	})

	text, err := fastClient(t, srv, WithRenderer(renderer)).
		FetchText(context.Background(), "https://acme.example/privacy", "20240101120000")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(text, "Full rendered policy") {
		t.Errorf("text: %q", text)
	}
	if strings.Contains(renderedURL, "id_/") {
		t.Errorf("fallback should use the replay URL, got %s", renderedURL)
	}
}

func TestPolitenessDelayAppliesUpFront(t *testing.T) {
	// WHAT: The first archive request already waits for the politeness gap.
	// WHY: archive.org rate limits aggressively; the spacing contract covers
	// every request, including the first.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[["timestamp","statuscode"]]`)
	}))
	defer srv.Close()

	delay := 50 * time.Millisecond
	c := fastClient(t, srv, WithPolitenessDelay(delay))

	start := time.Now()
	if _, err := c.ListCaptures(context.Background(), "https://acme.example/x", 6, 5); err != nil {
		t.Fatalf("list: %v", err)
	}
	if elapsed := time.Since(start); elapsed < delay {
		t.Errorf("first request not throttled: %v < %v", elapsed, delay)
	}
}

func TestExtractTextSkipsChrome(t *testing.T) {
	// WHAT: Script, style, nav, and wayback toolbar content is dropped.
	// WHY: Toolbar text would diff against live captures forever.
	in := `<html><head><style>body{}</style><script>x=1</script></head>
	<body><div id="wm-ipp-base">Wayback toolbar</div>
	<nav>Site nav</nav><p>Actual policy text.</p></body></html>`

	text, err := ExtractText(strings.NewReader(in))
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if !strings.Contains(text, "Actual policy text.") {
		t.Errorf("content lost: %q", text)
	}
	for _, bad := range []string{"Wayback toolbar", "Site nav", "x=1", "body{}"} {
		if strings.Contains(text, bad) {
			t.Errorf("chrome leaked: %q in %q", bad, text)
		}
	}
}
