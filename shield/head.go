package shield

import "net/http"

// HeadToGet rewrites HEAD requests to GET before routing. Uptime checks
// probe /health and the listing endpoints with HEAD, which chi would
// otherwise answer with 405 since every route here registers GET only.
// net/http drops the body from the response on the way out.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
