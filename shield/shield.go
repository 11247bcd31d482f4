// Package shield bundles the HTTP middleware applied to every trustwatch
// route: security headers, HEAD handling, body limits, and request tracing.
package shield

import "net/http"

// APIStack returns the standard middleware stack for the trustwatch API,
// outermost first.
func APIStack() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		TraceID,
	}
}
