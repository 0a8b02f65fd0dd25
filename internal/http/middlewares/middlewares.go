// Package middlewares holds the HTTP cross-cutting layers: request
// identity and logging, panic recovery, security headers, rate
// limiting and bearer authentication.
package middlewares

import "net/http"

// Middleware wraps a handler with one cross-cutting concern.
type Middleware func(http.Handler) http.Handler

// Chain applies middlewares outermost-first: Chain(h, a, b) serves
// a(b(h)).
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
