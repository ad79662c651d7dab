package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Middleware wraps an http.Handler.
type Middleware = func(http.Handler) http.Handler

// withHeaders sets a fixed header set before the wrapped handler writes.
func withHeaders(set map[string]string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for k, v := range set {
				h.Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCacheMiddleware marks responses uncacheable. Queue state is live.
var NoCacheMiddleware = withHeaders(map[string]string{
	"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
})

// SecurityHeadersMiddleware adds the browser hardening headers. The API
// serves JSON only, so the CSP forbids everything.
var SecurityHeadersMiddleware = withHeaders(map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "strict-origin-when-cross-origin",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
})

// RequestSizeLimitMiddleware rejects declared bodies over maxBytes up front
// and caps undeclared ones while they are read.
func RequestSizeLimitMiddleware(maxBytes int64) Middleware {
	tooLarge := fmt.Sprintf(`{"success":false,"error":{"code":"payload_too_large","message":"request body exceeds %d bytes"}}`, maxBytes)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(tooLarge))
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// DeadlineMiddleware bounds the request context. The handler still owns the
// response; a store call cut short comes back as an infrastructure error.
func DeadlineMiddleware(timeout time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if timeout <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
