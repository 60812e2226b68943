// Package middleware holds the HTTP middleware shared by the services:
// request IDs and tracing, CORS, Prometheus metrics, per-client rate
// limits, deadlines and panic recovery.
package middleware

import (
	"context"
	"net/http"

	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/esgpulse/esg-analytics/pkg/tracing"
	"github.com/google/uuid"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

const maxRequestIDLen = 128

// RequestID propagates the caller's X-Request-ID, or assigns a new one, and
// stores it on the request context for logging.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

// GetRequestID returns the ID assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return logger.RequestID(ctx)
}

// Trace opens a root span per request, keyed by its request ID, and logs the
// span tree when the request completes.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+r.URL.Path, GetRequestID(r.Context()))
		sw := wrapStatus(w)
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttr("status", sw.status)
		span.End()
		span.Log(logger.FromContext(ctx))
	})
}
