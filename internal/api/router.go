package api

import (
	"net/http"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/pkg/health"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/middleware"
)

// RouterConfig holds the collaborators mounted next to the domain routes.
// Nil fields disable what they serve.
type RouterConfig struct {
	Health         *health.Checker
	Analytics      *analytics.Handler
	Limiter        *middleware.Limiter
	Metrics        *metrics.Metrics
	AllowOrigins   []string
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler.
//
// Route table:
//
//	GET  /api/v1/predictions               forecast a company
//	POST /api/v1/predictions               forecast a posted history
//	GET  /api/v1/companies/{id}/history    company score history
//	POST /api/v1/documents                 index (or queue) document text
//	GET  /api/v1/documents/{id}/search     rank a document's chunks
//	POST /api/v1/chat/upload               PDF → chunks → chat session   (rate limited)
//	POST /api/v1/chat/messages             ask about the uploaded report (rate limited)
//	GET  /api/v1/chat/sessions             session summaries
//	GET  /api/v1/chat/sessions/{id}        one session
//	POST /api/v1/reports/summarize         PDF summary                   (rate limited)
//	GET  /api/v1/analytics                 aggregated usage
//	GET  /api/v1/analytics/snapshots       persisted aggregates
//	GET  /health/live, /health/ready
//
// Middleware chain (outermost first):
//
//	RequestID → Recover → CORS → Trace → Timeout → Metrics → mux
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	limited := func(fn http.HandlerFunc) http.Handler {
		if cfg.Limiter == nil {
			return fn
		}
		return middleware.RateLimit(cfg.Limiter)(fn)
	}

	mux.HandleFunc("GET /api/v1/predictions", h.Predict)
	mux.HandleFunc("POST /api/v1/predictions", h.ForecastHistory)
	mux.HandleFunc("GET /api/v1/companies/{id}/history", h.History)

	mux.HandleFunc("POST /api/v1/documents", h.IngestDocument)
	mux.HandleFunc("GET /api/v1/documents/{id}/search", h.SearchDocument)

	mux.Handle("POST /api/v1/chat/upload", limited(h.UploadForChat))
	mux.Handle("POST /api/v1/chat/messages", limited(h.SendMessage))
	mux.HandleFunc("GET /api/v1/chat/sessions", h.ListSessions)
	mux.HandleFunc("GET /api/v1/chat/sessions/{id}", h.GetSession)

	mux.Handle("POST /api/v1/reports/summarize", limited(h.SummarizeReport))

	if cfg.Analytics != nil {
		mux.HandleFunc("GET /api/v1/analytics", cfg.Analytics.Stats)
		mux.HandleFunc("GET /api/v1/analytics/snapshots", cfg.Analytics.Snapshots)
	}
	if cfg.Health != nil {
		mux.HandleFunc("GET /health/live", cfg.Health.LiveHandler())
		mux.HandleFunc("GET /health/ready", cfg.Health.ReadyHandler())
	}

	var chain http.Handler = mux
	if cfg.Metrics != nil {
		chain = middleware.Metrics(cfg.Metrics)(chain)
	}
	chain = middleware.Timeout(cfg.RequestTimeout)(chain)
	chain = middleware.Trace(chain)
	chain = middleware.CORS(middleware.DefaultCORSConfig(cfg.AllowOrigins...))(chain)
	chain = middleware.Recover(chain)
	chain = middleware.RequestID(chain)
	return chain
}
