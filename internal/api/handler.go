// Package api is the public HTTP surface: forecasts, document indexing and
// search, report chat and summarisation, analytics and health.
package api

import (
	"context"
	"log/slog"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/chat"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/esgpulse/esg-analytics/internal/prediction"
	"github.com/esgpulse/esg-analytics/internal/report"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
)

// Services are the domain services behind the handlers. Publisher is
// optional; when set, POST /api/v1/documents queues ingestion instead of
// indexing in the request.
type Services struct {
	Predictions *prediction.Service
	Indexer     *document.Indexer
	Ranker      *document.Ranker
	Chat        *chat.Service
	Reports     *report.Service
	Publisher   ReportPublisher
}

// ReportPublisher queues a document for the indexer worker.
type ReportPublisher interface {
	Publish(ctx context.Context, documentID, text string, chunkSize int) error
}

// Tracker receives analytics events.
type Tracker interface {
	Track(analytics.Event)
}

// Limits bounds request parameters.
type Limits struct {
	DefaultYears   int
	DefaultLimit   int
	MaxLimit       int
	MaxUploadBytes int64
}

type Handler struct {
	svc     Services
	limits  Limits
	tracker Tracker
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Handler)

func WithTracker(t Tracker) Option {
	return func(h *Handler) { h.tracker = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func New(svc Services, limits Limits, opts ...Option) *Handler {
	if limits.DefaultYears <= 0 {
		limits.DefaultYears = 3
	}
	if limits.DefaultLimit <= 0 {
		limits.DefaultLimit = document.DefaultLimit
	}
	if limits.MaxLimit < limits.DefaultLimit {
		limits.MaxLimit = limits.DefaultLimit
	}
	if limits.MaxUploadBytes <= 0 {
		limits.MaxUploadBytes = 10 << 20
	}
	h := &Handler{
		svc:    svc,
		limits: limits,
		logger: slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) track(ctx context.Context, e analytics.Event) {
	if h.tracker == nil {
		return
	}
	e.RequestID = logger.RequestID(ctx)
	h.tracker.Track(e)
}

func (h *Handler) recordIngest(source string, chunks int) {
	if h.metrics == nil {
		return
	}
	h.metrics.DocumentsIngested.WithLabelValues(source).Inc()
	h.metrics.ChunksIngestedTotal.Add(float64(chunks))
}
