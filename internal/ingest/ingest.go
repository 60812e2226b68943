// Package ingest moves extracted report text onto Kafka so indexing can run
// in a separate worker.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/document"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/kafka"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
)

// ReportEvent asks a worker to index a document.
type ReportEvent struct {
	DocumentID  string    `json:"documentId"`
	Text        string    `json:"text"`
	ChunkSize   int       `json:"chunkSize,omitempty"`
	PublishedAt time.Time `json:"publishedAt"`
}

// EventPublisher is satisfied by *kafka.Producer.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value any) error
}

// Publisher enqueues reports for indexing.
type Publisher struct {
	producer EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

func NewPublisher(producer EventPublisher) *Publisher {
	return &Publisher{
		producer: producer,
		now:      time.Now,
		logger:   slog.Default().With("component", "ingest-publisher"),
	}
}

// Publish validates and enqueues a document keyed by its id, so every
// version of a document lands on the same partition in order.
func (p *Publisher) Publish(ctx context.Context, documentID, text string, chunkSize int) error {
	if strings.TrimSpace(documentID) == "" {
		return fmt.Errorf("%w: documentId is required", apperrors.ErrInvalidInput)
	}
	event := ReportEvent{
		DocumentID:  documentID,
		Text:        text,
		ChunkSize:   chunkSize,
		PublishedAt: p.now().UTC(),
	}
	if err := p.producer.Publish(ctx, documentID, event); err != nil {
		if apperrors.HTTPStatusCode(err) < http.StatusInternalServerError {
			return fmt.Errorf("enqueueing %s: %w", documentID, err)
		}
		return fmt.Errorf("%w: enqueueing %s: %v", apperrors.ErrUpstream, documentID, err)
	}
	p.logger.Info("report enqueued", "document_id", documentID, "chars", len([]rune(text)))
	return nil
}

// Handler indexes ReportEvents read from Kafka.
type Handler struct {
	indexer *document.Indexer
	metrics *metrics.Metrics
	track   func(analytics.Event)
	logger  *slog.Logger
}

type HandlerOption func(*Handler)

// WithMetrics counts indexed documents and chunks.
func WithMetrics(m *metrics.Metrics) HandlerOption {
	return func(h *Handler) { h.metrics = m }
}

// WithTracker reports each indexed document to analytics.
func WithTracker(track func(analytics.Event)) HandlerOption {
	return func(h *Handler) { h.track = track }
}

func NewHandler(indexer *document.Indexer, opts ...HandlerOption) *Handler {
	h := &Handler{
		indexer: indexer,
		logger:  slog.Default().With("component", "ingest-handler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle is a kafka.MessageHandler. Malformed or id-less events are poison.
func (h *Handler) Handle(ctx context.Context, _, value []byte) error {
	event, err := kafka.DecodeJSON[ReportEvent](value)
	if err != nil {
		return err
	}
	if strings.TrimSpace(event.DocumentID) == "" {
		return fmt.Errorf("%w: event without documentId", kafka.ErrPoison)
	}
	start := time.Now()
	chunks, err := h.indexer.Ingest(ctx, event.DocumentID, event.Text, event.ChunkSize)
	if err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.DocumentsIngested.WithLabelValues("queue").Inc()
		h.metrics.ChunksIngestedTotal.Add(float64(len(chunks)))
	}
	if h.track != nil {
		h.track(analytics.IndexEvent(event.DocumentID, "queue", len(chunks), time.Since(start)))
	}
	h.logger.Info("report indexed from queue",
		"document_id", event.DocumentID,
		"chunks", len(chunks),
		"lag_ms", time.Since(event.PublishedAt).Milliseconds(),
	)
	return nil
}
