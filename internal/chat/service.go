package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/esgpulse/esg-analytics/internal/document"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/tracing"
	"github.com/google/uuid"
)

const (
	// ContextChunks is how many chunks back each answer.
	ContextChunks = 3
	snippetLength = 200

	NotFoundReply = "I couldn't find specific information about that in the ESG report. " +
		"Could you please rephrase your question or ask about a different aspect of the report?"
	NoResponderReply = "Based on the ESG report, I can see information about various sustainability initiatives. " +
		"However, I couldn't find specific details about your question. Could you please ask about " +
		"environmental performance, social responsibility, governance practices, or other ESG-related " +
		"topics covered in the report?"
	ErrorReply = "I'm having trouble processing your question right now. " +
		"Please try again or ask about a different aspect of the ESG report."
)

// Responder answers a question from report passages.
type Responder interface {
	Answer(ctx context.Context, question string, passages []string) (string, error)
}

// Snippet is a shortened chunk shown next to an answer.
type Snippet struct {
	Content string `json:"content"`
	Section string `json:"section"`
	Page    int    `json:"page"`
}

// Reply is the outcome of one user message.
type Reply struct {
	Response       string    `json:"response"`
	Session        *Session  `json:"session"`
	RelevantChunks []Snippet `json:"relevantChunks"`
	// ChunkCount is the number of chunks with a positive score.
	ChunkCount int `json:"-"`
	// Outcome is one of answered, empty, error or no_responder.
	Outcome string `json:"-"`
}

type Service struct {
	store     SessionStore
	ranker    *document.Ranker
	responder Responder
	metrics   *metrics.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithResponder sets the language model used for answers.
func WithResponder(r Responder) Option {
	return func(s *Service) { s.responder = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store SessionStore, ranker *document.Ranker, opts ...Option) *Service {
	s := &Service{
		store:  store,
		ranker: ranker,
		now:    time.Now,
		logger: slog.Default().With("component", "chat-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens a session over an indexed document.
func (s *Service) Start(ctx context.Context, documentID string) (*Session, error) {
	if strings.TrimSpace(documentID) == "" {
		return nil, fmt.Errorf("%w: documentId is required", apperrors.ErrInvalidInput)
	}
	now := s.now().UTC()
	session := &Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Messages:   []Message{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("chat session started", "session_id", session.ID, "document_id", documentID)
	return session, nil
}

// Send records message, answers it and records the answer.
func (s *Service) Send(ctx context.Context, sessionID, message string) (*Reply, error) {
	ctx, span := tracing.StartChildSpan(ctx, "chat.send")
	defer span.End()
	span.SetAttr("session_id", sessionID)

	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("%w: message is required", apperrors.ErrInvalidInput)
	}
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.Append(ctx, sessionID, s.message(RoleUser, message)); err != nil {
		return nil, err
	}

	rankCtx, rankSpan := tracing.StartChildSpan(ctx, "chat.rank")
	ranked, err := s.ranker.Rank(rankCtx, session.DocumentID, message, ContextChunks)
	rankSpan.SetAttr("chunks", len(ranked))
	rankSpan.End()
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	answer, outcome := s.answer(ctx, message, ranked)
	span.SetAttr("outcome", outcome)
	if s.metrics != nil {
		s.metrics.ChatMessagesTotal.WithLabelValues(outcome).Inc()
	}

	updated, err := s.store.Append(ctx, sessionID, s.message(RoleAssistant, answer))
	if err != nil {
		return nil, err
	}

	reply := &Reply{
		Response:       answer,
		Session:        updated,
		RelevantChunks: make([]Snippet, len(ranked)),
		Outcome:        outcome,
	}
	for i, r := range ranked {
		reply.RelevantChunks[i] = Snippet{
			Content: Snippetize(r.Content),
			Section: r.Metadata.Section,
			Page:    r.Metadata.Page,
		}
		if r.Score > 0 {
			reply.ChunkCount++
		}
	}
	return reply, nil
}

func (s *Service) answer(ctx context.Context, question string, ranked []document.Ranked) (string, string) {
	if s.responder == nil {
		return NoResponderReply, "no_responder"
	}
	passages := make([]string, len(ranked))
	for i, r := range ranked {
		passages[i] = r.Content
	}

	ctx, span := tracing.StartChildSpan(ctx, "chat.answer")
	defer span.End()
	answer, err := s.responder.Answer(ctx, question, passages)
	if err != nil {
		span.SetError(err)
		s.logger.Error("responder failed", "error", err, "trace_id", traceID(ctx))
		return ErrorReply, "error"
	}
	if strings.TrimSpace(answer) == "" {
		return NotFoundReply, "empty"
	}
	return answer, "answered"
}

func (s *Service) message(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: s.now().UTC(),
	}
}

// Session returns one session with its messages.
func (s *Service) Session(ctx context.Context, id string) (*Session, error) {
	return s.store.Get(ctx, id)
}

// Sessions lists every session.
func (s *Service) Sessions(ctx context.Context) ([]Summary, error) {
	return s.store.List(ctx)
}

// Snippetize shortens content for display, always marking the cut.
func Snippetize(content string) string {
	runes := []rune(content)
	if len(runes) > snippetLength {
		runes = runes[:snippetLength]
	}
	return string(runes) + "..."
}

func traceID(ctx context.Context) string {
	if span := tracing.SpanFromContext(ctx); span != nil {
		return span.TraceID
	}
	return ""
}
