package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/esgpulse/esg-analytics/internal/document"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
)

const (
	// MaxSummaryInput is the number of characters sent for summarisation.
	MaxSummaryInput = 4000
	truncationMark  = "..."
	leadSentences   = 3
)

// Summarizer produces a summary of report text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Summary is the result of summarising a report.
type Summary struct {
	Summary         string `json:"summary"`
	OriginalLength  int    `json:"originalLength"`
	TruncatedLength int    `json:"truncatedLength"`
	Pages           int    `json:"pages"`
}

// Service extracts and summarises reports.
type Service struct {
	extractor  Extractor
	summarizer Summarizer
	logger     *slog.Logger
}

// NewService wires an extractor and an optional summarizer. Without a
// summarizer the leading sentences of the report are returned.
func NewService(extractor Extractor, summarizer Summarizer) *Service {
	return &Service{
		extractor:  extractor,
		summarizer: summarizer,
		logger:     slog.Default().With("component", "report-service"),
	}
}

// Extract returns the text of pdf. Reports with no extractable text are
// rejected.
func (s *Service) Extract(ctx context.Context, filename string, pdf []byte) (*Extraction, error) {
	if len(pdf) == 0 {
		return nil, fmt.Errorf("%w: empty upload", apperrors.ErrInvalidInput)
	}
	ex, err := s.extractor.Extract(ctx, filename, pdf)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(ex.Text) == "" {
		return nil, fmt.Errorf("%w: could not extract text from PDF", apperrors.ErrInvalidInput)
	}
	return ex, nil
}

// Summarize extracts pdf and summarises its first MaxSummaryInput characters.
func (s *Service) Summarize(ctx context.Context, filename string, pdf []byte) (*Summary, error) {
	ex, err := s.Extract(ctx, filename, pdf)
	if err != nil {
		return nil, err
	}
	sum, err := s.SummarizeText(ctx, ex.Text)
	if err != nil {
		return nil, err
	}
	sum.Pages = ex.Pages
	return sum, nil
}

// SummarizeText summarises already extracted text.
func (s *Service) SummarizeText(ctx context.Context, text string) (*Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: could not extract text from PDF", apperrors.ErrInvalidInput)
	}
	input := Truncate(text, MaxSummaryInput)

	var summary string
	if s.summarizer == nil {
		summary = lead(input)
	} else {
		var err error
		summary, err = s.summarizer.Summarize(ctx, input)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Debug("report summarised",
		"original_length", len([]rune(text)),
		"truncated_length", len([]rune(input)),
	)
	return &Summary{
		Summary:         summary,
		OriginalLength:  len([]rune(text)),
		TruncatedLength: len([]rune(input)),
	}, nil
}

// Truncate cuts text to limit characters and appends "..." when it was cut.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + truncationMark
}

func lead(text string) string {
	sentences := document.SplitSentences(text)
	if len(sentences) > leadSentences {
		sentences = sentences[:leadSentences]
	}
	return strings.Join(sentences, ". ") + "."
}
