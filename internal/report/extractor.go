// Package report turns uploaded PDF reports into text and summaries.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/resilience"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const (
	convertPath  = "/v1/convert/file"
	upstreamName = "extractor"
)

var pdfMagic = []byte("%PDF-")

// Extraction is the text content of a PDF.
type Extraction struct {
	Text  string
	Pages int
}

// Extractor converts PDF bytes into text.
type Extractor interface {
	Extract(ctx context.Context, filename string, pdf []byte) (*Extraction, error)
}

// PageCounter validates a PDF and returns its page count.
type PageCounter func(pdf []byte) (int, error)

// CountPages parses pdf with pdfcpu.
func CountPages(pdf []byte) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("%w: malformed PDF: %v", apperrors.ErrUnsupportedMedia, r)
		}
	}()
	if !bytes.HasPrefix(pdf, pdfMagic) {
		return 0, fmt.Errorf("%w: not a PDF document", apperrors.ErrUnsupportedMedia)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	n, err = api.PageCount(bytes.NewReader(pdf), conf)
	if err != nil {
		return 0, fmt.Errorf("%w: unreadable PDF: %v", apperrors.ErrUnsupportedMedia, err)
	}
	return n, nil
}

type doclingResponse struct {
	Document struct {
		MdContent string `json:"md_content"`
	} `json:"document"`
	Status string `json:"status"`
}

// DoclingExtractor sends PDFs to a docling-serve compatible service.
type DoclingExtractor struct {
	baseURL    string
	client     *http.Client
	countPages PageCounter
	breaker    *resilience.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// DoclingOption configures a DoclingExtractor.
type DoclingOption func(*DoclingExtractor)

// WithPageCounter replaces the pdfcpu page counter.
func WithPageCounter(pc PageCounter) DoclingOption {
	return func(d *DoclingExtractor) { d.countPages = pc }
}

// WithExtractorMetrics records upstream latency and failures.
func WithExtractorMetrics(m *metrics.Metrics) DoclingOption {
	return func(d *DoclingExtractor) { d.metrics = m }
}

func NewDoclingExtractor(baseURL string, timeout time.Duration, opts ...DoclingOption) *DoclingExtractor {
	d := &DoclingExtractor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: timeout},
		countPages: CountPages,
		logger:     slog.Default().With("component", "docling-extractor"),
	}
	for _, opt := range opts {
		opt(d)
	}
	cfg := resilience.CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute}
	if d.metrics != nil {
		gauge := d.metrics.CircuitBreakerState
		cfg.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	d.breaker = resilience.NewCircuitBreaker(upstreamName, cfg)
	return d
}

// Extract validates pdf locally, then converts it remotely.
func (d *DoclingExtractor) Extract(ctx context.Context, filename string, pdf []byte) (*Extraction, error) {
	pages, err := d.countPages(pdf)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var text string
	err = d.breaker.Execute(func() error {
		var convErr error
		text, convErr = d.convert(ctx, filename, pdf)
		return convErr
	})
	if d.metrics != nil {
		d.metrics.UpstreamLatency.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if d.metrics != nil {
			d.metrics.UpstreamFailures.WithLabelValues(upstreamName).Inc()
		}
		d.logger.Error("pdf conversion failed", "filename", filename, "pages", pages, "error", err)
		return nil, fmt.Errorf("%w: converting %s: %v", apperrors.ErrUpstream, filename, err)
	}

	d.logger.Info("pdf extracted",
		"filename", filename,
		"pages", pages,
		"chars", len([]rune(text)),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &Extraction{Text: text, Pages: pages}, nil
}

// Ping checks that the conversion service answers its health endpoint.
func (d *DoclingExtractor) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("extractor health: status %d", resp.StatusCode)
	}
	return nil
}

func (d *DoclingExtractor) convert(ctx context.Context, filename string, pdf []byte) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("files", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdf); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+convertPath, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out doclingResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	return out.Document.MdContent, nil
}
