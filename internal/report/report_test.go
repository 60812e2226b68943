package report

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fakePDF = []byte("%PDF-1.7\nfake body")

func fixedPages(n int) PageCounter {
	return func([]byte) (int, error) { return n, nil }
}

func newDocling(t *testing.T, handler http.HandlerFunc) *DoclingExtractor {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	return NewDoclingExtractor(ts.URL, 5*time.Second, WithPageCounter(fixedPages(12)))
}

func TestDoclingExtract(t *testing.T) {
	d := newDocling(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/convert/file" {
			http.NotFound(w, r)
			return
		}
		file, header, err := r.FormFile("files")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "annual.pdf" || string(body) != string(fakePDF) {
			http.Error(w, "unexpected upload", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":   "success",
			"document": map[string]string{"md_content": "# Climate\nEmissions fell."},
		})
	})

	ex, err := d.Extract(context.Background(), "annual.pdf", fakePDF)
	require.NoError(t, err)
	assert.Equal(t, 12, ex.Pages)
	assert.Equal(t, "# Climate\nEmissions fell.", ex.Text)
}

func TestDoclingExtractUpstreamFailure(t *testing.T) {
	d := newDocling(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "converter crashed", http.StatusInternalServerError)
	})

	_, err := d.Extract(context.Background(), "a.pdf", fakePDF)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUpstream), "got %v", err)
	assert.Contains(t, err.Error(), "converter crashed")
}

func TestDoclingRejectsInvalidPDFBeforeUpload(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer ts.Close()
	d := NewDoclingExtractor(ts.URL, time.Second)

	_, err := d.Extract(context.Background(), "notes.txt", []byte("plain text"))
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedMedia), "got %v", err)
	assert.False(t, called)
}

func TestCountPagesRejectsGarbage(t *testing.T) {
	_, err := CountPages([]byte("%PDF-1.4\nthis is not really a pdf"))
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedMedia), "got %v", err)

	_, err = CountPages(nil)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedMedia))
}

type stubExtractor struct {
	text  string
	pages int
	err   error
}

func (s stubExtractor) Extract(context.Context, string, []byte) (*Extraction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Extraction{Text: s.text, Pages: s.pages}, nil
}

type recordingSummarizer struct {
	got string
	err error
}

func (r *recordingSummarizer) Summarize(_ context.Context, text string) (string, error) {
	r.got = text
	return "summary", r.err
}

func TestSummarizeTruncatesLongReports(t *testing.T) {
	text := strings.Repeat("é", 5000)
	sum := &recordingSummarizer{}
	svc := NewService(stubExtractor{text: text, pages: 40}, sum)

	got, err := svc.Summarize(context.Background(), "r.pdf", fakePDF)
	require.NoError(t, err)
	assert.Equal(t, &Summary{
		Summary:         "summary",
		OriginalLength:  5000,
		TruncatedLength: 4003,
		Pages:           40,
	}, got)
	assert.True(t, strings.HasSuffix(sum.got, "..."))
	assert.Equal(t, 4003, len([]rune(sum.got)))
}

func TestSummarizeShortReportUntouched(t *testing.T) {
	sum := &recordingSummarizer{}
	svc := NewService(stubExtractor{text: "Short report.", pages: 1}, sum)

	got, err := svc.Summarize(context.Background(), "r.pdf", fakePDF)
	require.NoError(t, err)
	assert.Equal(t, "Short report.", sum.got)
	assert.Equal(t, 13, got.OriginalLength)
	assert.Equal(t, 13, got.TruncatedLength)
}

func TestSummarizeEmptyText(t *testing.T) {
	svc := NewService(stubExtractor{text: "  \n "}, &recordingSummarizer{})
	_, err := svc.Summarize(context.Background(), "r.pdf", fakePDF)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	_, err = svc.Extract(context.Background(), "r.pdf", nil)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
}

func TestSummarizePropagatesErrors(t *testing.T) {
	svc := NewService(stubExtractor{err: apperrors.ErrUnsupportedMedia}, &recordingSummarizer{})
	_, err := svc.Summarize(context.Background(), "r.pdf", fakePDF)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedMedia))

	svc = NewService(stubExtractor{text: "x."}, &recordingSummarizer{err: apperrors.ErrUpstream})
	_, err = svc.Summarize(context.Background(), "r.pdf", fakePDF)
	assert.True(t, errors.Is(err, apperrors.ErrUpstream))
}

func TestSummarizeWithoutSummarizerUsesLead(t *testing.T) {
	svc := NewService(stubExtractor{text: "One. Two! Three? Four."}, nil)
	got, err := svc.SummarizeText(context.Background(), "One. Two! Three? Four.")
	require.NoError(t, err)
	assert.Equal(t, "One. Two. Three.", got.Summary)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("", 5))
}
