package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/chat"
	"github.com/google/uuid"
)

type ingestRequest struct {
	DocumentID string `json:"documentId" validate:"omitempty,max=128"`
	Text       string `json:"text" validate:"required"`
	ChunkSize  int    `json:"chunkSize" validate:"omitempty,min=1,max=100000"`
}

type ingestResponse struct {
	DocumentID string `json:"documentId"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
}

type searchResult struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Section string `json:"section"`
	Page    int    `json:"page"`
	Score   int    `json:"score"`
}

type searchResponse struct {
	DocumentID string         `json:"documentId"`
	Query      string         `json:"query"`
	Results    []searchResult `json:"results"`
	Matched    int            `json:"matched"`
	LatencyMs  int64          `json:"latencyMs"`
}

// newDocumentID returns an identifier for documents the caller did not name.
func newDocumentID() string {
	return "doc_" + uuid.NewString()
}

// IngestDocument handles POST /api/v1/documents. With a publisher the
// document is queued for the indexer worker and 202 is returned; otherwise
// it is indexed before responding with 201.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(w, r, err, "invalid ingest request")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		h.writeFailure(w, r, fieldError("text", "is required"), "invalid ingest request")
		return
	}
	docID := strings.TrimSpace(req.DocumentID)
	if docID == "" {
		docID = newDocumentID()
	}
	ctx := r.Context()

	if h.svc.Publisher != nil {
		if err := h.svc.Publisher.Publish(ctx, docID, req.Text, req.ChunkSize); err != nil {
			h.writeFailure(w, r, err, "Failed to queue document")
			return
		}
		h.writeJSON(w, http.StatusAccepted, ingestResponse{DocumentID: docID, Status: "queued"})
		return
	}

	start := time.Now()
	chunks, err := h.svc.Indexer.Ingest(ctx, docID, req.Text, req.ChunkSize)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to index document")
		return
	}
	h.recordIngest("api", len(chunks))
	h.track(ctx, analytics.IndexEvent(docID, "api", len(chunks), time.Since(start)))
	h.writeJSON(w, http.StatusCreated, ingestResponse{DocumentID: docID, Status: "indexed", Chunks: len(chunks)})
}

// SearchDocument handles GET /api/v1/documents/{id}/search?q=&limit=.
func (h *Handler) SearchDocument(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("id")
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		h.writeFailure(w, r, fieldError("q", "is required"), "invalid search request")
		return
	}
	limit := h.limits.DefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > h.limits.MaxLimit {
			h.writeFailure(w, r, fieldError("limit", "must be between 1 and "+strconv.Itoa(h.limits.MaxLimit)), "invalid search request")
			return
		}
		limit = n
	}

	start := time.Now()
	ranked, err := h.svc.Ranker.Rank(r.Context(), docID, query, limit)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to search document")
		return
	}
	elapsed := time.Since(start)

	resp := searchResponse{
		DocumentID: docID,
		Query:      query,
		Results:    make([]searchResult, len(ranked)),
		LatencyMs:  elapsed.Milliseconds(),
	}
	for i, c := range ranked {
		resp.Results[i] = searchResult{
			ID:      c.ID,
			Content: chat.Snippetize(c.Content),
			Section: c.Metadata.Section,
			Page:    c.Metadata.Page,
			Score:   c.Score,
		}
		if c.Score > 0 {
			resp.Matched++
		}
	}
	if h.metrics != nil {
		h.metrics.RankResultsCount.Observe(float64(len(ranked)))
	}
	h.track(r.Context(), analytics.QueryEvent(analytics.EventSearch, docID, query, resp.Matched, "search", elapsed))
	h.writeJSON(w, http.StatusOK, resp)
}
