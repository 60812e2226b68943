package api

import (
	"net/http"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/report"
)

type summaryResponse struct {
	Success bool `json:"success"`
	*report.Summary
}

// SummarizeReport handles POST /api/v1/reports/summarize.
func (h *Handler) SummarizeReport(w http.ResponseWriter, r *http.Request) {
	up, err := h.readPDF(w, r)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process PDF report")
		return
	}

	start := time.Now()
	summary, err := h.svc.Reports.Summarize(r.Context(), up.Filename, up.Data)
	pages := 0
	if summary != nil {
		pages = summary.Pages
	}
	h.track(r.Context(), analytics.SummaryEvent(pages, err != nil, time.Since(start)))
	if err != nil {
		h.writeFailure(w, r, err, "Failed to process PDF report")
		return
	}
	h.writeJSON(w, http.StatusOK, summaryResponse{Success: true, Summary: summary})
}
