package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/forecast"
)

type historyForecastRequest struct {
	HistoricalData []forecast.Point `json:"historicalData" validate:"required"`
	YearsToPredict *int             `json:"yearsToPredict" validate:"omitempty,min=0"`
}

// Predict handles GET /api/v1/predictions?companyId=&yearsToPredict=.
func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := q.Get("companyId")
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, "Missing companyId parameter")
		return
	}
	companyID, err := strconv.Atoi(raw)
	if err != nil || companyID <= 0 {
		h.writeFailure(w, r, fieldError("companyId", "must be a positive integer"), "invalid prediction request")
		return
	}
	years := h.limits.DefaultYears
	if v := q.Get("yearsToPredict"); v != "" {
		years, err = strconv.Atoi(v)
		if err != nil || years < 0 {
			h.writeFailure(w, r, fieldError("yearsToPredict", "must be a non-negative integer"), "invalid prediction request")
			return
		}
	}

	start := time.Now()
	resp, cached, err := h.svc.Predictions.Predict(r.Context(), companyID, years)
	trend := ""
	if err == nil {
		trend = string(resp.Prediction.Trend)
	}
	h.track(r.Context(), analytics.ForecastEvent(companyID, trend, cached, time.Since(start)))
	if err != nil {
		h.writeFailure(w, r, err, "Failed to generate ESG prediction")
		return
	}
	if cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ForecastHistory handles POST /api/v1/predictions with a caller-supplied
// history.
func (h *Handler) ForecastHistory(w http.ResponseWriter, r *http.Request) {
	var req historyForecastRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeFailure(w, r, err, "invalid forecast request")
		return
	}
	years := h.limits.DefaultYears
	if req.YearsToPredict != nil {
		years = *req.YearsToPredict
	}

	start := time.Now()
	result, err := h.svc.Predictions.Forecast(req.HistoricalData, years)
	trend := ""
	if err == nil {
		trend = string(result.Trend)
	}
	h.track(r.Context(), analytics.ForecastEvent(0, trend, false, time.Since(start)))
	if err != nil {
		h.writeFailure(w, r, err, "Failed to generate ESG prediction")
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// History handles GET /api/v1/companies/{id}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || companyID <= 0 {
		h.writeFailure(w, r, fieldError("id", "must be a positive integer"), "invalid history request")
		return
	}
	resp, err := h.svc.Predictions.History(r.Context(), companyID)
	if err != nil {
		h.writeFailure(w, r, err, "Failed to fetch historical data")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}
