// Package prediction serves ESG forecasts for companies by combining a
// history source with the linear forecaster.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/esgpulse/esg-analytics/internal/forecast"
	"github.com/esgpulse/esg-analytics/internal/history"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
)

// ModelName identifies the forecasting model in responses.
const ModelName = "Linear Regression"

// Response is the forecast returned for a company.
type Response struct {
	CompanyID  int              `json:"companyId"`
	Prediction *forecast.Result `json:"prediction"`
	Metadata   Metadata         `json:"metadata"`
}

// Metadata describes how a forecast was produced.
type Metadata struct {
	Model             string `json:"model"`
	LastUpdated       string `json:"lastUpdated"`
	DataPoints        int    `json:"dataPoints"`
	PredictionHorizon int    `json:"predictionHorizon"`
}

// HistoryResponse is a company's raw score history.
type HistoryResponse struct {
	CompanyID      int              `json:"companyId"`
	HistoricalData []forecast.Point `json:"historicalData"`
	Metadata       HistoryMetadata  `json:"metadata"`
}

type HistoryMetadata struct {
	DataSource  string `json:"dataSource"`
	LastUpdated string `json:"lastUpdated"`
	DataPoints  int    `json:"dataPoints"`
}

// Service answers forecast and history requests.
type Service struct {
	source   history.Source
	cache    *Cache
	metrics  *metrics.Metrics
	maxYears int
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache enables response caching.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics records forecast and cache counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxYears caps the accepted prediction horizon.
func WithMaxYears(n int) Option {
	return func(s *Service) { s.maxYears = n }
}

// WithClock overrides the time source for lastUpdated stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(source history.Source, opts ...Option) *Service {
	s := &Service{
		source: source,
		now:    time.Now,
		logger: slog.Default().With("component", "prediction-service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Predict forecasts years future scores for a company. The bool reports
// whether the response came from the cache.
func (s *Service) Predict(ctx context.Context, companyID, years int) (*Response, bool, error) {
	if s.maxYears > 0 && years > s.maxYears {
		return nil, false, fmt.Errorf("%w: yearsToPredict must be at most %d", apperrors.ErrInvalidInput, s.maxYears)
	}
	compute := func() (*Response, error) {
		return s.compute(ctx, companyID, years)
	}
	if s.cache == nil {
		resp, err := compute()
		return resp, false, err
	}

	resp, hit, err := s.cache.GetOrCompute(ctx, companyID, years, compute)
	if s.metrics != nil {
		if hit {
			s.metrics.CacheHitsTotal.Inc()
		} else {
			s.metrics.CacheMissesTotal.Inc()
		}
	}
	return resp, hit, err
}

func (s *Service) compute(ctx context.Context, companyID, years int) (*Response, error) {
	points, err := s.source.History(ctx, companyID)
	if err != nil {
		return nil, err
	}
	result, err := s.Forecast(points, years)
	if err != nil {
		return nil, fmt.Errorf("forecasting company %d: %w", companyID, err)
	}
	s.logger.Debug("forecast computed",
		"company_id", companyID,
		"data_points", len(points),
		"trend", result.Trend,
		"confidence", result.Confidence,
	)
	return &Response{
		CompanyID:  companyID,
		Prediction: result,
		Metadata: Metadata{
			Model:             ModelName,
			LastUpdated:       s.now().UTC().Format(time.RFC3339),
			DataPoints:        len(points),
			PredictionHorizon: years,
		},
	}, nil
}

// Forecast runs the forecaster over caller-supplied points.
func (s *Service) Forecast(points []forecast.Point, years int) (*forecast.Result, error) {
	if s.maxYears > 0 && years > s.maxYears {
		return nil, fmt.Errorf("%w: yearsToPredict must be at most %d", apperrors.ErrInvalidInput, s.maxYears)
	}
	result, err := forecast.Predict(points, years)
	if s.metrics != nil {
		label := "error"
		if err == nil {
			label = string(result.Trend)
		}
		s.metrics.ForecastsTotal.WithLabelValues(label).Inc()
	}
	return result, err
}

// History returns the raw score history of a company.
func (s *Service) History(ctx context.Context, companyID int) (*HistoryResponse, error) {
	points, err := s.source.History(ctx, companyID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrCompanyNotFound) && !errors.Is(err, apperrors.ErrInvalidInput) {
			s.logger.Error("history lookup failed", "company_id", companyID, "error", err)
		}
		return nil, err
	}
	return &HistoryResponse{
		CompanyID:      companyID,
		HistoricalData: points,
		Metadata: HistoryMetadata{
			DataSource:  s.source.Name(),
			LastUpdated: s.now().UTC().Format(time.RFC3339),
			DataPoints:  len(points),
		},
	}, nil
}
