// Package rpcapi exposes forecasting and document retrieval to internal
// callers over pkg/rpc.
package rpcapi

import (
	"context"
	"fmt"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/esgpulse/esg-analytics/internal/prediction"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/rpc"
)

const (
	MethodPredict = "Forecast.Predict"
	MethodHistory = "Forecast.History"
	MethodIngest  = "Documents.Ingest"
	MethodRank    = "Documents.Rank"
)

type PredictRequest struct {
	CompanyID      int `json:"companyId"`
	YearsToPredict int `json:"yearsToPredict"`
}

type PredictResponse struct {
	Forecast *prediction.Response `json:"forecast"`
	Cached   bool                 `json:"cached"`
}

type HistoryRequest struct {
	CompanyID int `json:"companyId"`
}

type IngestRequest struct {
	DocumentID string `json:"documentId"`
	Text       string `json:"text"`
	ChunkSize  int    `json:"chunkSize,omitempty"`
}

type IngestResponse struct {
	DocumentID string `json:"documentId"`
	Chunks     int    `json:"chunks"`
}

type RankRequest struct {
	DocumentID string `json:"documentId"`
	Query      string `json:"query"`
	Limit      int    `json:"limit,omitempty"`
}

type RankResponse struct {
	DocumentID string            `json:"documentId"`
	Query      string            `json:"query"`
	Results    []document.Ranked `json:"results"`
}

// Forecaster is satisfied by *prediction.Service.
type Forecaster interface {
	Predict(ctx context.Context, companyID, years int) (*prediction.Response, bool, error)
	History(ctx context.Context, companyID int) (*prediction.HistoryResponse, error)
}

// Indexer is satisfied by *document.Indexer.
type Indexer interface {
	Ingest(ctx context.Context, documentID, text string, chunkSize int) ([]document.Chunk, error)
}

// Ranker is satisfied by *document.Ranker.
type Ranker interface {
	Rank(ctx context.Context, documentID, query string, limit int) ([]document.Ranked, error)
}

// Tracker receives an analytics event per served call.
type Tracker interface {
	Track(analytics.Event)
}

type Services struct {
	Forecaster   Forecaster
	Indexer      Indexer
	Ranker       Ranker
	Tracker      Tracker
	DefaultYears int
}

// Register installs the handlers for every non-nil service on s.
func Register(s *rpc.Server, svc Services) {
	if svc.DefaultYears <= 0 {
		svc.DefaultYears = 3
	}
	if svc.Forecaster != nil {
		rpc.Handle(s, MethodPredict, svc.predict)
		rpc.Handle(s, MethodHistory, svc.history)
	}
	if svc.Indexer != nil {
		rpc.Handle(s, MethodIngest, svc.ingest)
	}
	if svc.Ranker != nil {
		rpc.Handle(s, MethodRank, svc.rank)
	}
}

func (svc Services) track(e analytics.Event) {
	if svc.Tracker != nil {
		svc.Tracker.Track(e)
	}
}

func (svc Services) predict(ctx context.Context, req PredictRequest) (*PredictResponse, error) {
	if req.CompanyID <= 0 {
		return nil, fmt.Errorf("%w: companyId must be positive", apperrors.ErrInvalidInput)
	}
	years := req.YearsToPredict
	if years <= 0 {
		years = svc.DefaultYears
	}
	start := time.Now()
	resp, cached, err := svc.Forecaster.Predict(ctx, req.CompanyID, years)
	trend := ""
	if err == nil {
		trend = string(resp.Prediction.Trend)
	}
	svc.track(analytics.ForecastEvent(req.CompanyID, trend, cached, time.Since(start)))
	if err != nil {
		return nil, err
	}
	return &PredictResponse{Forecast: resp, Cached: cached}, nil
}

func (svc Services) history(ctx context.Context, req HistoryRequest) (*prediction.HistoryResponse, error) {
	if req.CompanyID <= 0 {
		return nil, fmt.Errorf("%w: companyId must be positive", apperrors.ErrInvalidInput)
	}
	return svc.Forecaster.History(ctx, req.CompanyID)
}

func (svc Services) ingest(ctx context.Context, req IngestRequest) (*IngestResponse, error) {
	start := time.Now()
	chunks, err := svc.Indexer.Ingest(ctx, req.DocumentID, req.Text, req.ChunkSize)
	if err != nil {
		return nil, err
	}
	svc.track(analytics.IndexEvent(req.DocumentID, "rpc", len(chunks), time.Since(start)))
	return &IngestResponse{DocumentID: req.DocumentID, Chunks: len(chunks)}, nil
}

func (svc Services) rank(ctx context.Context, req RankRequest) (*RankResponse, error) {
	if req.DocumentID == "" {
		return nil, fmt.Errorf("%w: documentId is required", apperrors.ErrInvalidInput)
	}
	start := time.Now()
	ranked, err := svc.Ranker.Rank(ctx, req.DocumentID, req.Query, req.Limit)
	if err != nil {
		return nil, err
	}
	matched := 0
	for _, r := range ranked {
		if r.Score > 0 {
			matched++
		}
	}
	svc.track(analytics.QueryEvent(analytics.EventSearch, req.DocumentID, req.Query, matched, "rpc", time.Since(start)))
	return &RankResponse{DocumentID: req.DocumentID, Query: req.Query, Results: ranked}, nil
}

// Client is a typed wrapper over an rpc.Client.
type Client struct {
	rpc *rpc.Client
}

func NewClient(c *rpc.Client) *Client {
	return &Client{rpc: c}
}

func (c *Client) Predict(ctx context.Context, companyID, years int) (*PredictResponse, error) {
	var resp PredictResponse
	if err := c.rpc.Call(ctx, MethodPredict, PredictRequest{CompanyID: companyID, YearsToPredict: years}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) History(ctx context.Context, companyID int) (*prediction.HistoryResponse, error) {
	var resp prediction.HistoryResponse
	if err := c.rpc.Call(ctx, MethodHistory, HistoryRequest{CompanyID: companyID}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Ingest(ctx context.Context, documentID, text string, chunkSize int) (*IngestResponse, error) {
	var resp IngestResponse
	req := IngestRequest{DocumentID: documentID, Text: text, ChunkSize: chunkSize}
	if err := c.rpc.Call(ctx, MethodIngest, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Rank(ctx context.Context, documentID, query string, limit int) (*RankResponse, error) {
	var resp RankResponse
	req := RankRequest{DocumentID: documentID, Query: query, Limit: limit}
	if err := c.rpc.Call(ctx, MethodRank, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
