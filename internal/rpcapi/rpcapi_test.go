package rpcapi

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/esgpulse/esg-analytics/internal/history"
	"github.com/esgpulse/esg-analytics/internal/prediction"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []analytics.Event
}

func (r *recorder) Track(e analytics.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []analytics.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]analytics.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func setup(t *testing.T) (*Client, *recorder) {
	t.Helper()
	store := document.NewMemoryStore()
	source := &history.MockSource{Now: func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }}
	tracker := &recorder{}

	s := rpc.NewServer()
	Register(s, Services{
		Forecaster: prediction.NewService(source, prediction.WithMaxYears(10)),
		Indexer:    document.NewIndexer(store),
		Ranker:     document.NewRanker(store, nil),
		Tracker:    tracker,
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)

	c, err := rpc.Dial(context.Background(), ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return NewClient(c), tracker
}

func TestForecastOverRPC(t *testing.T) {
	c, tracker := setup(t)
	ctx := context.Background()

	resp, err := c.Predict(ctx, 7, 0)
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, 7, resp.Forecast.CompanyID)
	require.Len(t, resp.Forecast.Prediction.Predicted, 3)
	assert.Equal(t, 2025, resp.Forecast.Prediction.Predicted[0].Year)
	assert.Equal(t, prediction.ModelName, resp.Forecast.Metadata.Model)

	hist, err := c.History(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, hist.HistoricalData, 7)

	_, err = c.Predict(ctx, 7, 50)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = c.History(ctx, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, []analytics.EventType{analytics.EventForecast, analytics.EventForecast}, tracker.types())
}

func TestDocumentsOverRPC(t *testing.T) {
	c, tracker := setup(t)
	ctx := context.Background()

	text := "The board met four times. Carbon emissions fell sharply. Water use was flat."
	ing, err := c.Ingest(ctx, "doc-1", text, 30)
	require.NoError(t, err)
	assert.Equal(t, 3, ing.Chunks)

	ranked, err := c.Rank(ctx, "doc-1", "carbon emissions", 2)
	require.NoError(t, err)
	require.Len(t, ranked.Results, 2)
	assert.Equal(t, "Carbon emissions fell sharply", ranked.Results[0].Content)
	assert.Equal(t, 2, ranked.Results[0].Score)
	assert.Equal(t, 0, ranked.Results[1].Score)

	empty, err := c.Rank(ctx, "unknown", "carbon", 0)
	require.NoError(t, err)
	assert.Empty(t, empty.Results)

	_, err = c.Ingest(ctx, " ", text, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	_, err = c.Rank(ctx, "", "carbon", 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	assert.Equal(t, []analytics.EventType{
		analytics.EventDocumentIndex,
		analytics.EventSearch,
		analytics.EventSearch,
	}, tracker.types())
}
