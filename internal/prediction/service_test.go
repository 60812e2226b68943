package prediction

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/esgpulse/esg-analytics/internal/forecast"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	points []forecast.Point
	err    error
	calls  atomic.Int64
}

func (s *stubSource) History(context.Context, int) ([]forecast.Point, error) {
	s.calls.Add(1)
	return s.points, s.err
}

func (s *stubSource) Name() string { return "stub" }

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBackend() *memBackend { return &memBackend{data: map[string][]byte{}} }

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memBackend) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value.([]byte)
	return nil
}

func (m *memBackend) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

var clock = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestPredict(t *testing.T) {
	src := &stubSource{points: []forecast.Point{{2020, 20}, {2021, 40}, {2022, 60}, {2023, 80}}}
	svc := NewService(src, WithClock(clock))

	resp, hit, err := svc.Predict(context.Background(), 42, 2)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 42, resp.CompanyID)
	assert.Equal(t, Metadata{
		Model:             "Linear Regression",
		LastUpdated:       "2025-01-02T03:04:05Z",
		DataPoints:        4,
		PredictionHorizon: 2,
	}, resp.Metadata)
	assert.Equal(t, []forecast.Point{{2024, 100}, {2025, 100}}, resp.Prediction.Predicted)
}

func TestPredictPropagatesErrors(t *testing.T) {
	svc := NewService(&stubSource{points: []forecast.Point{{2020, 50}}})
	_, _, err := svc.Predict(context.Background(), 1, 3)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientData), "got %v", err)

	svc = NewService(&stubSource{err: apperrors.ErrCompanyNotFound})
	_, _, err = svc.Predict(context.Background(), 1, 3)
	assert.True(t, errors.Is(err, apperrors.ErrCompanyNotFound))
}

func TestPredictMaxYears(t *testing.T) {
	src := &stubSource{points: []forecast.Point{{2020, 50}, {2021, 51}}}
	svc := NewService(src, WithMaxYears(5))

	_, _, err := svc.Predict(context.Background(), 1, 6)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Zero(t, src.calls.Load())
}

func TestPredictUsesCache(t *testing.T) {
	src := &stubSource{points: []forecast.Point{{2020, 50}, {2021, 52}, {2022, 54}}}
	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	cache := NewCache(newMemBackend(), time.Minute)
	svc := NewService(src, WithCache(cache), WithMetrics(m), WithClock(clock))
	ctx := context.Background()

	first, hit, err := svc.Predict(ctx, 7, 3)
	require.NoError(t, err)
	assert.False(t, hit)

	second, hit, err := svc.Predict(ctx, 7, 3)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load())

	_, hit, err = svc.Predict(ctx, 7, 4)
	require.NoError(t, err)
	assert.False(t, hit, "different horizon is a different key")

	hits, misses := cache.Stats()
	assert.EqualValues(t, 1, hits)
	assert.GreaterOrEqual(t, misses, int64(2))

	require.NoError(t, cache.Invalidate(ctx))
	_, hit, err = svc.Predict(ctx, 7, 3)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestCacheCollapsesConcurrentMisses(t *testing.T) {
	cache := NewCache(newMemBackend(), time.Minute)
	var computed atomic.Int64
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := cache.GetOrCompute(context.Background(), 1, 3, func() (*Response, error) {
				computed.Add(1)
				<-release
				return &Response{CompanyID: 1}, nil
			})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, computed.Load(), int64(8))
	assert.GreaterOrEqual(t, computed.Load(), int64(1))
	resp, ok := cache.Get(context.Background(), 1, 3)
	require.True(t, ok)
	assert.Equal(t, 1, resp.CompanyID)
}

func TestHistory(t *testing.T) {
	src := &stubSource{points: []forecast.Point{{2020, 50}, {2021, 52}}}
	svc := NewService(src, WithClock(clock))

	resp, err := svc.History(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.CompanyID)
	assert.Equal(t, "stub", resp.Metadata.DataSource)
	assert.Equal(t, 2, resp.Metadata.DataPoints)
}

func TestBuildKeyDistinct(t *testing.T) {
	assert.NotEqual(t, buildKey(1, 3), buildKey(13, 0))
	assert.True(t, strings.HasPrefix(buildKey(1, 3), keyPrefix))
}
