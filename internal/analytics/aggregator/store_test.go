package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
	"github.com/esgpulse/esg-analytics/pkg/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := sqlite.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewStore(db, postgres.DialectSQLite)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()), "migrate is idempotent")
	return s
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	latest, err := s.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	for i := 1; i <= 3; i++ {
		require.NoError(t, s.SaveSnapshot(ctx, analytics.Stats{Forecasts: int64(i)}))
	}

	latest, err = s.LatestSnapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.EqualValues(t, 3, latest.Forecasts)
	assert.False(t, latest.CapturedAt.IsZero())

	list, err := s.ListSnapshots(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.EqualValues(t, 3, list[0].Forecasts)
	assert.EqualValues(t, 2, list[1].Forecasts)
}

func TestPrune(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	s.now = func() time.Time { return base }
	require.NoError(t, s.SaveSnapshot(ctx, analytics.Stats{Forecasts: 1}))
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	require.NoError(t, s.SaveSnapshot(ctx, analytics.Stats{Forecasts: 2}))

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	list, err := s.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.EqualValues(t, 2, list[0].Forecasts)
}

func TestStartPeriodicSave(t *testing.T) {
	s := newStore(t)
	agg := analytics.NewAggregator()
	agg.Record(analytics.SummaryEvent(3, false, time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := s.StartPeriodicSave(ctx, agg, 10*time.Millisecond, time.Hour)
	time.Sleep(35 * time.Millisecond)
	cancel()
	<-done

	list, err := s.ListSnapshots(context.Background(), 100)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(list), 2, "ticks plus the final snapshot")
	assert.EqualValues(t, 1, list[0].Summaries)
}

func TestMigrateUnknownDialect(t *testing.T) {
	s := NewStore(nil, postgres.Dialect("oracle"))
	assert.Error(t, s.Migrate(context.Background()))
}
