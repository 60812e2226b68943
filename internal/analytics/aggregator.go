package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/esgpulse/esg-analytics/pkg/kafka"
)

const (
	maxLatencySamples = 10000
	topQueryCount     = 10
)

// Stats is the aggregated view served by the analytics endpoint and stored
// in snapshots.
type Stats struct {
	Forecasts         int64            `json:"forecasts"`
	ForecastFailures  int64            `json:"forecast_failures"`
	ForecastsByTrend  map[string]int64 `json:"forecasts_by_trend"`
	CacheHits         int64            `json:"cache_hits"`
	CacheMisses       int64            `json:"cache_misses"`
	DocumentsIndexed  int64            `json:"documents_indexed"`
	ChunksIndexed     int64            `json:"chunks_indexed"`
	Searches          int64            `json:"searches"`
	ChatQueries       int64            `json:"chat_queries"`
	ZeroResultCount   int64            `json:"zero_result_count"`
	Summaries         int64            `json:"summaries"`
	SummaryFailures   int64            `json:"summary_failures"`
	AvgLatencyMs      float64          `json:"avg_latency_ms"`
	P50LatencyMs      int64            `json:"p50_latency_ms"`
	P95LatencyMs      int64            `json:"p95_latency_ms"`
	P99LatencyMs      int64            `json:"p99_latency_ms"`
	TopQueries        []QueryCount     `json:"top_queries"`
	ZeroResultQueries []QueryCount     `json:"zero_result_queries"`
	QueriesPerMinute  float64          `json:"queries_per_minute"`
	Since             time.Time        `json:"since"`
	CapturedAt        time.Time        `json:"captured_at,omitzero"`
}

type QueryCount struct {
	Query string `json:"query"`
	Count int64  `json:"count"`
}

// Aggregator folds events into running totals.
type Aggregator struct {
	mu                sync.RWMutex
	totals            Stats
	latencies         []int64
	next              int
	queryCounts       map[string]int64
	zeroResultQueries map[string]int64
	now               func() time.Time
	logger            *slog.Logger
}

func NewAggregator() *Aggregator {
	a := &Aggregator{
		latencies:         make([]int64, 0, 1024),
		queryCounts:       make(map[string]int64),
		zeroResultQueries: make(map[string]int64),
		now:               time.Now,
		logger:            slog.Default().With("component", "analytics-aggregator"),
	}
	a.totals.ForecastsByTrend = make(map[string]int64)
	a.totals.Since = a.now().UTC()
	return a
}

// Record folds one event into the totals.
func (a *Aggregator) Record(e Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	t := &a.totals
	switch e.Type {
	case EventForecast:
		t.Forecasts++
		if e.Failed {
			t.ForecastFailures++
		} else {
			t.ForecastsByTrend[e.Trend]++
		}
		if e.CacheHit {
			t.CacheHits++
		} else {
			t.CacheMisses++
		}
	case EventDocumentIndex:
		t.DocumentsIndexed++
		t.ChunksIndexed += int64(e.Chunks)
	case EventSearch, EventChatQuery:
		if e.Type == EventSearch {
			t.Searches++
		} else {
			t.ChatQueries++
		}
		q := normalizeQuery(e.Query)
		a.queryCounts[q]++
		if e.Matched == 0 {
			t.ZeroResultCount++
			a.zeroResultQueries[q]++
		}
	case EventSummary:
		t.Summaries++
		if e.Failed {
			t.SummaryFailures++
		}
	default:
		a.logger.Debug("ignoring unknown analytics event", "type", e.Type)
		return
	}
	a.observeLatency(e.LatencyMs)
}

// observeLatency keeps a ring of the most recent samples.
func (a *Aggregator) observeLatency(ms int64) {
	if len(a.latencies) < maxLatencySamples {
		a.latencies = append(a.latencies, ms)
		return
	}
	a.latencies[a.next] = ms
	a.next = (a.next + 1) % maxLatencySamples
}

// PublishBatch lets the aggregator act as a collector sink in processes
// that run without Kafka.
func (a *Aggregator) PublishBatch(_ context.Context, events []kafka.Event) error {
	for _, ke := range events {
		e, ok := ke.Value.(Event)
		if !ok {
			return fmt.Errorf("unexpected analytics payload %T", ke.Value)
		}
		a.Record(e)
	}
	return nil
}

// HandleEvent returns a Kafka handler that records analytics events.
func HandleEvent(agg *Aggregator) kafka.MessageHandler {
	return func(_ context.Context, _, value []byte) error {
		event, err := kafka.DecodeJSON[Event](value)
		if err != nil {
			return err
		}
		if event.Type == "" {
			return fmt.Errorf("%w: analytics event without type", kafka.ErrPoison)
		}
		agg.Record(event)
		return nil
	}
}

// Restore seeds the counters from a persisted snapshot so totals survive
// restarts. Query maps are rebuilt from the top lists; latency samples start
// empty.
func (a *Aggregator) Restore(s Stats) {
	a.mu.Lock()
	defer a.mu.Unlock()

	trends := make(map[string]int64, len(s.ForecastsByTrend))
	for k, v := range s.ForecastsByTrend {
		trends[k] = v
	}
	a.totals = s
	a.totals.ForecastsByTrend = trends
	a.totals.TopQueries = nil
	a.totals.ZeroResultQueries = nil
	a.totals.CapturedAt = time.Time{}
	for _, q := range s.TopQueries {
		a.queryCounts[q.Query] = q.Count
	}
	for _, q := range s.ZeroResultQueries {
		a.zeroResultQueries[q.Query] = q.Count
	}
	if a.totals.Since.IsZero() {
		a.totals.Since = a.now().UTC()
	}
}

// Stats returns a consistent copy of the current totals.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := a.totals
	stats.ForecastsByTrend = make(map[string]int64, len(a.totals.ForecastsByTrend))
	for k, v := range a.totals.ForecastsByTrend {
		stats.ForecastsByTrend[k] = v
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted))
		stats.P50LatencyMs = percentile(sorted, 50)
		stats.P95LatencyMs = percentile(sorted, 95)
		stats.P99LatencyMs = percentile(sorted, 99)
	}
	stats.TopQueries = topN(a.queryCounts, topQueryCount)
	stats.ZeroResultQueries = topN(a.zeroResultQueries, topQueryCount)
	if elapsed := a.now().Sub(stats.Since).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(stats.Searches+stats.ChatQueries) / elapsed
	}
	return stats
}

func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// topN orders by count, then query, so equal counts list deterministically.
func topN(counts map[string]int64, n int) []QueryCount {
	result := make([]QueryCount, 0, len(counts))
	for query, count := range counts {
		result = append(result, QueryCount{Query: query, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Query < result[j].Query
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
