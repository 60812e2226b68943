// Package loadtest drives concurrent forecast and document-search traffic at
// a running esg-api and summarises latency, status codes and cache hits.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config describes one run. Each request alternates between a forecast for
// a company in [1, Companies] and a search of DocumentID for one of Queries.
// An empty DocumentID sends forecasts only.
type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Requests    int // stop after this many requests when positive
	Companies   int
	DocumentID  string
	Queries     []string
	Client      *http.Client
}

// DefaultQueries are typical report questions.
var DefaultQueries = []string{
	"carbon emissions",
	"renewable energy",
	"board independence",
	"employee safety",
	"water usage",
	"supply chain risk",
	"diversity",
	"climate targets",
}

// Report is the outcome of a run.
type Report struct {
	Total       int64         `json:"total"`
	Success     int64         `json:"success"`
	Errors      int64         `json:"errors"`
	CacheHits   int64         `json:"cacheHits"`
	Elapsed     time.Duration `json:"elapsed"`
	RPS         float64       `json:"rps"`
	Min         time.Duration `json:"min"`
	Avg         time.Duration `json:"avg"`
	P50         time.Duration `json:"p50"`
	P90         time.Duration `json:"p90"`
	P95         time.Duration `json:"p95"`
	P99         time.Duration `json:"p99"`
	Max         time.Duration `json:"max"`
	StdDev      time.Duration `json:"stddev"`
	StatusCodes map[int]int64 `json:"statusCodes"`
}

// ErrorRate returns the share of failed requests in percent.
func (r *Report) ErrorRate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Errors) / float64(r.Total) * 100
}

type recorder struct {
	total     atomic.Int64
	success   atomic.Int64
	errors    atomic.Int64
	cacheHits atomic.Int64

	mu        sync.Mutex
	latencies []time.Duration
	codes     map[int]int64
}

func (s *recorder) record(latency time.Duration, status int, cacheHit bool, err error) {
	s.total.Add(1)
	if err != nil {
		s.errors.Add(1)
		return
	}
	if status >= 200 && status < 300 {
		s.success.Add(1)
	} else {
		s.errors.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, latency)
	s.codes[status]++
	s.mu.Unlock()
}

// Run sends traffic until the duration passes, the request budget is spent
// or ctx is cancelled.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base url is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.Duration <= 0 && cfg.Requests <= 0 {
		cfg.Duration = 30 * time.Second
	}
	if cfg.Companies <= 0 {
		cfg.Companies = 10
	}
	if len(cfg.Queries) == 0 {
		cfg.Queries = DefaultQueries
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.Concurrency * 2,
				MaxIdleConnsPerHost: cfg.Concurrency * 2,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}

	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	rec := &recorder{
		latencies: make([]time.Duration, 0, 4096),
		codes:     make(map[int]int64),
	}
	var next atomic.Int64
	start := time.Now()

	var wg sync.WaitGroup
	for range cfg.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				seq := int(next.Add(1) - 1)
				if cfg.Requests > 0 && seq >= cfg.Requests {
					return
				}
				began := time.Now()
				status, hit, err := send(ctx, client, cfg.target(seq))
				if err != nil && ctx.Err() != nil {
					return
				}
				rec.record(time.Since(began), status, hit, err)
			}
		}()
	}
	wg.Wait()

	return summarise(rec, time.Since(start)), nil
}

func (cfg Config) target(seq int) string {
	if cfg.DocumentID == "" || seq%2 == 0 {
		company := seq/2%cfg.Companies + 1
		return cfg.BaseURL + "/api/v1/predictions?companyId=" + strconv.Itoa(company)
	}
	query := cfg.Queries[seq/2%len(cfg.Queries)]
	return fmt.Sprintf("%s/api/v1/documents/%s/search?q=%s",
		cfg.BaseURL, url.PathEscape(cfg.DocumentID), url.QueryEscape(query))
}

func send(ctx context.Context, client *http.Client, target string) (int, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return 0, false, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil
}

func summarise(rec *recorder, elapsed time.Duration) *Report {
	r := &Report{
		Total:       rec.total.Load(),
		Success:     rec.success.Load(),
		Errors:      rec.errors.Load(),
		CacheHits:   rec.cacheHits.Load(),
		Elapsed:     elapsed,
		StatusCodes: rec.codes,
	}
	if elapsed > 0 {
		r.RPS = float64(r.Total) / elapsed.Seconds()
	}

	latencies := slices.Clone(rec.latencies)
	if len(latencies) == 0 {
		return r
	}
	slices.Sort(latencies)

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.Avg = sum / time.Duration(len(latencies))
	r.Min = latencies[0]
	r.Max = latencies[len(latencies)-1]
	r.P50 = percentile(latencies, 50)
	r.P90 = percentile(latencies, 90)
	r.P95 = percentile(latencies, 95)
	r.P99 = percentile(latencies, 99)

	var sq float64
	for _, l := range latencies {
		d := float64(l - r.Avg)
		sq += d * d
	}
	r.StdDev = time.Duration(math.Sqrt(sq / float64(len(latencies))))
	return r
}

// percentile uses the nearest-rank method on sorted latencies.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	idx = max(0, min(idx, len(sorted)-1))
	return sorted[idx]
}

// Print writes a human-readable report.
func (r *Report) Print(w io.Writer) {
	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", r.Total)
	fmt.Fprintf(w, "Successful:      %d\n", r.Success)
	fmt.Fprintf(w, "Errors:          %d\n", r.Errors)
	fmt.Fprintf(w, "Cache Hits:      %d\n", r.CacheHits)
	if r.Total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", r.ErrorRate())
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", r.RPS)
	}
	if r.Max > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", r.Min)
		fmt.Fprintf(w, "Avg:    %s\n", r.Avg)
		fmt.Fprintf(w, "P50:    %s\n", r.P50)
		fmt.Fprintf(w, "P90:    %s\n", r.P90)
		fmt.Fprintf(w, "P95:    %s\n", r.P95)
		fmt.Fprintf(w, "P99:    %s\n", r.P99)
		fmt.Fprintf(w, "Max:    %s\n", r.Max)
		fmt.Fprintf(w, "StdDev: %s\n", r.StdDev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	codes := make([]int, 0, len(r.StatusCodes))
	for code := range r.StatusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, r.StatusCodes[code])
	}
}
