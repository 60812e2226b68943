// Package health runs dependency probes for the liveness and readiness
// endpoints. Each probe is either critical, in which case a failure takes
// the service down, or optional, in which case the service reports itself
// degraded but keeps serving.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Probe reports whether a dependency is reachable.
type Probe func(ctx context.Context) error

// ComponentHealth is the outcome of one probe.
type ComponentHealth struct {
	Status   Status `json:"status"`
	Critical bool   `json:"critical"`
	Message  string `json:"message,omitempty"`
	Latency  string `json:"latency"`
}

// Report aggregates every probe. Status is the worst component status.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  time.Time                  `json:"timestamp"`
}

type registration struct {
	probe    Probe
	critical bool
}

type Checker struct {
	mu      sync.RWMutex
	probes  map[string]registration
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker returns a Checker whose probes each get timeout to answer.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{
		probes:  make(map[string]registration),
		timeout: timeout,
		logger:  slog.Default().With("component", "health"),
	}
}

// Critical registers a probe whose failure marks the service down.
func (c *Checker) Critical(name string, p Probe) {
	c.register(name, p, true)
}

// Optional registers a probe whose failure only degrades the service.
func (c *Checker) Optional(name string, p Probe) {
	c.register(name, p, false)
}

func (c *Checker) register(name string, p Probe, critical bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = registration{probe: p, critical: critical}
}

// Names lists the registered probes in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Run executes all probes concurrently.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	probes := make(map[string]registration, len(c.probes))
	for name, reg := range c.probes {
		probes[name] = reg
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(probes)),
		Timestamp:  time.Now().UTC(),
	}

	var mu sync.Mutex
	var g errgroup.Group
	for name, reg := range probes {
		g.Go(func() error {
			result := c.probe(ctx, reg)
			if result.Status != StatusUp {
				c.logger.Warn("health probe failed", "probe", name, "critical", reg.critical, "error", result.Message)
			}
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

func (c *Checker) probe(ctx context.Context, reg registration) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	err := reg.probe(ctx)
	result := ComponentHealth{
		Status:   StatusUp,
		Critical: reg.critical,
		Latency:  time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		result.Message = err.Error()
		result.Status = StatusDegraded
		if reg.critical {
			result.Status = StatusDown
		}
	}
	return result
}

// LiveHandler answers liveness probes without touching dependencies.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers 200 unless a critical probe is failing. A degraded
// service still receives traffic.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(report)
	}
}
