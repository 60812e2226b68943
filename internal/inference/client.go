// Package inference talks to an OpenAI-compatible chat-completions endpoint
// to answer questions over report chunks and to summarise report text.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/esgpulse/esg-analytics/pkg/config"
	apperrors "github.com/esgpulse/esg-analytics/pkg/errors"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/resilience"
	openai "github.com/sashabaranov/go-openai"
)

const upstreamName = "inference"

const answerPrompt = `Based on the following ESG report context, please answer the user's question. If the information is not available in the context, say so.

Context:
%s

User Question: %s

Answer:`

const summaryPrompt = `Summarise the following ESG report excerpt in a few short paragraphs. Cover environmental, social and governance performance, targets and notable risks when they are mentioned.

Report:
%s`

// Client wraps an OpenAI-compatible API with retries and a circuit breaker.
type Client struct {
	api         *openai.Client
	model       string
	maxTokens   int
	temperature float32
	budget      int
	timeout     time.Duration
	counter     TokenCounter
	breaker     *resilience.CircuitBreaker
	retry       resilience.RetryConfig
	breakerCfg  resilience.CircuitBreakerConfig
	httpClient  *http.Client
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTokenCounter replaces the tiktoken-based counter.
func WithTokenCounter(tc TokenCounter) Option {
	return func(c *Client) { c.counter = tc }
}

// WithMetrics records upstream latency, failures and breaker state.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithRetry overrides the retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// WithHTTPClient sets the HTTP client used for API calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBreaker overrides the circuit breaker thresholds.
func WithBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(c *Client) { c.breakerCfg = cfg }
}

// New builds a client for cfg. An empty BaseURL targets the OpenAI API.
func New(cfg config.InferenceConfig, opts ...Option) *Client {
	c := &Client{
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		budget:      cfg.MaxContextTokens,
		timeout:     cfg.Timeout,
		retry: resilience.RetryConfig{
			MaxAttempts:  3,
			InitialDelay: 250 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Retryable:    isRetryable,
		},
		breakerCfg: resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
		logger: slog.Default().With("component", "inference"),
	}
	for _, opt := range opts {
		opt(c)
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if c.httpClient != nil {
		apiCfg.HTTPClient = c.httpClient
	}
	c.api = openai.NewClientWithConfig(apiCfg)

	if c.counter == nil {
		c.counter = NewTokenCounter()
	}
	breakerCfg := c.breakerCfg
	if c.metrics != nil {
		gauge := c.metrics.CircuitBreakerState
		breakerCfg.OnStateChange = func(name string, to resilience.State) {
			gauge.WithLabelValues(name).Set(float64(to))
		}
	}
	c.breaker = resilience.NewCircuitBreaker(upstreamName, breakerCfg)
	return c
}

// Answer asks the model to answer question using only the given passages.
func (c *Client) Answer(ctx context.Context, question string, passages []string) (string, error) {
	kept := fitContext(c.counter, passages, c.budget)
	if len(kept) < len(passages) {
		c.logger.Debug("context trimmed to token budget",
			"passages", len(passages),
			"kept", len(kept),
			"budget", c.budget,
		)
	}
	prompt := fmt.Sprintf(answerPrompt, strings.Join(kept, "\n\n"), question)
	return c.complete(ctx, "answer", prompt)
}

// Summarize asks the model for a summary of text, trimmed to the token budget.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	if c.budget > 0 {
		text = c.counter.Truncate(text, c.budget)
	}
	return c.complete(ctx, "summarize", fmt.Sprintf(summaryPrompt, text))
}

func (c *Client) complete(ctx context.Context, op, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	start := time.Now()
	var content string
	err := resilience.Retry(ctx, upstreamName+"."+op, c.retry, func() error {
		return c.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, c.timeout, upstreamName+"."+op, func(ctx context.Context) error {
				resp, err := c.api.CreateChatCompletion(ctx, req)
				if err != nil {
					return err
				}
				if len(resp.Choices) > 0 {
					content = strings.TrimSpace(resp.Choices[0].Message.Content)
				}
				return nil
			})
		})
	})
	if c.metrics != nil {
		c.metrics.UpstreamLatency.WithLabelValues(upstreamName).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamFailures.WithLabelValues(upstreamName).Inc()
		}
		c.logger.Error("completion failed", "op", op, "model", c.model, "error", err)
		if errors.Is(err, apperrors.ErrTimeout) {
			return "", fmt.Errorf("%w: %s: %v", apperrors.ErrTimeout, op, err)
		}
		return "", fmt.Errorf("%w: %s: %v", apperrors.ErrUpstream, op, err)
	}
	return content, nil
}

// isRetryable retries transport errors, rate limits and server errors.
func isRetryable(err error) bool {
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}
