package prediction

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	pkgredis "github.com/esgpulse/esg-analytics/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "prediction:"

// Backend is the key-value store the cache writes to.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Cache memoises prediction responses in Redis and collapses concurrent
// computations of the same key.
type Cache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func NewCache(backend Backend, ttl time.Duration) *Cache {
	return &Cache{
		backend: backend,
		ttl:     ttl,
		logger:  slog.Default().With("component", "prediction-cache"),
	}
}

func (c *Cache) Get(ctx context.Context, companyID, years int) (*Response, bool) {
	key := buildKey(companyID, years)
	data, err := c.backend.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		return nil, false
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return &resp, true
}

func (c *Cache) Set(ctx context.Context, companyID, years int, resp *Response) {
	key := buildKey(companyID, years)
	data, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.backend.Set(ctx, key, data, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns a cached response or computes, stores and returns a
// fresh one. The bool reports a cache hit.
func (c *Cache) GetOrCompute(
	ctx context.Context,
	companyID, years int,
	computeFn func() (*Response, error),
) (*Response, bool, error) {
	if resp, ok := c.Get(ctx, companyID, years); ok {
		return resp, true, nil
	}
	val, err, _ := c.group.Do(buildKey(companyID, years), func() (any, error) {
		if resp, ok := c.Get(ctx, companyID, years); ok {
			return resp, nil
		}
		resp, err := computeFn()
		if err != nil {
			return nil, err
		}
		c.Set(ctx, companyID, years, resp)
		return resp, nil
	})
	if err != nil {
		return nil, false, err
	}
	return val.(*Response), false, nil
}

// Invalidate drops every cached prediction.
func (c *Cache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating prediction cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func buildKey(companyID, years int) string {
	hash := sha256.Sum256(fmt.Appendf(nil, "company=%d:years=%d", companyID, years))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}
