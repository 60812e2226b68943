package document

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pkgredis "github.com/esgpulse/esg-analytics/pkg/redis"
)

const chunkKeyPrefix = "chunks:"

// KV is the subset of the Redis client the store needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

// RedisStore keeps each document's chunk set as one JSON value, so a Put is a
// single SET and never exposes a partially written set.
type RedisStore struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(kv KV, ttl time.Duration) *RedisStore {
	return &RedisStore{
		kv:     kv,
		ttl:    ttl,
		logger: slog.Default().With("component", "chunk-store"),
	}
}

func (s *RedisStore) Put(ctx context.Context, documentID string, chunks []Chunk) error {
	if chunks == nil {
		chunks = []Chunk{}
	}
	data, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshaling chunks for %s: %w", documentID, err)
	}
	if err := s.kv.Set(ctx, chunkKey(documentID), data, s.ttl); err != nil {
		return fmt.Errorf("storing chunks for %s: %w", documentID, err)
	}
	s.logger.Debug("chunks stored", "document_id", documentID, "chunks", len(chunks))
	return nil
}

func (s *RedisStore) Get(ctx context.Context, documentID string) ([]Chunk, error) {
	data, err := s.kv.Get(ctx, chunkKey(documentID))
	if err != nil {
		if pkgredis.IsNilError(err) {
			return []Chunk{}, nil
		}
		return nil, fmt.Errorf("loading chunks for %s: %w", documentID, err)
	}
	var chunks []Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("decoding chunks for %s: %w", documentID, err)
	}
	return chunks, nil
}

func chunkKey(documentID string) string {
	return chunkKeyPrefix + documentID
}
