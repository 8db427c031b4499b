// Package cache decorates an EmbeddingService with a Redis-backed cache
// keyed by model and text, so repeated retrieval queries skip the model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/custodia-labs/legalvault/internal/core/domain"
	"github.com/custodia-labs/legalvault/internal/core/ports/driven"
	"github.com/custodia-labs/legalvault/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const keyPrefix = "legalvault:embed:"

// DefaultTTL is used when no TTL is configured.
const DefaultTTL = 24 * time.Hour

// Store is the subset of Redis the cache needs. A missing key is
// reported as redis.Nil.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// RedisStore wraps a go-redis client.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection with a PING.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// Get returns the string value for the given key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	return s.rdb.Get(ctx, key).Result()
}

// Set stores a value with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping sends a PING to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying Redis connection.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// EmbeddingService serves embeddings from the cache and falls through to
// the wrapped service on a miss. Cache failures are logged and never
// fail a call.
type EmbeddingService struct {
	next   driven.EmbeddingService
	store  Store
	ttl    time.Duration
	group  singleflight.Group
	log    *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// New wraps next with store.
func New(next driven.EmbeddingService, store Store, ttl time.Duration) *EmbeddingService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &EmbeddingService{
		next:  next,
		store: store,
		ttl:   ttl,
		log:   logger.WithComponent("embedding-cache"),
	}
}

// Embed returns the cached vector for text or computes it once.
// Concurrent misses for the same text share one upstream call.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.key(text)
	if vec, ok := s.get(ctx, key); ok {
		return vec, nil
	}
	val, err, _ := s.group.Do(key, func() (any, error) {
		if vec, ok := s.get(ctx, key); ok {
			return vec, nil
		}
		vec, err := s.next.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		s.set(ctx, key, vec)
		return vec, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]float32), nil
}

// EmbedBatch serves cached texts and sends only the misses upstream, in
// one batch, preserving input order.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string
	for i, text := range texts {
		if vec, ok := s.get(ctx, s.key(text)); ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}
	if len(missTexts) == 0 {
		return out, nil
	}

	vecs, err := s.next.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, &domain.EmbeddingError{
			Op:     "embed_batch",
			Detail: fmt.Sprintf("expected %d embeddings, got %d", len(missTexts), len(vecs)),
		}
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
		s.set(ctx, s.key(texts[i]), vecs[j])
	}
	return out, nil
}

func (s *EmbeddingService) key(text string) string {
	hash := sha256.Sum256([]byte(s.next.ModelName() + "\x00" + text))
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

func (s *EmbeddingService) get(ctx context.Context, key string) ([]float32, bool) {
	data, err := s.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Error("cache get failed", "key", key, "error", err)
		}
		s.misses.Add(1)
		return nil, false
	}
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil || len(vec) != s.next.Dimensions() {
		s.log.Warn("discarding cached vector", "key", key, "error", err)
		s.misses.Add(1)
		return nil, false
	}
	s.hits.Add(1)
	return vec, true
}

func (s *EmbeddingService) set(ctx context.Context, key string, vec []float32) {
	data, err := json.Marshal(vec)
	if err != nil {
		s.log.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := s.store.Set(ctx, key, data, s.ttl); err != nil {
		s.log.Error("cache set failed", "key", key, "error", err)
	}
}

// Stats returns cache hit and miss counts.
func (s *EmbeddingService) Stats() (hits, misses int64) {
	return s.hits.Load(), s.misses.Load()
}

// MaxBatchSize returns the wrapped service's limit.
func (s *EmbeddingService) MaxBatchSize() int { return s.next.MaxBatchSize() }

// Dimensions returns the wrapped service's vector size.
func (s *EmbeddingService) Dimensions() int { return s.next.Dimensions() }

// ModelName returns the wrapped service's model.
func (s *EmbeddingService) ModelName() string { return s.next.ModelName() }

// Ping checks the wrapped service. The cache is optional and not checked.
func (s *EmbeddingService) Ping(ctx context.Context) error { return s.next.Ping(ctx) }

// Close closes the store and the wrapped service.
func (s *EmbeddingService) Close() error {
	return errors.Join(s.store.Close(), s.next.Close())
}
