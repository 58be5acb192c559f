package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lavapool/lavapool/internal/config"
	"github.com/lavapool/lavapool/internal/logging"
	"github.com/lavapool/lavapool/internal/node"
	"github.com/lavapool/lavapool/internal/query"
)

const redisKeyPrefix = "lavapool:query:"

// RedisStore caches query results in Redis so multiple processes share one
// cache.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisStore connects to Redis and verifies the connection. A zero ttl
// means entries live for 30 days.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration, logger *logging.Logger) (*RedisStore, error) {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{
			Addr:     cfg.URL,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "query_cache"),
	}, nil
}

func (s *RedisStore) Get(ctx context.Context, q query.Query) (Entry, error) {
	data, err := s.client.Get(ctx, redisKeyPrefix+q.CacheKey()).Bytes()
	if err == redis.Nil {
		return Entry{}, ErrEntryNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache lookup failed: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return Entry{}, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return entry, nil
}

func (s *RedisStore) Put(ctx context.Context, q query.Query, result node.LoadResult) error {
	entry, ok, err := entryFromResult(q, result)
	if err != nil || !ok {
		return err
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKeyPrefix+q.CacheKey(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("cache store failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
