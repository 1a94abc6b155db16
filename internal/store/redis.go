package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisStore implements Backend on Redis GET/SET with expiry.
type RedisStore struct {
	client *redis.Client
}

// NewRedis creates a store from a redis:// or rediss:// URL.
func NewRedis(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, eris.Wrap(err, "redis: parse url")
	}
	return &RedisStore{client: redis.NewClient(opts)}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements geocode.Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, eris.Wrap(err, "redis: get")
	}
	return val, true, nil
}

// Set implements geocode.Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return eris.Wrap(s.client.Set(ctx, key, value, ttl).Err(), "redis: set")
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.client.Ping(ctx).Err(), "redis: ping")
}

// Migrate is a no-op; Redis needs no schema.
func (s *RedisStore) Migrate(context.Context) error { return nil }

// DeleteExpired is a no-op; Redis expires keys itself.
func (s *RedisStore) DeleteExpired(context.Context) (int64, error) { return 0, nil }

func (s *RedisStore) Close() error {
	return s.client.Close()
}
