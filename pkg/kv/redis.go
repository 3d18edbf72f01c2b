package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
)

// RedisBackend is a Redis-backed Backend.
// Values never expire; the store decides when to delete them.
type RedisBackend struct {
	client redis.Cmdable
	prefix string
	closed atomic.Bool
}

// RedisOption configures RedisBackend behavior.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
}

// WithRedisPrefix sets the key prefix.
// Default: "homepage:kv:".
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		c.prefix = prefix
	}
}

// NewRedisBackend creates a Redis-backed Backend. client is usually a
// *redis.Client or *redis.ClusterClient.
func NewRedisBackend(client redis.Cmdable, opts ...RedisOption) *RedisBackend {
	cfg := &redisConfig{
		prefix: "homepage:kv:",
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return &RedisBackend{
		client: client,
		prefix: cfg.prefix,
	}
}

// key returns the Redis key for a storage key.
func (r *RedisBackend) key(k string) string {
	return r.prefix + k
}

// Save stores data under key.
func (r *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Set(ctx, r.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("kv: redis set %q: %w", key, err)
	}
	return nil
}

// Load retrieves the value stored under key.
func (r *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv: redis get %q: %w", key, err)
	}
	return data, nil
}

// Delete removes key.
func (r *RedisBackend) Delete(ctx context.Context, key string) error {
	if r.closed.Load() {
		return ErrClosed
	}
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("kv: redis del %q: %w", key, err)
	}
	return nil
}

// Close marks the backend as closed.
// Note: This does not close the underlying Redis client,
// as it may be shared with other components.
func (r *RedisBackend) Close() error {
	r.closed.Store(true)
	return nil
}

// Prefix returns the current key prefix.
func (r *RedisBackend) Prefix() string {
	return r.prefix
}
