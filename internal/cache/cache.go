// Package cache keeps encoded detectors close to the scoring path.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ModelCache defines the interface for the encoded-model cache
type ModelCache interface {
	// Get returns the cached blob and whether it was present
	Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error)

	// Set stores the blob for id
	Set(ctx context.Context, id uuid.UUID, blob []byte) error

	// Delete evicts id
	Delete(ctx context.Context, id uuid.UUID) error
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Prefix string
	TTL    time.Duration
}

// DefaultRedisConfig returns default configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Prefix: "iforest:model:",
		TTL:    time.Hour,
	}
}

// RedisCache stores encoded models in Redis with a TTL
type RedisCache struct {
	client *redis.Client
	config RedisConfig
}

// NewRedisCache creates a cache over an existing client
func NewRedisCache(client *redis.Client, config RedisConfig) *RedisCache {
	if config.Prefix == "" {
		config.Prefix = DefaultRedisConfig().Prefix
	}
	return &RedisCache{client: client, config: config}
}

// Connect parses a redis:// URL and checks the connection.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(id uuid.UUID) string {
	return c.config.Prefix + id.String()
}

func (c *RedisCache) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	blob, err := c.client.Get(ctx, c.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached model: %w", err)
	}
	return blob, true, nil
}

func (c *RedisCache) Set(ctx context.Context, id uuid.UUID, blob []byte) error {
	if err := c.client.Set(ctx, c.key(id), blob, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("failed to cache model: %w", err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, id uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to evict model: %w", err)
	}
	return nil
}

// NoOpCache is a cache that doesn't cache anything
type NoOpCache struct{}

func (NoOpCache) Get(ctx context.Context, id uuid.UUID) ([]byte, bool, error) {
	return nil, false, nil
}

func (NoOpCache) Set(ctx context.Context, id uuid.UUID, blob []byte) error {
	return nil
}

func (NoOpCache) Delete(ctx context.Context, id uuid.UUID) error {
	return nil
}
