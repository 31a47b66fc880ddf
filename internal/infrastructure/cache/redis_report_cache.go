package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/domain/shared"
)

// RedisReportCache implements analytics.PayloadCache using Redis
// Report payloads are keyed by request fingerprint so identical requests
// across instances hit the same entry; the database row stays the source
// of truth and a cache miss only costs one payload reload
type RedisReportCache struct {
	client    *redis.Client
	keyPrefix string
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// NewRedisReportCache creates a new Redis-based report payload cache
func NewRedisReportCache(cfg RedisConfig) (*RedisReportCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisReportCache{
		client:    client,
		keyPrefix: "report:payload:",
	}, nil
}

// NewRedisReportCacheWithClient creates a cache with an existing Redis client
// This is useful for testing or when sharing a client across components
func NewRedisReportCacheWithClient(client *redis.Client, keyPrefix string) *RedisReportCache {
	if keyPrefix == "" {
		keyPrefix = "report:payload:"
	}
	return &RedisReportCache{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// GetPayload returns the cached payload for a fingerprint
// A miss is reported as shared.ErrNotFound so callers can fall back to the
// database without inspecting Redis internals
func (c *RedisReportCache) GetPayload(ctx context.Context, fingerprint string) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.keyPrefix+fingerprint).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get report payload: %w", err)
	}
	return payload, nil
}

// SetPayload stores a payload with a time-to-live
func (c *RedisReportCache) SetPayload(ctx context.Context, fingerprint string, payload []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, c.keyPrefix+fingerprint, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache report payload: %w", err)
	}
	return nil
}

// DeletePayload drops the cached payload for a fingerprint
func (c *RedisReportCache) DeletePayload(ctx context.Context, fingerprint string) error {
	if err := c.client.Del(ctx, c.keyPrefix+fingerprint).Err(); err != nil {
		return fmt.Errorf("failed to delete report payload: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// Ensure RedisReportCache implements PayloadCache
var _ analytics.PayloadCache = (*RedisReportCache)(nil)
