package cache

import (
	"fmt"

	"github.com/sop/backend/internal/domain/analytics"
	"github.com/sop/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

type cacheOptions struct {
	log          *zap.Logger
	requireRedis bool
}

// Option adjusts payload cache construction.
type Option func(*cacheOptions)

// WithLogger routes construction diagnostics to log instead of discarding
// them.
func WithLogger(log *zap.Logger) Option {
	return func(o *cacheOptions) { o.log = log }
}

// WithRequiredRedis makes construction fail when Redis is unreachable
// instead of falling back to the in-memory cache. Multi-instance deployments
// set this; a per-process cache regenerates every hot report per instance.
func WithRequiredRedis() Option {
	return func(o *cacheOptions) { o.requireRedis = true }
}

// NewPayloadCache connects the report payload cache. Redis is preferred so
// identical report requests hit the same entry across instances; when Redis
// is unreachable and not required the cache degrades to a per-process
// in-memory store.
func NewPayloadCache(cfg config.RedisConfig, opts ...Option) (analytics.PayloadCache, error) {
	o := cacheOptions{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	redisCache, err := NewRedisReportCache(RedisConfig{
		Host:     cfg.Host,
		Port:     cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err == nil {
		o.log.Info("Using Redis report payload cache",
			zap.String("host", cfg.Host),
			zap.Int("port", cfg.Port),
		)
		return redisCache, nil
	}
	if o.requireRedis {
		return nil, fmt.Errorf("redis report cache unavailable: %w", err)
	}

	o.log.Warn("Redis unreachable, report payloads cached per process only",
		zap.Error(err),
	)
	return NewInMemoryReportCache(), nil
}
