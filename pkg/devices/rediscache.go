package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisConfig holds configuration for the Redis registry cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

// RedisCachedRegistry is a read-through cache in front of a slower registry.
// Cache hits are served from Redis; misses fall back to the source and the
// result is written back with a TTL. Negative results are not cached.
type RedisCachedRegistry struct {
	client   *redis.Client
	fallback Fetcher
	ttl      time.Duration
	logger   zerolog.Logger
	ctx      context.Context
}

// NewRedisCachedRegistry connects to Redis and wraps the fallback fetcher.
func NewRedisCachedRegistry(ctx context.Context, cfg *RedisConfig, fallback Fetcher, logger zerolog.Logger) (*RedisCachedRegistry, error) {
	if fallback == nil {
		return nil, errors.New("fallback fetcher cannot be nil")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info().Str("redis_address", cfg.Addr).Msg("Connected to Redis for device registry cache")
	return &RedisCachedRegistry{
		client:   client,
		fallback: fallback,
		ttl:      cfg.CacheTTL,
		logger:   logger.With().Str("component", "RedisCachedRegistry").Logger(),
		ctx:      ctx,
	}, nil
}

// Fetch resolves a station name, checking the cache first.
func (r *RedisCachedRegistry) Fetch(deviceName string) (Record, error) {
	cached, err := r.client.Get(r.ctx, cacheKey(deviceName)).Result()
	if err == nil {
		var rec Record
		if jsonErr := json.Unmarshal([]byte(cached), &rec); jsonErr == nil {
			r.logger.Debug().Str("device_name", deviceName).Msg("Registry cache hit")
			return rec, nil
		}
		// Corrupt cache entry, treat as a miss.
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Error().Err(err).Str("device_name", deviceName).Msg("Error reading registry cache")
	}

	rec, err := r.fallback(deviceName)
	if err != nil {
		return Record{}, err
	}

	if body, jsonErr := json.Marshal(rec); jsonErr == nil {
		if setErr := r.client.Set(r.ctx, cacheKey(deviceName), body, r.ttl).Err(); setErr != nil {
			r.logger.Error().Err(setErr).Str("device_name", deviceName).Msg("Failed to write registry cache")
		}
	}
	return rec, nil
}

// Close shuts down the Redis client.
func (r *RedisCachedRegistry) Close() error {
	return r.client.Close()
}

func cacheKey(deviceName string) string {
	return "device:" + deviceName
}
