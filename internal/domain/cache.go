package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. The dashboard only
// ever needs the latest result bundle, so the cache is a small read-through
// layer: local LRU (Community) or Redis (Pro), optionally two-phase.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetResult retrieves the cached refresh result bundle.
	GetResult(ctx context.Context) (*Result, error)

	// SetResult caches the latest refresh result bundle.
	SetResult(ctx context.Context, result *Result, ttl time.Duration) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// ResultCacheKey is the cache key for the latest result bundle.
const ResultCacheKey = "refresh:latest"

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (Community tier)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (Pro tier)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis
}
