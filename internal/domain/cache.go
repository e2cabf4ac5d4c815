package domain

import (
	"context"
	"time"
)

// Cache defines the interface for rule-snapshot caching.
// Supports two-phase caching: local LRU (standalone) + Redis (cluster).
// All methods require carrierID so one carrier's rules can never bleed
// into another's keyspace.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, carrierID string, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, carrierID string, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, carrierID string, key string) error

	// Flush drops every cached rule snapshot. Called after rule
	// authoring so stale candidate sets never outlive an edit.
	Flush(ctx context.Context) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings (standalone profile)
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings (cluster profile)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Two-phase settings
	EnableTwoPhase bool // If true, check local first, then Redis

	// RuleTTL is how long rule snapshots live in cache.
	RuleTTL time.Duration
}
