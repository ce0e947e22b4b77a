// Package cache stores short-lived byte values under string keys, in
// process memory or in Redis.
package cache

import (
	"context"
	"time"
)

// Backend is a key/value store with per-entry TTL
type Backend interface {
	// Get returns (value, found, error)
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value for ttl
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, key string) error

	// Close releases the backend
	Close() error
}

// Open returns a Redis backend when redisURL is set, otherwise an
// in-memory one holding at most maxEntries
func Open(redisURL, prefix string, maxEntries int) (Backend, error) {
	if redisURL != "" {
		return NewRedisCache(redisURL, prefix)
	}
	return NewMemoryCache(maxEntries, time.Minute), nil
}
