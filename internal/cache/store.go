package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application.
// It backs the session cache and the rate limit counters.
type Store interface {
	// IncrementWithTTL bumps a counter and returns it with the time left in its window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get reports found=false for missing or expired keys.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
