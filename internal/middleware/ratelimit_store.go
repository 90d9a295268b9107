package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/shopapp/internal/cache"
)

// RateStore coordinates rate limiting counters for a specific key.
type RateStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int, ttl time.Duration, err error)
}

// memoryRateStore provides process-local rate limiting. It is concurrency-safe.
type memoryRateStore struct {
	mu        sync.Mutex
	data      map[string]*memoryCounter
	clock     func() time.Time
	lastSweep time.Time
}

type memoryCounter struct {
	count     int
	windowEnd time.Time
}

// NewMemoryRateStore constructs an in-memory rate store. Stale windows are
// swept during increments, so no background goroutine is needed.
func NewMemoryRateStore() RateStore {
	return newMemoryRateStore(time.Now)
}

func newMemoryRateStore(clock func() time.Time) *memoryRateStore {
	return &memoryRateStore{
		data:  make(map[string]*memoryCounter),
		clock: clock,
	}
}

func (s *memoryRateStore) Increment(_ context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}

	now := s.clock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if now.Sub(s.lastSweep) >= time.Minute {
		for k, counter := range s.data {
			if now.After(counter.windowEnd) {
				delete(s.data, k)
			}
		}
		s.lastSweep = now
	}

	counter, ok := s.data[key]
	if !ok || now.After(counter.windowEnd) {
		counter = &memoryCounter{windowEnd: now.Add(window)}
		s.data[key] = counter
	}
	counter.count++

	return counter.count, counter.windowEnd.Sub(now), nil
}

// storeRateStore implements RateStore over a shared cache.Store (Redis or the database).
type storeRateStore struct {
	store cache.Store
}

// NewCacheRateStore wraps a shared cache store so that counters are shared
// across instances.
func NewCacheRateStore(store cache.Store) RateStore {
	if store == nil {
		return nil
	}
	return &storeRateStore{store: store}
}

func (s *storeRateStore) Increment(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	count, ttl, err := s.store.IncrementWithTTL(ctx, key, window)
	return int(count), ttl, err
}
