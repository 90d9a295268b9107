package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultRedisTimeout = 5 * time.Second
	redisKeyPrefix      = "shopapp:"
)

// RedisConfig captures the connection parameters for RedisStore.
type RedisConfig struct {
	Address  string
	Username string
	Password string
	DB       int
	TLS      bool
	Timeout  time.Duration
}

// RedisStore implements Store on top of go-redis. All keys live under a
// shared prefix so the instance can be shared with other services.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore connects to Redis and pings it so misconfiguration surfaces at start-up.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping %s: %w", cfg.Address, err)
	}

	return &RedisStore{client: client}, nil
}

func redisOptions(cfg RedisConfig) (*goredis.Options, error) {
	address := strings.TrimSpace(cfg.Address)
	if address == "" {
		return nil, errors.New("redis: address is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}

	opts := &goredis.Options{
		Addr:         address,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return opts, nil
}

// Close releases the connection pool.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

// Ping checks the connection for readiness probes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if window <= 0 {
		window = time.Minute
	}
	key = prefixed(key)

	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: incr: %w", err)
	}
	if count == 1 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis: pexpire: %w", err)
		}
		return count, window, nil
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: pttl: %w", err)
	}
	if ttl < 0 {
		// counter lost its expiry; restart the window
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("redis: pexpire: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return s.client.Set(ctx, prefixed(key), value, ttl).Err()
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := s.client.Get(ctx, prefixed(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (s *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, key := range keys {
		full[i] = prefixed(key)
	}
	return s.client.Del(ctx, full...).Err()
}

func prefixed(key string) string {
	return redisKeyPrefix + strings.TrimLeft(key, ":")
}
