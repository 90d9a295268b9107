package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRedisOptions(t *testing.T) {
	_, err := redisOptions(RedisConfig{Address: "  "})
	require.ErrorContains(t, err, "address is required")

	opts, err := redisOptions(RedisConfig{Address: "cache:6379", Password: "pw", DB: 2})
	require.NoError(t, err)
	require.Equal(t, "cache:6379", opts.Addr)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, defaultRedisTimeout, opts.DialTimeout)
	require.Nil(t, opts.TLSConfig)

	opts, err = redisOptions(RedisConfig{Address: "cache:6380", TLS: true, Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, opts.TLSConfig)
	require.Equal(t, time.Second, opts.ReadTimeout)
}

func TestRedisKeyPrefix(t *testing.T) {
	require.Equal(t, "shopapp:auth:sessions:refresh:abc", prefixed("auth:sessions:refresh:abc"))
	require.Equal(t, "shopapp:rl", prefixed("::rl"))
}

func TestNewRedisStoreFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisStore(ctx, RedisConfig{Address: "127.0.0.1:1", Timeout: 200 * time.Millisecond})
	require.Error(t, err)
}

func TestRedisStoreCloseNil(t *testing.T) {
	var store *RedisStore
	require.NoError(t, store.Close())
}
