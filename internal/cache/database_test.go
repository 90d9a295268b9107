package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/shopapp/internal/database/testutil"
	"github.com/charlesng35/shopapp/internal/models"
)

type testClock struct {
	current time.Time
}

func (c *testClock) Now() time.Time          { return c.current }
func (c *testClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func setupDatabaseStore(t *testing.T) (*DatabaseStore, *testClock) {
	t.Helper()
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &testClock{current: time.Date(2025, 2, 1, 10, 0, 0, 0, time.UTC)}
	return NewDatabaseStore(db, WithClock(clock.Now)), clock
}

func TestDatabaseStoreSetGetDelete(t *testing.T) {
	store, clock := setupDatabaseStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, store.Set(ctx, "greeting", []byte("hello"), time.Minute))
	value, found, err := store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hello", string(value))

	require.NoError(t, store.Set(ctx, "greeting", []byte("updated"), time.Minute))
	value, _, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.Equal(t, "updated", string(value))

	clock.Advance(2 * time.Minute)
	_, found, err = store.Get(ctx, "greeting")
	require.NoError(t, err)
	require.False(t, found, "expired entries must read as missing")

	require.NoError(t, store.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, store.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, store.Delete(ctx, "a", "b"))
	_, found, _ = store.Get(ctx, "a")
	require.False(t, found)
	require.NoError(t, store.Delete(ctx))
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	store, clock := setupDatabaseStore(t)
	ctx := context.Background()

	count, ttl, err := store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)

	clock.Advance(20 * time.Second)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 40*time.Second, ttl, "window must not slide on increments")

	clock.Advance(time.Minute)
	count, ttl, err = store.IncrementWithTTL(ctx, "rl:login:1.2.3.4", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStoreDeleteExpired(t *testing.T) {
	store, clock := setupDatabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "short", []byte("x"), time.Second))
	require.NoError(t, store.Set(ctx, "long", []byte("x"), time.Hour))
	require.NoError(t, store.Set(ctx, "forever", []byte("x"), 0))

	clock.Advance(time.Minute)
	removed, err := store.DeleteExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)

	var keys []string
	require.NoError(t, store.db.Model(&models.CacheEntry{}).Order("key").Pluck("key", &keys).Error)
	require.Equal(t, []string{"forever", "long"}, keys)
}

func TestNilDatabaseStore(t *testing.T) {
	require.Nil(t, NewDatabaseStore(nil))

	var store *DatabaseStore
	_, _, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	require.Error(t, store.Set(context.Background(), "k", nil, 0))
}
