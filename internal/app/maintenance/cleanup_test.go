package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	iauth "github.com/charlesng35/shopapp/internal/auth"
	"github.com/charlesng35/shopapp/internal/cache"
	testutil "github.com/charlesng35/shopapp/internal/database/testutil"
	"github.com/charlesng35/shopapp/internal/models"
)

type fixedClock struct {
	current time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.current
}

type failingPurger struct {
	err error
}

func (f failingPurger) CleanupExpired(context.Context) (int64, error) { return 0, f.err }
func (f failingPurger) DeleteExpired(context.Context) (int64, error)  { return 0, f.err }

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	clock := &fixedClock{current: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}

	codec, err := iauth.NewTokenCodec(iauth.TokenCodecConfig{Secret: "cleanup-secret", Clock: clock.Now})
	require.NoError(t, err)
	store, err := iauth.NewGormSessionStore(db, clock.Now)
	require.NoError(t, err)
	sessions, err := iauth.NewSessionManager(store, codec, iauth.SessionManagerConfig{
		AccessTokenTTL:  time.Minute,
		RefreshTokenTTL: time.Hour,
		Clock:           clock.Now,
	})
	require.NoError(t, err)

	ctx := context.Background()
	stale, err := sessions.Open(ctx, iauth.Subject{ID: "cleanup-user"}, models.DeviceOther)
	require.NoError(t, err)

	clock.current = clock.current.Add(90 * time.Minute)
	fresh, err := sessions.Open(ctx, iauth.Subject{ID: "cleanup-user"}, models.DeviceMobile)
	require.NoError(t, err)

	dbCache := cache.NewDatabaseStore(db, cache.WithClock(clock.Now))
	require.NoError(t, dbCache.Set(ctx, "expiring", []byte("x"), time.Minute))
	require.NoError(t, dbCache.Set(ctx, "lasting", []byte("y"), 24*time.Hour))
	clock.current = clock.current.Add(2 * time.Minute)

	c := NewCleaner(sessions, dbCache, WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))))
	require.NoError(t, c.RunOnce(ctx))

	remaining, err := sessions.Sessions(ctx, "cleanup-user")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, fresh.ID, remaining[0].ID)
	require.NotEqual(t, stale.ID, remaining[0].ID)

	var cacheRows int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&cacheRows).Error)
	require.EqualValues(t, 1, cacheRows)
}

func TestCleanerRunOnceAggregatesErrors(t *testing.T) {
	sessionErr := errors.New("sessions down")
	cacheErr := errors.New("cache down")

	c := NewCleaner(failingPurger{err: sessionErr}, failingPurger{err: cacheErr})
	err := c.RunOnce(context.Background())
	require.Error(t, err)
	require.Len(t, multierr.Errors(err), 2)
	require.ErrorIs(t, err, sessionErr)
	require.ErrorIs(t, err, cacheErr)
}

func TestCleanerStartSchedulesEnabledJobs(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(failingPurger{}, failingPurger{},
		WithCron(scheduler),
		WithSessionSchedule("*/5 * * * *"),
		WithCacheSchedule(""),
	)

	require.NoError(t, c.Start())
	t.Cleanup(func() { <-c.Stop().Done() })
	require.Len(t, scheduler.Entries(), 1)
}

func TestCleanerStartRejectsInvalidSpec(t *testing.T) {
	c := NewCleaner(failingPurger{}, nil, WithSessionSchedule("every now and then"))
	require.Error(t, c.Start())
}

func TestCleanerWithoutJobsDoesNothing(t *testing.T) {
	scheduler := cron.New(cron.WithLogger(cron.DiscardLogger))
	c := NewCleaner(nil, nil, WithCron(scheduler))

	require.NoError(t, c.Start())
	require.Empty(t, scheduler.Entries())
	require.NoError(t, c.RunOnce(context.Background()))
}
