package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/shopapp/pkg/logger"
)

const (
	defaultSessionSpec = "@hourly"
	defaultCacheSpec   = "@daily"
	jobTimeout         = 5 * time.Minute
)

// SessionPurger deletes sessions whose rotation window has closed.
type SessionPurger interface {
	CleanupExpired(ctx context.Context) (int64, error)
}

// CachePurger deletes expired rows of the database-backed cache.
type CachePurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Cleaner coordinates background maintenance: purging expired sessions and
// expired cache entries on cron schedules.
type Cleaner struct {
	sessions SessionPurger
	cache    CachePurger
	cron     *cron.Cron
	log      *zap.Logger

	sessionSchedule string
	cacheSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
// An empty spec disables the job.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		cleaner.sessionSchedule = spec
	}
}

// WithCacheSchedule overrides the cron specification for cache cleanup.
// An empty spec disables the job.
func WithCacheSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		cleaner.cacheSchedule = spec
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. Any nil dependency results in
// the corresponding cleanup job being skipped.
func NewCleaner(sessions SessionPurger, cache CachePurger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		sessions:        sessions,
		cache:           cache,
		sessionSchedule: defaultSessionSpec,
		cacheSchedule:   defaultCacheSpec,
		log:             logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers cleanup jobs with the cron scheduler and launches it if at least one job is enabled.
func (c *Cleaner) Start() error {
	scheduled := 0

	if c.sessions != nil && c.sessionSchedule != "" {
		if _, err := c.cron.AddFunc(c.sessionSchedule, c.purgeSessions); err != nil {
			return err
		}
		scheduled++
	}

	if c.cache != nil && c.cacheSchedule != "" {
		if _, err := c.cron.AddFunc(c.cacheSchedule, c.purgeCache); err != nil {
			return err
		}
		scheduled++
	}

	if scheduled > 0 {
		c.cron.Start()
	}
	return nil
}

func (c *Cleaner) purgeSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := c.sessions.CleanupExpired(ctx)
	if err != nil {
		c.log.Warn("session cleanup failed", zap.Error(err))
		return
	}
	c.log.Debug("expired sessions purged", zap.Int64("count", removed))
}

func (c *Cleaner) purgeCache() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	removed, err := c.cache.DeleteExpired(ctx)
	if err != nil {
		c.log.Warn("cache cleanup failed", zap.Error(err))
		return
	}
	c.log.Debug("expired cache entries purged", zap.Int64("count", removed))
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially, ignoring
// schedules. Used at start-up and in tests.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.cache != nil {
		if _, err := c.cache.DeleteExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
