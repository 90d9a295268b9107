package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/shopapp/internal/models"
)

// DatabaseStore implements Store on the primary SQL database. It is the
// fallback when Redis is not configured.
type DatabaseStore struct {
	db  *gorm.DB
	now func() time.Time
}

// DatabaseStoreOption customises a DatabaseStore.
type DatabaseStoreOption func(*DatabaseStore)

// WithClock overrides the clock used for expiry decisions.
func WithClock(now func() time.Time) DatabaseStoreOption {
	return func(s *DatabaseStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewDatabaseStore constructs a database-backed Store.
func NewDatabaseStore(db *gorm.DB, opts ...DatabaseStoreOption) *DatabaseStore {
	if db == nil {
		return nil
	}
	store := &DatabaseStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

var errStoreNotInitialised = errors.New("cache: database store not initialised")

// IncrementWithTTL increments a counter under a row lock; an expired
// counter restarts at 1 with a fresh window.
func (s *DatabaseStore) IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if s == nil {
		return 0, 0, errStoreNotInitialised
	}
	if window <= 0 {
		window = time.Minute
	}

	now := s.now()
	var (
		count  int64
		expiry time.Time
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.CacheEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(keyIs(key)).Take(&entry).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			count, expiry = 1, now.Add(window)
			return tx.Create(&models.CacheEntry{
				Key:       key,
				Value:     []byte("1"),
				ExpiresAt: expiry,
			}).Error
		}
		if err != nil {
			return err
		}

		if entry.Expired(now) {
			count, expiry = 1, now.Add(window)
		} else {
			current, _ := strconv.ParseInt(string(entry.Value), 10, 64)
			count, expiry = current+1, entry.ExpiresAt
		}
		entry.Value = []byte(strconv.FormatInt(count, 10))
		entry.ExpiresAt = expiry
		return tx.Save(&entry).Error
	})
	if err != nil {
		return 0, 0, err
	}

	return count, expiry.Sub(now), nil
}

// Set upserts the value for a given key. A non-positive ttl never expires.
func (s *DatabaseStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil {
		return errStoreNotInitialised
	}

	var expiry time.Time
	if ttl > 0 {
		expiry = s.now().Add(ttl)
	}

	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&models.CacheEntry{Key: key, Value: value, ExpiresAt: expiry}).Error
}

func (s *DatabaseStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil {
		return nil, false, errStoreNotInitialised
	}

	var entry models.CacheEntry
	err := s.db.WithContext(ctx).Where(keyIs(key)).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	if entry.Expired(s.now()) {
		_ = s.Delete(ctx, key)
		return nil, false, nil
	}
	return entry.Value, true, nil
}

func (s *DatabaseStore) Delete(ctx context.Context, keys ...string) error {
	if s == nil {
		return errStoreNotInitialised
	}
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Where(keyIs(keys)).Delete(&models.CacheEntry{}).Error
}

// keyIs builds a condition on the key column; gorm quotes the name, which
// MySQL reserves.
func keyIs(value any) map[string]any {
	return map[string]any{"key": value}
}

// DeleteExpired purges rows whose expiry passed. Rows without expiry stay.
func (s *DatabaseStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s == nil {
		return 0, errStoreNotInitialised
	}
	result := s.db.WithContext(ctx).
		Where("expires_at > ? AND expires_at < ?", time.Time{}, s.now()).
		Delete(&models.CacheEntry{})
	return result.RowsAffected, result.Error
}
