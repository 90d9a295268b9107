package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/shopapp/internal/cache"
	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/pkg/logger"
)

const sessionCacheKeyPrefix = "auth:sessions:refresh:"

var errSessionCacheMiss = errors.New("session cache miss")

// SessionCache stores session snapshots keyed by rotation token.
type SessionCache interface {
	Get(ctx context.Context, refreshToken string) (*models.Session, error)
	Set(ctx context.Context, session *models.Session, ttl time.Duration) error
	Delete(ctx context.Context, refreshTokens ...string) error
}

// NewSessionCache wraps a cache.Store (Redis or database backed) as a SessionCache.
func NewSessionCache(store cache.Store) SessionCache {
	if store == nil {
		return nil
	}
	return &sessionStoreCache{store: store}
}

type sessionStoreCache struct {
	store cache.Store
}

func (c *sessionStoreCache) Get(ctx context.Context, refreshToken string) (*models.Session, error) {
	key := cacheKey(refreshToken)
	if key == "" {
		return nil, errSessionCacheMiss
	}

	data, found, err := c.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errSessionCacheMiss
	}

	var entry cachedSession
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("session cache: decode: %w", err)
	}
	session := entry.Session
	session.AccessToken = entry.AccessToken
	// The rotation token only lives in the key.
	session.RefreshToken = strings.TrimSpace(refreshToken)
	return &session, nil
}

func (c *sessionStoreCache) Set(ctx context.Context, session *models.Session, ttl time.Duration) error {
	if session == nil {
		return errors.New("session cache: session is nil")
	}
	key := cacheKey(session.RefreshToken)
	if key == "" {
		return errors.New("session cache: refresh token missing")
	}
	if ttl <= 0 {
		return nil
	}

	payload, err := json.Marshal(cachedSession{Session: *session, AccessToken: session.AccessToken})
	if err != nil {
		return fmt.Errorf("session cache: marshal: %w", err)
	}
	return c.store.Set(ctx, key, payload, ttl)
}

func (c *sessionStoreCache) Delete(ctx context.Context, refreshTokens ...string) error {
	keys := make([]string, 0, len(refreshTokens))
	for _, token := range refreshTokens {
		if key := cacheKey(token); key != "" {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return c.store.Delete(ctx, keys...)
}

// cachedSession restores the bearer token that models.Session hides from JSON.
type cachedSession struct {
	models.Session
	AccessToken string `json:"access_token"`
}

func cacheKey(refreshToken string) string {
	token := strings.TrimSpace(refreshToken)
	if token == "" {
		return ""
	}
	return sessionCacheKeyPrefix + token
}

// cachedSessionStore serves rotation-token lookups from a SessionCache and
// purges affected keys on every mutation. Cache failures are logged and
// never surface to callers.
type cachedSessionStore struct {
	SessionStore
	cache SessionCache
	now   func() time.Time
	log   *zap.Logger
}

// WithSessionCache decorates store with a read-through cache. A nil cache returns store unchanged.
func WithSessionCache(store SessionStore, sessionCache SessionCache, clock func() time.Time) SessionStore {
	if sessionCache == nil {
		return store
	}
	if clock == nil {
		clock = time.Now
	}
	return &cachedSessionStore{
		SessionStore: store,
		cache:        sessionCache,
		now:          clock,
		log:          logger.WithModule("session-cache"),
	}
}

func (s *cachedSessionStore) FindByRotationToken(ctx context.Context, token string) (*models.Session, error) {
	cached, err := s.cache.Get(ctx, token)
	switch {
	case err == nil:
		return cached, nil
	case !errors.Is(err, errSessionCacheMiss):
		s.log.Warn("session cache read failed", zap.Error(err))
	}

	session, err := s.SessionStore.FindByRotationToken(ctx, token)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, session)
	return session, nil
}

func (s *cachedSessionStore) Admit(ctx context.Context, candidate *models.Session, capacity int) (*models.Session, []models.Session, error) {
	stored, evicted, err := s.SessionStore.Admit(ctx, candidate, capacity)
	if err != nil {
		return nil, nil, err
	}
	tokens := make([]string, 0, len(evicted))
	for _, victim := range evicted {
		tokens = append(tokens, victim.RefreshToken)
	}
	s.forget(ctx, tokens...)
	return stored, evicted, nil
}

func (s *cachedSessionStore) Rotate(ctx context.Context, presented string, next Rotation) (*models.Session, error) {
	s.forget(ctx, presented)
	rotated, err := s.SessionStore.Rotate(ctx, presented, next)
	if err != nil {
		return nil, err
	}
	s.remember(ctx, rotated)
	return rotated, nil
}

func (s *cachedSessionStore) Delete(ctx context.Context, session *models.Session) error {
	if session != nil {
		s.forget(ctx, session.RefreshToken)
	}
	return s.SessionStore.Delete(ctx, session)
}

func (s *cachedSessionStore) DeleteAllOf(ctx context.Context, ownerID string) (int64, error) {
	sessions, err := s.SessionStore.SessionsOf(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	removed, err := s.SessionStore.DeleteAllOf(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	tokens := make([]string, 0, len(sessions))
	for _, session := range sessions {
		tokens = append(tokens, session.RefreshToken)
	}
	s.forget(ctx, tokens...)
	return removed, nil
}

func (s *cachedSessionStore) remember(ctx context.Context, session *models.Session) {
	ttl := session.RefreshExpiresAt.Sub(s.now())
	if err := s.cache.Set(ctx, session, ttl); err != nil {
		s.log.Warn("session cache write failed", zap.String("user_id", session.UserID), zap.Error(err))
	}
}

func (s *cachedSessionStore) forget(ctx context.Context, tokens ...string) {
	if len(tokens) == 0 {
		return
	}
	if err := s.cache.Delete(ctx, tokens...); err != nil {
		s.log.Warn("session cache purge failed", zap.Error(err))
	}
}
