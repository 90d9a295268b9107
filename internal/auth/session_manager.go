package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesng35/shopapp/internal/models"
	"github.com/charlesng35/shopapp/pkg/logger"
	"github.com/charlesng35/shopapp/pkg/metrics"
)

const (
	// DefaultRefreshTokenTTL is the fallback rotation window.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	// DefaultMaxSessions caps concurrent sessions per user.
	DefaultMaxSessions = 3
)

// SubjectResolver looks up the current identity of a session owner. It
// returns ErrSubjectUnavailable for owners that may no longer hold sessions.
type SubjectResolver interface {
	ResolveSubject(ctx context.Context, userID string) (Subject, error)
}

// SessionManagerConfig describes tunable behaviour for the SessionManager.
type SessionManagerConfig struct {
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	MaxSessions     int
	Clock           func() time.Time
	Resolver        SubjectResolver
}

// SessionManager issues, rotates and invalidates sessions on top of a SessionStore.
type SessionManager struct {
	store       SessionStore
	codec       *TokenCodec
	resolver    SubjectResolver
	accessTTL   time.Duration
	refreshTTL  time.Duration
	maxSessions int
	now         func() time.Time
	log         *zap.Logger
}

// NewSessionManager validates cfg and wires the manager. Zero values fall
// back to defaults; the rotation window must outlast the bearer token.
func NewSessionManager(store SessionStore, codec *TokenCodec, cfg SessionManagerConfig) (*SessionManager, error) {
	if store == nil {
		return nil, errors.New("session manager: store is required")
	}
	if codec == nil {
		return nil, errors.New("session manager: token codec is required")
	}

	accessTTL := cfg.AccessTokenTTL
	if accessTTL == 0 {
		accessTTL = DefaultAccessTokenTTL
	}
	refreshTTL := cfg.RefreshTokenTTL
	if refreshTTL == 0 {
		refreshTTL = DefaultRefreshTokenTTL
	}
	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = DefaultMaxSessions
	}

	if accessTTL < 0 {
		return nil, fmt.Errorf("session manager: access token ttl must be positive, got %s", accessTTL)
	}
	if refreshTTL <= accessTTL {
		return nil, fmt.Errorf("session manager: refresh token ttl (%s) must exceed access token ttl (%s)", refreshTTL, accessTTL)
	}
	if maxSessions < 1 {
		return nil, fmt.Errorf("session manager: max sessions must be at least 1, got %d", maxSessions)
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionManager{
		store:       store,
		codec:       codec,
		resolver:    cfg.Resolver,
		accessTTL:   accessTTL,
		refreshTTL:  refreshTTL,
		maxSessions: maxSessions,
		now:         clock,
		log:         logger.WithModule("sessions"),
	}, nil
}

// SetResolver attaches the identity lookup used during rotation.
func (m *SessionManager) SetResolver(resolver SubjectResolver) {
	m.resolver = resolver
}

// AccessTTL reports the bearer token lifetime.
func (m *SessionManager) AccessTTL() time.Duration {
	return m.accessTTL
}

// MaxSessions reports the per-owner session cap.
func (m *SessionManager) MaxSessions() int {
	return m.maxSessions
}

// Open encodes a bearer token for subject and issues a session carrying it.
func (m *SessionManager) Open(ctx context.Context, subject Subject, device models.DeviceClass) (*models.Session, error) {
	bearer, err := m.codec.Encode(subject, m.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("session manager: encode bearer: %w", err)
	}
	return m.Issue(ctx, subject.ID, bearer, device)
}

// Issue records a new session for ownerID holding bearer, evicting one of
// the owner's sessions when the cap is reached.
func (m *SessionManager) Issue(ctx context.Context, ownerID, bearer string, device models.DeviceClass) (*models.Session, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" || bearer == "" {
		return nil, ErrInvalidSession
	}
	if device != models.DeviceMobile {
		device = models.DeviceOther
	}

	now := m.now()
	candidate := &models.Session{
		UserID:           ownerID,
		AccessToken:      bearer,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     uuid.NewString(),
		RefreshExpiresAt: now.Add(m.refreshTTL),
		TokenType:        models.TokenTypeBearer,
		DeviceClass:      device,
	}

	stored, evicted, err := m.store.Admit(ctx, candidate, m.maxSessions)
	if err != nil {
		return nil, fmt.Errorf("session manager: admit session: %w", err)
	}

	metrics.SessionsIssued.WithLabelValues(string(device)).Inc()
	for _, victim := range evicted {
		metrics.SessionEvictions.WithLabelValues(string(victim.DeviceClass)).Inc()
		m.log.Info("session evicted at capacity",
			zap.String("user_id", ownerID),
			zap.Uint64("session_id", victim.ID),
			zap.String("device", string(victim.DeviceClass)),
		)
	}
	m.log.Debug("session issued",
		zap.String("user_id", ownerID),
		zap.Uint64("session_id", stored.ID),
		zap.String("device", string(device)),
	)

	return stored, nil
}

// Rotate exchanges a rotation token for a fresh bearer token and a fresh
// rotation token. The presented token is single-use. An expired session is
// deleted and reported as ErrRotationExpired.
func (m *SessionManager) Rotate(ctx context.Context, rotationToken string) (*models.Session, error) {
	rotationToken = strings.TrimSpace(rotationToken)
	session, err := m.store.FindByRotationToken(ctx, rotationToken)
	if errors.Is(err, ErrSessionNotFound) {
		metrics.SessionRotations.WithLabelValues("not_found").Inc()
		return nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.SessionRotations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("session manager: find session: %w", err)
	}

	now := m.now()
	if session.RotationExpired(now) {
		if err := m.store.Delete(ctx, session); err != nil && !errors.Is(err, ErrSessionNotFound) {
			metrics.SessionRotations.WithLabelValues("error").Inc()
			return nil, fmt.Errorf("session manager: delete expired session: %w", err)
		}
		metrics.SessionRotations.WithLabelValues("expired").Inc()
		return nil, ErrRotationExpired
	}

	subject, err := m.resolveSubject(ctx, session.UserID)
	if errors.Is(err, ErrSubjectUnavailable) {
		if err := m.store.Delete(ctx, session); err != nil && !errors.Is(err, ErrSessionNotFound) {
			m.log.Warn("failed to drop session of unavailable owner", zap.String("user_id", session.UserID), zap.Error(err))
		}
		metrics.SessionRotations.WithLabelValues("not_found").Inc()
		return nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.SessionRotations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("session manager: resolve subject: %w", err)
	}

	bearer, err := m.codec.Encode(subject, m.accessTTL)
	if err != nil {
		metrics.SessionRotations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("session manager: encode bearer: %w", err)
	}

	rotated, err := m.store.Rotate(ctx, rotationToken, Rotation{
		AccessToken:      bearer,
		AccessExpiresAt:  now.Add(m.accessTTL),
		RefreshToken:     uuid.NewString(),
		RefreshExpiresAt: now.Add(m.refreshTTL),
	})
	if errors.Is(err, ErrSessionNotFound) {
		metrics.SessionRotations.WithLabelValues("not_found").Inc()
		return nil, ErrSessionNotFound
	}
	if err != nil {
		metrics.SessionRotations.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("session manager: rotate session: %w", err)
	}

	metrics.SessionRotations.WithLabelValues("success").Inc()
	m.log.Debug("session rotated", zap.String("user_id", rotated.UserID), zap.Uint64("session_id", rotated.ID))
	return rotated, nil
}

func (m *SessionManager) resolveSubject(ctx context.Context, userID string) (Subject, error) {
	if m.resolver == nil {
		return Subject{ID: userID}, nil
	}
	subject, err := m.resolver.ResolveSubject(ctx, userID)
	if err != nil {
		return Subject{}, err
	}
	if subject.ID == "" {
		subject.ID = userID
	}
	return subject, nil
}

// InvalidateAll removes every session of ownerID. Bearer tokens already
// handed out stay valid until their own expiry.
func (m *SessionManager) InvalidateAll(ctx context.Context, ownerID string) (int64, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return 0, ErrInvalidSession
	}

	removed, err := m.store.DeleteAllOf(ctx, ownerID)
	if err != nil {
		return 0, fmt.Errorf("session manager: invalidate sessions: %w", err)
	}

	metrics.SessionInvalidations.Add(float64(removed))
	m.log.Info("sessions invalidated", zap.String("user_id", ownerID), zap.Int64("count", removed))
	return removed, nil
}

// Sessions lists ownerID's sessions, oldest first.
func (m *SessionManager) Sessions(ctx context.Context, ownerID string) ([]models.Session, error) {
	sessions, err := m.store.SessionsOf(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("session manager: list sessions: %w", err)
	}
	return sessions, nil
}

// Revoke ends the session of ownerID that carries bearer.
func (m *SessionManager) Revoke(ctx context.Context, ownerID, bearer string) error {
	session, err := m.store.FindByBearer(ctx, bearer)
	if errors.Is(err, ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("session manager: find session: %w", err)
	}
	if session.UserID != ownerID {
		return ErrSessionNotFound
	}

	if err := m.store.Delete(ctx, session); err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("session manager: delete session: %w", err)
	}
	m.log.Debug("session revoked", zap.String("user_id", ownerID), zap.Uint64("session_id", session.ID))
	return nil
}

// CleanupExpired removes sessions whose rotation window has closed.
func (m *SessionManager) CleanupExpired(ctx context.Context) (int64, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	removed, err := m.store.DeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("session manager: cleanup expired sessions: %w", err)
	}
	return removed, nil
}
