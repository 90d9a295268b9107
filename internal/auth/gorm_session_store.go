package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/charlesng35/shopapp/internal/models"
)

// GormSessionStore persists sessions in the relational database.
type GormSessionStore struct {
	db    *gorm.DB
	locks *ownerLocks
	now   func() time.Time
}

// NewGormSessionStore constructs a store backed by db. A nil clock uses time.Now.
func NewGormSessionStore(db *gorm.DB, clock func() time.Time) (*GormSessionStore, error) {
	if db == nil {
		return nil, errors.New("session store: db is required")
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormSessionStore{
		db:    db,
		locks: newOwnerLocks(),
		now:   clock,
	}, nil
}

func (s *GormSessionStore) SessionsOf(ctx context.Context, ownerID string) ([]models.Session, error) {
	var sessions []models.Session
	err := s.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("id ASC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("session store: list sessions: %w", err)
	}
	return sessions, nil
}

// Admit serialises admissions of one owner with a process-local lock and,
// across processes, by row-locking the owner's users row inside the
// transaction. SQLite ignores the row lock and serialises writers itself.
func (s *GormSessionStore) Admit(ctx context.Context, candidate *models.Session, capacity int) (*models.Session, []models.Session, error) {
	if err := validateCandidate(candidate, capacity); err != nil {
		return nil, nil, err
	}

	unlock := s.locks.lock(candidate.UserID)
	defer unlock()

	record := *candidate
	record.ID = 0
	if record.TokenType == "" {
		record.TokenType = models.TokenTypeBearer
	}
	now := s.now()
	record.CreatedAt = now
	record.UpdatedAt = now

	var evicted []models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockOwnerRow(tx, record.UserID); err != nil {
			return err
		}

		var current []models.Session
		if err := tx.Where("user_id = ?", record.UserID).Order("id ASC").Find(&current).Error; err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		for len(current) >= capacity {
			idx := selectEvictionVictim(current)
			victim := current[idx]
			if err := tx.Where("id = ?", victim.ID).Delete(&models.Session{}).Error; err != nil {
				return fmt.Errorf("evict session: %w", err)
			}
			evicted = append(evicted, victim)
			current = append(current[:idx], current[idx+1:]...)
		}

		var taken int64
		if err := tx.Model(&models.Session{}).Where("refresh_token = ?", record.RefreshToken).Count(&taken).Error; err != nil {
			return fmt.Errorf("check rotation token: %w", err)
		}
		if taken > 0 {
			return ErrRotationTokenInUse
		}

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrRotationTokenInUse) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("session store: admit: %w", err)
	}

	return &record, evicted, nil
}

func lockOwnerRow(tx *gorm.DB, ownerID string) error {
	var owner models.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id = ?", ownerID).
		Take(&owner).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("lock owner: %w", err)
	}
	return nil
}

func (s *GormSessionStore) FindByRotationToken(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return takeSession(s.db.WithContext(ctx).Where("refresh_token = ?", token))
}

func (s *GormSessionStore) FindByBearer(ctx context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return takeSession(s.db.WithContext(ctx).Where("access_token = ?", token).Order("id DESC"))
}

func takeSession(query *gorm.DB) (*models.Session, error) {
	var session models.Session
	err := query.Take(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: find session: %w", err)
	}
	return &session, nil
}

// Rotate is a compare-and-swap keyed on the presented rotation token; the
// UPDATE only matches while the row still carries it.
func (s *GormSessionStore) Rotate(ctx context.Context, presented string, next Rotation) (*models.Session, error) {
	if presented == "" {
		return nil, ErrSessionNotFound
	}
	if next.AccessToken == "" || next.RefreshToken == "" {
		return nil, ErrInvalidSession
	}

	var rotated models.Session
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Session{}).
			Where("refresh_token = ?", presented).
			Updates(map[string]any{
				"access_token":       next.AccessToken,
				"access_expires_at":  next.AccessExpiresAt,
				"refresh_token":      next.RefreshToken,
				"refresh_expires_at": next.RefreshExpiresAt,
				"updated_at":         s.now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrSessionNotFound
		}
		return tx.Where("refresh_token = ?", next.RefreshToken).Take(&rotated).Error
	})
	if errors.Is(err, ErrSessionNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session store: rotate: %w", err)
	}
	return &rotated, nil
}

func (s *GormSessionStore) Delete(ctx context.Context, session *models.Session) error {
	if session == nil {
		return ErrSessionNotFound
	}

	result := s.db.WithContext(ctx).
		Where("id = ? AND refresh_token = ?", session.ID, session.RefreshToken).
		Delete(&models.Session{})
	if result.Error != nil {
		return fmt.Errorf("session store: delete session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *GormSessionStore) DeleteAllOf(ctx context.Context, ownerID string) (int64, error) {
	unlock := s.locks.lock(ownerID)
	defer unlock()

	result := s.db.WithContext(ctx).Where("user_id = ?", ownerID).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session store: delete sessions of owner: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormSessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("refresh_expires_at < ?", now).Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session store: delete expired sessions: %w", result.Error)
	}
	return result.RowsAffected, nil
}
