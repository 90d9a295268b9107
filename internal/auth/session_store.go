package auth

import (
	"context"
	"sync"
	"time"

	"github.com/charlesng35/shopapp/internal/models"
)

// Rotation carries the replacement credentials written by SessionStore.Rotate.
type Rotation struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionStore persists sessions and enforces the per-owner capacity.
// Implementations return copies; callers never share records with the store.
type SessionStore interface {
	// SessionsOf lists the owner's sessions, oldest first.
	SessionsOf(ctx context.Context, ownerID string) ([]models.Session, error)
	// Admit inserts candidate, first evicting sessions of the same owner
	// while the owner holds capacity or more. Check, evict and insert are
	// atomic with respect to other calls for the same owner.
	Admit(ctx context.Context, candidate *models.Session, capacity int) (stored *models.Session, evicted []models.Session, err error)
	FindByRotationToken(ctx context.Context, token string) (*models.Session, error)
	// FindByBearer returns the newest session carrying token.
	FindByBearer(ctx context.Context, token string) (*models.Session, error)
	// Rotate swaps credentials on the session currently holding presented.
	// It fails with ErrSessionNotFound when another caller rotated first.
	Rotate(ctx context.Context, presented string, next Rotation) (*models.Session, error)
	// Delete removes session if it still carries the same rotation token.
	Delete(ctx context.Context, session *models.Session) error
	DeleteAllOf(ctx context.Context, ownerID string) (int64, error)
	// DeleteExpired removes every session whose rotation window closed before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// selectEvictionVictim picks the session to drop from an owner's sessions
// ordered oldest first: the oldest non-mobile one, or the oldest overall
// when every session is mobile. It returns -1 for an empty slice.
func selectEvictionVictim(sessions []models.Session) int {
	if len(sessions) == 0 {
		return -1
	}
	for i := range sessions {
		if !sessions[i].IsMobile() {
			return i
		}
	}
	return 0
}

func validateCandidate(candidate *models.Session, capacity int) error {
	if candidate == nil || candidate.UserID == "" || candidate.AccessToken == "" || candidate.RefreshToken == "" {
		return ErrInvalidSession
	}
	if capacity < 1 {
		return ErrInvalidSession
	}
	return nil
}

// ownerLocks hands out one mutex per owner id and forgets it once unused.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*ownerLock
}

type ownerLock struct {
	mu   sync.Mutex
	refs int
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*ownerLock)}
}

// lock blocks until ownerID is free and returns the matching unlock func.
func (l *ownerLocks) lock(ownerID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[ownerID]
	if !ok {
		entry = &ownerLock{}
		l.locks[ownerID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, ownerID)
		}
		l.mu.Unlock()
	}
}
