package auth

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/charlesng35/shopapp/internal/models"
)

// MemorySessionStore keeps sessions in process memory. It suits tests and
// single-instance deployments without a database.
type MemorySessionStore struct {
	mu        sync.Mutex
	now       func() time.Time
	nextID    uint64
	byID      map[uint64]*models.Session
	byOwner   map[string][]uint64
	byRefresh map[string]uint64
}

// NewMemorySessionStore builds an empty store. A nil clock uses time.Now.
func NewMemorySessionStore(clock func() time.Time) *MemorySessionStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemorySessionStore{
		now:       clock,
		byID:      make(map[uint64]*models.Session),
		byOwner:   make(map[string][]uint64),
		byRefresh: make(map[string]uint64),
	}
}

func (s *MemorySessionStore) SessionsOf(_ context.Context, ownerID string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ownerSessionsLocked(ownerID), nil
}

func (s *MemorySessionStore) Admit(_ context.Context, candidate *models.Session, capacity int) (*models.Session, []models.Session, error) {
	if err := validateCandidate(candidate, capacity); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byRefresh[candidate.RefreshToken]; taken {
		return nil, nil, ErrRotationTokenInUse
	}

	current := s.ownerSessionsLocked(candidate.UserID)
	var evicted []models.Session
	for len(current) >= capacity {
		idx := selectEvictionVictim(current)
		victim := current[idx]
		s.removeLocked(victim.ID)
		evicted = append(evicted, victim)
		current = append(current[:idx], current[idx+1:]...)
	}

	now := s.now()
	s.nextID++
	record := *candidate
	record.ID = s.nextID
	if record.TokenType == "" {
		record.TokenType = models.TokenTypeBearer
	}
	record.CreatedAt = now
	record.UpdatedAt = now

	s.byID[record.ID] = &record
	s.byOwner[record.UserID] = append(s.byOwner[record.UserID], record.ID)
	s.byRefresh[record.RefreshToken] = record.ID

	stored := record
	return &stored, evicted, nil
}

func (s *MemorySessionStore) FindByRotationToken(_ context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[token]
	if !ok || token == "" {
		return nil, ErrSessionNotFound
	}
	found := *s.byID[id]
	return &found, nil
}

func (s *MemorySessionStore) FindByBearer(_ context.Context, token string) (*models.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var newest *models.Session
	for _, session := range s.byID {
		if session.AccessToken == token && (newest == nil || session.ID > newest.ID) {
			newest = session
		}
	}
	if newest == nil {
		return nil, ErrSessionNotFound
	}
	found := *newest
	return &found, nil
}

func (s *MemorySessionStore) Rotate(_ context.Context, presented string, next Rotation) (*models.Session, error) {
	if next.AccessToken == "" || next.RefreshToken == "" {
		return nil, ErrInvalidSession
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byRefresh[presented]
	if !ok || presented == "" {
		return nil, ErrSessionNotFound
	}
	if next.RefreshToken != presented {
		if _, taken := s.byRefresh[next.RefreshToken]; taken {
			return nil, ErrRotationTokenInUse
		}
	}

	session := s.byID[id]
	delete(s.byRefresh, presented)
	session.AccessToken = next.AccessToken
	session.AccessExpiresAt = next.AccessExpiresAt
	session.RefreshToken = next.RefreshToken
	session.RefreshExpiresAt = next.RefreshExpiresAt
	session.UpdatedAt = s.now()
	s.byRefresh[session.RefreshToken] = id

	rotated := *session
	return &rotated, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, session *models.Session) error {
	if session == nil {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.byID[session.ID]
	if !ok || current.RefreshToken != session.RefreshToken {
		return ErrSessionNotFound
	}
	s.removeLocked(session.ID)
	return nil
}

func (s *MemorySessionStore) DeleteAllOf(_ context.Context, ownerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]uint64(nil), s.byOwner[ownerID]...)
	for _, id := range ids {
		s.removeLocked(id)
	}
	return int64(len(ids)), nil
}

func (s *MemorySessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int64
	for id, session := range s.byID {
		if session.RotationExpired(now) {
			s.removeLocked(id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemorySessionStore) ownerSessionsLocked(ownerID string) []models.Session {
	ids := s.byOwner[ownerID]
	out := make([]models.Session, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemorySessionStore) removeLocked(id uint64) {
	session, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	delete(s.byRefresh, session.RefreshToken)

	ids := s.byOwner[session.UserID]
	for i, candidate := range ids {
		if candidate == id {
			ids = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(ids) == 0 {
		delete(s.byOwner, session.UserID)
	} else {
		s.byOwner[session.UserID] = ids
	}
}
