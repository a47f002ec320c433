package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"identity-provider/backend/internal/session/domain"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests. Rotate holds the lock for
// the whole swap, matching the transactional behavior of the Postgres implementation.
type MemoryRepository struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
	refresh  map[string]*domain.RefreshRecord
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		sessions: make(map[string]*domain.Session),
		refresh:  make(map[string]*domain.RefreshRecord),
	}
}

func (m *MemoryRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.sessions[s.ID] = &c
	return nil
}

func (m *MemoryRepository) CreateRefresh(ctx context.Context, r *domain.RefreshRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	m.refresh[r.ID] = &c
	return nil
}

func (m *MemoryRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[id]; s != nil {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryRepository) GetSessionByAccessJti(ctx context.Context, jti string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccessJti == jti {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) GetRefreshByJti(ctx context.Context, jti string) (*domain.RefreshRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.refresh {
		if r.RefreshJti == jti {
			c := *r
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) ListActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Session
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.LiveAt(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s := m.sessions[id]; s != nil && !s.Revoked {
		s.Revoked = true
		s.RevokedAt = &at
	}
	return nil
}

func (m *MemoryRepository) RevokeRefresh(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revokeRefreshLocked(id, at), nil
}

func (m *MemoryRepository) RevokeRefreshBySession(ctx context.Context, sessionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, r := range m.refresh {
		if r.SessionID == sessionID {
			m.revokeRefreshLocked(id, at)
		}
	}
	return nil
}

func (m *MemoryRepository) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccountID == accountID && !s.Revoked {
			s.Revoked = true
			s.RevokedAt = &at
		}
	}
	for id, r := range m.refresh {
		if r.AccountID == accountID {
			m.revokeRefreshLocked(id, at)
		}
	}
	return nil
}

func (m *MemoryRepository) TouchRefresh(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r := m.refresh[id]; r != nil {
		r.LastUsedAt = &at
	}
	return nil
}

func (m *MemoryRepository) Rotate(ctx context.Context, oldRefreshID string, revokeOld bool, at time.Time, s *domain.Session, r *domain.RefreshRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if revokeOld {
		if !m.revokeRefreshLocked(oldRefreshID, at) {
			return false, nil
		}
		m.refresh[oldRefreshID].RotatedAt = &at
	}
	sc, rc := *s, *r
	m.sessions[s.ID] = &sc
	m.refresh[r.ID] = &rc
	return true, nil
}

func (m *MemoryRepository) DeleteForAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, id)
		}
	}
	for id, r := range m.refresh {
		if r.AccountID == accountID {
			delete(m.refresh, id)
		}
	}
	return nil
}

func (m *MemoryRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, s := range m.sessions {
		if s.ExpiresAt.Before(cutoff) || (s.RevokedAt != nil && s.RevokedAt.Before(cutoff)) {
			delete(m.sessions, id)
			n++
		}
	}
	for id, r := range m.refresh {
		if r.ExpiresAt.Before(cutoff) || (r.RevokedAt != nil && r.RevokedAt.Before(cutoff)) {
			delete(m.refresh, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) revokeRefreshLocked(id string, at time.Time) bool {
	r := m.refresh[id]
	if r == nil || r.Revoked {
		return false
	}
	r.Revoked = true
	r.RevokedAt = &at
	return true
}
