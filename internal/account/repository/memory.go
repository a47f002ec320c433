package repository

import (
	"context"
	"strings"
	"sync"
	"time"

	"identity-provider/backend/internal/account/domain"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests. It copies accounts on the
// way in and out.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*domain.Account)}
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.accounts[id]), nil
}

func (m *MemoryRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.findLocked(identifier)), nil
}

func (m *MemoryRepository) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(identifier) != nil, nil
}

func (m *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findLocked(a.Username) != nil || (a.Email != "" && m.findLocked(a.Email) != nil) {
		return ErrDuplicateIdentifier
	}
	m.accounts[a.ID] = clone(a)
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, a *domain.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[a.ID]; ok {
		m.accounts[a.ID] = clone(a)
	}
	return nil
}

func (m *MemoryRepository) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, at time.Time) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := m.accounts[id]
	if a == nil {
		return nil, nil
	}
	a.FailedAttempts++
	if !a.Locked && a.FailedAttempts >= maxAttempts {
		a.Locked = true
		until := lockUntil
		a.LockExpiresAt = &until
	}
	a.UpdatedAt = at
	return clone(a), nil
}

func (m *MemoryRepository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		a.FailedAttempts = 0
		a.Locked = false
		a.LockExpiresAt = nil
		a.LastLoginAt = &at
		a.UpdatedAt = at
	}
	return nil
}

func (m *MemoryRepository) ClearExpiredLock(ctx context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil && a.LockExpired(now) {
		a.FailedAttempts = 0
		a.Locked = false
		a.LockExpiresAt = nil
		a.UpdatedAt = now
	}
	return nil
}

func (m *MemoryRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		a.PasswordHash = hash
		a.UpdatedAt = at
	}
	return nil
}

func (m *MemoryRepository) SetMFA(ctx context.Context, id string, enabled bool, secret string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		a.MFAEnabled = enabled
		a.MFASecret = secret
		a.UpdatedAt = at
	}
	return nil
}

func (m *MemoryRepository) SetEnabled(ctx context.Context, id string, enabled bool, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		a.Enabled = enabled
		a.UpdatedAt = at
	}
	return nil
}

func (m *MemoryRepository) SetLocked(ctx context.Context, id string, locked bool, until *time.Time, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.accounts[id]; a != nil {
		a.Locked = locked
		a.LockExpiresAt = copyTime(until)
		if !locked {
			a.FailedAttempts = 0
			a.LockExpiresAt = nil
		}
		a.UpdatedAt = at
	}
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.accounts, id)
	return nil
}

func (m *MemoryRepository) findLocked(identifier string) *domain.Account {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return nil
	}
	var byEmail *domain.Account
	for _, a := range m.accounts {
		if strings.ToLower(a.Username) == ident {
			return a
		}
		if a.Email != "" && strings.ToLower(a.Email) == ident {
			byEmail = a
		}
	}
	return byEmail
}

func clone(a *domain.Account) *domain.Account {
	if a == nil {
		return nil
	}
	c := *a
	c.LockExpiresAt = copyTime(a.LockExpiresAt)
	c.LastLoginAt = copyTime(a.LastLoginAt)
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
