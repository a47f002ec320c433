package repository

import (
	"context"
	"errors"
	"sync"
	"time"

	"identity-provider/backend/internal/passwordreset/domain"
)

// PasswordWriter is the account store method the in-memory repository calls on consumption.
type PasswordWriter interface {
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
}

// MemoryRepository is a mutex-guarded in-process Repository for tests.
type MemoryRepository struct {
	mu       sync.Mutex
	tokens   map[string]*domain.ResetToken
	accounts PasswordWriter
}

// NewMemoryRepository returns an empty MemoryRepository that writes password changes to accounts.
func NewMemoryRepository(accounts PasswordWriter) *MemoryRepository {
	return &MemoryRepository{tokens: make(map[string]*domain.ResetToken), accounts: accounts}
}

func (m *MemoryRepository) Create(ctx context.Context, t *domain.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.TokenHash == t.TokenHash {
			return errors.New("insert reset token: duplicate hash")
		}
	}
	c := *t
	m.tokens[t.ID] = &c
	return nil
}

func (m *MemoryRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			c := *t
			return &c, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.AccountID == accountID && !t.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryRepository) ConsumeAndUpdatePassword(ctx context.Context, tokenID, accountID, passwordHash string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.tokens[tokenID]
	if t == nil || t.Used {
		return false, nil
	}
	if err := m.accounts.UpdatePasswordHash(ctx, accountID, passwordHash, at); err != nil {
		return false, err
	}
	t.Used = true
	t.UsedAt = &at
	return true, nil
}

func (m *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, t := range m.tokens {
		if t.ExpiresAt.Before(cutoff) || (t.Used && t.UsedAt != nil && t.UsedAt.Before(cutoff)) {
			delete(m.tokens, id)
			n++
		}
	}
	return n, nil
}
