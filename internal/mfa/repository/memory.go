package repository

import (
	"context"
	"sync"
	"time"

	"identity-provider/backend/internal/mfa/domain"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests.
type MemoryRepository struct {
	mu         sync.Mutex
	challenges map[string]*domain.Challenge
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{challenges: make(map[string]*domain.Challenge)}
}

func (m *MemoryRepository) Create(ctx context.Context, c *domain.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.challenges[c.ID] = &cp
	return nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c := m.challenges[id]; c != nil {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryRepository) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.challenges[id]
	if c == nil {
		return nil, nil
	}
	delete(m.challenges, id)
	return c, nil
}

func (m *MemoryRepository) RecordFailure(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.challenges[id]
	if c == nil {
		return 0, nil
	}
	c.Attempts++
	return c.Attempts, nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.challenges, id)
	return nil
}

func (m *MemoryRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.challenges {
		if c.ExpiresAt.Before(cutoff) {
			delete(m.challenges, id)
			n++
		}
	}
	return n, nil
}
