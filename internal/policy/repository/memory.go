package repository

import (
	"context"
	"sort"
	"sync"

	"identity-provider/backend/internal/policy/domain"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests.
type MemoryRepository struct {
	mu       sync.Mutex
	policies map[string]*domain.Policy
	err      error
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{policies: make(map[string]*domain.Policy)}
}

// FailWith makes every subsequent call return err; nil restores normal behavior.
func (m *MemoryRepository) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.policies[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRepository) List(ctx context.Context) ([]*domain.Policy, error) {
	return m.list(false)
}

func (m *MemoryRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	return m.list(true)
}

func (m *MemoryRepository) list(enabledOnly bool) ([]*domain.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Policy
	for _, p := range m.policies {
		if enabledOnly && !p.Enabled {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryRepository) Create(ctx context.Context, p *domain.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	for id, existing := range m.policies {
		if id != p.ID && existing.Name == p.Name {
			return ErrDuplicateName
		}
	}
	cp := *p
	m.policies[p.ID] = &cp
	return nil
}

func (m *MemoryRepository) Update(ctx context.Context, p *domain.Policy) error {
	return m.Create(ctx, p)
}

func (m *MemoryRepository) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.policies, id)
	return nil
}
