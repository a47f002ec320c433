package repository

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests.
type MemoryRepository struct {
	mu     sync.Mutex
	roles  map[string]string
	grants map[string]map[string]struct{}
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{roles: make(map[string]string), grants: make(map[string]map[string]struct{})}
}

func (m *MemoryRepository) RoleNames(ctx context.Context, accountID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for name := range m.grants[accountID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryRepository) EnsureRole(ctx context.Context, name, description string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[name]; !ok {
		m.roles[name] = description
	}
	return nil
}

func (m *MemoryRepository) Assign(ctx context.Context, accountID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[accountID] == nil {
		m.grants[accountID] = make(map[string]struct{})
	}
	m.grants[accountID][role] = struct{}{}
	return nil
}

func (m *MemoryRepository) Remove(ctx context.Context, accountID, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants[accountID], role)
	return nil
}

func (m *MemoryRepository) RemoveAllForAccount(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.grants, accountID)
	return nil
}
