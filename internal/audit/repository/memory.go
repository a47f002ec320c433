package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"identity-provider/backend/internal/audit/domain"
)

// MemoryRepository is a mutex-guarded in-process Repository for tests.
type MemoryRepository struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.entries = append(m.entries, &cp)
	return nil
}

// ListByAccount returns entries newest first; an empty accountID lists every entry.
func (m *MemoryRepository) ListByAccount(ctx context.Context, accountID string, limit, offset uint64) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.AuditLog
	for _, e := range m.entries {
		if accountID == "" || e.AccountID == accountID {
			cp := *e
			matched = append(matched, &cp)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	if offset >= uint64(len(matched)) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < uint64(len(matched)) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	var removed int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}
