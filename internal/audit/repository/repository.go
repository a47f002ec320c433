package repository

import (
	"context"
	"time"

	"identity-provider/backend/internal/audit/domain"
)

// Repository defines persistence for audit logs.
type Repository interface {
	Create(ctx context.Context, a *domain.AuditLog) error
	ListByAccount(ctx context.Context, accountID string, limit, offset uint64) ([]*domain.AuditLog, error)
	// DeleteBefore removes entries created before cutoff. Returns rows removed.
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
