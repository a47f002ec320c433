package repository

import (
	"context"
	"time"

	"identity-provider/backend/internal/session/domain"
)

// Repository defines persistence for sessions and refresh records. Lookups return (nil, nil)
// when no row matches. Revocations are idempotent.
type Repository interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	CreateRefresh(ctx context.Context, r *domain.RefreshRecord) error
	GetSessionByID(ctx context.Context, id string) (*domain.Session, error)
	GetSessionByAccessJti(ctx context.Context, jti string) (*domain.Session, error)
	GetRefreshByJti(ctx context.Context, jti string) (*domain.RefreshRecord, error)
	// ListActiveSessions returns unrevoked sessions of accountID that expire after now, newest first.
	ListActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*domain.Session, error)
	RevokeSession(ctx context.Context, id string, at time.Time) error
	// RevokeRefresh revokes the record if it is not revoked yet. Returns true when this call did it.
	RevokeRefresh(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeRefreshBySession(ctx context.Context, sessionID string, at time.Time) error
	RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) error
	TouchRefresh(ctx context.Context, id string, at time.Time) error
	// Rotate records the new session and refresh record in one transaction. With revokeOld, the
	// old refresh record is revoked and marked rotated first by compare-and-swap; if another
	// caller already revoked it, nothing is written and Rotate returns false.
	Rotate(ctx context.Context, oldRefreshID string, revokeOld bool, at time.Time, s *domain.Session, r *domain.RefreshRecord) (bool, error)
	DeleteForAccount(ctx context.Context, accountID string) error
	// PurgeExpired hard-deletes rows that expired or were revoked before cutoff. Returns rows removed.
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
