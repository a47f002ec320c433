package repository

import (
	"context"
	"time"

	"identity-provider/backend/internal/passwordreset/domain"
)

// Repository defines persistence for password reset tokens.
type Repository interface {
	Create(ctx context.Context, t *domain.ResetToken) error
	// GetByHash returns the token with the given hash, or nil if not found.
	GetByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error)
	// CountCreatedSince counts tokens issued to accountID at or after since, used or not.
	CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// ConsumeAndUpdatePassword marks the token used only if it is still unused and, in the same
	// transaction, overwrites the account's password hash. Returns false when another caller
	// consumed the token first; the password is then left untouched.
	ConsumeAndUpdatePassword(ctx context.Context, tokenID, accountID, passwordHash string, at time.Time) (bool, error)
	// DeleteExpired removes tokens that expired, or were used, before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
