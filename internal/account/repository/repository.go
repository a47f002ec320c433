package repository

import (
	"context"
	"errors"
	"time"

	"identity-provider/backend/internal/account/domain"
)

// ErrDuplicateIdentifier is returned by Create when the username or email is already taken.
var ErrDuplicateIdentifier = errors.New("account: username or email already exists")

// Repository defines persistence for accounts. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByIdentifier matches identifier case-insensitively against username, then email.
	GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	ExistsByIdentifier(ctx context.Context, identifier string) (bool, error)
	Create(ctx context.Context, a *domain.Account) error
	Update(ctx context.Context, a *domain.Account) error
	// RegisterFailedLogin atomically increments the failed-attempt counter and, when it reaches
	// maxAttempts, locks the account until lockUntil. Returns the account as updated.
	RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, at time.Time) (*domain.Account, error)
	// RecordSuccessfulLogin resets the counter, clears any lock, and stamps the last login time.
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error
	// ClearExpiredLock unlocks and resets the counter only when an automatic lock expired at or before now.
	ClearExpiredLock(ctx context.Context, id string, now time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	SetMFA(ctx context.Context, id string, enabled bool, secret string, at time.Time) error
	SetEnabled(ctx context.Context, id string, enabled bool, at time.Time) error
	// SetLocked sets or clears the lock. until nil with locked=true is an administrative lock.
	SetLocked(ctx context.Context, id string, locked bool, until *time.Time, at time.Time) error
	Delete(ctx context.Context, id string) error
}
