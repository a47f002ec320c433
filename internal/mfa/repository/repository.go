package repository

import (
	"context"
	"time"

	"identity-provider/backend/internal/mfa/domain"
)

// DefaultChallengeTTL is the default lifetime of a login challenge.
const DefaultChallengeTTL = 5 * time.Minute

// Repository defines persistence for MFA login challenges.
type Repository interface {
	Create(ctx context.Context, c *domain.Challenge) error
	// GetByID returns the challenge for id, or nil if not found.
	GetByID(ctx context.Context, id string) (*domain.Challenge, error)
	// Consume deletes the challenge and returns it. Returns nil when it was already consumed,
	// so only one caller can complete a given challenge.
	Consume(ctx context.Context, id string) (*domain.Challenge, error)
	// RecordFailure increments the attempt counter and returns the new count (0 if not found).
	RecordFailure(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
	// DeleteExpired removes challenges that expired before cutoff. Returns rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
