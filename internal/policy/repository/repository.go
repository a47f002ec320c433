package repository

import (
	"context"
	"errors"

	"identity-provider/backend/internal/policy/domain"
)

// ErrDuplicateName is returned when another policy already uses the name.
var ErrDuplicateName = errors.New("policy name already in use")

// Repository defines persistence for authorization policies.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Policy, error)
	List(ctx context.Context) ([]*domain.Policy, error)
	ListEnabled(ctx context.Context) ([]*domain.Policy, error)
	Create(ctx context.Context, p *domain.Policy) error
	Update(ctx context.Context, p *domain.Policy) error
	Delete(ctx context.Context, id string) error
}
