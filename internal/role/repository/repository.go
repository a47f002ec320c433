package repository

import "context"

// Repository defines persistence for role names and their assignment to accounts.
type Repository interface {
	// RoleNames returns the role names granted to accountID, sorted. Empty when none.
	RoleNames(ctx context.Context, accountID string) ([]string, error)
	// EnsureRole creates the role when missing. Existing roles are left as they are.
	EnsureRole(ctx context.Context, name, description string) error
	// Assign grants role to accountID; granting an already held role is a no-op.
	Assign(ctx context.Context, accountID, role string) error
	Remove(ctx context.Context, accountID, role string) error
	RemoveAllForAccount(ctx context.Context, accountID string) error
}
