// Package service manages accounts: creation under the password policy, password changes,
// enable/disable, administrative locks, role grants and deletion.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-provider/backend/internal/account/domain"
	"identity-provider/backend/internal/account/repository"
	"identity-provider/backend/internal/audit"
	"identity-provider/backend/internal/password"
	"identity-provider/backend/internal/security"
)

var (
	ErrAccountNotFound        = errors.New("account not found")
	ErrAccountExists          = errors.New("username or email already in use")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrInvalidAccount         = errors.New("invalid account")
)

// RoleStore grants and revokes roles.
type RoleStore interface {
	RoleNames(ctx context.Context, accountID string) ([]string, error)
	EnsureRole(ctx context.Context, name, description string) error
	Assign(ctx context.Context, accountID, role string) error
	Remove(ctx context.Context, accountID, role string) error
	RemoveAllForAccount(ctx context.Context, accountID string) error
}

// SessionStore ends or erases an account's sessions. *sessionservice.Ledger satisfies it.
type SessionStore interface {
	RevokeAllForAccount(ctx context.Context, accountID string) error
	DeleteForAccount(ctx context.Context, accountID string) error
}

// CreateInput is the data needed to create an account.
type CreateInput struct {
	Username   string
	Email      string
	Password   string
	GivenName  string
	FamilyName string
	Roles      []string
	Enabled    *bool // nil means enabled
}

// Service manages accounts.
type Service struct {
	accounts repository.Repository
	roles    RoleStore
	sessions SessionStore
	policy   password.Policy
	hasher   *security.Hasher
	now      func() time.Time
	audit    audit.AuditLogger
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithAuditLogger records account changes.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewService returns an account Service.
func NewService(accounts repository.Repository, roles RoleStore, sessions SessionStore, policy password.Policy, hasher *security.Hasher, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		roles:    roles,
		sessions: sessions,
		policy:   policy,
		hasher:   hasher,
		now:      time.Now,
		audit:    audit.Nop{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates in and stores a new account. The password must satisfy the policy; username
// and email must be unused (case-insensitive).
func (s *Service) Create(ctx context.Context, in CreateInput) (*domain.Account, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.TrimSpace(in.Email)
	now := s.now().UTC()
	a := &domain.Account{
		ID:         uuid.New().String(),
		Username:   username,
		Email:      email,
		GivenName:  strings.TrimSpace(in.GivenName),
		FamilyName: strings.TrimSpace(in.FamilyName),
		Enabled:    in.Enabled == nil || *in.Enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	// Validate shape before paying for a hash.
	a.PasswordHash = "pending"
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if err := s.policy.Check(in.Password, username, email); err != nil {
		return nil, err
	}
	for _, ident := range []string{username, email} {
		if ident == "" {
			continue
		}
		exists, err := s.accounts.ExistsByIdentifier(ctx, ident)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, ErrAccountExists
		}
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = hash
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentifier) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	for _, role := range in.Roles {
		if err := s.AssignRole(ctx, a.ID, role); err != nil {
			return nil, err
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionAccountCreated, audit.ResourceAccount, "")
	s.log.Info("account created", zap.String("account_id", a.ID))
	return a, nil
}

// Get returns the account for id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}

// UpdateProfile changes the display names and email. An email already used by another account
// is rejected.
func (s *Service) UpdateProfile(ctx context.Context, id, givenName, familyName, email string) (*domain.Account, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	email = strings.TrimSpace(email)
	if email != "" && !strings.EqualFold(email, a.Email) {
		owner, err := s.accounts.GetByIdentifier(ctx, email)
		if err != nil {
			return nil, err
		}
		if owner != nil && owner.ID != a.ID {
			return nil, ErrAccountExists
		}
	}
	a.GivenName = strings.TrimSpace(givenName)
	a.FamilyName = strings.TrimSpace(familyName)
	a.Email = email
	a.UpdatedAt = s.now().UTC()
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
	if err := s.accounts.Update(ctx, a); err != nil {
		if errors.Is(err, repository.ErrDuplicateIdentifier) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionAccountUpdated, audit.ResourceAccount, "profile")
	return a, nil
}

// ChangePassword replaces the password after verifying the current one and revokes every
// session of the account.
func (s *Service) ChangePassword(ctx context.Context, id, current, next string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Matches(a.PasswordHash, current) {
		return ErrInvalidCurrentPassword
	}
	if err := s.policy.Check(next, a.Username, a.Email); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, a.ID, hash, s.now().UTC()); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForAccount(ctx, a.ID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordChanged, audit.ResourcePassword, "")
	s.log.Info("password changed", zap.String("account_id", a.ID))
	return nil
}

// SetEnabled enables or disables the account. Disabling revokes every session.
func (s *Service) SetEnabled(ctx context.Context, id string, enabled bool) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.accounts.SetEnabled(ctx, a.ID, enabled, s.now().UTC()); err != nil {
		return err
	}
	if !enabled {
		if err := s.sessions.RevokeAllForAccount(ctx, a.ID); err != nil {
			return err
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionAccountUpdated, audit.ResourceAccount, fmt.Sprintf("enabled=%t", enabled))
	return nil
}

// Lock locks the account until until, or indefinitely when until is nil, and revokes its sessions.
func (s *Service) Lock(ctx context.Context, id string, until *time.Time) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.accounts.SetLocked(ctx, a.ID, true, until, s.now().UTC()); err != nil {
		return err
	}
	if err := s.sessions.RevokeAllForAccount(ctx, a.ID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionAccountLocked, audit.ResourceAccount, "admin")
	return nil
}

// Unlock clears any lock and the failed-attempt counter.
func (s *Service) Unlock(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.accounts.SetLocked(ctx, a.ID, false, nil, s.now().UTC()); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionAccountUpdated, audit.ResourceAccount, "unlocked")
	return nil
}

// AssignRole grants role, creating it if needed. Tokens already issued keep their old snapshot.
func (s *Service) AssignRole(ctx context.Context, id, role string) error {
	role = strings.TrimSpace(role)
	if role == "" {
		return fmt.Errorf("%w: empty role", ErrInvalidAccount)
	}
	if err := s.roles.EnsureRole(ctx, role, ""); err != nil {
		return err
	}
	return s.roles.Assign(ctx, id, role)
}

// RemoveRole revokes role from the account.
func (s *Service) RemoveRole(ctx context.Context, id, role string) error {
	return s.roles.Remove(ctx, id, role)
}

// Roles returns the account's role names, sorted.
func (s *Service) Roles(ctx context.Context, id string) ([]string, error) {
	return s.roles.RoleNames(ctx, id)
}

// Delete removes the account together with its ledger rows and role grants.
func (s *Service) Delete(ctx context.Context, id string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.sessions.DeleteForAccount(ctx, a.ID); err != nil {
		return err
	}
	if err := s.roles.RemoveAllForAccount(ctx, a.ID); err != nil {
		return err
	}
	if err := s.accounts.Delete(ctx, a.ID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, "", audit.ActionAccountDeleted, audit.ResourceAccount, a.ID)
	s.log.Info("account deleted", zap.String("account_id", a.ID))
	return nil
}
