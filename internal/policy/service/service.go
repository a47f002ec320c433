// Package service manages stored authorization policies and reloads the engine after changes.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-provider/backend/internal/audit"
	"identity-provider/backend/internal/policy/domain"
	"identity-provider/backend/internal/policy/engine"
	"identity-provider/backend/internal/policy/repository"
)

var (
	ErrPolicyNotFound = errors.New("policy not found")
	ErrPolicyExists   = errors.New("policy name already in use")
	ErrInvalidPolicy  = engine.ErrInvalidPolicy
)

// Reloader recompiles the active rules. *engine.OPAAuthorizer satisfies it.
type Reloader interface {
	Reload(ctx context.Context) error
}

// Service validates and stores policies.
type Service struct {
	repo     repository.Repository
	reloader Reloader
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

// WithAuditLogger records policy changes.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// NewService returns a policy Service. reloader may be nil.
func NewService(repo repository.Repository, reloader Reloader, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		reloader: reloader,
		now:      time.Now,
		audit:    audit.Nop{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates rules and stores a new policy.
func (s *Service) Create(ctx context.Context, name, rules string, enabled bool) (*domain.Policy, error) {
	now := s.now().UTC()
	p := &domain.Policy{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(name),
		Rules:     rules,
		Enabled:   enabled,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, ErrPolicyExists
		}
		return nil, err
	}
	s.changed(ctx, audit.ActionPolicyCreated, p.ID)
	return p, nil
}

// Update replaces the name, rules, and enabled flag of the policy with id.
func (s *Service) Update(ctx context.Context, id, name, rules string, enabled bool) (*domain.Policy, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Name = strings.TrimSpace(name)
	p.Rules = rules
	p.Enabled = enabled
	p.UpdatedAt = s.now().UTC()
	if err := s.check(ctx, p); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateName) {
			return nil, ErrPolicyExists
		}
		return nil, err
	}
	s.changed(ctx, audit.ActionPolicyUpdated, p.ID)
	return p, nil
}

// Delete removes the policy with id.
func (s *Service) Delete(ctx context.Context, id string) error {
	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, p.ID); err != nil {
		return err
	}
	s.changed(ctx, audit.ActionPolicyDeleted, p.ID)
	return nil
}

// Get returns the policy with id.
func (s *Service) Get(ctx context.Context, id string) (*domain.Policy, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

// List returns every stored policy.
func (s *Service) List(ctx context.Context) ([]*domain.Policy, error) {
	return s.repo.List(ctx)
}

func (s *Service) check(ctx context.Context, p *domain.Policy) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return engine.Validate(ctx, p.Rules)
}

// changed audits the change and reloads the engine. A failed reload is logged; the stored
// policy already compiled on its own, and the worker's next reload will pick it up.
func (s *Service) changed(ctx context.Context, action, policyID string) {
	s.audit.LogEvent(ctx, "", action, audit.ResourcePolicy, policyID)
	s.log.Info("authorization policy changed", zap.String("action", action), zap.String("policy_id", policyID))
	if s.reloader == nil {
		return
	}
	if err := s.reloader.Reload(ctx); err != nil {
		s.log.Error("reload authorization policies", zap.Error(err))
	}
}
