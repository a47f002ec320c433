// Package service issues and redeems single-use password reset tokens.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	accountdomain "identity-provider/backend/internal/account/domain"
	"identity-provider/backend/internal/audit"
	"identity-provider/backend/internal/logger"
	"identity-provider/backend/internal/notify"
	"identity-provider/backend/internal/password"
	"identity-provider/backend/internal/passwordreset/domain"
	"identity-provider/backend/internal/passwordreset/repository"
	"identity-provider/backend/internal/security"
)

var (
	ErrRateLimited      = errors.New("too many password reset requests")
	ErrTokenNotFound    = errors.New("reset token not found")
	ErrTokenAlreadyUsed = errors.New("reset token already used")
	ErrTokenExpired     = errors.New("reset token expired")
)

// RawTokenBytes is the entropy of a reset token before encoding.
const RawTokenBytes = 32

// AccountReader looks up the account a reset belongs to.
type AccountReader interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*accountdomain.Account, error)
}

// SessionRevoker ends every session of an account after its password changes.
type SessionRevoker interface {
	RevokeAllForAccount(ctx context.Context, accountID string) error
}

// Config holds reset tunables.
type Config struct {
	TokenTTL     time.Duration
	MaxPerWindow int
	Window       time.Duration
}

// DefaultConfig returns one-hour tokens, at most three per trailing hour.
func DefaultConfig() Config {
	return Config{TokenTTL: time.Hour, MaxPerWindow: 3, Window: time.Hour}
}

// Service runs the reset flow.
type Service struct {
	accounts AccountReader
	tokens   repository.Repository
	policy   password.Policy
	hasher   *security.Hasher
	notifier notify.Notifier
	sessions SessionRevoker
	cfg      Config
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

// WithAuditLogger records reset requests and completions.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithSessionRevoker revokes the account's sessions after a completed reset.
func WithSessionRevoker(r SessionRevoker) Option {
	return func(s *Service) { s.sessions = r }
}

// NewService returns a reset Service. Zero values in cfg fall back to DefaultConfig.
func NewService(
	accounts AccountReader,
	tokens repository.Repository,
	policy password.Policy,
	hasher *security.Hasher,
	notifier notify.Notifier,
	cfg Config,
	opts ...Option,
) *Service {
	def := DefaultConfig()
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = def.TokenTTL
	}
	if cfg.MaxPerWindow <= 0 {
		cfg.MaxPerWindow = def.MaxPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	s := &Service{
		accounts: accounts,
		tokens:   tokens,
		policy:   policy,
		hasher:   hasher,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
		audit:    audit.Nop{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initiate issues a reset token for the account named by identifier and hands it to the notifier.
// Unknown identifiers succeed silently so callers cannot probe for accounts. A delivery failure is
// logged and not returned.
func (s *Service) Initiate(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil
	}
	a, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return err
	}
	if a == nil {
		s.log.Debug("password reset for unknown identifier", zap.String("identifier", logger.MaskIdentifier(identifier)))
		return nil
	}
	now := s.now().UTC()
	n, err := s.tokens.CountCreatedSince(ctx, a.ID, now.Add(-s.cfg.Window))
	if err != nil {
		return err
	}
	if n >= s.cfg.MaxPerWindow {
		s.log.Info("password reset rate limited", zap.String("account_id", a.ID), zap.Int("recent", n))
		return ErrRateLimited
	}

	raw, err := security.GenerateOpaqueToken(RawTokenBytes)
	if err != nil {
		return fmt.Errorf("generate reset token: %w", err)
	}
	t := &domain.ResetToken{
		ID:        uuid.New().String(),
		AccountID: a.ID,
		TokenHash: security.HashToken(raw),
		ExpiresAt: now.Add(s.cfg.TokenTTL),
		CreatedAt: now,
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordResetRequest, audit.ResourcePassword, "")

	if s.notifier == nil {
		s.log.Warn("password reset issued without a notifier", zap.String("account_id", a.ID))
		return nil
	}
	msg := notify.ResetMessage{
		AccountID: a.ID,
		Username:  a.Username,
		Email:     a.Email,
		Token:     raw,
		ExpiresAt: t.ExpiresAt,
	}
	if err := s.notifier.SendPasswordReset(ctx, msg); err != nil {
		s.log.Warn("password reset delivery failed", zap.String("account_id", a.ID), zap.Error(err))
	}
	return nil
}

// Complete redeems rawToken and sets newPassword. Checks run in order: unknown token, already
// used, expired, password policy. A policy failure leaves the token redeemable.
func (s *Service) Complete(ctx context.Context, rawToken, newPassword string) error {
	if rawToken == "" {
		return ErrTokenNotFound
	}
	t, err := s.tokens.GetByHash(ctx, security.HashToken(rawToken))
	if err != nil {
		return err
	}
	if t == nil {
		return ErrTokenNotFound
	}
	if t.Used {
		return ErrTokenAlreadyUsed
	}
	now := s.now().UTC()
	if t.ExpiredAt(now) {
		return ErrTokenExpired
	}
	a, err := s.accounts.GetByID(ctx, t.AccountID)
	if err != nil {
		return err
	}
	if a == nil {
		return ErrTokenNotFound
	}
	if err := s.policy.Check(newPassword, a.Username, a.Email); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	consumed, err := s.tokens.ConsumeAndUpdatePassword(ctx, t.ID, a.ID, hash, now)
	if err != nil {
		return err
	}
	if !consumed {
		return ErrTokenAlreadyUsed
	}
	if s.sessions != nil {
		if err := s.sessions.RevokeAllForAccount(ctx, a.ID); err != nil {
			s.log.Error("revoke sessions after reset", zap.String("account_id", a.ID), zap.Error(err))
		}
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionPasswordResetDone, audit.ResourcePassword, "")
	s.log.Info("password reset completed", zap.String("account_id", a.ID))
	return nil
}

// PurgeExpired deletes tokens that expired or were used more than retention ago.
func (s *Service) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC().Add(-retention))
}
