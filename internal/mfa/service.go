package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	accountdomain "identity-provider/backend/internal/account/domain"
	accountrepo "identity-provider/backend/internal/account/repository"
	"identity-provider/backend/internal/audit"
)

var (
	// ErrMFANotEnabled is returned when the account has no TOTP secret.
	ErrMFANotEnabled = errors.New("mfa not enabled for account")
	// ErrInvalidMFACode is returned when a submitted code does not verify.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrMFAUnavailable is returned by Enroll when MFA is switched off by configuration.
	ErrMFAUnavailable = errors.New("mfa is not available")
	// ErrAccountNotFound is returned when the account does not exist.
	ErrAccountNotFound = errors.New("account not found")
)

// Enrollment is the result of enrolling an account. Secret is shown once for manual entry; URI
// is rendered as a QR code by the client.
type Enrollment struct {
	Secret string
	URI    string
}

// Service enrolls, verifies and disables TOTP for accounts. Only the secret is persisted.
type Service struct {
	accounts accountrepo.Repository
	issuer   string
	skew     uint
	enabled  bool
	now      func() time.Time
	audit    audit.AuditLogger
	log      *zap.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithSkew sets how many adjacent periods on each side of now are accepted.
func WithSkew(skew uint) Option { return func(s *Service) { s.skew = skew } }

// WithEnabled switches enrollment on or off.
func WithEnabled(enabled bool) Option { return func(s *Service) { s.enabled = enabled } }

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditLogger records enrollment changes.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
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

// NewService returns a TOTP service. issuer appears in authenticator apps next to the label.
func NewService(accounts accountrepo.Repository, issuer string, opts ...Option) *Service {
	s := &Service{
		accounts: accounts,
		issuer:   issuer,
		skew:     1,
		enabled:  true,
		now:      time.Now,
		audit:    audit.Nop{},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether MFA is available.
func (s *Service) Enabled() bool { return s.enabled }

// Enroll generates a fresh secret for accountID, stores it with MFA enabled, and returns the
// secret with its provisioning URI. Enrolling again replaces the previous secret.
func (s *Service) Enroll(ctx context.Context, accountID string) (*Enrollment, error) {
	if !s.enabled {
		return nil, ErrMFAUnavailable
	}
	a, err := s.account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	key, err := GenerateKey(s.issuer, a.Label())
	if err != nil {
		return nil, fmt.Errorf("generate totp key: %w", err)
	}
	if err := s.accounts.SetMFA(ctx, a.ID, true, key.Secret(), s.now().UTC()); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionMFAEnrolled, audit.ResourceMFA, "")
	s.log.Info("mfa enrolled", zap.String("account_id", a.ID))
	return &Enrollment{Secret: key.Secret(), URI: key.URL()}, nil
}

// ProvisioningURI re-derives the URI for an enrolled account.
func (s *Service) ProvisioningURI(ctx context.Context, accountID string) (string, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return "", err
	}
	if !a.MFAEnabled || a.MFASecret == "" {
		return "", ErrMFANotEnabled
	}
	return ProvisioningURI(a.MFASecret, s.issuer, a.Label()), nil
}

// Verify checks code for accountID. Returns ErrMFANotEnabled when the account has no secret.
func (s *Service) Verify(ctx context.Context, accountID, code string) (bool, error) {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return false, err
	}
	return s.VerifyAccount(a, code)
}

// VerifyByIdentifier checks code for the account with the given username or email.
func (s *Service) VerifyByIdentifier(ctx context.Context, identifier, code string) (bool, error) {
	a, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, ErrAccountNotFound
	}
	return s.VerifyAccount(a, code)
}

// VerifyAccount checks code against an already loaded account.
func (s *Service) VerifyAccount(a *accountdomain.Account, code string) (bool, error) {
	if a == nil || !a.MFAEnabled || a.MFASecret == "" {
		return false, ErrMFANotEnabled
	}
	return ValidateCode(code, a.MFASecret, s.now(), s.skew), nil
}

// Disable clears the secret and the enabled flag. Tokens already issued stay valid until they expire.
func (s *Service) Disable(ctx context.Context, accountID string) error {
	a, err := s.account(ctx, accountID)
	if err != nil {
		return err
	}
	if err := s.accounts.SetMFA(ctx, a.ID, false, "", s.now().UTC()); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionMFADisabled, audit.ResourceMFA, "")
	s.log.Info("mfa disabled", zap.String("account_id", a.ID))
	return nil
}

// IsEnabled reports whether the account with the given identifier has MFA turned on. Unknown
// identifiers report false.
func (s *Service) IsEnabled(ctx context.Context, identifier string) (bool, error) {
	a, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil || a == nil {
		return false, err
	}
	return a.MFAEnabled && a.MFASecret != "", nil
}

func (s *Service) account(ctx context.Context, id string) (*accountdomain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrAccountNotFound
	}
	return a, nil
}
