// Package service implements the authentication engine: credential login with lockout, the
// optional TOTP second step, token issuance, refresh rotation, logout and access-token checks.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	accountdomain "identity-provider/backend/internal/account/domain"
	"identity-provider/backend/internal/audit"
	"identity-provider/backend/internal/logger"
	"identity-provider/backend/internal/mfa"
	mfadomain "identity-provider/backend/internal/mfa/domain"
	"identity-provider/backend/internal/security"
	sessiondomain "identity-provider/backend/internal/session/domain"
	sessionservice "identity-provider/backend/internal/session/service"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDisabled     = errors.New("account is disabled")
	ErrAccountLocked       = errors.New("account is locked")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrInvalidAccessToken  = errors.New("invalid access token")
	// ErrInvalidMFAChallenge is returned when a challenge is unknown, expired, used, or exhausted.
	ErrInvalidMFAChallenge = errors.New("invalid or expired mfa challenge")
	ErrSessionNotFound     = errors.New("session not found")
)

// TokenTypeBearer is the token_type reported with every issued pair.
const TokenTypeBearer = "Bearer"

// DefaultMaxChallengeAttempts bounds wrong codes per MFA challenge before it is discarded.
const DefaultMaxChallengeAttempts = 5

var tracer = otel.Tracer("identity-provider/backend/internal/identity/service")

// AccountRepository is the subset of account persistence the engine needs.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	GetByIdentifier(ctx context.Context, identifier string) (*accountdomain.Account, error)
	RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, at time.Time) (*accountdomain.Account, error)
	RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error
	ClearExpiredLock(ctx context.Context, id string, now time.Time) error
}

// RoleRepository resolves the role snapshot embedded in access tokens.
type RoleRepository interface {
	RoleNames(ctx context.Context, accountID string) ([]string, error)
}

// ChallengeRepository persists pending MFA login challenges.
type ChallengeRepository interface {
	Create(ctx context.Context, c *mfadomain.Challenge) error
	GetByID(ctx context.Context, id string) (*mfadomain.Challenge, error)
	Consume(ctx context.Context, id string) (*mfadomain.Challenge, error)
	RecordFailure(ctx context.Context, id string) (int, error)
	Delete(ctx context.Context, id string) error
}

// CodeVerifier checks a TOTP code for a loaded account. *mfa.Service satisfies it.
type CodeVerifier interface {
	VerifyAccount(a *accountdomain.Account, code string) (bool, error)
}

// Config holds the engine's tunables.
type Config struct {
	AccessTTL            time.Duration
	RefreshTTL           time.Duration
	MaxFailedAttempts    int
	LockoutDuration      time.Duration
	StrictRotation       bool
	MFAEnabled           bool
	ChallengeTTL         time.Duration
	MaxChallengeAttempts int
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		AccessTTL:            15 * time.Minute,
		RefreshTTL:           7 * 24 * time.Hour,
		MaxFailedAttempts:    5,
		LockoutDuration:      15 * time.Minute,
		StrictRotation:       true,
		MFAEnabled:           true,
		ChallengeTTL:         5 * time.Minute,
		MaxChallengeAttempts: DefaultMaxChallengeAttempts,
	}
}

// TokenPair is returned by a successful login, MFA completion, or refresh.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int64 // access token lifetime in seconds
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	SessionID        string
	AccountID        string
}

// LoginResult is the outcome of Login. Exactly one of Tokens or MFARequired is set.
type LoginResult struct {
	Tokens             *TokenPair
	MFARequired        bool
	ChallengeID        string
	ChallengeExpiresAt time.Time
}

// Introspection describes a presented token. Only Active is meaningful when Active is false.
type Introspection struct {
	Active    bool
	Subject   string
	Username  string
	Roles     []string
	TokenType string
	SessionID string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// UserInfo is the profile of the account behind an access token. Roles are read from the role
// store, not from the token.
type UserInfo struct {
	AccountID  string
	Username   string
	Email      string
	GivenName  string
	FamilyName string
	Roles      []string
	MFAEnabled bool
}

// AuthService is the authentication engine. All state lives in the repositories and the ledger.
type AuthService struct {
	accounts   AccountRepository
	roles      RoleRepository
	ledger     *sessionservice.Ledger
	challenges ChallengeRepository
	codes      CodeVerifier
	hasher     *security.Hasher
	tokens     *security.TokenCodec
	cfg        Config
	now        func() time.Time
	audit      audit.AuditLogger
	log        *zap.Logger
}

// Option configures an AuthService.
type Option func(*AuthService)

// WithClock overrides the time source used for lock and challenge expiry.
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithAuditLogger records authentication events.
func WithAuditLogger(a audit.AuditLogger) Option {
	return func(s *AuthService) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithLogger sets the zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMFA enables the second login step. challenges and codes must both be non-nil.
func WithMFA(challenges ChallengeRepository, codes CodeVerifier) Option {
	return func(s *AuthService) {
		s.challenges = challenges
		s.codes = codes
	}
}

// NewAuthService returns an AuthService. Zero TTLs and thresholds in cfg fall back to DefaultConfig.
func NewAuthService(
	accounts AccountRepository,
	roles RoleRepository,
	ledger *sessionservice.Ledger,
	hasher *security.Hasher,
	tokens *security.TokenCodec,
	cfg Config,
	opts ...Option,
) *AuthService {
	def := DefaultConfig()
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = def.AccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = def.RefreshTTL
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = def.MaxFailedAttempts
	}
	if cfg.LockoutDuration <= 0 {
		cfg.LockoutDuration = def.LockoutDuration
	}
	if cfg.ChallengeTTL <= 0 {
		cfg.ChallengeTTL = def.ChallengeTTL
	}
	if cfg.MaxChallengeAttempts <= 0 {
		cfg.MaxChallengeAttempts = def.MaxChallengeAttempts
	}
	s := &AuthService{
		accounts: accounts,
		roles:    roles,
		ledger:   ledger,
		hasher:   hasher,
		tokens:   tokens,
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

// Login authenticates identifier (username or email) with password. When the account has MFA
// enrolled, no tokens are issued; the caller must finish with CompleteMFALogin.
func (s *AuthService) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Login")
	defer span.End()

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		s.hasher.Burn(password)
		return nil, ErrInvalidCredentials
	}
	a, err := s.accounts.GetByIdentifier(ctx, identifier)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "account lookup")
		return nil, err
	}
	if a == nil {
		// Keep timing close to the wrong-password path.
		s.hasher.Burn(password)
		s.log.Info("login rejected", zap.String("identifier", logger.MaskIdentifier(identifier)), zap.String("reason", "unknown_account"))
		return nil, ErrInvalidCredentials
	}
	span.SetAttributes(attribute.String("account.id", a.ID))
	if !a.Enabled {
		s.audit.LogEvent(ctx, a.ID, audit.ActionLoginFailure, audit.ResourceAuthentication, "disabled")
		return nil, ErrAccountDisabled
	}
	now := s.now().UTC()
	if a.LockExpired(now) {
		if err := s.accounts.ClearExpiredLock(ctx, a.ID, now); err != nil {
			return nil, err
		}
		a.Locked = false
		a.LockExpiresAt = nil
		a.FailedAttempts = 0
	}
	if a.LockedAt(now) {
		s.audit.LogEvent(ctx, a.ID, audit.ActionLoginFailure, audit.ResourceAuthentication, "locked")
		return nil, ErrAccountLocked
	}
	if !s.hasher.Matches(a.PasswordHash, password) {
		if err := s.registerFailure(ctx, a, now); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	if s.mfaRequired(a) {
		c := &mfadomain.Challenge{
			ID:        uuid.New().String(),
			AccountID: a.ID,
			CreatedAt: now,
			ExpiresAt: now.Add(s.cfg.ChallengeTTL),
		}
		if err := s.challenges.Create(ctx, c); err != nil {
			return nil, err
		}
		s.audit.LogEvent(ctx, a.ID, audit.ActionMFAChallenge, audit.ResourceAuthentication, "")
		s.log.Debug("mfa challenge issued", zap.String("account_id", a.ID))
		return &LoginResult{MFARequired: true, ChallengeID: c.ID, ChallengeExpiresAt: c.ExpiresAt}, nil
	}

	pair, err := s.completeLogin(ctx, a, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "issue tokens")
		return nil, err
	}
	return &LoginResult{Tokens: pair}, nil
}

// CompleteMFALogin finishes a login that returned MFARequired. A wrong code counts as a failed
// login for lockout and as an attempt against the challenge.
func (s *AuthService) CompleteMFALogin(ctx context.Context, challengeID, code string) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "AuthService.CompleteMFALogin")
	defer span.End()

	if s.challenges == nil || s.codes == nil || challengeID == "" {
		return nil, ErrInvalidMFAChallenge
	}
	now := s.now().UTC()
	c, err := s.challenges.GetByID(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrInvalidMFAChallenge
	}
	if c.ExpiredAt(now) {
		_ = s.challenges.Delete(ctx, c.ID)
		return nil, ErrInvalidMFAChallenge
	}
	a, err := s.accounts.GetByID(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		_ = s.challenges.Delete(ctx, c.ID)
		return nil, ErrInvalidMFAChallenge
	}
	if !a.Enabled {
		return nil, ErrAccountDisabled
	}
	if a.LockedAt(now) {
		return nil, ErrAccountLocked
	}

	ok, err := s.codes.VerifyAccount(a, code)
	if errors.Is(err, mfa.ErrMFANotEnabled) {
		// MFA was turned off between the two steps.
		_ = s.challenges.Delete(ctx, c.ID)
		return nil, ErrInvalidMFAChallenge
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		if err := s.registerFailure(ctx, a, now); err != nil {
			return nil, err
		}
		n, err := s.challenges.RecordFailure(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		if n >= s.cfg.MaxChallengeAttempts {
			_ = s.challenges.Delete(ctx, c.ID)
			s.log.Info("mfa challenge exhausted", zap.String("account_id", a.ID))
		}
		return nil, mfa.ErrInvalidMFACode
	}

	consumed, err := s.challenges.Consume(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	if consumed == nil {
		return nil, ErrInvalidMFAChallenge
	}
	return s.completeLogin(ctx, a, now)
}

// Refresh exchanges a valid refresh token for a new pair. The presented token is rotated out; in
// strict mode a second presentation of it fails.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	ctx, span := tracer.Start(ctx, "AuthService.Refresh")
	defer span.End()

	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.Type != security.TokenTypeRefresh {
		s.log.Debug("refresh rejected", zap.String("reason", "unparseable"))
		return nil, ErrInvalidRefreshToken
	}
	rec, err := s.ledger.FindRefreshByJti(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if status := s.ledger.RefreshStatus(rec); status == sessiondomain.RefreshReused {
		if rec.AccountID != claims.Subject || !security.TokenHashEqual(refreshToken, rec.TokenHash) {
			return nil, ErrInvalidRefreshToken
		}
		s.log.Warn("refresh token replayed, revoking account sessions", zap.String("account_id", rec.AccountID))
		if err := s.ledger.RevokeAllForAccount(ctx, rec.AccountID); err != nil {
			span.RecordError(err)
			return nil, err
		}
		s.audit.LogEvent(ctx, rec.AccountID, audit.ActionRefreshRejected, audit.ResourceSession, status.String())
		return nil, ErrInvalidRefreshToken
	} else if status != sessiondomain.RefreshValid {
		s.log.Info("refresh rejected", zap.String("reason", status.String()), zap.String("account_id", claims.Subject))
		if rec != nil {
			s.audit.LogEvent(ctx, rec.AccountID, audit.ActionRefreshRejected, audit.ResourceSession, status.String())
		}
		return nil, ErrInvalidRefreshToken
	}
	if rec.AccountID != claims.Subject || !security.TokenHashEqual(refreshToken, rec.TokenHash) {
		s.log.Warn("refresh rejected", zap.String("reason", "hash_mismatch"), zap.String("account_id", rec.AccountID))
		return nil, ErrInvalidRefreshToken
	}
	a, err := s.accounts.GetByID(ctx, rec.AccountID)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ErrInvalidRefreshToken
	}
	if !a.Enabled {
		return nil, ErrAccountDisabled
	}
	if a.LockedAt(s.now().UTC()) {
		return nil, ErrAccountLocked
	}
	if err := s.ledger.Touch(ctx, rec); err != nil {
		return nil, err
	}

	pair, sess, next, err := s.mint(ctx, a)
	if err != nil {
		return nil, err
	}
	rotated, err := s.ledger.Rotate(ctx, rec, s.cfg.StrictRotation, sess, next)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rotate")
		return nil, err
	}
	if !rotated {
		s.log.Warn("refresh rejected", zap.String("reason", "concurrent_rotation"), zap.String("account_id", a.ID))
		s.audit.LogEvent(ctx, a.ID, audit.ActionRefreshRejected, audit.ResourceSession, "reused")
		return nil, ErrInvalidRefreshToken
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionTokenRefreshed, audit.ResourceSession, "")
	return pair, nil
}

// Logout revokes the session behind accessToken and, when given, the refresh record behind
// refreshToken. Repeating a logout is not an error.
func (s *AuthService) Logout(ctx context.Context, accessToken, refreshToken string) error {
	ctx, span := tracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	claims, err := s.tokens.Parse(accessToken)
	if err != nil || claims.Type != security.TokenTypeAccess {
		return ErrInvalidAccessToken
	}
	sess, err := s.ledger.FindSessionByAccessJti(ctx, claims.ID)
	if err != nil {
		return err
	}
	if sess != nil && !sess.Revoked {
		if _, err := s.ledger.RevokeSessionByID(ctx, sess.ID); err != nil {
			return err
		}
	}
	if refreshToken != "" {
		rc, err := s.tokens.Parse(refreshToken)
		if err == nil && rc.Type == security.TokenTypeRefresh && rc.Subject == claims.Subject {
			rec, err := s.ledger.FindRefreshByJti(ctx, rc.ID)
			if err != nil {
				return err
			}
			if err := s.ledger.RevokeRefresh(ctx, rec); err != nil {
				return err
			}
		}
	}
	s.audit.LogEvent(ctx, claims.Subject, audit.ActionLogout, audit.ResourceSession, "")
	return nil
}

// Authenticate parses accessToken and checks that its session is live. It returns the claims on
// success and ErrInvalidAccessToken otherwise.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*security.Claims, error) {
	claims, err := s.tokens.Parse(accessToken)
	if err != nil || claims.Type != security.TokenTypeAccess {
		return nil, ErrInvalidAccessToken
	}
	sess, err := s.ledger.FindSessionByAccessJti(ctx, claims.ID)
	if err != nil {
		s.log.Warn("session lookup failed", zap.Error(err))
		return nil, ErrInvalidAccessToken
	}
	if sess == nil || sess.AccountID != claims.Subject || !s.ledger.SessionLive(sess) {
		return nil, ErrInvalidAccessToken
	}
	return claims, nil
}

// ValidateAccessToken reports whether accessToken is well-formed, unexpired, and backed by a live
// session. It never returns an error.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) bool {
	_, err := s.Authenticate(ctx, accessToken)
	return err == nil
}

// UserInfo returns the current profile of accountID. A missing or disabled account yields
// ErrInvalidAccessToken since its tokens no longer name a usable identity.
func (s *AuthService) UserInfo(ctx context.Context, accountID string) (*UserInfo, error) {
	a, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if a == nil || !a.Enabled {
		return nil, ErrInvalidAccessToken
	}
	roles, err := s.roles.RoleNames(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	return &UserInfo{
		AccountID:  a.ID,
		Username:   a.Username,
		Email:      a.Email,
		GivenName:  a.GivenName,
		FamilyName: a.FamilyName,
		Roles:      roles,
		MFAEnabled: a.MFAEnabled && a.MFASecret != "",
	}, nil
}

// Introspect describes token. Access tokens are active while their session is live; refresh
// tokens while their record is valid.
func (s *AuthService) Introspect(ctx context.Context, token string) Introspection {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return Introspection{}
	}
	var active bool
	switch claims.Type {
	case security.TokenTypeAccess:
		_, err := s.Authenticate(ctx, token)
		active = err == nil
	case security.TokenTypeRefresh:
		rec, err := s.ledger.FindRefreshByJti(ctx, claims.ID)
		active = err == nil && s.ledger.RefreshStatus(rec) == sessiondomain.RefreshValid &&
			security.TokenHashEqual(token, rec.TokenHash)
	}
	if !active {
		return Introspection{}
	}
	in := Introspection{
		Active:    true,
		Subject:   claims.Subject,
		Username:  claims.Username,
		Roles:     claims.Roles,
		TokenType: string(claims.Type),
		SessionID: claims.SessionID,
		TokenID:   claims.ID,
	}
	if claims.IssuedAt != nil {
		in.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		in.ExpiresAt = claims.ExpiresAt.Time
	}
	return in
}

// RevokeRefreshToken revokes the record behind refreshToken. Unknown tokens return
// ErrInvalidRefreshToken; already revoked ones succeed.
func (s *AuthService) RevokeRefreshToken(ctx context.Context, refreshToken string) error {
	claims, err := s.tokens.Parse(refreshToken)
	if err != nil || claims.Type != security.TokenTypeRefresh {
		return ErrInvalidRefreshToken
	}
	rec, err := s.ledger.FindRefreshByJti(ctx, claims.ID)
	if err != nil {
		return err
	}
	if rec == nil || !security.TokenHashEqual(refreshToken, rec.TokenHash) {
		return ErrInvalidRefreshToken
	}
	if err := s.ledger.RevokeRefresh(ctx, rec); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, rec.AccountID, audit.ActionTokenRevoked, audit.ResourceSession, "")
	return nil
}

// RevokeSession revokes a session and the refresh records minted with it.
func (s *AuthService) RevokeSession(ctx context.Context, sessionID string) error {
	sess, err := s.ledger.FindSessionByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess == nil {
		return ErrSessionNotFound
	}
	if _, err := s.ledger.RevokeSessionByID(ctx, sess.ID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, sess.AccountID, audit.ActionSessionRevoked, audit.ResourceSession, sess.ID)
	return nil
}

// GetSession returns the session with id, or ErrSessionNotFound.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*sessiondomain.Session, error) {
	sess, err := s.ledger.FindSessionByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// RevokeAllSessions ends every session and refresh token of the account.
func (s *AuthService) RevokeAllSessions(ctx context.Context, accountID string) error {
	if err := s.ledger.RevokeAllForAccount(ctx, accountID); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, accountID, audit.ActionSessionRevoked, audit.ResourceSession, "all")
	return nil
}

// ListSessions returns the account's live sessions, newest first.
func (s *AuthService) ListSessions(ctx context.Context, accountID string) ([]*sessiondomain.Session, error) {
	return s.ledger.ListActiveSessions(ctx, accountID)
}

func (s *AuthService) mfaRequired(a *accountdomain.Account) bool {
	return s.cfg.MFAEnabled && s.challenges != nil && s.codes != nil && a.MFAEnabled && a.MFASecret != ""
}

// registerFailure bumps the failed-attempt counter and reports a newly applied lock.
func (s *AuthService) registerFailure(ctx context.Context, a *accountdomain.Account, now time.Time) error {
	updated, err := s.accounts.RegisterFailedLogin(ctx, a.ID, s.cfg.MaxFailedAttempts, now.Add(s.cfg.LockoutDuration), now)
	if err != nil {
		return err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionLoginFailure, audit.ResourceAuthentication, "bad_credentials")
	if updated != nil && updated.Locked && !a.Locked {
		s.audit.LogEvent(ctx, a.ID, audit.ActionAccountLocked, audit.ResourceAccount, "")
		s.log.Warn("account locked",
			zap.String("account_id", a.ID),
			zap.Int("failed_attempts", updated.FailedAttempts),
		)
	}
	return nil
}

func (s *AuthService) completeLogin(ctx context.Context, a *accountdomain.Account, now time.Time) (*TokenPair, error) {
	if err := s.accounts.RecordSuccessfulLogin(ctx, a.ID, now); err != nil {
		return nil, err
	}
	pair, sess, rec, err := s.mint(ctx, a)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.RecordPair(ctx, sess, rec); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, a.ID, audit.ActionLoginSuccess, audit.ResourceAuthentication, "")
	s.log.Info("login succeeded", zap.String("account_id", a.ID), zap.String("session_id", sess.ID))
	return pair, nil
}

// mint signs a new access/refresh pair for a and builds the unsaved ledger rows for it.
func (s *AuthService) mint(ctx context.Context, a *accountdomain.Account) (*TokenPair, *sessiondomain.Session, *sessiondomain.RefreshRecord, error) {
	roles, err := s.roles.RoleNames(ctx, a.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	access, err := s.tokens.Issue(a.ID, security.TokenTypeAccess, s.cfg.AccessTTL, security.Claims{
		Username: a.Username,
		Roles:    roles,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	sess := s.ledger.NewSession(a.ID, access.ID, s.cfg.AccessTTL)
	refresh, err := s.tokens.Issue(a.ID, security.TokenTypeRefresh, s.cfg.RefreshTTL, security.Claims{SessionID: sess.ID})
	if err != nil {
		return nil, nil, nil, err
	}
	rec := s.ledger.NewRefresh(a.ID, refresh.ID, security.HashToken(refresh.Token), sess.ID, s.cfg.RefreshTTL)
	return &TokenPair{
		AccessToken:      access.Token,
		RefreshToken:     refresh.Token,
		TokenType:        TokenTypeBearer,
		ExpiresIn:        int64(s.cfg.AccessTTL / time.Second),
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
		SessionID:        sess.ID,
		AccountID:        a.ID,
	}, sess, rec, nil
}
