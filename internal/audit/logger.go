package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-provider/backend/internal/audit/domain"
	auditrepo "identity-provider/backend/internal/audit/repository"
)

// Actions recorded by the identity engines.
const (
	ActionLoginSuccess         = "login_success"
	ActionLoginFailure         = "login_failure"
	ActionAccountLocked        = "account_locked"
	ActionMFAChallenge         = "mfa_challenge_issued"
	ActionLogout               = "logout"
	ActionTokenRefreshed       = "token_refreshed"
	ActionRefreshRejected      = "refresh_rejected"
	ActionTokenRevoked         = "token_revoked"
	ActionSessionRevoked       = "session_revoked"
	ActionPasswordChanged      = "password_changed"
	ActionPasswordResetRequest = "password_reset_requested"
	ActionPasswordResetDone    = "password_reset_completed"
	ActionMFAEnrolled          = "mfa_enrolled"
	ActionMFADisabled          = "mfa_disabled"
	ActionAccountCreated       = "account_created"
	ActionAccountDeleted       = "account_deleted"
	ActionAccountUpdated       = "account_updated"
	ActionPolicyCreated        = "policy_created"
	ActionPolicyUpdated        = "policy_updated"
	ActionPolicyDeleted        = "policy_deleted"
)

// Resources recorded by the identity engines.
const (
	ResourceAuthentication = "authentication"
	ResourceSession        = "session"
	ResourceAccount        = "account"
	ResourcePassword       = "password"
	ResourceMFA            = "mfa"
	ResourcePolicy         = "policy"
)

// IPExtractor returns the client IP from the request context (e.g. gRPC metadata or peer).
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event with explicit action/resource. LogEvent is best-effort:
// failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	log         *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". log may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, log: log}
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.log.Warn("audit: failed to log event",
			zap.String("action", action),
			zap.String("resource", resource),
			zap.Error(err),
		)
	}
}

// Nop is an AuditLogger that records nothing.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}

// Multi fans each event out to every non-nil logger in order.
func Multi(loggers ...AuditLogger) AuditLogger {
	out := make(multi, 0, len(loggers))
	for _, l := range loggers {
		if l != nil {
			out = append(out, l)
		}
	}
	return out
}

type multi []AuditLogger

func (m multi) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	for _, l := range m {
		l.LogEvent(ctx, accountID, action, resource, metadata)
	}
}
