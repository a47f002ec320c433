// Package server assembles the gRPC server: service registration, the public method set, and
// the interceptor chain.
package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"

	accounthandler "identity-provider/backend/internal/account/handler"
	"identity-provider/backend/internal/audit"
	audithandler "identity-provider/backend/internal/audit/handler"
	auditrepo "identity-provider/backend/internal/audit/repository"
	"identity-provider/backend/internal/devoutbox"
	devhandler "identity-provider/backend/internal/devoutbox/handler"
	healthhandler "identity-provider/backend/internal/health/handler"
	identityhandler "identity-provider/backend/internal/identity/handler"
	policyhandler "identity-provider/backend/internal/policy/handler"
	"identity-provider/backend/internal/server/interceptors"
	sessionhandler "identity-provider/backend/internal/session/handler"
)

// Deps holds optional service dependencies for gRPC handlers. A nil dependency makes the RPCs
// that need it return Unimplemented.
type Deps struct {
	// Auth serves login, token lifecycle and session management.
	Auth interface {
		identityhandler.Authenticator
		sessionhandler.SessionManager
	}
	// PasswordReset serves RequestPasswordReset and CompletePasswordReset.
	PasswordReset identityhandler.PasswordResetter
	// Accounts serves ChangePassword and the admin AccountService.
	Accounts interface {
		identityhandler.PasswordChanger
		accounthandler.AccountManager
	}
	// MFA serves the caller's TOTP RPCs and the admin identifier checks.
	MFA interface {
		identityhandler.MFAManager
		accounthandler.MFAVerifier
	}
	// Policies serves the admin PolicyService.
	Policies policyhandler.PolicyManager
	// AuditRepo serves the admin AuditService.
	AuditRepo auditrepo.Repository
	// HealthPinger is used by the health service for readiness (e.g. *pgxpool.Pool).
	HealthPinger healthhandler.Pinger
	// HealthPolicyChecker is used by the health service for readiness (e.g. the OPA authorizer).
	HealthPolicyChecker healthhandler.PolicyChecker
	// DevOutbox, when set, registers the dev-only DevService. Never set in production.
	DevOutbox devoutbox.Store
	// Log receives health probe failures.
	Log *zap.Logger
}

// ServiceNames lists the application services registered by RegisterServices.
func ServiceNames() []string {
	return []string{
		identityhandler.ServiceName,
		sessionhandler.ServiceName,
		accounthandler.ServiceName,
		policyhandler.ServiceName,
		audithandler.ServiceName,
	}
}

// RegisterServices registers every service with s.
//
// Service → handler mapping:
//   - AuthService    → internal/identity/handler
//   - SessionService → internal/session/handler
//   - AccountService → internal/account/handler (admin)
//   - PolicyService  → internal/policy/handler (admin)
//   - AuditService   → internal/audit/handler (admin)
//   - Health         → internal/health/handler
//   - DevService     → internal/devoutbox/handler (only when deps.DevOutbox is set)
func RegisterServices(s grpc.ServiceRegistrar, deps Deps) {
	var (
		auth     identityhandler.Authenticator
		sessions sessionhandler.SessionManager
	)
	if deps.Auth != nil {
		auth, sessions = deps.Auth, deps.Auth
	}
	var (
		passwords identityhandler.PasswordChanger
		accounts  accounthandler.AccountManager
	)
	if deps.Accounts != nil {
		passwords, accounts = deps.Accounts, deps.Accounts
	}

	var (
		totp     identityhandler.MFAManager
		verifier accounthandler.MFAVerifier
	)
	if deps.MFA != nil {
		totp, verifier = deps.MFA, deps.MFA
	}

	s.RegisterService(&identityhandler.ServiceDesc, identityhandler.NewAuthServer(auth, deps.PasswordReset, passwords, totp))
	s.RegisterService(&sessionhandler.ServiceDesc, sessionhandler.NewServer(sessions))
	s.RegisterService(&accounthandler.ServiceDesc, accounthandler.NewServer(accounts, verifier))
	s.RegisterService(&policyhandler.ServiceDesc, policyhandler.NewServer(deps.Policies))
	s.RegisterService(&audithandler.ServiceDesc, audithandler.NewServer(deps.AuditRepo))
	healthgrpc.RegisterHealthServer(s, healthhandler.NewServer(deps.HealthPinger, deps.HealthPolicyChecker, ServiceNames(), deps.Log))
	if deps.DevOutbox != nil {
		s.RegisterService(&devhandler.ServiceDesc, devhandler.NewServer(deps.DevOutbox))
	}
}

// healthMethods are probed by load balancers; they are public and not logged.
var healthMethods = []string{
	healthgrpc.Health_Check_FullMethodName,
	healthgrpc.Health_Watch_FullMethodName,
	healthgrpc.Health_List_FullMethodName,
}

// PublicMethods returns the full method names callable without a bearer token.
func PublicMethods() map[string]bool {
	out := make(map[string]bool)
	for _, m := range identityhandler.PublicMethods() {
		out[m] = true
	}
	for _, m := range devhandler.PublicMethods() {
		out[m] = true
	}
	for _, m := range healthMethods {
		out[m] = true
	}
	return out
}

// Options configures the interceptor chain built by NewServer.
type Options struct {
	Authenticator interceptors.TokenAuthenticator
	Authorizer    interceptors.Authorizer
	AuditLogger   audit.AuditLogger
	Log           *zap.Logger
}

// NewServer returns a gRPC server with OpenTelemetry instrumentation and the unary chain
// logging → authentication → authorization → audit, in that order. Authorization is skipped
// when opts.Authorizer is nil and auditing when opts.AuditLogger is nil.
func NewServer(opts Options, extra ...grpc.ServerOption) *grpc.Server {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	public := PublicMethods()
	quiet := make(map[string]bool, len(healthMethods))
	for _, m := range healthMethods {
		quiet[m] = true
	}

	chain := []grpc.UnaryServerInterceptor{
		interceptors.LoggingUnary(log, quiet),
		interceptors.AuthUnary(opts.Authenticator, public),
	}
	if opts.Authorizer != nil {
		chain = append(chain, interceptors.AuthorizeUnary(opts.Authorizer, public, log))
	}
	if opts.AuditLogger != nil {
		chain = append(chain, interceptors.AuditUnary(opts.AuditLogger, public))
	}

	serverOpts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(chain...),
	}
	return grpc.NewServer(append(serverOpts, extra...)...)
}
