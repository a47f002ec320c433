// server runs the identity provider gRPC API. Requires DATABASE_URL and JWT_SECRET; see
// internal/config for the remaining keys.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	accountrepo "identity-provider/backend/internal/account/repository"
	accountservice "identity-provider/backend/internal/account/service"
	"identity-provider/backend/internal/audit"
	auditrepo "identity-provider/backend/internal/audit/repository"
	"identity-provider/backend/internal/config"
	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/devoutbox"
	identityservice "identity-provider/backend/internal/identity/service"
	"identity-provider/backend/internal/logger"
	"identity-provider/backend/internal/mfa"
	mfarepo "identity-provider/backend/internal/mfa/repository"
	"identity-provider/backend/internal/notify"
	resetrepo "identity-provider/backend/internal/passwordreset/repository"
	resetservice "identity-provider/backend/internal/passwordreset/service"
	"identity-provider/backend/internal/policy/engine"
	policyrepo "identity-provider/backend/internal/policy/repository"
	policyservice "identity-provider/backend/internal/policy/service"
	rolerepo "identity-provider/backend/internal/role/repository"
	"identity-provider/backend/internal/security"
	"identity-provider/backend/internal/server"
	"identity-provider/backend/internal/server/interceptors"
	sessionrepo "identity-provider/backend/internal/session/repository"
	sessionservice "identity-provider/backend/internal/session/service"
	"identity-provider/backend/internal/telemetry"
	telemetryotel "identity-provider/backend/internal/telemetry/otel"
)

const serviceName = "identity-provider"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is not set")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Settings{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = providers.Shutdown(shutdownCtx)
	}()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	codec, err := security.NewTokenCodec([]byte(cfg.JWTSecret), cfg.JWTIssuer, security.WithVerificationKeys(cfg.VerificationKeys()...))
	if err != nil {
		return fmt.Errorf("token codec: %w", err)
	}
	hasher := security.NewHasher(cfg.BcryptCost)
	policy := cfg.PasswordPolicy()

	accounts := accountrepo.NewPostgresRepository(pool)
	roles := rolerepo.NewPostgresRepository(pool)
	challenges := mfarepo.NewPostgresRepository(pool)
	resets := resetrepo.NewPostgresRepository(pool)
	audits := auditrepo.NewPostgresRepository(pool)
	policies := policyrepo.NewPostgresRepository(pool)
	ledger := sessionservice.NewLedger(sessionrepo.NewPostgresRepository(pool))

	auditLogger := audit.Multi(
		audit.NewLogger(audits, interceptors.ClientIP, log),
		telemetry.NewAuditExporter(telemetryotel.NewEventEmitter(providers.LoggerProvider), interceptors.ClientIP, log),
	)

	var notifier notify.Notifier
	notifier, err = newNotifier(cfg, log)
	if err != nil {
		return err
	}
	var outbox devoutbox.Store
	if cfg.DevOutboxEnabled() {
		log.Warn("dev reset outbox enabled; reset tokens are readable through DevService")
		store := devoutbox.NewMemoryStore()
		outbox = store
		notifier = devoutbox.NewNotifier(store, notifier)
	}
	defer func() { _ = notifier.Close() }()

	totp := mfa.NewService(accounts, cfg.JWTIssuer,
		mfa.WithEnabled(cfg.MFAEnabled),
		mfa.WithSkew(uint(cfg.MFASkew)),
		mfa.WithAuditLogger(auditLogger),
		mfa.WithLogger(log.Named("mfa")),
	)
	auth := identityservice.NewAuthService(accounts, roles, ledger, hasher, codec,
		identityservice.Config{
			AccessTTL:         cfg.AccessTTL(),
			RefreshTTL:        cfg.RefreshTTL(),
			MaxFailedAttempts: cfg.LockoutMaxAttempts,
			LockoutDuration:   cfg.LockoutDurationValue(),
			StrictRotation:    cfg.StrictRefreshRotation,
			MFAEnabled:        cfg.MFAEnabled,
			ChallengeTTL:      cfg.ChallengeTTL(),
		},
		identityservice.WithMFA(challenges, totp),
		identityservice.WithAuditLogger(auditLogger),
		identityservice.WithLogger(log.Named("auth")),
	)
	accountSvc := accountservice.NewService(accounts, roles, ledger, policy, hasher,
		accountservice.WithAuditLogger(auditLogger),
		accountservice.WithLogger(log.Named("account")),
	)
	resetSvc := resetservice.NewService(accounts, resets, policy, hasher, notifier,
		resetservice.Config{TokenTTL: cfg.ResetTTL(), MaxPerWindow: cfg.ResetMaxPerWindow, Window: cfg.ResetWindowValue()},
		resetservice.WithSessionRevoker(ledger),
		resetservice.WithAuditLogger(auditLogger),
		resetservice.WithLogger(log.Named("passwordreset")),
	)

	authz := engine.NewOPAAuthorizer(policies, log.Named("authz"))
	if err := authz.Reload(ctx); err != nil {
		log.Warn("stored authorization policies not loaded; using the built-in policy", zap.Error(err))
	}
	go reloadPolicies(ctx, authz, cfg.AuthzReloadIntervalValue(), log)
	policySvc := policyservice.NewService(policies, authz,
		policyservice.WithAuditLogger(auditLogger),
		policyservice.WithLogger(log.Named("policy")),
	)

	s := server.NewServer(server.Options{
		Authenticator: auth,
		Authorizer:    authz,
		AuditLogger:   auditLogger,
		Log:           log.Named("grpc"),
	})
	server.RegisterServices(s, server.Deps{
		Auth:                auth,
		PasswordReset:       resetSvc,
		Accounts:            accountSvc,
		MFA:                 totp,
		Policies:            policySvc,
		AuditRepo:           audits,
		HealthPinger:        pool,
		HealthPolicyChecker: authz,
		DevOutbox:           outbox,
		Log:                 log.Named("health"),
	})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		serveErr <- s.Serve(lis)
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}
	log.Info("shutting down gRPC server")
	s.GracefulStop()
	time.Sleep(telemetry.ShutdownDrainDuration)
	log.Info("gRPC server stopped")
	return nil
}

// newNotifier delivers reset tokens through Kafka when brokers are configured and to the log otherwise.
func newNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, error) {
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Warn("KAFKA_BROKERS not set; password reset tokens are only logged")
		return notify.NewLogNotifier(log.Named("notify")), nil
	}
	n, err := notify.NewKafkaNotifier(brokers, cfg.ResetKafkaTopic, log.Named("notify"))
	if err != nil {
		return nil, fmt.Errorf("kafka notifier: %w", err)
	}
	return n, nil
}

func reloadPolicies(ctx context.Context, authz *engine.OPAAuthorizer, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := authz.Reload(ctx); err != nil && ctx.Err() == nil {
				log.Warn("authorization policy reload failed", zap.Error(err))
			}
		}
	}
}
