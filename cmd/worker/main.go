// Worker runs periodic housekeeping against the identity database: it purges expired or revoked
// ledger rows, spent reset tokens, stale MFA challenges and audit logs past retention.
// Set DATABASE_URL, HOUSEKEEPING_INTERVAL and HOUSEKEEPING_RETENTION. GRPC_ADDR is required by
// config but unused.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	auditrepo "identity-provider/backend/internal/audit/repository"
	"identity-provider/backend/internal/config"
	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/housekeeping"
	"identity-provider/backend/internal/logger"
	mfarepo "identity-provider/backend/internal/mfa/repository"
	resetrepo "identity-provider/backend/internal/passwordreset/repository"
	sessionrepo "identity-provider/backend/internal/session/repository"
)

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
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("worker: db", zap.Error(err))
	}
	defer pool.Close()

	retention := cfg.HousekeepingRetentionValue()
	janitor := housekeeping.New([]housekeeping.Task{
		{Name: "sessions", Retention: retention, Purge: sessionrepo.NewPostgresRepository(pool).PurgeExpired},
		{Name: "reset_tokens", Retention: retention, Purge: resetrepo.NewPostgresRepository(pool).DeleteExpired},
		// Challenges are only useful until they expire.
		{Name: "mfa_challenges", Retention: 0, Purge: mfarepo.NewPostgresRepository(pool).DeleteExpired},
		{Name: "audit_logs", Retention: retention, Purge: auditrepo.NewPostgresRepository(pool).DeleteBefore},
	}, housekeeping.WithLogger(log.Named("housekeeping")))

	interval := cfg.HousekeepingIntervalValue()
	log.Info("worker: housekeeping started", zap.Duration("interval", interval), zap.Duration("retention", retention))
	janitor.Run(ctx, interval)
	log.Info("worker: stopped")
}
