// seed inserts development accounts for local testing. Run with go run ./cmd/seed.
// Idempotent: accounts that already exist are left untouched.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	accountrepo "identity-provider/backend/internal/account/repository"
	accountservice "identity-provider/backend/internal/account/service"
	"identity-provider/backend/internal/config"
	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/logger"
	rolerepo "identity-provider/backend/internal/role/repository"
	"identity-provider/backend/internal/security"
	sessionrepo "identity-provider/backend/internal/session/repository"
	sessionservice "identity-provider/backend/internal/session/service"
)

const devPassword = "Dev-Passw0rd!"

var devAccounts = []accountservice.CreateInput{
	{Username: "admin", Email: "admin@example.com", GivenName: "Dev", FamilyName: "Admin", Roles: []string{"admin", "user"}},
	{Username: "member", Email: "member@example.com", GivenName: "Member", FamilyName: "User", Roles: []string{"user"}},
}

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
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer pool.Close()

	roles := rolerepo.NewPostgresRepository(pool)
	for _, name := range []string{"admin", "user"} {
		if err := roles.EnsureRole(ctx, name, ""); err != nil {
			log.Fatal("ensure role", zap.String("role", name), zap.Error(err))
		}
	}
	accounts := accountservice.NewService(
		accountrepo.NewPostgresRepository(pool),
		roles,
		sessionservice.NewLedger(sessionrepo.NewPostgresRepository(pool)),
		cfg.PasswordPolicy(),
		security.NewHasher(cfg.BcryptCost),
		accountservice.WithLogger(log),
	)

	for _, in := range devAccounts {
		in.Password = devPassword
		_, err := accounts.Create(ctx, in)
		switch {
		case errors.Is(err, accountservice.ErrAccountExists):
			log.Info("seed account already exists; skipping", zap.String("username", in.Username))
		case err != nil:
			log.Fatal("create seed account", zap.String("username", in.Username), zap.Error(err))
		default:
			fmt.Printf("Dev login: %s / %s (roles %v)\n", in.Username, devPassword, in.Roles)
		}
	}
}
