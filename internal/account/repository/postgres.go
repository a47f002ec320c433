package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"identity-provider/backend/internal/account/domain"
	"identity-provider/backend/internal/db"
)

const accountsTable = "accounts"

var accountColumns = []string{
	"id", "username", "email", "password_hash", "given_name", "family_name",
	"enabled", "locked", "failed_attempts", "lock_expires_at", "mfa_enabled", "mfa_secret",
	"created_at", "updated_at", "last_login_at",
}

// PostgresRepository implements Repository against the accounts table.
type PostgresRepository struct {
	exec    db.Executor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns an account repository that runs statements on exec (a pool or a transaction).
func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within tx.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	if tx == nil {
		return r
	}
	return &PostgresRepository{exec: tx, builder: r.builder}
}

// GetByID returns the account for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByIdentifier returns the account whose username or email equals identifier (case-insensitive).
// A username match wins over an email match.
func (r *PostgresRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.Account, error) {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return nil, nil
	}
	a, err := r.getOne(ctx, squirrel.Expr("lower(username) = ?", ident))
	if err != nil || a != nil {
		return a, err
	}
	return r.getOne(ctx, squirrel.Expr("lower(email) = ?", ident))
}

// ExistsByIdentifier reports whether any account uses identifier as its username or email.
func (r *PostgresRepository) ExistsByIdentifier(ctx context.Context, identifier string) (bool, error) {
	ident := strings.ToLower(strings.TrimSpace(identifier))
	if ident == "" {
		return false, nil
	}
	stmt, args, err := r.builder.Select("1").From(accountsTable).
		Where(squirrel.Or{squirrel.Expr("lower(username) = ?", ident), squirrel.Expr("lower(email) = ?", ident)}).
		Limit(1).ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists account sql: %w", err)
	}
	var one int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("exists account: %w", err)
	}
	return true, nil
}

// Create inserts a. Returns ErrDuplicateIdentifier when the username or email is taken.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	stmt, args, err := r.builder.Insert(accountsTable).Columns(accountColumns...).Values(
		a.ID, a.Username, nullString(a.Email), a.PasswordHash, a.GivenName, a.FamilyName,
		a.Enabled, a.Locked, a.FailedAttempts, a.LockExpiresAt, a.MFAEnabled, a.MFASecret,
		a.CreatedAt, a.UpdatedAt, a.LastLoginAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// Update overwrites the mutable profile and state columns of a.
func (r *PostgresRepository) Update(ctx context.Context, a *domain.Account) error {
	stmt, args, err := r.builder.Update(accountsTable).SetMap(map[string]any{
		"username":        a.Username,
		"email":           nullString(a.Email),
		"password_hash":   a.PasswordHash,
		"given_name":      a.GivenName,
		"family_name":     a.FamilyName,
		"enabled":         a.Enabled,
		"locked":          a.Locked,
		"failed_attempts": a.FailedAttempts,
		"lock_expires_at": a.LockExpiresAt,
		"mfa_enabled":     a.MFAEnabled,
		"mfa_secret":      a.MFASecret,
		"updated_at":      a.UpdatedAt,
		"last_login_at":   a.LastLoginAt,
	}).Where(squirrel.Eq{"id": a.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update account sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("update account: %w", err)
	}
	return nil
}

// RegisterFailedLogin increments failed_attempts in a single statement so concurrent failures
// are all counted, and locks the row once the threshold is reached.
func (r *PostgresRepository) RegisterFailedLogin(ctx context.Context, id string, maxAttempts int, lockUntil, at time.Time) (*domain.Account, error) {
	stmt, args, err := r.builder.Update(accountsTable).
		Set("failed_attempts", squirrel.Expr("failed_attempts + 1")).
		Set("locked", squirrel.Expr("locked OR failed_attempts + 1 >= ?", maxAttempts)).
		Set("lock_expires_at", squirrel.Expr(
			"CASE WHEN NOT locked AND failed_attempts + 1 >= ? THEN ?::timestamptz ELSE lock_expires_at END",
			maxAttempts, lockUntil)).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(accountColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build register failed login sql: %w", err)
	}
	a, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("register failed login: %w", err)
	}
	return a, nil
}

// RecordSuccessfulLogin resets the lockout state and stamps last_login_at.
func (r *PostgresRepository) RecordSuccessfulLogin(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, "record successful login", id, map[string]any{
		"failed_attempts": 0,
		"locked":          false,
		"lock_expires_at": nil,
		"last_login_at":   at,
		"updated_at":      at,
	})
}

// ClearExpiredLock unlocks the row only if its automatic lock has run out; admin locks are untouched.
func (r *PostgresRepository) ClearExpiredLock(ctx context.Context, id string, now time.Time) error {
	stmt, args, err := r.builder.Update(accountsTable).SetMap(map[string]any{
		"failed_attempts": 0,
		"locked":          false,
		"lock_expires_at": nil,
		"updated_at":      now,
	}).Where(squirrel.And{
		squirrel.Eq{"id": id, "locked": true},
		squirrel.NotEq{"lock_expires_at": nil},
		squirrel.LtOrEq{"lock_expires_at": now},
	}).ToSql()
	if err != nil {
		return fmt.Errorf("build clear expired lock sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear expired lock: %w", err)
	}
	return nil
}

// UpdatePasswordHash replaces the stored bcrypt hash.
func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	return r.update(ctx, "update password hash", id, map[string]any{"password_hash": hash, "updated_at": at})
}

// SetMFA stores the TOTP enrollment state.
func (r *PostgresRepository) SetMFA(ctx context.Context, id string, enabled bool, secret string, at time.Time) error {
	return r.update(ctx, "set mfa", id, map[string]any{"mfa_enabled": enabled, "mfa_secret": secret, "updated_at": at})
}

// SetEnabled enables or disables the account.
func (r *PostgresRepository) SetEnabled(ctx context.Context, id string, enabled bool, at time.Time) error {
	return r.update(ctx, "set enabled", id, map[string]any{"enabled": enabled, "updated_at": at})
}

// SetLocked sets or clears the lock. Clearing also resets the failed-attempt counter.
func (r *PostgresRepository) SetLocked(ctx context.Context, id string, locked bool, until *time.Time, at time.Time) error {
	values := map[string]any{"locked": locked, "lock_expires_at": until, "updated_at": at}
	if !locked {
		values["failed_attempts"] = 0
		values["lock_expires_at"] = nil
	}
	return r.update(ctx, "set locked", id, values)
}

// Delete removes the account row. Roles, sessions, refresh records, reset tokens and challenges
// go with it through ON DELETE CASCADE.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete(accountsTable).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

func (r *PostgresRepository) update(ctx context.Context, op, id string, values map[string]any) error {
	stmt, args, err := r.builder.Update(accountsTable).SetMap(values).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build %s sql: %w", op, err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, where squirrel.Sqlizer) (*domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).From(accountsTable).Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}
	a, err := scanAccount(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select account: %w", err)
	}
	return a, nil
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		a     domain.Account
		email *string
	)
	if err := row.Scan(
		&a.ID, &a.Username, &email, &a.PasswordHash, &a.GivenName, &a.FamilyName,
		&a.Enabled, &a.Locked, &a.FailedAttempts, &a.LockExpiresAt, &a.MFAEnabled, &a.MFASecret,
		&a.CreatedAt, &a.UpdatedAt, &a.LastLoginAt,
	); err != nil {
		return nil, err
	}
	if email != nil {
		a.Email = *email
	}
	return &a, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
