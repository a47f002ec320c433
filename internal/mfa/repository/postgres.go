package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/mfa/domain"
)

var challengeColumns = []string{"id", "account_id", "attempts", "expires_at", "created_at"}

// PostgresRepository implements Repository against the mfa_challenges table.
type PostgresRepository struct {
	exec    db.Executor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns an MFA challenge repository that runs statements on exec.
func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{exec: exec, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// Create persists the challenge. The challenge must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	stmt, args, err := r.builder.Insert("mfa_challenges").Columns(challengeColumns...).
		Values(c.ID, c.AccountID, c.Attempts, c.ExpiresAt, c.CreatedAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert mfa challenge sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert mfa challenge: %w", err)
	}
	return nil
}

// GetByID returns the challenge for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Challenge, error) {
	stmt, args, err := r.builder.Select(challengeColumns...).From("mfa_challenges").
		Where(squirrel.Eq{"id": id}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select mfa challenge sql: %w", err)
	}
	return scanChallenge(r.exec.QueryRow(ctx, stmt, args...))
}

// Consume deletes the challenge with RETURNING so concurrent callers cannot both complete it.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	stmt, args, err := r.builder.Delete("mfa_challenges").Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING id, account_id, attempts, expires_at, created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume mfa challenge sql: %w", err)
	}
	return scanChallenge(r.exec.QueryRow(ctx, stmt, args...))
}

// RecordFailure bumps the attempt counter atomically.
func (r *PostgresRepository) RecordFailure(ctx context.Context, id string) (int, error) {
	stmt, args, err := r.builder.Update("mfa_challenges").Set("attempts", squirrel.Expr("attempts + 1")).
		Where(squirrel.Eq{"id": id}).Suffix("RETURNING attempts").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build record mfa failure sql: %w", err)
	}
	var n int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("record mfa failure: %w", err)
	}
	return n, nil
}

// Delete removes the challenge for id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("mfa_challenges").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete mfa challenge sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete mfa challenge: %w", err)
	}
	return nil
}

// DeleteExpired removes challenges that expired before cutoff.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("mfa_challenges").Where(squirrel.Lt{"expires_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge mfa challenges sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge mfa challenges: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanChallenge(row pgx.Row) (*domain.Challenge, error) {
	var c domain.Challenge
	if err := row.Scan(&c.ID, &c.AccountID, &c.Attempts, &c.ExpiresAt, &c.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan mfa challenge: %w", err)
	}
	return &c, nil
}
