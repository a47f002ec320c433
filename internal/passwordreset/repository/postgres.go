package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/passwordreset/domain"
)

var tokenColumns = []string{"id", "account_id", "token_hash", "expires_at", "used", "used_at", "created_at"}

// PostgresRepository implements Repository against password_reset_tokens.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	exec    db.Executor
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns a reset token repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within tx.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	return &PostgresRepository{pool: r.pool, exec: tx, tx: tx, builder: r.builder}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.ResetToken) error {
	stmt, args, err := r.builder.Insert("password_reset_tokens").Columns(tokenColumns...).
		Values(t.ID, t.AccountID, t.TokenHash, t.ExpiresAt, t.Used, t.UsedAt, t.CreatedAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert reset token sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	stmt, args, err := r.builder.Select(tokenColumns...).From("password_reset_tokens").
		Where(squirrel.Eq{"token_hash": tokenHash}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select reset token sql: %w", err)
	}
	var t domain.ResetToken
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&t.ID, &t.AccountID, &t.TokenHash, &t.ExpiresAt, &t.Used, &t.UsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select reset token: %w", err)
	}
	return &t, nil
}

func (r *PostgresRepository) CountCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").From("password_reset_tokens").
		Where(squirrel.Eq{"account_id": accountID}).
		Where(squirrel.GtOrEq{"created_at": since}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count reset tokens sql: %w", err)
	}
	var n int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count reset tokens: %w", err)
	}
	return n, nil
}

func (r *PostgresRepository) ConsumeAndUpdatePassword(ctx context.Context, tokenID, accountID, passwordHash string, at time.Time) (bool, error) {
	run := func(txRepo *PostgresRepository) (bool, error) {
		stmt, args, err := txRepo.builder.Update("password_reset_tokens").
			Set("used", true).
			Set("used_at", at).
			Where(squirrel.Eq{"id": tokenID, "used": false}).ToSql()
		if err != nil {
			return false, fmt.Errorf("build consume reset token sql: %w", err)
		}
		tag, err := txRepo.exec.Exec(ctx, stmt, args...)
		if err != nil {
			return false, fmt.Errorf("consume reset token: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return false, nil
		}
		stmt, args, err = txRepo.builder.Update("accounts").
			Set("password_hash", passwordHash).
			Set("updated_at", at).
			Where(squirrel.Eq{"id": accountID}).ToSql()
		if err != nil {
			return false, fmt.Errorf("build update password sql: %w", err)
		}
		tag, err = txRepo.exec.Exec(ctx, stmt, args...)
		if err != nil {
			return false, fmt.Errorf("update password: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return false, fmt.Errorf("update password: account %s not found", accountID)
		}
		return true, nil
	}
	if r.tx != nil {
		return run(r)
	}
	var consumed bool
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		consumed, err = run(r.WithTx(tx))
		return err
	})
	if err != nil {
		return false, err
	}
	return consumed, nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("password_reset_tokens").Where(squirrel.Or{
		squirrel.Lt{"expires_at": cutoff},
		squirrel.And{squirrel.Eq{"used": true}, squirrel.Lt{"used_at": cutoff}},
	}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build purge reset tokens sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("purge reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
