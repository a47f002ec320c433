package repository

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"identity-provider/backend/internal/db"
)

// PostgresRepository implements Repository against the roles and account_roles tables.
type PostgresRepository struct {
	exec    db.Executor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns a role repository that runs statements on exec.
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

func (r *PostgresRepository) RoleNames(ctx context.Context, accountID string) ([]string, error) {
	stmt, args, err := r.builder.Select("role_name").From("account_roles").
		Where(squirrel.Eq{"account_id": accountID}).
		OrderBy("role_name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles sql: %w", err)
	}
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan roles: %w", err)
	}
	return names, nil
}

func (r *PostgresRepository) EnsureRole(ctx context.Context, name, description string) error {
	stmt, args, err := r.builder.Insert("roles").Columns("name", "description").Values(name, description).
		Suffix("ON CONFLICT (name) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Assign(ctx context.Context, accountID, role string) error {
	stmt, args, err := r.builder.Insert("account_roles").Columns("account_id", "role_name").Values(accountID, role).
		Suffix("ON CONFLICT (account_id, role_name) DO NOTHING").ToSql()
	if err != nil {
		return fmt.Errorf("build assign role sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Remove(ctx context.Context, accountID, role string) error {
	return r.delete(ctx, squirrel.Eq{"account_id": accountID, "role_name": role})
}

func (r *PostgresRepository) RemoveAllForAccount(ctx context.Context, accountID string) error {
	return r.delete(ctx, squirrel.Eq{"account_id": accountID})
}

func (r *PostgresRepository) delete(ctx context.Context, where squirrel.Eq) error {
	stmt, args, err := r.builder.Delete("account_roles").Where(where).ToSql()
	if err != nil {
		return fmt.Errorf("build remove role sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("remove role: %w", err)
	}
	return nil
}
