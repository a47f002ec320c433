package repository

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"identity-provider/backend/internal/db"
	"identity-provider/backend/internal/policy/domain"
)

var policyColumns = []string{"id", "name", "rules", "enabled", "created_at", "updated_at"}

// PostgresRepository implements Repository against the authz_policies table.
type PostgresRepository struct {
	exec    db.Executor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns a policy repository that runs statements on exec.
func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID returns the policy for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Policy, error) {
	stmt, args, err := r.builder.Select(policyColumns...).From("authz_policies").
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select policy sql: %w", err)
	}
	p, err := scanPolicy(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select policy: %w", err)
	}
	return p, nil
}

// List returns every policy ordered by name.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Policy, error) {
	return r.list(ctx, nil)
}

// ListEnabled returns the enabled policies ordered by name.
func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]*domain.Policy, error) {
	return r.list(ctx, squirrel.Eq{"enabled": true})
}

func (r *PostgresRepository) list(ctx context.Context, where squirrel.Sqlizer) ([]*domain.Policy, error) {
	q := r.builder.Select(policyColumns...).From("authz_policies").OrderBy("name")
	if where != nil {
		q = q.Where(where)
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list policies sql: %w", err)
	}
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()
	var out []*domain.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Create inserts p. The policy must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Policy) error {
	stmt, args, err := r.builder.Insert("authz_policies").Columns(policyColumns...).
		Values(p.ID, p.Name, p.Rules, p.Enabled, p.CreatedAt, p.UpdatedAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert policy sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("insert policy: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of p.
func (r *PostgresRepository) Update(ctx context.Context, p *domain.Policy) error {
	stmt, args, err := r.builder.Update("authz_policies").
		Set("name", p.Name).
		Set("rules", p.Rules).
		Set("enabled", p.Enabled).
		Set("updated_at", p.UpdatedAt).
		Where(squirrel.Eq{"id": p.ID}).ToSql()
	if err != nil {
		return fmt.Errorf("build update policy sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrDuplicateName
		}
		return fmt.Errorf("update policy: %w", err)
	}
	return nil
}

// Delete removes the policy with id. Deleting a missing policy is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("authz_policies").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete policy sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete policy: %w", err)
	}
	return nil
}

func scanPolicy(row pgx.Row) (*domain.Policy, error) {
	var p domain.Policy
	if err := row.Scan(&p.ID, &p.Name, &p.Rules, &p.Enabled, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
