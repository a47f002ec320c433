package repository

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"

	"identity-provider/backend/internal/audit/domain"
	"identity-provider/backend/internal/db"
)

var auditColumns = []string{"id", "account_id", "action", "resource", "ip", "metadata", "created_at"}

// PostgresRepository implements Repository against the audit_logs table.
type PostgresRepository struct {
	exec    db.Executor
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns an audit log repository that runs statements on exec.
func NewPostgresRepository(exec db.Executor) *PostgresRepository {
	return &PostgresRepository{exec: exec, builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

// Create persists a. The entry must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.AuditLog) error {
	stmt, args, err := r.builder.Insert("audit_logs").Columns(auditColumns...).Values(
		a.ID, nullIfEmpty(a.AccountID), a.Action, a.Resource, a.IP, nullIfEmpty(a.Metadata), a.CreatedAt,
	).ToSql()
	if err != nil {
		return fmt.Errorf("build insert audit log sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// ListByAccount returns the newest entries for accountID, paginated by limit and offset. An empty
// accountID lists entries of every account.
func (r *PostgresRepository) ListByAccount(ctx context.Context, accountID string, limit, offset uint64) ([]*domain.AuditLog, error) {
	q := r.builder.Select(auditColumns...).From("audit_logs").
		OrderBy("created_at DESC").Limit(limit).Offset(offset)
	if accountID != "" {
		q = q.Where(squirrel.Eq{"account_id": accountID})
	}
	stmt, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list audit logs sql: %w", err)
	}
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	defer rows.Close()
	var out []*domain.AuditLog
	for rows.Next() {
		var (
			a        domain.AuditLog
			acct     *string
			metadata *string
		)
		if err := rows.Scan(&a.ID, &acct, &a.Action, &a.Resource, &a.IP, &metadata, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit log: %w", err)
		}
		if acct != nil {
			a.AccountID = *acct
		}
		if metadata != nil {
			a.Metadata = *metadata
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

// DeleteBefore removes entries older than cutoff.
func (r *PostgresRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	stmt, args, err := r.builder.Delete("audit_logs").Where(squirrel.Lt{"created_at": cutoff}).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete audit logs sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete audit logs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
