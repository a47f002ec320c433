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
	"identity-provider/backend/internal/session/domain"
)

var (
	sessionColumns = []string{"id", "account_id", "access_jti", "created_at", "expires_at", "revoked", "revoked_at"}
	refreshColumns = []string{"id", "account_id", "refresh_jti", "token_hash", "session_id", "created_at", "expires_at", "revoked", "revoked_at", "last_used_at", "rotated_at"}
)

// PostgresRepository implements Repository against the sessions and refresh_records tables.
type PostgresRepository struct {
	pool    *pgxpool.Pool
	exec    db.Executor
	tx      pgx.Tx
	builder squirrel.StatementBuilderType
}

// NewPostgresRepository returns a session repository backed by pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{
		pool:    pool,
		exec:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance executing within tx.
func (r *PostgresRepository) WithTx(tx pgx.Tx) *PostgresRepository {
	if tx == nil {
		return r
	}
	return &PostgresRepository{pool: r.pool, exec: tx, tx: tx, builder: r.builder}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, s *domain.Session) error {
	stmt, args, err := r.builder.Insert("sessions").Columns(sessionColumns...).
		Values(s.ID, s.AccountID, s.AccessJti, s.CreatedAt, s.ExpiresAt, s.Revoked, s.RevokedAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *PostgresRepository) CreateRefresh(ctx context.Context, rec *domain.RefreshRecord) error {
	stmt, args, err := r.builder.Insert("refresh_records").Columns(refreshColumns...).
		Values(rec.ID, rec.AccountID, rec.RefreshJti, rec.TokenHash, rec.SessionID, rec.CreatedAt,
			rec.ExpiresAt, rec.Revoked, rec.RevokedAt, rec.LastUsedAt, rec.RotatedAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh record sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert refresh record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	return r.getSession(ctx, squirrel.Eq{"id": id})
}

func (r *PostgresRepository) GetSessionByAccessJti(ctx context.Context, jti string) (*domain.Session, error) {
	return r.getSession(ctx, squirrel.Eq{"access_jti": jti})
}

func (r *PostgresRepository) GetRefreshByJti(ctx context.Context, jti string) (*domain.RefreshRecord, error) {
	stmt, args, err := r.builder.Select(refreshColumns...).From("refresh_records").
		Where(squirrel.Eq{"refresh_jti": jti}).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh record sql: %w", err)
	}
	var rec domain.RefreshRecord
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(&rec.ID, &rec.AccountID, &rec.RefreshJti, &rec.TokenHash,
		&rec.SessionID, &rec.CreatedAt, &rec.ExpiresAt, &rec.Revoked, &rec.RevokedAt, &rec.LastUsedAt, &rec.RotatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select refresh record: %w", err)
	}
	return &rec, nil
}

func (r *PostgresRepository) ListActiveSessions(ctx context.Context, accountID string, now time.Time) ([]*domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).From("sessions").
		Where(squirrel.Eq{"account_id": accountID, "revoked": false}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("created_at DESC").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list sessions sql: %w", err)
	}
	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	var out []*domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RevokeSession(ctx context.Context, id string, at time.Time) error {
	return r.revoke(ctx, "sessions", squirrel.Eq{"id": id}, at)
}

func (r *PostgresRepository) RevokeRefresh(ctx context.Context, id string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("refresh_records").
		Set("revoked", true).Set("revoked_at", at).
		Where(squirrel.Eq{"id": id, "revoked": false}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build revoke refresh record sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("revoke refresh record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) RevokeRefreshBySession(ctx context.Context, sessionID string, at time.Time) error {
	return r.revoke(ctx, "refresh_records", squirrel.Eq{"session_id": sessionID}, at)
}

func (r *PostgresRepository) RevokeAllForAccount(ctx context.Context, accountID string, at time.Time) error {
	if err := r.revoke(ctx, "sessions", squirrel.Eq{"account_id": accountID}, at); err != nil {
		return err
	}
	return r.revoke(ctx, "refresh_records", squirrel.Eq{"account_id": accountID}, at)
}

func (r *PostgresRepository) TouchRefresh(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("refresh_records").Set("last_used_at", at).
		Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build touch refresh record sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("touch refresh record: %w", err)
	}
	return nil
}

// Rotate runs the CAS revoke and both inserts in one transaction. Called on a repository bound
// to a transaction, it joins that transaction instead.
func (r *PostgresRepository) Rotate(ctx context.Context, oldRefreshID string, revokeOld bool, at time.Time, s *domain.Session, rec *domain.RefreshRecord) (bool, error) {
	run := func(txRepo *PostgresRepository) (bool, error) {
		if revokeOld {
			ok, err := txRepo.markRotated(ctx, oldRefreshID, at)
			if err != nil || !ok {
				return false, err
			}
		}
		if err := txRepo.CreateSession(ctx, s); err != nil {
			return false, err
		}
		if err := txRepo.CreateRefresh(ctx, rec); err != nil {
			return false, err
		}
		return true, nil
	}
	if r.tx != nil {
		return run(r)
	}
	var rotated bool
	err := db.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		rotated, err = run(r.WithTx(tx))
		return err
	})
	if err != nil {
		return false, err
	}
	return rotated, nil
}

// markRotated revokes the refresh record and stamps rotated_at if it is not revoked yet.
func (r *PostgresRepository) markRotated(ctx context.Context, id string, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("refresh_records").
		Set("revoked", true).Set("revoked_at", at).Set("rotated_at", at).
		Where(squirrel.Eq{"id": id, "revoked": false}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build rotate refresh record sql: %w", err)
	}
	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("rotate refresh record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) DeleteForAccount(ctx context.Context, accountID string) error {
	for _, table := range []string{"refresh_records", "sessions"} {
		stmt, args, err := r.builder.Delete(table).Where(squirrel.Eq{"account_id": accountID}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete %s sql: %w", table, err)
		}
		if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	return nil
}

func (r *PostgresRepository) PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	var total int64
	for _, table := range []string{"refresh_records", "sessions"} {
		stmt, args, err := r.builder.Delete(table).Where(squirrel.Or{
			squirrel.Lt{"expires_at": cutoff},
			squirrel.Lt{"revoked_at": cutoff},
		}).ToSql()
		if err != nil {
			return total, fmt.Errorf("build purge %s sql: %w", table, err)
		}
		tag, err := r.exec.Exec(ctx, stmt, args...)
		if err != nil {
			return total, fmt.Errorf("purge %s: %w", table, err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// revoke flags matching rows of table as revoked. Rows already revoked keep their revoked_at.
func (r *PostgresRepository) revoke(ctx context.Context, table string, where squirrel.Eq, at time.Time) error {
	stmt, args, err := r.builder.Update(table).Set("revoked", true).Set("revoked_at", at).
		Where(where).Where(squirrel.Eq{"revoked": false}).ToSql()
	if err != nil {
		return fmt.Errorf("build revoke %s sql: %w", table, err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke %s: %w", table, err)
	}
	return nil
}

func (r *PostgresRepository) getSession(ctx context.Context, where squirrel.Eq) (*domain.Session, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).From("sessions").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}
	s, err := scanSession(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select session: %w", err)
	}
	return s, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var s domain.Session
	if err := row.Scan(&s.ID, &s.AccountID, &s.AccessJti, &s.CreatedAt, &s.ExpiresAt, &s.Revoked, &s.RevokedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
