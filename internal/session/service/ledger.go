// Package service holds the session ledger: the persistent record of every issued access and
// refresh token and its revocation state.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"identity-provider/backend/internal/session/domain"
	"identity-provider/backend/internal/session/repository"
)

// Ledger records and revokes sessions and refresh records. It keeps no state of its own; every
// check re-reads the repository.
type Ledger struct {
	repo repository.Repository
	now  func() time.Time
}

// LedgerOption configures a Ledger.
type LedgerOption func(*Ledger)

// WithLedgerClock overrides the time source.
func WithLedgerClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger returns a Ledger over repo.
func NewLedger(repo repository.Repository, opts ...LedgerOption) *Ledger {
	l := &Ledger{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's current time.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

// NewSession builds an unsaved session for accessJti expiring ttl from now.
func (l *Ledger) NewSession(accountID, accessJti string, ttl time.Duration) *domain.Session {
	now := l.Now()
	return &domain.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		AccessJti: accessJti,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// NewRefresh builds an unsaved refresh record. tokenHash is the SHA-256 hex of the raw token.
func (l *Ledger) NewRefresh(accountID, refreshJti, tokenHash, sessionID string, ttl time.Duration) *domain.RefreshRecord {
	now := l.Now()
	return &domain.RefreshRecord{
		ID:         uuid.New().String(),
		AccountID:  accountID,
		RefreshJti: refreshJti,
		TokenHash:  tokenHash,
		SessionID:  sessionID,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
}

// RecordSession persists a session for accessJti.
func (l *Ledger) RecordSession(ctx context.Context, accountID, accessJti string, ttl time.Duration) (*domain.Session, error) {
	if accountID == "" || accessJti == "" {
		return nil, errors.New("record session: account id and jti are required")
	}
	s := l.NewSession(accountID, accessJti, ttl)
	if err := l.repo.CreateSession(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordRefresh persists a refresh record linked to sessionID.
func (l *Ledger) RecordRefresh(ctx context.Context, accountID, refreshJti, tokenHash, sessionID string, ttl time.Duration) (*domain.RefreshRecord, error) {
	if accountID == "" || refreshJti == "" || tokenHash == "" {
		return nil, errors.New("record refresh: account id, jti and token hash are required")
	}
	r := l.NewRefresh(accountID, refreshJti, tokenHash, sessionID, ttl)
	if err := l.repo.CreateRefresh(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordPair persists a freshly minted session and its refresh record together.
func (l *Ledger) RecordPair(ctx context.Context, s *domain.Session, r *domain.RefreshRecord) error {
	if s == nil || r == nil {
		return errors.New("record pair: session and refresh record are required")
	}
	_, err := l.repo.Rotate(ctx, "", false, l.Now(), s, r)
	return err
}

// FindSessionByAccessJti returns the session for jti, or nil.
func (l *Ledger) FindSessionByAccessJti(ctx context.Context, jti string) (*domain.Session, error) {
	if jti == "" {
		return nil, nil
	}
	return l.repo.GetSessionByAccessJti(ctx, jti)
}

// FindSessionByID returns the session for id, or nil.
func (l *Ledger) FindSessionByID(ctx context.Context, id string) (*domain.Session, error) {
	if id == "" {
		return nil, nil
	}
	return l.repo.GetSessionByID(ctx, id)
}

// FindRefreshByJti returns the refresh record for jti, or nil.
func (l *Ledger) FindRefreshByJti(ctx context.Context, jti string) (*domain.RefreshRecord, error) {
	if jti == "" {
		return nil, nil
	}
	return l.repo.GetRefreshByJti(ctx, jti)
}

// SessionLive reports whether s exists, is unrevoked, and has not expired.
func (l *Ledger) SessionLive(s *domain.Session) bool {
	return s.LiveAt(l.Now())
}

// RefreshStatus classifies r for use now.
func (l *Ledger) RefreshStatus(r *domain.RefreshRecord) domain.RefreshStatus {
	return r.StatusAt(l.Now())
}

// RevokeSession revokes s. Nil or already revoked sessions are a no-op.
func (l *Ledger) RevokeSession(ctx context.Context, s *domain.Session) error {
	if s == nil || s.Revoked {
		return nil
	}
	return l.repo.RevokeSession(ctx, s.ID, l.Now())
}

// RevokeRefresh revokes r. Nil or already revoked records are a no-op.
func (l *Ledger) RevokeRefresh(ctx context.Context, r *domain.RefreshRecord) error {
	if r == nil || r.Revoked {
		return nil
	}
	_, err := l.repo.RevokeRefresh(ctx, r.ID, l.Now())
	return err
}

// RevokeSessionByID revokes the session and every refresh record minted with it.
// Returns false when no session has that id.
func (l *Ledger) RevokeSessionByID(ctx context.Context, id string) (bool, error) {
	s, err := l.FindSessionByID(ctx, id)
	if err != nil || s == nil {
		return false, err
	}
	now := l.Now()
	if err := l.repo.RevokeSession(ctx, s.ID, now); err != nil {
		return true, err
	}
	return true, l.repo.RevokeRefreshBySession(ctx, s.ID, now)
}

// RevokeAllForAccount revokes every session and refresh record of accountID.
func (l *Ledger) RevokeAllForAccount(ctx context.Context, accountID string) error {
	return l.repo.RevokeAllForAccount(ctx, accountID, l.Now())
}

// ListActiveSessions returns the unrevoked, unexpired sessions of accountID, newest first.
func (l *Ledger) ListActiveSessions(ctx context.Context, accountID string) ([]*domain.Session, error) {
	return l.repo.ListActiveSessions(ctx, accountID, l.Now())
}

// Touch stamps r's last-used time.
func (l *Ledger) Touch(ctx context.Context, r *domain.RefreshRecord) error {
	return l.repo.TouchRefresh(ctx, r.ID, l.Now())
}

// Rotate stores the replacement pair for old. With strict, old is revoked by compare-and-swap in
// the same transaction; false means another rotation or revocation won and nothing was stored.
func (l *Ledger) Rotate(ctx context.Context, old *domain.RefreshRecord, strict bool, s *domain.Session, r *domain.RefreshRecord) (bool, error) {
	return l.repo.Rotate(ctx, old.ID, strict, l.Now(), s, r)
}

// DeleteForAccount hard-deletes every ledger row of accountID. Used only by account deletion.
func (l *Ledger) DeleteForAccount(ctx context.Context, accountID string) error {
	return l.repo.DeleteForAccount(ctx, accountID)
}

// PurgeExpired hard-deletes rows that expired or were revoked more than retention ago.
func (l *Ledger) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	return l.repo.PurgeExpired(ctx, l.Now().Add(-retention))
}
