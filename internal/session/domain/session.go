package domain

import "time"

// Session is one issued access token. AccessJti joins it to the token.
type Session struct {
	ID        string
	AccountID string
	AccessJti string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// LiveAt reports whether the session is unrevoked and expires strictly after now.
func (s *Session) LiveAt(now time.Time) bool {
	return s != nil && !s.Revoked && s.ExpiresAt.After(now)
}

// RefreshRecord is one issued refresh token. TokenHash is the SHA-256 hex of the raw token; the
// raw token is never stored.
type RefreshRecord struct {
	ID         string
	AccountID  string
	RefreshJti string
	TokenHash  string
	SessionID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	LastUsedAt *time.Time
	// RotatedAt is set when a refresh exchanged this record for a new pair.
	RotatedAt *time.Time
}

// RefreshStatus is the outcome of checking a refresh record for use.
type RefreshStatus int

const (
	RefreshValid RefreshStatus = iota
	RefreshNotFound
	RefreshRevoked
	RefreshExpired
	// RefreshReused marks a record already exchanged by a refresh; presenting it again is replay.
	RefreshReused
)

func (s RefreshStatus) String() string {
	switch s {
	case RefreshValid:
		return "valid"
	case RefreshNotFound:
		return "not_found"
	case RefreshRevoked:
		return "revoked"
	case RefreshExpired:
		return "expired"
	case RefreshReused:
		return "reused"
	default:
		return "unknown"
	}
}

// StatusAt classifies r at now. Checks run in order: missing, rotated, revoked, expired.
func (r *RefreshRecord) StatusAt(now time.Time) RefreshStatus {
	switch {
	case r == nil:
		return RefreshNotFound
	case r.RotatedAt != nil:
		return RefreshReused
	case r.Revoked:
		return RefreshRevoked
	case !r.ExpiresAt.After(now):
		return RefreshExpired
	default:
		return RefreshValid
	}
}
