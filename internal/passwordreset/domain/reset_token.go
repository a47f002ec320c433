package domain

import "time"

// ResetToken is a single-use password reset credential. Only the SHA-256 hex of the raw token is
// stored; the raw value exists only on its way to the account holder.
type ResetToken struct {
	ID        string
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the token can no longer be redeemed at now.
func (t *ResetToken) ExpiredAt(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}
