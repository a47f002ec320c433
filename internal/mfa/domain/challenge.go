package domain

import "time"

// Challenge is a pending second-factor login step. It is created after the password check
// passes for an MFA-enabled account and consumed by the first correct code.
type Challenge struct {
	ID        string
	AccountID string
	Attempts  int
	ExpiresAt time.Time
	CreatedAt time.Time
}

// ExpiredAt reports whether the challenge can no longer be completed at now.
func (c *Challenge) ExpiredAt(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
