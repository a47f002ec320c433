package domain

import (
	"errors"
	"strings"
	"time"
)

// Account is a credential-bearing identity. Username and Email are both unique and either may be
// used as the login identifier.
type Account struct {
	ID             string
	Username       string
	Email          string // optional; empty when not set
	PasswordHash   string
	GivenName      string
	FamilyName     string
	Enabled        bool
	Locked         bool
	FailedAttempts int
	LockExpiresAt  *time.Time // nil with Locked=true is an administrative lock with no expiry
	MFAEnabled     bool
	MFASecret      string // base32 TOTP secret; empty when MFA is not enrolled
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastLoginAt    *time.Time
}

// Validate validates the account for persistence. Returns an error describing the first validation failure.
func (a *Account) Validate() error {
	if strings.TrimSpace(a.Username) == "" {
		return errors.New("username is required")
	}
	if strings.Contains(a.Username, "@") {
		return errors.New("username must not contain @")
	}
	if a.Email != "" && !strings.Contains(a.Email, "@") {
		return errors.New("email is invalid")
	}
	if a.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	return nil
}

// LockedAt reports whether the account is locked at now. An automatic lock whose expiry is at or
// before now no longer applies.
func (a *Account) LockedAt(now time.Time) bool {
	if !a.Locked {
		return false
	}
	if a.LockExpiresAt == nil {
		return true
	}
	return a.LockExpiresAt.After(now)
}

// LockExpired reports whether an automatic lock is present but has run out at now.
func (a *Account) LockExpired(now time.Time) bool {
	return a.Locked && a.LockExpiresAt != nil && !a.LockExpiresAt.After(now)
}

// Label returns the display label used for TOTP provisioning: the email when set, else the username.
func (a *Account) Label() string {
	if a.Email != "" {
		return a.Email
	}
	return a.Username
}
