package domain

import (
	"testing"
	"time"
)

func TestAccount_Validate(t *testing.T) {
	tests := []struct {
		name    string
		account Account
		wantErr bool
	}{
		{"valid", Account{Username: "alice", Email: "alice@example.com", PasswordHash: "h"}, false},
		{"valid without email", Account{Username: "alice", PasswordHash: "h"}, false},
		{"missing username", Account{Username: "  ", PasswordHash: "h"}, true},
		{"username with at", Account{Username: "a@b", PasswordHash: "h"}, true},
		{"bad email", Account{Username: "alice", Email: "nope", PasswordHash: "h"}, true},
		{"missing hash", Account{Username: "alice"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.account.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccount_LockedAt(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name        string
		account     Account
		wantLocked  bool
		wantExpired bool
	}{
		{"unlocked", Account{}, false, false},
		{"admin lock", Account{Locked: true}, true, false},
		{"future expiry", Account{Locked: true, LockExpiresAt: &future}, true, false},
		{"past expiry", Account{Locked: true, LockExpiresAt: &past}, false, true},
		{"expiry exactly now", Account{Locked: true, LockExpiresAt: &now}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.account.LockedAt(now); got != tt.wantLocked {
				t.Errorf("LockedAt = %v, want %v", got, tt.wantLocked)
			}
			if got := tt.account.LockExpired(now); got != tt.wantExpired {
				t.Errorf("LockExpired = %v, want %v", got, tt.wantExpired)
			}
		})
	}
}

func TestAccount_Label(t *testing.T) {
	a := Account{Username: "alice", Email: "alice@example.com"}
	if a.Label() != "alice@example.com" {
		t.Errorf("Label = %q", a.Label())
	}
	a.Email = ""
	if a.Label() != "alice" {
		t.Errorf("Label = %q", a.Label())
	}
}
