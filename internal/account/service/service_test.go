package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity-provider/backend/internal/account/repository"
	"identity-provider/backend/internal/password"
	rolerepo "identity-provider/backend/internal/role/repository"
	"identity-provider/backend/internal/security"
	sessionrepo "identity-provider/backend/internal/session/repository"
	sessionservice "identity-provider/backend/internal/session/service"
)

const goodPassword = "Str0ng-Passw0rd!"

type fixture struct {
	svc      *Service
	accounts *repository.MemoryRepository
	roles    *rolerepo.MemoryRepository
	sessions *sessionrepo.MemoryRepository
	ledger   *sessionservice.Ledger
	hasher   *security.Hasher
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		accounts: repository.NewMemoryRepository(),
		roles:    rolerepo.NewMemoryRepository(),
		sessions: sessionrepo.NewMemoryRepository(),
		hasher:   security.NewHasher(4),
		now:      time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.ledger = sessionservice.NewLedger(f.sessions, sessionservice.WithLedgerClock(clock))
	f.svc = NewService(f.accounts, f.roles, f.ledger, password.DefaultPolicy(), f.hasher, WithClock(clock))
	return f
}

func TestCreate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	a, err := f.svc.Create(ctx, CreateInput{
		Username: " alice ",
		Email:    "alice@example.com",
		Password: goodPassword,
		Roles:    []string{"user", "admin"},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if a.Username != "alice" || !a.Enabled || a.ID == "" {
		t.Errorf("account = %+v", a)
	}
	if !f.hasher.Matches(a.PasswordHash, goodPassword) {
		t.Error("stored hash should match the password")
	}
	roles, _ := f.svc.Roles(ctx, a.ID)
	if len(roles) != 2 || roles[0] != "admin" || roles[1] != "user" {
		t.Errorf("roles = %v", roles)
	}
}

func TestCreate_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	if _, err := f.svc.Create(ctx, CreateInput{Username: "alice", Email: "alice@example.com", Password: goodPassword}); err != nil {
		t.Fatalf("seed Create: %v", err)
	}

	tests := []struct {
		name    string
		in      CreateInput
		wantErr error
	}{
		{"duplicate username any case", CreateInput{Username: "ALICE", Password: goodPassword}, ErrAccountExists},
		{"duplicate email", CreateInput{Username: "alice2", Email: "Alice@Example.com", Password: goodPassword}, ErrAccountExists},
		{"weak password", CreateInput{Username: "bob", Password: "a"}, password.ErrPolicyViolation},
		{"empty username", CreateInput{Username: " ", Password: goodPassword}, ErrInvalidAccount},
		{"username with at sign", CreateInput{Username: "b@b", Password: goodPassword}, ErrInvalidAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Create(ctx, tt.in); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, CreateInput{Username: "carol", Password: goodPassword})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, err := f.ledger.RecordSession(ctx, a.ID, "jti-1", time.Hour)
	if err != nil {
		t.Fatalf("RecordSession: %v", err)
	}

	if err := f.svc.ChangePassword(ctx, a.ID, "wrong", "N3w-Passw0rd!"); !errors.Is(err, ErrInvalidCurrentPassword) {
		t.Errorf("wrong current: err = %v", err)
	}
	if err := f.svc.ChangePassword(ctx, a.ID, goodPassword, "weak"); !errors.Is(err, password.ErrPolicyViolation) {
		t.Errorf("weak new: err = %v", err)
	}
	if err := f.svc.ChangePassword(ctx, a.ID, goodPassword, "N3w-Passw0rd!"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if !f.hasher.Matches(stored.PasswordHash, "N3w-Passw0rd!") {
		t.Error("password should be updated")
	}
	got, _ := f.ledger.FindSessionByID(ctx, sess.ID)
	if f.ledger.SessionLive(got) {
		t.Error("sessions should be revoked after a password change")
	}
	if err := f.svc.ChangePassword(ctx, "missing", goodPassword, "N3w-Passw0rd!"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account: err = %v", err)
	}
}

func TestSetEnabledAndLock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, CreateInput{Username: "dave", Password: goodPassword})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, _ := f.ledger.RecordSession(ctx, a.ID, "jti-1", time.Hour)

	if err := f.svc.SetEnabled(ctx, a.ID, false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	stored, _ := f.accounts.GetByID(ctx, a.ID)
	if stored.Enabled {
		t.Error("account should be disabled")
	}
	got, _ := f.ledger.FindSessionByID(ctx, sess.ID)
	if f.ledger.SessionLive(got) {
		t.Error("disabling should revoke sessions")
	}

	if err := f.svc.Lock(ctx, a.ID, nil); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	stored, _ = f.accounts.GetByID(ctx, a.ID)
	if !stored.LockedAt(f.now.Add(1000 * time.Hour)) {
		t.Error("administrative lock should not expire")
	}
	if err := f.svc.Unlock(ctx, a.ID); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	stored, _ = f.accounts.GetByID(ctx, a.ID)
	if stored.Locked || stored.FailedAttempts != 0 {
		t.Errorf("after unlock: locked=%v attempts=%d", stored.Locked, stored.FailedAttempts)
	}
}

func TestUpdateProfile(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, _ := f.svc.Create(ctx, CreateInput{Username: "erin", Email: "erin@example.com", Password: goodPassword})
	if _, err := f.svc.Create(ctx, CreateInput{Username: "fay", Email: "fay@example.com", Password: goodPassword}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := f.svc.UpdateProfile(ctx, a.ID, "Erin", "Smith", "FAY@example.com"); !errors.Is(err, ErrAccountExists) {
		t.Errorf("taken email: err = %v", err)
	}
	updated, err := f.svc.UpdateProfile(ctx, a.ID, "Erin", "Smith", "erin.smith@example.com")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.GivenName != "Erin" || updated.Email != "erin.smith@example.com" {
		t.Errorf("updated = %+v", updated)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a, err := f.svc.Create(ctx, CreateInput{Username: "gil", Password: goodPassword, Roles: []string{"user"}})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	sess, _ := f.ledger.RecordSession(ctx, a.ID, "jti-1", time.Hour)

	if err := f.svc.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.svc.Get(ctx, a.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("Get after delete: err = %v", err)
	}
	if got, _ := f.ledger.FindSessionByID(ctx, sess.ID); got != nil {
		t.Error("ledger rows should be deleted with the account")
	}
	if roles, _ := f.roles.RoleNames(ctx, a.ID); len(roles) != 0 {
		t.Errorf("roles = %v, want none", roles)
	}
	if err := f.svc.Delete(ctx, a.ID); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("second Delete: err = %v", err)
	}
}
