package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity-provider/backend/internal/policy/domain"
	"identity-provider/backend/internal/policy/repository"
)

const auditorPolicy = `package idp.authz

allow if {
	input.method == "/idp.account.v1.AccountService/GetAccount"
	"auditor" in input.roles
}
`

func TestOPAAuthorizer_HealthCheck(t *testing.T) {
	a := NewOPAAuthorizer(nil, nil)
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestOPAAuthorizer_DefaultPolicy(t *testing.T) {
	ctx := context.Background()
	a := NewOPAAuthorizer(nil, nil)

	tests := []struct {
		name    string
		method  string
		subject string
		roles   []string
		want    bool
	}{
		{"self-service method", "/idp.auth.v1.AuthService/ChangePassword", "acc-1", nil, true},
		{"session listing", "/idp.session.v1.SessionService/ListSessions", "acc-1", []string{"user"}, true},
		{"admin service without role", "/idp.account.v1.AccountService/CreateAccount", "acc-1", []string{"user"}, false},
		{"admin service with role", "/idp.account.v1.AccountService/CreateAccount", "acc-1", []string{"admin"}, true},
		{"policy service without role", "/idp.policy.v1.PolicyService/ListPolicies", "acc-1", nil, false},
		{"anonymous caller", "/idp.auth.v1.AuthService/ChangePassword", "", nil, false},
		{"anonymous admin role", "/idp.account.v1.AccountService/GetAccount", "", []string{"admin"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := a.Allow(ctx, tt.method, tt.subject, tt.roles)
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if got != tt.want {
				t.Errorf("Allow(%q, %v) = %v, want %v", tt.method, tt.roles, got, tt.want)
			}
		})
	}
}

func TestOPAAuthorizer_StoredPolicyExtendsDefault(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.Create(ctx, &domain.Policy{ID: "p1", Name: "auditors", Rules: auditorPolicy, Enabled: true, CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := NewOPAAuthorizer(repo, nil)
	if err := a.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if a.StoredPolicies() != 1 {
		t.Errorf("StoredPolicies = %d, want 1", a.StoredPolicies())
	}

	ok, err := a.Allow(ctx, "/idp.account.v1.AccountService/GetAccount", "acc-2", []string{"auditor"})
	if err != nil || !ok {
		t.Errorf("auditor GetAccount = %v, %v; want allowed", ok, err)
	}
	ok, err = a.Allow(ctx, "/idp.account.v1.AccountService/DeleteAccount", "acc-2", []string{"auditor"})
	if err != nil || ok {
		t.Errorf("auditor DeleteAccount = %v, %v; want denied", ok, err)
	}

	// Disabled policies are dropped on the next reload.
	p, _ := repo.GetByID(ctx, "p1")
	p.Enabled = false
	if err := repo.Update(ctx, p); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := a.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	ok, _ = a.Allow(ctx, "/idp.account.v1.AccountService/GetAccount", "acc-2", []string{"auditor"})
	if ok {
		t.Error("disabled policy should no longer grant access")
	}
}

func TestOPAAuthorizer_ReloadFailureKeepsPreviousRules(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	a := NewOPAAuthorizer(repo, nil)
	if err := a.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	repo.FailWith(errors.New("db down"))
	if err := a.Reload(ctx); err == nil {
		t.Fatal("Reload should report the load failure")
	}
	ok, err := a.Allow(ctx, "/idp.auth.v1.AuthService/ChangePassword", "acc-1", nil)
	if err != nil || !ok {
		t.Errorf("Allow after failed reload = %v, %v; want previous rules", ok, err)
	}
}

func TestOPAAuthorizer_BrokenStoredPolicyFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	// Redeclaring the default conflicts with the built-in module.
	broken := "package idp.authz\n\ndefault allow := true\n"
	if err := repo.Create(ctx, &domain.Policy{ID: "bad", Name: "bad", Rules: broken, Enabled: true}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	a := NewOPAAuthorizer(repo, nil)
	if err := a.Reload(ctx); err == nil {
		t.Fatal("Reload should fail to compile the conflicting policy")
	}
	ok, err := a.Allow(ctx, "/idp.account.v1.AccountService/DeleteAccount", "acc-1", nil)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Error("built-in policy should still deny non-admins")
	}
}

func TestValidate(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		rules   string
		wantErr bool
	}{
		{"valid extension", auditorPolicy, false},
		{"syntax error", "package idp.authz\n\nallow if {", true},
		{"wrong package", "package other\n\nallow if { true }\n", true},
		{"conflicting default", "package idp.authz\n\ndefault allow := true\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(ctx, tt.rules)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("err = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}
