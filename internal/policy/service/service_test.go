package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity-provider/backend/internal/policy/engine"
	"identity-provider/backend/internal/policy/repository"
)

const auditorPolicy = `package idp.authz

allow if {
	input.method == "/idp.account.v1.AccountService/GetAccount"
	"auditor" in input.roles
}
`

func newService(t *testing.T) (*Service, *engine.OPAAuthorizer) {
	t.Helper()
	repo := repository.NewMemoryRepository()
	authz := engine.NewOPAAuthorizer(repo, nil)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	return NewService(repo, authz, WithClock(func() time.Time { return now })), authz
}

func TestCreate_ReloadsEngine(t *testing.T) {
	ctx := context.Background()
	svc, authz := newService(t)

	p, err := svc.Create(ctx, " auditors ", auditorPolicy, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.Name != "auditors" || p.ID == "" {
		t.Errorf("policy = %+v", p)
	}
	ok, err := authz.Allow(ctx, "/idp.account.v1.AccountService/GetAccount", "acc-1", []string{"auditor"})
	if err != nil || !ok {
		t.Errorf("Allow after Create = %v, %v; want allowed", ok, err)
	}

	if _, err := svc.Create(ctx, "auditors", auditorPolicy, true); !errors.Is(err, ErrPolicyExists) {
		t.Errorf("duplicate name err = %v, want ErrPolicyExists", err)
	}
}

func TestCreate_RejectsInvalidRules(t *testing.T) {
	svc, _ := newService(t)
	tests := []struct {
		name, policyName, rules string
	}{
		{"blank name", "", auditorPolicy},
		{"syntax error", "broken", "package idp.authz\nallow if {"},
		{"wrong package", "other", "package other\n\nallow if { true }\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(context.Background(), tt.policyName, tt.rules, true); !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("err = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	svc, authz := newService(t)
	p, err := svc.Create(ctx, "auditors", auditorPolicy, true)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := svc.Update(ctx, p.ID, "auditors", auditorPolicy, false); err != nil {
		t.Fatalf("Update: %v", err)
	}
	ok, _ := authz.Allow(ctx, "/idp.account.v1.AccountService/GetAccount", "acc-1", []string{"auditor"})
	if ok {
		t.Error("disabled policy should not grant access")
	}

	if err := svc.Delete(ctx, p.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := svc.Get(ctx, p.ID); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Get after Delete err = %v", err)
	}
	if _, err := svc.Update(ctx, p.ID, "x", auditorPolicy, true); !errors.Is(err, ErrPolicyNotFound) {
		t.Errorf("Update missing err = %v", err)
	}
	list, err := svc.List(ctx)
	if err != nil || len(list) != 0 {
		t.Errorf("List = %v, %v; want empty", list, err)
	}
}
