package rbac

import (
	"context"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/server/interceptors"
)

func TestRequireSelfOrAdmin(t *testing.T) {
	user := interceptors.Identity{AccountID: "acc-1", Roles: []string{"user"}}
	admin := interceptors.Identity{AccountID: "acc-9", Roles: []string{"user", AdminRole}}

	testCases := []struct {
		name       string
		ctx        context.Context
		requested  string
		wantTarget string
		wantCode   codes.Code
	}{
		{"no identity", context.Background(), "", "", codes.Unauthenticated},
		{"own account implicit", interceptors.WithIdentity(context.Background(), user), "", "acc-1", codes.OK},
		{"own account explicit", interceptors.WithIdentity(context.Background(), user), "acc-1", "acc-1", codes.OK},
		{"other account as user", interceptors.WithIdentity(context.Background(), user), "acc-2", "", codes.PermissionDenied},
		{"other account as admin", interceptors.WithIdentity(context.Background(), admin), "acc-2", "acc-2", codes.OK},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, target, err := RequireSelfOrAdmin(tc.ctx, tc.requested)
			if got := status.Code(err); got != tc.wantCode {
				t.Fatalf("code = %v, want %v (err %v)", got, tc.wantCode, err)
			}
			if target != tc.wantTarget {
				t.Errorf("target = %q, want %q", target, tc.wantTarget)
			}
		})
	}
}

func TestCanActOn(t *testing.T) {
	user := interceptors.Identity{AccountID: "acc-1"}
	admin := interceptors.Identity{AccountID: "acc-9", Roles: []string{AdminRole}}
	if !CanActOn(user, "acc-1") || CanActOn(user, "acc-2") {
		t.Error("users may only act on themselves")
	}
	if !CanActOn(admin, "acc-2") {
		t.Error("admins may act on any account")
	}
}
