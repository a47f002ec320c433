// Package rbac resolves which account a caller may act on from the role snapshot in its access
// token.
package rbac

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/server/interceptors"
)

// AdminRole may act on any account.
const AdminRole = "admin"

// RequireCaller returns the authenticated caller, or Unauthenticated.
func RequireCaller(ctx context.Context) (interceptors.Identity, error) {
	caller, ok := interceptors.IdentityFrom(ctx)
	if !ok {
		return caller, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	return caller, nil
}

// RequireSelfOrAdmin returns the caller and the account a request acts on. An empty requested
// id means the caller's own account; naming another account requires AdminRole.
func RequireSelfOrAdmin(ctx context.Context, requested string) (caller interceptors.Identity, target string, err error) {
	caller, err = RequireCaller(ctx)
	if err != nil {
		return caller, "", err
	}
	if requested == "" || requested == caller.AccountID {
		return caller, caller.AccountID, nil
	}
	if !caller.HasRole(AdminRole) {
		return caller, "", status.Error(codes.PermissionDenied, "account_id does not match caller")
	}
	return caller, requested, nil
}

// CanActOn reports whether caller may act on accountID.
func CanActOn(caller interceptors.Identity, accountID string) bool {
	return caller.AccountID == accountID || caller.HasRole(AdminRole)
}
