package interceptors

import "context"

type contextKey struct{ name string }

var (
	identityKey     = contextKey{"identity"}
	identitySlotKey = contextKey{"identity-slot"}
)

// Identity is the authenticated caller as established by AuthUnary.
type Identity struct {
	AccountID   string
	Username    string
	Roles       []string
	TokenID     string
	AccessToken string
}

// HasRole reports whether the caller holds role.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithIdentity returns a context carrying id. It also fills the slot installed by an outer
// LoggingUnary so the request log line names the caller.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	if slot, ok := ctx.Value(identitySlotKey).(*Identity); ok {
		*slot = id
	}
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller identity and true if AuthUnary authenticated the request.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok && id.AccountID != ""
}

// GetAccountID returns the authenticated account id, or "", false.
func GetAccountID(ctx context.Context) (string, bool) {
	id, ok := IdentityFrom(ctx)
	return id.AccountID, ok
}
