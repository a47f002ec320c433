package interceptors

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/security"
)

const bearerPrefix = "bearer "

// TokenAuthenticator validates an access token against the codec and the session ledger.
// *identityservice.AuthService satisfies it.
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*security.Claims, error)
}

// AuthUnary returns a unary server interceptor that validates the Bearer access token from gRPC
// metadata and stores the caller Identity in the context. publicMethods is the set of full
// method names that do not require a token (login, refresh, reset, health); a valid token on a
// public method still populates the Identity.
func AuthUnary(auth TokenAuthenticator, publicMethods map[string]bool) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		token := extractBearer(ctx)
		public := publicMethods[info.FullMethod]

		if token == "" {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		claims, err := auth.Authenticate(ctx, token)
		if err != nil {
			if public {
				return handler(ctx, req)
			}
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}

		ctx = WithIdentity(ctx, Identity{
			AccountID:   claims.Subject,
			Username:    claims.Username,
			Roles:       claims.Roles,
			TokenID:     claims.ID,
			AccessToken: token,
		})
		return handler(ctx, req)
	}
}

// extractBearer returns the Bearer token from ctx metadata, or "" if missing or malformed.
func extractBearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return ""
	}
	v := strings.TrimSpace(vals[0])
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}
