package interceptors

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Authorizer decides whether subject holding roles may call method.
type Authorizer interface {
	Allow(ctx context.Context, method, subject string, roles []string) (bool, error)
}

// AuthorizeUnary returns a unary server interceptor that asks authz whether the authenticated
// caller may invoke the method. It must run after AuthUnary. Public methods are not checked.
// Evaluation errors deny the call.
func AuthorizeUnary(authz Authorizer, publicMethods map[string]bool, log *zap.Logger) grpc.UnaryServerInterceptor {
	if log == nil {
		log = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if publicMethods[info.FullMethod] {
			return handler(ctx, req)
		}
		id, ok := IdentityFrom(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
		}
		allowed, err := authz.Allow(ctx, info.FullMethod, id.AccountID, id.Roles)
		if err != nil {
			log.Error("authorization evaluation failed", zap.String("method", info.FullMethod), zap.Error(err))
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		if !allowed {
			log.Info("authorization denied", zap.String("method", info.FullMethod), zap.String("account_id", id.AccountID))
			return nil, status.Error(codes.PermissionDenied, "permission denied")
		}
		return handler(ctx, req)
	}
}
