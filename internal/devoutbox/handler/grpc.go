// Package handler implements the dev-only gRPC DevService (GetResetToken).
package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/devoutbox"
	"identity-provider/backend/internal/server/rpc"
)

// ServiceName is the dev-only service. It is registered only when the outbox is enabled.
const ServiceName = "idp.dev.v1.DevService"

const devNote = "DEV MODE ONLY"

type GetResetTokenRequest struct {
	Identifier string `json:"identifier"`
}

type GetResetTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Note      string    `json:"note"`
}

// DevServiceServer is the server API for DevService.
type DevServiceServer interface {
	GetResetToken(context.Context, *GetResetTokenRequest) (*GetResetTokenResponse, error)
}

// ServiceDesc describes DevService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DevServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "GetResetToken", DevServiceServer.GetResetToken),
	},
	Metadata: "idp/dev/v1/dev.proto",
}

// PublicMethods lists the DevService methods callable without a token.
func PublicMethods() []string {
	return []string{rpc.FullMethod(ServiceName, "GetResetToken")}
}

// Server implements DevService.
type Server struct {
	store devoutbox.Store
}

// NewServer returns a DevService server that reads tokens from store.
func NewServer(store devoutbox.Store) *Server {
	return &Server{store: store}
}

// GetResetToken returns the latest unexpired reset token for identifier. Returns NotFound if
// missing or expired.
func (s *Server) GetResetToken(ctx context.Context, req *GetResetTokenRequest) (*GetResetTokenResponse, error) {
	if req.Identifier == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier is required")
	}
	token, expiresAt, ok := s.store.Get(ctx, req.Identifier)
	if !ok {
		return nil, status.Error(codes.NotFound, "reset token not found or expired")
	}
	return &GetResetTokenResponse{Token: token, ExpiresAt: expiresAt, Note: devNote}, nil
}
