package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "identity-provider/backend/internal/identity/service"
	"identity-provider/backend/internal/platform/rbac"
	"identity-provider/backend/internal/server/rpc"
	"identity-provider/backend/internal/session/domain"
)

// ServiceName is the gRPC service implemented by Server.
const ServiceName = "idp.session.v1.SessionService"

// SessionManager reads and ends ledger sessions. *identityservice.AuthService satisfies it.
type SessionManager interface {
	ListSessions(ctx context.Context, accountID string) ([]*domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string) error
	RevokeAllSessions(ctx context.Context, accountID string) error
}

type Empty struct{}

// ListSessionsRequest lists the caller's sessions, or AccountID's when the caller is an admin.
type ListSessionsRequest struct {
	AccountID string `json:"account_id,omitempty"`
}

type ListSessionsResponse struct {
	Sessions []*Session `json:"sessions"`
}

type RevokeSessionRequest struct {
	SessionID string `json:"session_id"`
}

// RevokeAllSessionsRequest ends every session of the caller, or of AccountID for an admin.
type RevokeAllSessionsRequest struct {
	AccountID string `json:"account_id,omitempty"`
}

// Session is the wire form of a live session.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Current   bool      `json:"current"`
}

// SessionServiceServer is the server API for SessionService.
type SessionServiceServer interface {
	ListSessions(context.Context, *ListSessionsRequest) (*ListSessionsResponse, error)
	RevokeSession(context.Context, *RevokeSessionRequest) (*Empty, error)
	RevokeAllSessions(context.Context, *RevokeAllSessionsRequest) (*Empty, error)
}

// ServiceDesc describes SessionService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SessionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "ListSessions", SessionServiceServer.ListSessions),
		rpc.Unary(ServiceName, "RevokeSession", SessionServiceServer.RevokeSession),
		rpc.Unary(ServiceName, "RevokeAllSessions", SessionServiceServer.RevokeAllSessions),
	},
	Metadata: "idp/session/v1/session.proto",
}

// Server implements SessionService. Callers manage their own sessions; admins manage anyone's.
type Server struct {
	sessions SessionManager
}

// NewServer returns a new Session gRPC server. If sessions is nil, all RPCs return Unimplemented.
func NewServer(sessions SessionManager) *Server {
	return &Server{sessions: sessions}
}

var _ SessionServiceServer = (*Server)(nil)

// ListSessions returns the live sessions of the target account, newest first.
func (s *Server) ListSessions(ctx context.Context, req *ListSessionsRequest) (*ListSessionsResponse, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method ListSessions not implemented")
	}
	caller, target, err := rbac.RequireSelfOrAdmin(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	list, err := s.sessions.ListSessions(ctx, target)
	if err != nil {
		return nil, rpc.Error(err)
	}
	out := make([]*Session, len(list))
	for i, ses := range list {
		out[i] = sessionToWire(ses, caller.TokenID)
	}
	return &ListSessionsResponse{Sessions: out}, nil
}

// RevokeSession ends one session. Sessions of other accounts look missing to non-admins.
func (s *Server) RevokeSession(ctx context.Context, req *RevokeSessionRequest) (*Empty, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeSession not implemented")
	}
	caller, err := rbac.RequireCaller(ctx)
	if err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, status.Error(codes.InvalidArgument, "session_id required")
	}
	ses, err := s.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if !rbac.CanActOn(caller, ses.AccountID) {
		return nil, rpc.Error(identityservice.ErrSessionNotFound)
	}
	if err := s.sessions.RevokeSession(ctx, ses.ID); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// RevokeAllSessions ends every session of the target account.
func (s *Server) RevokeAllSessions(ctx context.Context, req *RevokeAllSessionsRequest) (*Empty, error) {
	if s.sessions == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeAllSessions not implemented")
	}
	_, target, err := rbac.RequireSelfOrAdmin(ctx, req.AccountID)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.RevokeAllSessions(ctx, target); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

func sessionToWire(s *domain.Session, currentJti string) *Session {
	return &Session{
		ID:        s.ID,
		AccountID: s.AccountID,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
		Current:   currentJti != "" && s.AccessJti == currentJti,
	}
}
