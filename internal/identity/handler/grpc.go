package handler

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "identity-provider/backend/internal/identity/service"
	"identity-provider/backend/internal/mfa"
	"identity-provider/backend/internal/server/interceptors"
	"identity-provider/backend/internal/server/rpc"
)

// ServiceName is the gRPC service implemented by AuthServer.
const ServiceName = "idp.auth.v1.AuthService"

// Authenticator is the authentication engine. *identityservice.AuthService satisfies it.
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*identityservice.LoginResult, error)
	CompleteMFALogin(ctx context.Context, challengeID, code string) (*identityservice.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*identityservice.TokenPair, error)
	Logout(ctx context.Context, accessToken, refreshToken string) error
	ValidateAccessToken(ctx context.Context, accessToken string) bool
	Introspect(ctx context.Context, token string) identityservice.Introspection
	RevokeRefreshToken(ctx context.Context, refreshToken string) error
	UserInfo(ctx context.Context, accountID string) (*identityservice.UserInfo, error)
}

// PasswordResetter runs the reset flow. *passwordresetservice.Service satisfies it.
type PasswordResetter interface {
	Initiate(ctx context.Context, identifier string) error
	Complete(ctx context.Context, rawToken, newPassword string) error
}

// PasswordChanger changes the caller's own password. *accountservice.Service satisfies it.
type PasswordChanger interface {
	ChangePassword(ctx context.Context, id, current, next string) error
}

// MFAManager enrolls, checks and disables TOTP. *mfa.Service satisfies it.
type MFAManager interface {
	Enroll(ctx context.Context, accountID string) (*mfa.Enrollment, error)
	ProvisioningURI(ctx context.Context, accountID string) (string, error)
	Verify(ctx context.Context, accountID, code string) (bool, error)
	Disable(ctx context.Context, accountID string) error
}

// AuthServiceServer is the server API for AuthService.
type AuthServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	CompleteMFALogin(context.Context, *CompleteMFALoginRequest) (*TokenPair, error)
	Refresh(context.Context, *RefreshRequest) (*TokenPair, error)
	Logout(context.Context, *LogoutRequest) (*Empty, error)
	ValidateToken(context.Context, *ValidateTokenRequest) (*ValidateTokenResponse, error)
	Introspect(context.Context, *IntrospectRequest) (*IntrospectResponse, error)
	RevokeRefreshToken(context.Context, *RevokeRefreshTokenRequest) (*Empty, error)
	RequestPasswordReset(context.Context, *RequestPasswordResetRequest) (*Empty, error)
	CompletePasswordReset(context.Context, *CompletePasswordResetRequest) (*Empty, error)
	ChangePassword(context.Context, *ChangePasswordRequest) (*Empty, error)
	EnrollMFA(context.Context, *Empty) (*EnrollMFAResponse, error)
	DisableMFA(context.Context, *DisableMFARequest) (*Empty, error)
	GetUserInfo(context.Context, *Empty) (*UserInfoResponse, error)
	GetMFAStatus(context.Context, *Empty) (*MFAStatusResponse, error)
	VerifyMFA(context.Context, *VerifyMFARequest) (*VerifyMFAResponse, error)
}

// ServiceDesc describes AuthService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "Login", AuthServiceServer.Login),
		rpc.Unary(ServiceName, "CompleteMFALogin", AuthServiceServer.CompleteMFALogin),
		rpc.Unary(ServiceName, "Refresh", AuthServiceServer.Refresh),
		rpc.Unary(ServiceName, "Logout", AuthServiceServer.Logout),
		rpc.Unary(ServiceName, "ValidateToken", AuthServiceServer.ValidateToken),
		rpc.Unary(ServiceName, "Introspect", AuthServiceServer.Introspect),
		rpc.Unary(ServiceName, "RevokeRefreshToken", AuthServiceServer.RevokeRefreshToken),
		rpc.Unary(ServiceName, "RequestPasswordReset", AuthServiceServer.RequestPasswordReset),
		rpc.Unary(ServiceName, "CompletePasswordReset", AuthServiceServer.CompletePasswordReset),
		rpc.Unary(ServiceName, "ChangePassword", AuthServiceServer.ChangePassword),
		rpc.Unary(ServiceName, "EnrollMFA", AuthServiceServer.EnrollMFA),
		rpc.Unary(ServiceName, "DisableMFA", AuthServiceServer.DisableMFA),
		rpc.Unary(ServiceName, "GetUserInfo", AuthServiceServer.GetUserInfo),
		rpc.Unary(ServiceName, "GetMFAStatus", AuthServiceServer.GetMFAStatus),
		rpc.Unary(ServiceName, "VerifyMFA", AuthServiceServer.VerifyMFA),
	},
	Metadata: "idp/auth/v1/auth.proto",
}

// PublicMethods lists the calls that do not require a bearer token.
func PublicMethods() []string {
	return []string{
		rpc.FullMethod(ServiceName, "Login"),
		rpc.FullMethod(ServiceName, "CompleteMFALogin"),
		rpc.FullMethod(ServiceName, "Refresh"),
		rpc.FullMethod(ServiceName, "Logout"),
		rpc.FullMethod(ServiceName, "ValidateToken"),
		rpc.FullMethod(ServiceName, "Introspect"),
		rpc.FullMethod(ServiceName, "RevokeRefreshToken"),
		rpc.FullMethod(ServiceName, "RequestPasswordReset"),
		rpc.FullMethod(ServiceName, "CompletePasswordReset"),
	}
}

// AuthServer implements AuthService: login, token lifecycle, password reset and self-service
// password and MFA changes. Nil dependencies make their RPCs return Unimplemented.
type AuthServer struct {
	auth      Authenticator
	resets    PasswordResetter
	passwords PasswordChanger
	mfa       MFAManager
}

// NewAuthServer returns a new Auth gRPC server.
func NewAuthServer(auth Authenticator, resets PasswordResetter, passwords PasswordChanger, totp MFAManager) *AuthServer {
	return &AuthServer{auth: auth, resets: resets, passwords: passwords, mfa: totp}
}

var _ AuthServiceServer = (*AuthServer)(nil)

// Login authenticates with a username or email and password.
func (s *AuthServer) Login(ctx context.Context, req *LoginRequest) (*LoginResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Login not implemented")
	}
	if strings.TrimSpace(req.Identifier) == "" || req.Password == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier and password are required")
	}
	res, err := s.auth.Login(ctx, req.Identifier, req.Password)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if res.MFARequired {
		expires := res.ChallengeExpiresAt
		return &LoginResponse{MFARequired: true, ChallengeID: res.ChallengeID, ChallengeExpiresAt: &expires}, nil
	}
	return &LoginResponse{Tokens: tokenPairToWire(res.Tokens)}, nil
}

// CompleteMFALogin finishes a login with the TOTP code for the challenge.
func (s *AuthServer) CompleteMFALogin(ctx context.Context, req *CompleteMFALoginRequest) (*TokenPair, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method CompleteMFALogin not implemented")
	}
	if req.ChallengeID == "" || req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "challenge_id and code are required")
	}
	pair, err := s.auth.CompleteMFALogin(ctx, req.ChallengeID, req.Code)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return tokenPairToWire(pair), nil
}

// Refresh exchanges a refresh token for a new pair.
func (s *AuthServer) Refresh(ctx context.Context, req *RefreshRequest) (*TokenPair, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Refresh not implemented")
	}
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token is required")
	}
	pair, err := s.auth.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return tokenPairToWire(pair), nil
}

// Logout ends the session behind the access token. It succeeds for unknown or already ended
// sessions.
func (s *AuthServer) Logout(ctx context.Context, req *LogoutRequest) (*Empty, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Logout not implemented")
	}
	if err := s.auth.Logout(ctx, req.AccessToken, req.RefreshToken); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// ValidateToken reports whether an access token is currently accepted.
func (s *AuthServer) ValidateToken(ctx context.Context, req *ValidateTokenRequest) (*ValidateTokenResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method ValidateToken not implemented")
	}
	return &ValidateTokenResponse{Valid: s.auth.ValidateAccessToken(ctx, req.AccessToken)}, nil
}

// Introspect describes an access or refresh token.
func (s *AuthServer) Introspect(ctx context.Context, req *IntrospectRequest) (*IntrospectResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method Introspect not implemented")
	}
	return introspectionToWire(s.auth.Introspect(ctx, req.Token)), nil
}

// RevokeRefreshToken revokes a single refresh token.
func (s *AuthServer) RevokeRefreshToken(ctx context.Context, req *RevokeRefreshTokenRequest) (*Empty, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method RevokeRefreshToken not implemented")
	}
	if req.RefreshToken == "" {
		return nil, status.Error(codes.InvalidArgument, "refresh_token is required")
	}
	if err := s.auth.RevokeRefreshToken(ctx, req.RefreshToken); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// RequestPasswordReset issues a reset token out of band. The response is the same whether or not
// the account exists.
func (s *AuthServer) RequestPasswordReset(ctx context.Context, req *RequestPasswordResetRequest) (*Empty, error) {
	if s.resets == nil {
		return nil, status.Error(codes.Unimplemented, "method RequestPasswordReset not implemented")
	}
	if err := s.resets.Initiate(ctx, req.Identifier); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// CompletePasswordReset redeems a reset token and sets the new password.
func (s *AuthServer) CompletePasswordReset(ctx context.Context, req *CompletePasswordResetRequest) (*Empty, error) {
	if s.resets == nil {
		return nil, status.Error(codes.Unimplemented, "method CompletePasswordReset not implemented")
	}
	if err := s.resets.Complete(ctx, req.Token, req.NewPassword); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// ChangePassword changes the caller's password and ends all their sessions.
func (s *AuthServer) ChangePassword(ctx context.Context, req *ChangePasswordRequest) (*Empty, error) {
	if s.passwords == nil {
		return nil, status.Error(codes.Unimplemented, "method ChangePassword not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	if err := s.passwords.ChangePassword(ctx, accountID, req.CurrentPassword, req.NewPassword); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// EnrollMFA enrolls the caller in TOTP and returns the new secret.
func (s *AuthServer) EnrollMFA(ctx context.Context, _ *Empty) (*EnrollMFAResponse, error) {
	if s.mfa == nil {
		return nil, status.Error(codes.Unimplemented, "method EnrollMFA not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	e, err := s.mfa.Enroll(ctx, accountID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return &EnrollMFAResponse{Secret: e.Secret, ProvisioningURI: e.URI}, nil
}

// DisableMFA turns TOTP off for the caller after checking a current code.
func (s *AuthServer) DisableMFA(ctx context.Context, req *DisableMFARequest) (*Empty, error) {
	if s.mfa == nil {
		return nil, status.Error(codes.Unimplemented, "method DisableMFA not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	valid, err := s.mfa.Verify(ctx, accountID, req.Code)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if !valid {
		return nil, rpc.Error(mfa.ErrInvalidMFACode)
	}
	if err := s.mfa.Disable(ctx, accountID); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

// GetUserInfo returns the caller's profile and current roles.
func (s *AuthServer) GetUserInfo(ctx context.Context, _ *Empty) (*UserInfoResponse, error) {
	if s.auth == nil {
		return nil, status.Error(codes.Unimplemented, "method GetUserInfo not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	info, err := s.auth.UserInfo(ctx, accountID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return userInfoToWire(info), nil
}

// GetMFAStatus reports whether the caller has TOTP enrolled and, if so, its provisioning URI.
func (s *AuthServer) GetMFAStatus(ctx context.Context, _ *Empty) (*MFAStatusResponse, error) {
	if s.mfa == nil {
		return nil, status.Error(codes.Unimplemented, "method GetMFAStatus not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	uri, err := s.mfa.ProvisioningURI(ctx, accountID)
	if errors.Is(err, mfa.ErrMFANotEnabled) {
		return &MFAStatusResponse{}, nil
	}
	if err != nil {
		return nil, rpc.Error(err)
	}
	return &MFAStatusResponse{Enabled: true, ProvisioningURI: uri}, nil
}

// VerifyMFA checks a TOTP code for the caller without changing any state.
func (s *AuthServer) VerifyMFA(ctx context.Context, req *VerifyMFARequest) (*VerifyMFAResponse, error) {
	if s.mfa == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyMFA not implemented")
	}
	accountID, ok := interceptors.GetAccountID(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing or invalid authorization")
	}
	if req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "code is required")
	}
	valid, err := s.mfa.Verify(ctx, accountID, req.Code)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return &VerifyMFAResponse{Valid: valid}, nil
}
