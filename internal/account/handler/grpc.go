package handler

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/account/domain"
	accountservice "identity-provider/backend/internal/account/service"
	"identity-provider/backend/internal/server/rpc"
)

// ServiceName is the administrative account service. Only admins may call it.
const ServiceName = "idp.account.v1.AccountService"

// AccountManager is the account engine. *accountservice.Service satisfies it.
type AccountManager interface {
	Create(ctx context.Context, in accountservice.CreateInput) (*domain.Account, error)
	Get(ctx context.Context, id string) (*domain.Account, error)
	UpdateProfile(ctx context.Context, id, givenName, familyName, email string) (*domain.Account, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Lock(ctx context.Context, id string, until *time.Time) error
	Unlock(ctx context.Context, id string) error
	AssignRole(ctx context.Context, id, role string) error
	RemoveRole(ctx context.Context, id, role string) error
	Roles(ctx context.Context, id string) ([]string, error)
	Delete(ctx context.Context, id string) error
}

// MFAVerifier checks TOTP by login identifier for trusted callers. *mfa.Service satisfies it.
type MFAVerifier interface {
	IsEnabled(ctx context.Context, identifier string) (bool, error)
	VerifyByIdentifier(ctx context.Context, identifier, code string) (bool, error)
}

type Empty struct{}

type CreateAccountRequest struct {
	Username   string   `json:"username"`
	Email      string   `json:"email,omitempty"`
	Password   string   `json:"password"`
	GivenName  string   `json:"given_name,omitempty"`
	FamilyName string   `json:"family_name,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Enabled    *bool    `json:"enabled,omitempty"`
}

type AccountIDRequest struct {
	AccountID string `json:"account_id"`
}

type UpdateAccountRequest struct {
	AccountID  string `json:"account_id"`
	GivenName  string `json:"given_name"`
	FamilyName string `json:"family_name"`
	Email      string `json:"email"`
}

type SetAccountEnabledRequest struct {
	AccountID string `json:"account_id"`
	Enabled   bool   `json:"enabled"`
}

// LockAccountRequest locks until Until, or indefinitely when Until is omitted.
type LockAccountRequest struct {
	AccountID string     `json:"account_id"`
	Until     *time.Time `json:"until,omitempty"`
}

type IdentifierRequest struct {
	Identifier string `json:"identifier"`
}

type MFAStatus struct {
	Enabled bool `json:"enabled"`
}

type VerifyMFARequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

type VerifyMFAResponse struct {
	Valid bool `json:"valid"`
}

type RoleRequest struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
}

// Account is the wire form of an account. Credentials never leave the server.
type Account struct {
	ID            string     `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email,omitempty"`
	GivenName     string     `json:"given_name,omitempty"`
	FamilyName    string     `json:"family_name,omitempty"`
	Enabled       bool       `json:"enabled"`
	Locked        bool       `json:"locked"`
	LockExpiresAt *time.Time `json:"lock_expires_at,omitempty"`
	MFAEnabled    bool       `json:"mfa_enabled"`
	Roles         []string   `json:"roles"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
}

// AccountServiceServer is the server API for AccountService.
type AccountServiceServer interface {
	CreateAccount(context.Context, *CreateAccountRequest) (*Account, error)
	GetAccount(context.Context, *AccountIDRequest) (*Account, error)
	UpdateAccount(context.Context, *UpdateAccountRequest) (*Account, error)
	SetAccountEnabled(context.Context, *SetAccountEnabledRequest) (*Empty, error)
	LockAccount(context.Context, *LockAccountRequest) (*Empty, error)
	UnlockAccount(context.Context, *AccountIDRequest) (*Empty, error)
	AddRole(context.Context, *RoleRequest) (*Empty, error)
	RemoveRole(context.Context, *RoleRequest) (*Empty, error)
	DeleteAccount(context.Context, *AccountIDRequest) (*Empty, error)
	GetMFAStatus(context.Context, *IdentifierRequest) (*MFAStatus, error)
	VerifyMFA(context.Context, *VerifyMFARequest) (*VerifyMFAResponse, error)
}

// ServiceDesc describes AccountService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AccountServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "CreateAccount", AccountServiceServer.CreateAccount),
		rpc.Unary(ServiceName, "GetAccount", AccountServiceServer.GetAccount),
		rpc.Unary(ServiceName, "UpdateAccount", AccountServiceServer.UpdateAccount),
		rpc.Unary(ServiceName, "SetAccountEnabled", AccountServiceServer.SetAccountEnabled),
		rpc.Unary(ServiceName, "LockAccount", AccountServiceServer.LockAccount),
		rpc.Unary(ServiceName, "UnlockAccount", AccountServiceServer.UnlockAccount),
		rpc.Unary(ServiceName, "AddRole", AccountServiceServer.AddRole),
		rpc.Unary(ServiceName, "RemoveRole", AccountServiceServer.RemoveRole),
		rpc.Unary(ServiceName, "DeleteAccount", AccountServiceServer.DeleteAccount),
		rpc.Unary(ServiceName, "GetMFAStatus", AccountServiceServer.GetMFAStatus),
		rpc.Unary(ServiceName, "VerifyMFA", AccountServiceServer.VerifyMFA),
	},
	Metadata: "idp/account/v1/account.proto",
}

// Server implements AccountService.
type Server struct {
	accounts AccountManager
	totp     MFAVerifier
}

// NewServer returns a new Account gRPC server. If accounts is nil the account RPCs return
// Unimplemented; if totp is nil the MFA RPCs do.
func NewServer(accounts AccountManager, totp MFAVerifier) *Server {
	return &Server{accounts: accounts, totp: totp}
}

var _ AccountServiceServer = (*Server)(nil)

func (s *Server) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*Account, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method CreateAccount not implemented")
	}
	a, err := s.accounts.Create(ctx, accountservice.CreateInput{
		Username:   req.Username,
		Email:      req.Email,
		Password:   req.Password,
		GivenName:  req.GivenName,
		FamilyName: req.FamilyName,
		Roles:      req.Roles,
		Enabled:    req.Enabled,
	})
	if err != nil {
		return nil, rpc.Error(err)
	}
	return s.withRoles(ctx, a)
}

func (s *Server) GetAccount(ctx context.Context, req *AccountIDRequest) (*Account, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method GetAccount not implemented")
	}
	if req.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id required")
	}
	a, err := s.accounts.Get(ctx, req.AccountID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return s.withRoles(ctx, a)
}

func (s *Server) UpdateAccount(ctx context.Context, req *UpdateAccountRequest) (*Account, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method UpdateAccount not implemented")
	}
	if req.AccountID == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id required")
	}
	a, err := s.accounts.UpdateProfile(ctx, req.AccountID, req.GivenName, req.FamilyName, req.Email)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return s.withRoles(ctx, a)
}

// SetAccountEnabled enables or disables an account. Disabling ends its sessions.
func (s *Server) SetAccountEnabled(ctx context.Context, req *SetAccountEnabledRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method SetAccountEnabled not implemented")
	}
	return s.empty(req.AccountID, func() error { return s.accounts.SetEnabled(ctx, req.AccountID, req.Enabled) })
}

func (s *Server) LockAccount(ctx context.Context, req *LockAccountRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method LockAccount not implemented")
	}
	return s.empty(req.AccountID, func() error { return s.accounts.Lock(ctx, req.AccountID, req.Until) })
}

func (s *Server) UnlockAccount(ctx context.Context, req *AccountIDRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method UnlockAccount not implemented")
	}
	return s.empty(req.AccountID, func() error { return s.accounts.Unlock(ctx, req.AccountID) })
}

// AddRole grants a role. Access tokens already issued keep their old role snapshot.
func (s *Server) AddRole(ctx context.Context, req *RoleRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method AddRole not implemented")
	}
	if req.Role == "" {
		return nil, status.Error(codes.InvalidArgument, "role required")
	}
	return s.empty(req.AccountID, func() error {
		if _, err := s.accounts.Get(ctx, req.AccountID); err != nil {
			return err
		}
		return s.accounts.AssignRole(ctx, req.AccountID, req.Role)
	})
}

func (s *Server) RemoveRole(ctx context.Context, req *RoleRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method RemoveRole not implemented")
	}
	if req.Role == "" {
		return nil, status.Error(codes.InvalidArgument, "role required")
	}
	return s.empty(req.AccountID, func() error { return s.accounts.RemoveRole(ctx, req.AccountID, req.Role) })
}

// DeleteAccount removes an account with its sessions and role grants.
func (s *Server) DeleteAccount(ctx context.Context, req *AccountIDRequest) (*Empty, error) {
	if s.accounts == nil {
		return nil, status.Error(codes.Unimplemented, "method DeleteAccount not implemented")
	}
	return s.empty(req.AccountID, func() error { return s.accounts.Delete(ctx, req.AccountID) })
}

// GetMFAStatus reports whether the account with the given username or email has TOTP enrolled.
// Unknown identifiers report false.
func (s *Server) GetMFAStatus(ctx context.Context, req *IdentifierRequest) (*MFAStatus, error) {
	if s.totp == nil {
		return nil, status.Error(codes.Unimplemented, "method GetMFAStatus not implemented")
	}
	if req.Identifier == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier required")
	}
	enabled, err := s.totp.IsEnabled(ctx, req.Identifier)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return &MFAStatus{Enabled: enabled}, nil
}

// VerifyMFA checks a TOTP code for the account with the given username or email.
func (s *Server) VerifyMFA(ctx context.Context, req *VerifyMFARequest) (*VerifyMFAResponse, error) {
	if s.totp == nil {
		return nil, status.Error(codes.Unimplemented, "method VerifyMFA not implemented")
	}
	if req.Identifier == "" || req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "identifier and code required")
	}
	valid, err := s.totp.VerifyByIdentifier(ctx, req.Identifier, req.Code)
	if err != nil {
		return nil, rpc.Error(err)
	}
	return &VerifyMFAResponse{Valid: valid}, nil
}

func (s *Server) empty(accountID string, fn func() error) (*Empty, error) {
	if accountID == "" {
		return nil, status.Error(codes.InvalidArgument, "account_id required")
	}
	if err := fn(); err != nil {
		return nil, rpc.Error(err)
	}
	return &Empty{}, nil
}

func (s *Server) withRoles(ctx context.Context, a *domain.Account) (*Account, error) {
	roles, err := s.accounts.Roles(ctx, a.ID)
	if err != nil {
		return nil, rpc.Error(err)
	}
	if roles == nil {
		roles = []string{}
	}
	return &Account{
		ID:            a.ID,
		Username:      a.Username,
		Email:         a.Email,
		GivenName:     a.GivenName,
		FamilyName:    a.FamilyName,
		Enabled:       a.Enabled,
		Locked:        a.Locked,
		LockExpiresAt: a.LockExpiresAt,
		MFAEnabled:    a.MFAEnabled,
		Roles:         roles,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
		LastLoginAt:   a.LastLoginAt,
	}, nil
}
