package handler

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/policy/domain"
	policyservice "identity-provider/backend/internal/policy/service"
	"identity-provider/backend/internal/server/rpc"
)

// ServiceName is the administrative policy service.
const ServiceName = "idp.policy.v1.PolicyService"

// PolicyManager stores authorization policies. *policyservice.Service satisfies it.
type PolicyManager interface {
	Create(ctx context.Context, name, rules string, enabled bool) (*domain.Policy, error)
	Update(ctx context.Context, id, name, rules string, enabled bool) (*domain.Policy, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*domain.Policy, error)
	List(ctx context.Context) ([]*domain.Policy, error)
}

type Empty struct{}

type CreatePolicyRequest struct {
	Name    string `json:"name"`
	Rules   string `json:"rules"`
	Enabled bool   `json:"enabled"`
}

type UpdatePolicyRequest struct {
	PolicyID string `json:"policy_id"`
	Name     string `json:"name"`
	Rules    string `json:"rules"`
	Enabled  bool   `json:"enabled"`
}

type PolicyIDRequest struct {
	PolicyID string `json:"policy_id"`
}

type ListPoliciesResponse struct {
	Policies []*Policy `json:"policies"`
}

type Policy struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Rules     string    `json:"rules"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PolicyServiceServer is the server API for PolicyService.
type PolicyServiceServer interface {
	CreatePolicy(context.Context, *CreatePolicyRequest) (*Policy, error)
	UpdatePolicy(context.Context, *UpdatePolicyRequest) (*Policy, error)
	DeletePolicy(context.Context, *PolicyIDRequest) (*Empty, error)
	GetPolicy(context.Context, *PolicyIDRequest) (*Policy, error)
	ListPolicies(context.Context, *Empty) (*ListPoliciesResponse, error)
}

// ServiceDesc describes PolicyService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PolicyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "CreatePolicy", PolicyServiceServer.CreatePolicy),
		rpc.Unary(ServiceName, "UpdatePolicy", PolicyServiceServer.UpdatePolicy),
		rpc.Unary(ServiceName, "DeletePolicy", PolicyServiceServer.DeletePolicy),
		rpc.Unary(ServiceName, "GetPolicy", PolicyServiceServer.GetPolicy),
		rpc.Unary(ServiceName, "ListPolicies", PolicyServiceServer.ListPolicies),
	},
	Metadata: "idp/policy/v1/policy.proto",
}

// Server implements PolicyService for authorization policy CRUD.
type Server struct {
	policies PolicyManager
}

// NewServer returns a new Policy gRPC server. If policies is nil, all RPCs return Unimplemented.
func NewServer(policies PolicyManager) *Server {
	return &Server{policies: policies}
}

var _ PolicyServiceServer = (*Server)(nil)

// CreatePolicy compiles and stores a new policy; the engine picks it up immediately.
func (s *Server) CreatePolicy(ctx context.Context, req *CreatePolicyRequest) (*Policy, error) {
	if s.policies == nil {
		return nil, status.Error(codes.Unimplemented, "method CreatePolicy not implemented")
	}
	p, err := s.policies.Create(ctx, req.Name, req.Rules, req.Enabled)
	if err != nil {
		return nil, policyError(err)
	}
	return policyToWire(p), nil
}

// UpdatePolicy replaces a policy.
func (s *Server) UpdatePolicy(ctx context.Context, req *UpdatePolicyRequest) (*Policy, error) {
	if s.policies == nil {
		return nil, status.Error(codes.Unimplemented, "method UpdatePolicy not implemented")
	}
	if req.PolicyID == "" {
		return nil, status.Error(codes.InvalidArgument, "policy_id required")
	}
	p, err := s.policies.Update(ctx, req.PolicyID, req.Name, req.Rules, req.Enabled)
	if err != nil {
		return nil, policyError(err)
	}
	return policyToWire(p), nil
}

// DeletePolicy deletes a policy.
func (s *Server) DeletePolicy(ctx context.Context, req *PolicyIDRequest) (*Empty, error) {
	if s.policies == nil {
		return nil, status.Error(codes.Unimplemented, "method DeletePolicy not implemented")
	}
	if req.PolicyID == "" {
		return nil, status.Error(codes.InvalidArgument, "policy_id required")
	}
	if err := s.policies.Delete(ctx, req.PolicyID); err != nil {
		return nil, policyError(err)
	}
	return &Empty{}, nil
}

// GetPolicy returns one policy.
func (s *Server) GetPolicy(ctx context.Context, req *PolicyIDRequest) (*Policy, error) {
	if s.policies == nil {
		return nil, status.Error(codes.Unimplemented, "method GetPolicy not implemented")
	}
	if req.PolicyID == "" {
		return nil, status.Error(codes.InvalidArgument, "policy_id required")
	}
	p, err := s.policies.Get(ctx, req.PolicyID)
	if err != nil {
		return nil, policyError(err)
	}
	return policyToWire(p), nil
}

// ListPolicies returns every stored policy.
func (s *Server) ListPolicies(ctx context.Context, _ *Empty) (*ListPoliciesResponse, error) {
	if s.policies == nil {
		return nil, status.Error(codes.Unimplemented, "method ListPolicies not implemented")
	}
	list, err := s.policies.List(ctx)
	if err != nil {
		return nil, policyError(err)
	}
	out := make([]*Policy, len(list))
	for i := range list {
		out[i] = policyToWire(list[i])
	}
	return &ListPoliciesResponse{Policies: out}, nil
}

func policyError(err error) error {
	switch {
	case errors.Is(err, policyservice.ErrPolicyNotFound):
		return status.Error(codes.NotFound, "policy not found")
	case errors.Is(err, policyservice.ErrPolicyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, policyservice.ErrInvalidPolicy):
		// Compile errors carry line numbers the author needs.
		return status.Error(codes.InvalidArgument, err.Error())
	}
	return rpc.Error(err)
}

func policyToWire(p *domain.Policy) *Policy {
	if p == nil {
		return nil
	}
	return &Policy{
		ID:        p.ID,
		Name:      p.Name,
		Rules:     p.Rules,
		Enabled:   p.Enabled,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
