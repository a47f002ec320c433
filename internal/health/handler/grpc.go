package handler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// checkTimeout bounds each dependency probe.
const checkTimeout = 2 * time.Second

// Pinger checks database connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PolicyChecker checks that the authorization engine evaluates. *engine.OPAAuthorizer satisfies it.
type PolicyChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server implements grpc.health.v1.Health for readiness and liveness probes. The empty service
// name and every registered service report the same overall status.
type Server struct {
	healthgrpc.UnimplementedHealthServer
	pinger   Pinger
	policy   PolicyChecker
	services map[string]bool
	log      *zap.Logger
}

// NewServer returns a new Health gRPC server. Nil checks are skipped. services lists the names
// Check answers for besides "".
func NewServer(pinger Pinger, policy PolicyChecker, services []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	known := map[string]bool{"": true}
	for _, name := range services {
		known[name] = true
	}
	return &Server{pinger: pinger, policy: policy, services: known, log: log}
}

// Check returns SERVING when the database answers a ping and the policy engine evaluates.
func (s *Server) Check(ctx context.Context, req *healthgrpc.HealthCheckRequest) (*healthgrpc.HealthCheckResponse, error) {
	if !s.services[req.GetService()] {
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	return &healthgrpc.HealthCheckResponse{Status: s.probe(ctx)}, nil
}

func (s *Server) probe(ctx context.Context) healthgrpc.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	if s.pinger != nil {
		if err := s.pinger.Ping(ctx); err != nil {
			s.log.Warn("health: database ping failed", zap.Error(err))
			return healthgrpc.HealthCheckResponse_NOT_SERVING
		}
	}
	if s.policy != nil {
		if err := s.policy.HealthCheck(ctx); err != nil {
			s.log.Warn("health: policy engine check failed", zap.Error(err))
			return healthgrpc.HealthCheckResponse_NOT_SERVING
		}
	}
	return healthgrpc.HealthCheckResponse_SERVING
}
