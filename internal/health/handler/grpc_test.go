package handler

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"google.golang.org/grpc/codes"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// mockPinger implements Pinger for tests.
type mockPinger struct {
	pingErr error
}

func (m *mockPinger) Ping(context.Context) error {
	return m.pingErr
}

// mockPolicyChecker implements PolicyChecker for tests.
type mockPolicyChecker struct {
	healthErr error
}

func (m *mockPolicyChecker) HealthCheck(context.Context) error {
	return m.healthErr
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name   string
		pinger Pinger
		policy PolicyChecker
		want   healthgrpc.HealthCheckResponse_ServingStatus
	}{
		{"no checks", nil, nil, healthgrpc.HealthCheckResponse_SERVING},
		{"pinger ok", &mockPinger{}, nil, healthgrpc.HealthCheckResponse_SERVING},
		{"pinger fails", &mockPinger{pingErr: errors.New("connection refused")}, nil, healthgrpc.HealthCheckResponse_NOT_SERVING},
		{"policy ok", nil, &mockPolicyChecker{}, healthgrpc.HealthCheckResponse_SERVING},
		{"policy fails", nil, &mockPolicyChecker{healthErr: errors.New("rego compile failed")}, healthgrpc.HealthCheckResponse_NOT_SERVING},
		{"both, policy fails", &mockPinger{}, &mockPolicyChecker{healthErr: errors.New("policy error")}, healthgrpc.HealthCheckResponse_NOT_SERVING},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(tt.pinger, tt.policy, nil, nil)
			resp, err := srv.Check(context.Background(), &healthgrpc.HealthCheckRequest{})
			if err != nil {
				t.Fatalf("Check must not return a gRPC error for failing dependencies: %v", err)
			}
			if resp.GetStatus() != tt.want {
				t.Errorf("status = %v, want %v", resp.GetStatus(), tt.want)
			}
		})
	}
}

func TestCheck_ServiceNames(t *testing.T) {
	srv := NewServer(nil, nil, []string{"idp.auth.v1.AuthService"}, nil)
	if _, err := srv.Check(context.Background(), &healthgrpc.HealthCheckRequest{Service: "idp.auth.v1.AuthService"}); err != nil {
		t.Fatalf("Check registered service: %v", err)
	}
	_, err := srv.Check(context.Background(), &healthgrpc.HealthCheckRequest{Service: "nope"})
	if st, _ := status.FromError(err); st.Code() != codes.NotFound {
		t.Errorf("unknown service code = %v, want NotFound", st.Code())
	}
}

func TestCheck_LogsFailure(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	srv := NewServer(&mockPinger{pingErr: errors.New("connection refused")}, nil, nil, zap.New(core))
	if _, err := srv.Check(context.Background(), &healthgrpc.HealthCheckRequest{}); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if logs.FilterMessage("health: database ping failed").Len() != 1 {
		t.Error("expected the ping failure to be logged")
	}
}
