package handler

import (
	"context"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/audit/domain"
	auditrepo "identity-provider/backend/internal/audit/repository"
	"identity-provider/backend/internal/server/rpc"
)

// ServiceName is the administrative audit service.
const ServiceName = "idp.audit.v1.AuditService"

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// ListAuditLogsRequest pages through entries, newest first. PageToken is the opaque
// next_page_token of the previous response.
type ListAuditLogsRequest struct {
	AccountID string `json:"account_id,omitempty"`
	PageSize  int32  `json:"page_size,omitempty"`
	PageToken string `json:"page_token,omitempty"`
}

type ListAuditLogsResponse struct {
	Logs          []*AuditLog `json:"logs"`
	NextPageToken string      `json:"next_page_token,omitempty"`
}

type AuditLog struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditServiceServer is the server API for AuditService.
type AuditServiceServer interface {
	ListAuditLogs(context.Context, *ListAuditLogsRequest) (*ListAuditLogsResponse, error)
}

// ServiceDesc describes AuditService for grpc.ServiceRegistrar.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuditServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		rpc.Unary(ServiceName, "ListAuditLogs", AuditServiceServer.ListAuditLogs),
	},
	Metadata: "idp/audit/v1/audit.proto",
}

// Server implements AuditService for audit logs.
type Server struct {
	repo auditrepo.Repository
}

// NewServer returns a new Audit gRPC server. If repo is nil, ListAuditLogs returns Unimplemented.
func NewServer(repo auditrepo.Repository) *Server {
	return &Server{repo: repo}
}

// ListAuditLogs returns a page of audit entries, optionally for one account.
func (s *Server) ListAuditLogs(ctx context.Context, req *ListAuditLogsRequest) (*ListAuditLogsResponse, error) {
	if s.repo == nil {
		return nil, status.Error(codes.Unimplemented, "method ListAuditLogs not implemented")
	}
	pageSize := int32(defaultPageSize)
	if req.PageSize > 0 {
		pageSize = req.PageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	offset := uint64(0)
	if req.PageToken != "" {
		n, err := strconv.ParseUint(req.PageToken, 10, 32)
		if err != nil {
			return nil, status.Error(codes.InvalidArgument, "invalid page_token")
		}
		offset = n
	}
	list, err := s.repo.ListByAccount(ctx, req.AccountID, uint64(pageSize), offset)
	if err != nil {
		return nil, rpc.Error(err)
	}
	logs := make([]*AuditLog, len(list))
	for i := range list {
		logs[i] = auditLogToWire(list[i])
	}
	next := ""
	if len(list) == int(pageSize) {
		next = strconv.FormatUint(offset+uint64(pageSize), 10)
	}
	return &ListAuditLogsResponse{Logs: logs, NextPageToken: next}, nil
}

func auditLogToWire(a *domain.AuditLog) *AuditLog {
	return &AuditLog{
		ID:        a.ID,
		AccountID: a.AccountID,
		Action:    a.Action,
		Resource:  a.Resource,
		IP:        a.IP,
		Metadata:  a.Metadata,
		CreatedAt: a.CreatedAt,
	}
}
