package handler

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	identityservice "identity-provider/backend/internal/identity/service"
	"identity-provider/backend/internal/server/interceptors"
	"identity-provider/backend/internal/session/domain"
)

// fakeSessions implements SessionManager over a map.
type fakeSessions struct {
	sessions   map[string]*domain.Session
	revoked    []string
	revokedAll []string
}

func newFakeSessions() *fakeSessions {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &fakeSessions{sessions: map[string]*domain.Session{
		"s1": {ID: "s1", AccountID: "acc-1", AccessJti: "jti-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		"s2": {ID: "s2", AccountID: "acc-1", AccessJti: "jti-2", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		"s3": {ID: "s3", AccountID: "acc-2", AccessJti: "jti-3", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}}
}

func (f *fakeSessions) ListSessions(ctx context.Context, accountID string) ([]*domain.Session, error) {
	var out []*domain.Session
	for _, id := range []string{"s1", "s2", "s3"} {
		if s := f.sessions[id]; s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSessions) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, identityservice.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeSessions) RevokeSession(ctx context.Context, id string) error {
	f.revoked = append(f.revoked, id)
	return nil
}

func (f *fakeSessions) RevokeAllSessions(ctx context.Context, accountID string) error {
	f.revokedAll = append(f.revokedAll, accountID)
	return nil
}

func callerCtx(accountID, jti string, roles ...string) context.Context {
	return interceptors.WithIdentity(context.Background(), interceptors.Identity{AccountID: accountID, TokenID: jti, Roles: roles})
}

func wantCode(t *testing.T, err error, want codes.Code) {
	t.Helper()
	st, ok := status.FromError(err)
	if !ok || err == nil {
		t.Fatalf("expected status %v, got %v", want, err)
	}
	if st.Code() != want {
		t.Errorf("status code = %v, want %v", st.Code(), want)
	}
}

func TestNilManager_Unimplemented(t *testing.T) {
	srv := NewServer(nil)
	_, err := srv.ListSessions(callerCtx("acc-1", "jti-1"), &ListSessionsRequest{})
	wantCode(t, err, codes.Unimplemented)
}

func TestListSessions(t *testing.T) {
	srv := NewServer(newFakeSessions())

	resp, err := srv.ListSessions(callerCtx("acc-1", "jti-2"), &ListSessionsRequest{})
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(resp.Sessions) != 2 {
		t.Fatalf("sessions = %d, want 2", len(resp.Sessions))
	}
	if resp.Sessions[0].Current || !resp.Sessions[1].Current {
		t.Error("only the session of the presented token should be current")
	}

	_, err = srv.ListSessions(callerCtx("acc-1", "jti-1"), &ListSessionsRequest{AccountID: "acc-2"})
	wantCode(t, err, codes.PermissionDenied)

	resp, err = srv.ListSessions(callerCtx("admin-1", "jti-x", "admin"), &ListSessionsRequest{AccountID: "acc-2"})
	if err != nil {
		t.Fatalf("admin ListSessions: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].ID != "s3" {
		t.Errorf("admin view = %+v", resp.Sessions)
	}

	_, err = srv.ListSessions(context.Background(), &ListSessionsRequest{})
	wantCode(t, err, codes.Unauthenticated)
}

func TestRevokeSession(t *testing.T) {
	fake := newFakeSessions()
	srv := NewServer(fake)

	_, err := srv.RevokeSession(callerCtx("acc-1", "jti-1"), &RevokeSessionRequest{})
	wantCode(t, err, codes.InvalidArgument)

	// Another account's session is reported as missing.
	_, err = srv.RevokeSession(callerCtx("acc-1", "jti-1"), &RevokeSessionRequest{SessionID: "s3"})
	wantCode(t, err, codes.NotFound)

	_, err = srv.RevokeSession(callerCtx("acc-1", "jti-1"), &RevokeSessionRequest{SessionID: "nope"})
	wantCode(t, err, codes.NotFound)

	if _, err := srv.RevokeSession(callerCtx("acc-1", "jti-1"), &RevokeSessionRequest{SessionID: "s2"}); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}
	if _, err := srv.RevokeSession(callerCtx("admin-1", "jti-x", "admin"), &RevokeSessionRequest{SessionID: "s3"}); err != nil {
		t.Fatalf("admin RevokeSession: %v", err)
	}
	if len(fake.revoked) != 2 || fake.revoked[0] != "s2" || fake.revoked[1] != "s3" {
		t.Errorf("revoked = %v", fake.revoked)
	}
}

func TestRevokeAllSessions(t *testing.T) {
	fake := newFakeSessions()
	srv := NewServer(fake)

	if _, err := srv.RevokeAllSessions(callerCtx("acc-1", "jti-1"), &RevokeAllSessionsRequest{}); err != nil {
		t.Fatalf("RevokeAllSessions: %v", err)
	}
	_, err := srv.RevokeAllSessions(callerCtx("acc-1", "jti-1"), &RevokeAllSessionsRequest{AccountID: "acc-2"})
	wantCode(t, err, codes.PermissionDenied)
	if _, err := srv.RevokeAllSessions(callerCtx("admin-1", "jti-x", "admin"), &RevokeAllSessionsRequest{AccountID: "acc-2"}); err != nil {
		t.Fatalf("admin RevokeAllSessions: %v", err)
	}
	if len(fake.revokedAll) != 2 || fake.revokedAll[0] != "acc-1" || fake.revokedAll[1] != "acc-2" {
		t.Errorf("revokedAll = %v", fake.revokedAll)
	}
}
