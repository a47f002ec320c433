package handler

import (
	"context"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"identity-provider/backend/internal/devoutbox"
	"identity-provider/backend/internal/notify"
)

func TestGetResetToken(t *testing.T) {
	ctx := context.Background()
	store := devoutbox.NewMemoryStore()
	expiresAt := time.Now().Add(time.Hour).UTC()
	store.Put(ctx, notify.ResetMessage{AccountID: "acc-1", Username: "alice", Email: "alice@example.com", Token: "raw-token", ExpiresAt: expiresAt})
	srv := NewServer(store)

	resp, err := srv.GetResetToken(ctx, &GetResetTokenRequest{Identifier: "alice@example.com"})
	if err != nil {
		t.Fatalf("GetResetToken: %v", err)
	}
	if resp.Token != "raw-token" || !resp.ExpiresAt.Equal(expiresAt) || resp.Note != devNote {
		t.Errorf("response = %+v", resp)
	}

	testCases := []struct {
		name       string
		identifier string
		want       codes.Code
	}{
		{"empty identifier", "", codes.InvalidArgument},
		{"unknown identifier", "bob", codes.NotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := srv.GetResetToken(ctx, &GetResetTokenRequest{Identifier: tc.identifier})
			if status.Code(err) != tc.want {
				t.Errorf("code = %v, want %v", status.Code(err), tc.want)
			}
		})
	}
}
