package repository

import (
	"context"
	"testing"
	"time"

	accountdomain "identity-provider/backend/internal/account/domain"
	accountrepo "identity-provider/backend/internal/account/repository"
	"identity-provider/backend/internal/passwordreset/domain"
)

func TestMemoryRepository_ConsumeIsSingleUse(t *testing.T) {
	ctx := context.Background()
	accounts := accountrepo.NewMemoryRepository()
	if err := accounts.Create(ctx, &accountdomain.Account{ID: "acc-1", Username: "alice", PasswordHash: "old", Enabled: true}); err != nil {
		t.Fatalf("create account: %v", err)
	}
	repo := NewMemoryRepository(accounts)
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	tok := &domain.ResetToken{ID: "t1", AccountID: "acc-1", TokenHash: "h1", ExpiresAt: now.Add(time.Hour), CreatedAt: now}
	if err := repo.Create(ctx, tok); err != nil {
		t.Fatalf("Create: %v", err)
	}

	ok, err := repo.ConsumeAndUpdatePassword(ctx, "t1", "acc-1", "new", now)
	if err != nil || !ok {
		t.Fatalf("first consume = %v, %v", ok, err)
	}
	ok, err = repo.ConsumeAndUpdatePassword(ctx, "t1", "acc-1", "newer", now)
	if err != nil || ok {
		t.Fatalf("second consume = %v, %v; want false", ok, err)
	}
	a, _ := accounts.GetByID(ctx, "acc-1")
	if a.PasswordHash != "new" {
		t.Errorf("PasswordHash = %q, want new", a.PasswordHash)
	}
	got, _ := repo.GetByHash(ctx, "h1")
	if !got.Used || got.UsedAt == nil {
		t.Errorf("token = %+v, want used", got)
	}
}

func TestMemoryRepository_CountCreatedSince(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(accountrepo.NewMemoryRepository())
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, at := range []time.Time{base, base.Add(30 * time.Minute), base.Add(2 * time.Hour)} {
		tok := &domain.ResetToken{ID: string(rune('a' + i)), AccountID: "acc-1", TokenHash: string(rune('A' + i)), ExpiresAt: at.Add(time.Hour), CreatedAt: at}
		if err := repo.Create(ctx, tok); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	n, err := repo.CountCreatedSince(ctx, "acc-1", base.Add(30*time.Minute))
	if err != nil {
		t.Fatalf("CountCreatedSince: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
	if n, _ := repo.CountCreatedSince(ctx, "other", base); n != 0 {
		t.Errorf("other account count = %d, want 0", n)
	}
}
