package devoutbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"identity-provider/backend/internal/notify"
)

func TestMemoryStore_PutAndGetByEitherIdentifier(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour)

	store.Put(ctx, notify.ResetMessage{AccountID: "acc-1", Username: "Alice", Email: "alice@example.com", Token: "tok-1", ExpiresAt: expiresAt})

	for _, id := range []string{"alice", " ALICE ", "Alice@Example.com"} {
		token, exp, ok := store.Get(ctx, id)
		if !ok || token != "tok-1" || !exp.Equal(expiresAt) {
			t.Errorf("Get(%q) = %q, %v, %v", id, token, exp, ok)
		}
	}
	if _, _, ok := store.Get(ctx, "bob"); ok {
		t.Error("unknown identifier should miss")
	}
}

func TestMemoryStore_LatestTokenWins(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	store.Put(ctx, notify.ResetMessage{Username: "alice", Token: "first", ExpiresAt: exp})
	store.Put(ctx, notify.ResetMessage{Username: "alice", Token: "second", ExpiresAt: exp})

	if token, _, _ := store.Get(ctx, "alice"); token != "second" {
		t.Errorf("token = %q, want second", token)
	}
}

func TestMemoryStore_Get_ExpiredIsRemoved(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.nowF = func() time.Time { return now }
	ctx := context.Background()

	store.Put(ctx, notify.ResetMessage{Username: "alice", Token: "tok", ExpiresAt: now})
	if _, _, ok := store.Get(ctx, "alice"); ok {
		t.Fatal("a token expiring now should not be returned")
	}
	store.mu.RLock()
	_, present := store.m["alice"]
	store.mu.RUnlock()
	if present {
		t.Error("expired entry should be deleted")
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Put(ctx, notify.ResetMessage{Username: "alice", Token: "tok", ExpiresAt: exp})
		}()
		go func() {
			defer wg.Done()
			store.Get(ctx, "alice")
		}()
	}
	wg.Wait()
}

type recordingNotifier struct {
	sent   int
	closed bool
	err    error
}

func (r *recordingNotifier) SendPasswordReset(context.Context, notify.ResetMessage) error {
	r.sent++
	return r.err
}

func (r *recordingNotifier) Close() error {
	r.closed = true
	return nil
}

func TestNotifier_StoresThenForwards(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	next := &recordingNotifier{err: errors.New("broker down")}
	n := NewNotifier(store, next)

	msg := notify.ResetMessage{Username: "alice", Token: "tok", ExpiresAt: time.Now().Add(time.Hour)}
	if err := n.SendPasswordReset(ctx, msg); !errors.Is(err, next.err) {
		t.Errorf("err = %v, want forwarded error", err)
	}
	if next.sent != 1 {
		t.Errorf("forwarded %d messages, want 1", next.sent)
	}
	if token, _, ok := store.Get(ctx, "alice"); !ok || token != "tok" {
		t.Error("token should be stored even when forwarding fails")
	}
	if err := n.Close(); err != nil || !next.closed {
		t.Errorf("Close: %v, closed=%v", err, next.closed)
	}

	alone := NewNotifier(store, nil)
	if err := alone.SendPasswordReset(ctx, msg); err != nil {
		t.Errorf("SendPasswordReset without next: %v", err)
	}
	if err := alone.Close(); err != nil {
		t.Errorf("Close without next: %v", err)
	}
}
