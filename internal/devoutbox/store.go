// Package devoutbox keeps the latest password reset token per account in memory so a developer
// can finish a reset without a mail pipeline. Only wired when DEV_RESET_OUTBOX is set outside
// production.
package devoutbox

import (
	"context"
	"strings"
	"sync"
	"time"

	"identity-provider/backend/internal/notify"
)

// Store holds reset tokens by username and email for dev-only retrieval. Not used in production.
type Store interface {
	// Put stores the token from msg until msg.ExpiresAt, replacing any earlier one for the account.
	Put(ctx context.Context, msg notify.ResetMessage)
	// Get returns the token for identifier (username or email) if present and not expired.
	Get(ctx context.Context, identifier string) (token string, expiresAt time.Time, ok bool)
}

type entry struct {
	token     string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.RWMutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory outbox.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: time.Now,
	}
}

func key(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}

// Put stores msg.Token under the account's username and email.
func (s *MemoryStore) Put(ctx context.Context, msg notify.ResetMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := entry{token: msg.Token, expiresAt: msg.ExpiresAt}
	for _, id := range []string{msg.Username, msg.Email} {
		if k := key(id); k != "" {
			s.m[k] = e
		}
	}
}

// Get returns the token for identifier if present and not expired. Expired entries are dropped.
func (s *MemoryStore) Get(ctx context.Context, identifier string) (string, time.Time, bool) {
	k := key(identifier)
	s.mu.RLock()
	e, ok := s.m[k]
	s.mu.RUnlock()
	if !ok {
		return "", time.Time{}, false
	}
	if !e.expiresAt.After(s.nowF()) {
		s.mu.Lock()
		delete(s.m, k)
		s.mu.Unlock()
		return "", time.Time{}, false
	}
	return e.token, e.expiresAt, true
}

// Notifier records every reset message in a Store and then forwards it to next, if any.
type Notifier struct {
	store Store
	next  notify.Notifier
}

// NewNotifier returns a Notifier over store. next may be nil.
func NewNotifier(store Store, next notify.Notifier) *Notifier {
	return &Notifier{store: store, next: next}
}

func (n *Notifier) SendPasswordReset(ctx context.Context, msg notify.ResetMessage) error {
	n.store.Put(ctx, msg)
	if n.next == nil {
		return nil
	}
	return n.next.SendPasswordReset(ctx, msg)
}

func (n *Notifier) Close() error {
	if n.next == nil {
		return nil
	}
	return n.next.Close()
}
