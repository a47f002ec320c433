package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// mockEventEmitter implements EventEmitter for tests. Each Emit is signalled on done.
type mockEventEmitter struct {
	mu      sync.Mutex
	events  []*Event
	emitErr error
	done    chan struct{}
}

func newMockEmitter(buffer int) *mockEventEmitter {
	return &mockEventEmitter{done: make(chan struct{}, buffer)}
}

func (m *mockEventEmitter) Emit(ctx context.Context, event *Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	m.done <- struct{}{}
	return m.emitErr
}

func (m *mockEventEmitter) wait(t *testing.T, n int) []*Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-m.done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for emit %d of %d", i+1, n)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.events...)
}

func TestEmitAsync_NilArguments(t *testing.T) {
	emitter := newMockEmitter(1)

	// Neither call starts a goroutine.
	EmitAsync(nil, nil, &Event{Action: "login_success"})
	EmitAsync(emitter, nil, nil)

	select {
	case <-emitter.done:
		t.Fatal("nothing should be emitted")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestEmitAsync_SuccessfulEmit(t *testing.T) {
	emitter := newMockEmitter(1)
	EmitAsync(emitter, nil, &Event{AccountID: "acc-1", Action: "login_success", Resource: "authentication"})

	events := emitter.wait(t, 1)
	if len(events) != 1 || events[0].AccountID != "acc-1" || events[0].Action != "login_success" {
		t.Fatalf("events = %+v", events)
	}
}

func TestEmitAsync_ErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	emitter := newMockEmitter(1)
	emitter.emitErr = errors.New("collector unavailable")

	EmitAsync(emitter, zap.New(core), &Event{Action: "logout"})
	emitter.wait(t, 1)

	deadline := time.Now().Add(2 * time.Second)
	for logs.FilterMessage("telemetry: async emit failed").Len() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("emit failure should be logged")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestEmitAsync_ConcurrentAccess(t *testing.T) {
	const n = 10
	emitter := newMockEmitter(n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			EmitAsync(emitter, nil, &Event{Action: "token_refreshed"})
		}()
	}
	wg.Wait()

	if events := emitter.wait(t, n); len(events) != n {
		t.Errorf("expected %d events, got %d", n, len(events))
	}
}

func TestAuditExporter_LogEvent(t *testing.T) {
	emitter := newMockEmitter(2)
	fixed := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	exp := NewAuditExporter(emitter, func(context.Context) string { return "203.0.113.7" }, nil)
	exp.now = func() time.Time { return fixed }

	exp.LogEvent(context.Background(), "acc-1", "password_changed", "password", "")
	events := emitter.wait(t, 1)
	got := events[0]
	if got.AccountID != "acc-1" || got.Action != "password_changed" || got.Resource != "password" {
		t.Errorf("event = %+v", got)
	}
	if got.IP != "203.0.113.7" || !got.CreatedAt.Equal(fixed) {
		t.Errorf("ip = %q, created_at = %v", got.IP, got.CreatedAt)
	}

	noIP := NewAuditExporter(emitter, nil, nil)
	noIP.LogEvent(context.Background(), "acc-2", "logout", "session", "")
	events = emitter.wait(t, 1)
	if events[len(events)-1].IP != "unknown" {
		t.Errorf("ip without extractor = %q, want unknown", events[len(events)-1].IP)
	}
}

func TestAuditExporter_NilEmitter(t *testing.T) {
	var exp *AuditExporter
	exp.LogEvent(context.Background(), "acc-1", "logout", "session", "")
	NewAuditExporter(nil, nil, nil).LogEvent(context.Background(), "acc-1", "logout", "session", "")
}
