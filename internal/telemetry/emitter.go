package telemetry

import (
	"context"
	"time"
)

// Event is one security-relevant occurrence exported to the telemetry pipeline. It mirrors an
// audit log row.
type Event struct {
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}

// EventEmitter emits telemetry events (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}
