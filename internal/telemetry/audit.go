package telemetry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"identity-provider/backend/internal/audit"
)

// AuditExporter is an audit.AuditLogger that forwards every event to an EventEmitter
// asynchronously. Combine it with the persistent logger through audit.Multi.
type AuditExporter struct {
	emitter     EventEmitter
	ipExtractor audit.IPExtractor
	log         *zap.Logger
	now         func() time.Time
}

// NewAuditExporter returns an exporter over emitter. ipExtractor and log may be nil.
func NewAuditExporter(emitter EventEmitter, ipExtractor audit.IPExtractor, log *zap.Logger) *AuditExporter {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuditExporter{emitter: emitter, ipExtractor: ipExtractor, log: log, now: time.Now}
}

// LogEvent builds an Event and emits it without blocking the caller.
func (e *AuditExporter) LogEvent(ctx context.Context, accountID, action, resource, metadata string) {
	if e == nil || e.emitter == nil {
		return
	}
	ip := "unknown"
	if e.ipExtractor != nil {
		if v := e.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	EmitAsync(e.emitter, e.log, &Event{
		AccountID: accountID,
		Action:    action,
		Resource:  resource,
		IP:        ip,
		Metadata:  metadata,
		CreatedAt: e.now().UTC(),
	})
}
