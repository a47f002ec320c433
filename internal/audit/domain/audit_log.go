package domain

import "time"

// AuditLog represents an audit event. AccountID is empty when the event has no resolved account
// (e.g. a login attempt for an unknown identifier).
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
