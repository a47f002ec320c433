// Package notify delivers password reset tokens to account holders through an out-of-band
// channel. The raw token is handed to the channel and never logged.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"

	"identity-provider/backend/internal/logger"
)

// ResetMessage is the payload delivered for a password reset request.
type ResetMessage struct {
	AccountID string    `json:"account_id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Notifier delivers reset messages. Implementations may block briefly.
type Notifier interface {
	SendPasswordReset(ctx context.Context, msg ResetMessage) error
	// Close releases resources. Safe to call more than once.
	Close() error
}

// LogNotifier records that a reset was requested without delivering it. Used when no delivery
// channel is configured.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger discards everything.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) SendPasswordReset(_ context.Context, msg ResetMessage) error {
	n.log.Warn("password reset requested but no delivery channel is configured",
		zap.String("account_id", msg.AccountID),
		zap.String("email", logger.MaskEmail(msg.Email)),
		zap.Time("expires_at", msg.ExpiresAt),
	)
	return nil
}

func (n *LogNotifier) Close() error { return nil }
