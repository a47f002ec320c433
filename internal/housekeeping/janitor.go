// Package housekeeping periodically deletes rows that can no longer affect an authentication
// decision: expired or revoked ledger entries, spent reset tokens, stale MFA challenges and
// aged audit logs.
package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PurgeFunc deletes rows older than cutoff and returns how many it removed.
type PurgeFunc func(ctx context.Context, cutoff time.Time) (int64, error)

// Task is one named purge with its own retention.
type Task struct {
	Name      string
	Retention time.Duration
	Purge     PurgeFunc
}

// Janitor runs a fixed set of Tasks.
type Janitor struct {
	tasks []Task
	now   func() time.Time
	log   *zap.Logger
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) {
		if now != nil {
			j.now = now
		}
	}
}

// WithLogger sets the zap logger.
func WithLogger(l *zap.Logger) Option {
	return func(j *Janitor) {
		if l != nil {
			j.log = l
		}
	}
}

// New returns a Janitor over tasks. Tasks without a Purge func are dropped.
func New(tasks []Task, opts ...Option) *Janitor {
	j := &Janitor{now: time.Now, log: zap.NewNop()}
	for _, t := range tasks {
		if t.Purge != nil {
			j.tasks = append(j.tasks, t)
		}
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// RunOnce runs every task once. A failing task does not stop the others; all failures are
// joined into the returned error.
func (j *Janitor) RunOnce(ctx context.Context) error {
	now := j.now().UTC()
	var errs []error
	for _, t := range j.tasks {
		n, err := t.Purge(ctx, now.Add(-t.Retention))
		if err != nil {
			j.log.Error("housekeeping task failed", zap.String("task", t.Name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
			continue
		}
		if n > 0 {
			j.log.Info("housekeeping purged rows", zap.String("task", t.Name), zap.Int64("rows", n))
		}
	}
	return errors.Join(errs...)
}

// Run calls RunOnce immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		_ = j.RunOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
