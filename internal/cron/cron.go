// Package cron runs the periodic housekeeping of the chat server: idle
// session eviction and persisted history retention.
package cron

import "context"

// Job is a periodic background task.
type Job interface {
	// Name identifies the job in logs and must be unique per scheduler.
	Name() string

	// Schedule returns a 5-field cron expression (e.g., "*/5 * * * *").
	Schedule() string

	// Run executes the job and should honour ctx cancellation.
	Run(ctx context.Context) error
}
