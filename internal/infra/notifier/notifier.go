// Package notifier provides abstraction for sending pipeline run notifications.
// It defines the Notifier interface which allows different notification
// mechanisms (Slack, Discord, etc.) to be used interchangeably through
// dependency injection, plus a no-op implementation for when notifications
// are disabled.
package notifier

import (
	"context"

	"research-pipeline/internal/domain/entity"
)

// Notifier is an interface for sending run summary notifications.
// Implementations should handle rate limiting, retries, and error logging internally.
type Notifier interface {
	// NotifyRun sends a notification summarizing a finished pipeline run.
	// Returns a non-nil error if the notification failed after all retry attempts.
	NotifyRun(ctx context.Context, summary *entity.RunSummary) error

	// Name identifies the channel for logging and metrics.
	Name() string
}
