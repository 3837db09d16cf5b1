package notifier

import (
	"context"

	"research-pipeline/internal/domain/entity"
)

// NoOpNotifier is a no-operation implementation of the Notifier interface.
// It is used when notifications are disabled to avoid null checks in the code.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyRun does nothing and returns nil immediately.
func (n *NoOpNotifier) NotifyRun(ctx context.Context, summary *entity.RunSummary) error {
	return nil
}

// Name implements the Notifier interface.
func (n *NoOpNotifier) Name() string { return "noop" }
