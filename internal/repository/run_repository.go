package repository

import (
	"context"
	"time"
)

// RunRepository records pipeline run bookkeeping.
type RunRepository interface {
	// RecordRunStart inserts a run row in status "running" and returns its id.
	RecordRunStart(ctx context.Context) (int64, error)

	// RecordRunComplete transitions exactly one running row to "completed".
	// A missing or non-running runID is a programming-contract violation and
	// is returned as an error.
	RecordRunComplete(ctx context.Context, runID int64, processed, failed int) error

	// LastSuccessfulRun returns the completion time of the most recent
	// completed run, or nil when none exists.
	LastSuccessfulRun(ctx context.Context) (*time.Time, error)
}
