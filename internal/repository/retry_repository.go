package repository

import (
	"context"
	"time"

	"research-pipeline/internal/domain/entity"
)

// RetryRepository owns the backoff state machine for transient failures.
//
// Upsert behavior per guid:
//   - no row: insert with attempts=0 and next_retry_at = now + schedule[0]
//   - existing row: increment attempts; when the total failure count
//     (attempts+1) reaches the schedule length the row is deleted
//     (abandoned), otherwise next_retry_at moves to now + schedule[attempts]
//     and the last error is recorded
//
// The abandoned transition is reported through the returned RetryDisposition
// so the orchestrator can log it.
type RetryRepository interface {
	Upsert(ctx context.Context, entry *entity.Entry, errMsg string, now time.Time) (RetryDisposition, error)
	DueCandidates(ctx context.Context, now time.Time) ([]*entity.RetryEntry, error)
	Remove(ctx context.Context, guid string) error
	Count(ctx context.Context) (int, error)
}

// RetryDisposition describes what Upsert did with the failure.
type RetryDisposition string

const (
	// RetryScheduled means the guid is queued (or re-queued) for a later attempt.
	RetryScheduled RetryDisposition = "scheduled"
	// RetryAbandoned means the attempt counter exhausted the backoff schedule
	// and the row was deleted; the item will never be retried.
	RetryAbandoned RetryDisposition = "abandoned"
)
