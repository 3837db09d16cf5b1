package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/repository"
)

// DefaultBackoffSchedule is the fixed backoff ladder indexed by attempt
// number. When the total failure count reaches the schedule length the entry
// is abandoned.
var DefaultBackoffSchedule = []time.Duration{
	1 * time.Hour,
	4 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
}

// RetryRepo implements the RetryRepository interface using PostgreSQL.
// The backoff state machine lives here: callers only report failures and
// ask for due candidates.
type RetryRepo struct {
	db       *sql.DB
	schedule []time.Duration
}

// NewRetryRepo creates a new PostgreSQL-backed retry queue using
// DefaultBackoffSchedule.
func NewRetryRepo(db *sql.DB) repository.RetryRepository {
	return NewRetryRepoWithSchedule(db, DefaultBackoffSchedule)
}

// NewRetryRepoWithSchedule creates a retry queue with a custom backoff
// schedule. Used by tests; the schedule must be non-empty.
func NewRetryRepoWithSchedule(db *sql.DB, schedule []time.Duration) repository.RetryRepository {
	return &RetryRepo{db: db, schedule: schedule}
}

// Upsert records a transient failure for the entry, advancing the backoff
// state machine. The read-modify-write runs in one transaction.
func (repo *RetryRepo) Upsert(ctx context.Context, entry *entity.Entry, errMsg string, now time.Time) (repository.RetryDisposition, error) {
	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("Upsert: BeginTx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const selectQuery = `SELECT attempts FROM retry_queue WHERE entry_guid = $1`
	var attempts int
	err = tx.QueryRowContext(ctx, selectQuery, entry.GUID).Scan(&attempts)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First failure: attempts=0, due after schedule[0].
		const insertQuery = `
INSERT INTO retry_queue
(entry_guid, feed_id, entry_url, entry_title, category, first_failed_at, last_attempt_at, next_retry_at, attempts, last_error)
VALUES ($1, $2, $3, $4, $5, $6, $6, $7, 0, $8)
`
		if _, err := tx.ExecContext(ctx, insertQuery,
			entry.GUID, entry.FeedID, entry.URL, entry.Title, string(entry.Category),
			now, now.Add(repo.schedule[0]), errMsg,
		); err != nil {
			return "", fmt.Errorf("Upsert: insert: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("Upsert: Commit: %w", err)
		}
		return repository.RetryScheduled, nil

	case err != nil:
		return "", fmt.Errorf("Upsert: QueryRowContext: %w", err)
	}

	attempts++
	// attempts is zero-based, so attempts+1 failures have now occurred.
	// Reaching the schedule length is terminal.
	if attempts+1 >= len(repo.schedule) {
		// Schedule exhausted: abandon.
		const deleteQuery = `DELETE FROM retry_queue WHERE entry_guid = $1`
		if _, err := tx.ExecContext(ctx, deleteQuery, entry.GUID); err != nil {
			return "", fmt.Errorf("Upsert: abandon delete: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return "", fmt.Errorf("Upsert: Commit: %w", err)
		}
		return repository.RetryAbandoned, nil
	}

	const updateQuery = `
UPDATE retry_queue SET
	attempts        = $2,
	last_attempt_at = $3,
	next_retry_at   = $4,
	last_error      = $5
WHERE entry_guid = $1
`
	if _, err := tx.ExecContext(ctx, updateQuery,
		entry.GUID, attempts, now, now.Add(repo.schedule[attempts]), errMsg,
	); err != nil {
		return "", fmt.Errorf("Upsert: update: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("Upsert: Commit: %w", err)
	}
	return repository.RetryScheduled, nil
}

// DueCandidates returns retry rows whose next_retry_at has passed, earliest
// due first, ties broken by insertion order.
func (repo *RetryRepo) DueCandidates(ctx context.Context, now time.Time) ([]*entity.RetryEntry, error) {
	const query = `
SELECT id, entry_guid, feed_id, entry_url, entry_title, category,
       first_failed_at, last_attempt_at, next_retry_at, attempts, last_error
FROM retry_queue
WHERE next_retry_at <= $1
ORDER BY next_retry_at ASC, id ASC
`
	rows, err := repo.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("DueCandidates: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]*entity.RetryEntry, 0, 16)
	for rows.Next() {
		var (
			re       entity.RetryEntry
			title    sql.NullString
			category string
			lastAt   sql.NullTime
			lastErr  sql.NullString
		)
		err := rows.Scan(&re.ID, &re.GUID, &re.FeedID, &re.URL, &title, &category,
			&re.FirstFailedAt, &lastAt, &re.NextRetryAt, &re.Attempts, &lastErr)
		if err != nil {
			return nil, fmt.Errorf("DueCandidates: Scan: %w", err)
		}
		re.Title = title.String
		re.Category = entity.Category(category)
		if lastAt.Valid {
			re.LastAttemptAt = lastAt.Time
		}
		re.LastError = lastErr.String
		candidates = append(candidates, &re)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DueCandidates: rows.Err: %w", err)
	}

	return candidates, nil
}

// Remove deletes the retry row for the guid. Deleting a missing row is not
// an error.
func (repo *RetryRepo) Remove(ctx context.Context, guid string) error {
	const query = `DELETE FROM retry_queue WHERE entry_guid = $1`
	if _, err := repo.db.ExecContext(ctx, query, guid); err != nil {
		return fmt.Errorf("Remove: ExecContext: %w", err)
	}
	return nil
}

// Count returns the retry queue depth.
func (repo *RetryRepo) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM retry_queue`
	var n int
	if err := repo.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: QueryRowContext: %w", err)
	}
	return n, nil
}
