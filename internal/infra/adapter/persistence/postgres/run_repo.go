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

// RunRepo implements the RunRepository interface using PostgreSQL.
type RunRepo struct{ db *sql.DB }

// NewRunRepo creates a new PostgreSQL-backed run-history repository.
func NewRunRepo(db *sql.DB) repository.RunRepository {
	return &RunRepo{db: db}
}

// RecordRunStart inserts a run row in status "running" and returns its id.
func (repo *RunRepo) RecordRunStart(ctx context.Context) (int64, error) {
	const query = `
INSERT INTO pipeline_runs (started_at, status)
VALUES ($1, $2)
RETURNING id
`
	var id int64
	err := repo.db.QueryRowContext(ctx, query, time.Now(), string(entity.RunStatusRunning)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("RecordRunStart: QueryRowContext: %w", err)
	}
	return id, nil
}

// RecordRunComplete transitions one running row to "completed", stamping the
// completion time and final counts. Completing a run that is not running is
// a contract violation and returns an error.
func (repo *RunRepo) RecordRunComplete(ctx context.Context, runID int64, processed, failed int) error {
	const query = `
UPDATE pipeline_runs SET
	completed_at    = $2,
	items_processed = $3,
	items_failed    = $4,
	status          = $5
WHERE id = $1 AND status = $6
`
	res, err := repo.db.ExecContext(ctx, query,
		runID, time.Now(), processed, failed,
		string(entity.RunStatusCompleted), string(entity.RunStatusRunning),
	)
	if err != nil {
		return fmt.Errorf("RecordRunComplete: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("RecordRunComplete: RowsAffected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("RecordRunComplete: run %d is not running", runID)
	}
	return nil
}

// LastSuccessfulRun returns the completion time of the most recent completed
// run, or nil when no run has completed yet.
func (repo *RunRepo) LastSuccessfulRun(ctx context.Context) (*time.Time, error) {
	const query = `
SELECT completed_at
FROM pipeline_runs
WHERE status = $1 AND completed_at IS NOT NULL
ORDER BY completed_at DESC
LIMIT 1
`
	var completedAt time.Time
	err := repo.db.QueryRowContext(ctx, query, string(entity.RunStatusCompleted)).Scan(&completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LastSuccessfulRun: QueryRowContext: %w", err)
	}
	return &completedAt, nil
}
