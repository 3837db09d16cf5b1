// Package postgres provides PostgreSQL implementations of the pipeline
// repository interfaces. Every mutating call is its own transaction; cross
// process exclusivity is the run lock's job, not the store's.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/repository"
)

// pgUniqueViolation is the PostgreSQL error code for unique constraint violations.
const pgUniqueViolation = "23505"

// ProcessedRepo implements the ProcessedRepository interface using PostgreSQL.
type ProcessedRepo struct{ db *sql.DB }

// NewProcessedRepo creates a new PostgreSQL-backed processed-entry repository.
func NewProcessedRepo(db *sql.DB) repository.ProcessedRepository {
	return &ProcessedRepo{db: db}
}

// IsProcessed reports whether the guid already has a ProcessedRecord.
func (repo *ProcessedRepo) IsProcessed(ctx context.Context, guid string) (bool, error) {
	const query = `SELECT 1 FROM processed_entries WHERE entry_guid = $1 LIMIT 1`
	var one int
	err := repo.db.QueryRowContext(ctx, query, guid).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsProcessed: QueryRowContext: %w", err)
	}
	return true, nil
}

// MarkProcessed inserts a ProcessedRecord. A guid collision is returned as
// entity.ErrDuplicateGUID: it means the at-most-once invariant was nearly
// broken and callers must surface it.
func (repo *ProcessedRepo) MarkProcessed(ctx context.Context, rec *entity.ProcessedRecord) error {
	const query = `
INSERT INTO processed_entries
(entry_guid, feed_id, entry_url, entry_title, processed_at, artifact_path)
VALUES ($1, $2, $3, $4, $5, $6)
`
	_, err := repo.db.ExecContext(ctx, query,
		rec.GUID, rec.FeedID, rec.URL, rec.Title, rec.ProcessedAt, rec.ArtifactPath,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("MarkProcessed: guid %q: %w", rec.GUID, entity.ErrDuplicateGUID)
		}
		return fmt.Errorf("MarkProcessed: ExecContext: %w", err)
	}
	return nil
}

// Count returns the total number of processed entries.
func (repo *ProcessedRepo) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM processed_entries`
	var n int
	if err := repo.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("Count: QueryRowContext: %w", err)
	}
	return n, nil
}
