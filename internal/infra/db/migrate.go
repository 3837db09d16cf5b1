package db

import "database/sql"

// MigrateUp creates the four pipeline relations and their indexes.
// All statements are idempotent so the migration can run on every start.
func MigrateUp(database *sql.DB) error {
	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS feeds (
    id              SERIAL PRIMARY KEY,
    url             TEXT NOT NULL UNIQUE,
    title           TEXT,
    category        TEXT NOT NULL CHECK (category IN ('articles', 'youtube', 'podcasts')),
    added_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_fetched_at TIMESTAMPTZ,
    active          BOOLEAN NOT NULL DEFAULT TRUE
)`); err != nil {
		return err
	}

	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS processed_entries (
    id            SERIAL PRIMARY KEY,
    entry_guid    TEXT NOT NULL UNIQUE,
    feed_id       INTEGER NOT NULL REFERENCES feeds(id),
    entry_url     TEXT NOT NULL,
    entry_title   TEXT,
    processed_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    artifact_path TEXT
)`); err != nil {
		return err
	}

	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS retry_queue (
    id              SERIAL PRIMARY KEY,
    entry_guid      TEXT NOT NULL UNIQUE,
    feed_id         INTEGER NOT NULL REFERENCES feeds(id),
    entry_url       TEXT NOT NULL,
    entry_title     TEXT,
    category        TEXT NOT NULL,
    first_failed_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_attempt_at TIMESTAMPTZ,
    next_retry_at   TIMESTAMPTZ,
    attempts        INTEGER NOT NULL DEFAULT 0,
    last_error      TEXT
)`); err != nil {
		return err
	}

	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS pipeline_runs (
    id              SERIAL PRIMARY KEY,
    started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    completed_at    TIMESTAMPTZ,
    items_fetched   INTEGER NOT NULL DEFAULT 0,
    items_processed INTEGER NOT NULL DEFAULT 0,
    items_failed    INTEGER NOT NULL DEFAULT 0,
    status          TEXT NOT NULL CHECK (status IN ('running', 'completed', 'failed'))
)`); err != nil {
		return err
	}

	indexes := []string{
		// guid lookups dominate the per-item loop
		`CREATE INDEX IF NOT EXISTS idx_processed_guid ON processed_entries(entry_guid)`,
		// ascending due-time scan for retry candidates
		`CREATE INDEX IF NOT EXISTS idx_retry_next ON retry_queue(next_retry_at)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_category ON feeds(category)`,
		`CREATE INDEX IF NOT EXISTS idx_feeds_active ON feeds(active) WHERE active = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_runs_status ON pipeline_runs(status)`,
	}
	for _, idx := range indexes {
		if _, err := database.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}
