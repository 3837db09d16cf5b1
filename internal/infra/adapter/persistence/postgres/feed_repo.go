package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/repository"
)

// FeedRepo implements the FeedRepository interface using PostgreSQL.
type FeedRepo struct{ db *sql.DB }

// NewFeedRepo creates a new PostgreSQL-backed feed repository.
func NewFeedRepo(db *sql.DB) repository.FeedRepository {
	return &FeedRepo{db: db}
}

const feedColumns = `id, url, title, category, added_at, last_fetched_at, active`

func scanFeed(row interface{ Scan(...any) error }) (*entity.Feed, error) {
	var (
		feed      entity.Feed
		title     sql.NullString
		category  string
		fetchedAt sql.NullTime
	)
	err := row.Scan(&feed.ID, &feed.URL, &title, &category, &feed.AddedAt, &fetchedAt, &feed.Active)
	if err != nil {
		return nil, err
	}
	feed.Title = title.String
	feed.Category = entity.Category(category)
	if fetchedAt.Valid {
		t := fetchedAt.Time
		feed.LastFetchedAt = &t
	}
	return &feed, nil
}

func (repo *FeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds WHERE id = $1 LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return feed, nil
}

func (repo *FeedRepo) GetByURL(ctx context.Context, url string) (*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds WHERE url = $1 LIMIT 1`
	feed, err := scanFeed(repo.db.QueryRowContext(ctx, query, url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, entity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetByURL: %w", err)
	}
	return feed, nil
}

// ListActive retrieves all active feed subscriptions.
func (repo *FeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds WHERE active = TRUE ORDER BY id ASC`
	return repo.list(ctx, query)
}

// ListActiveByCategory retrieves active feeds in a single category.
func (repo *FeedRepo) ListActiveByCategory(ctx context.Context, category entity.Category) ([]*entity.Feed, error) {
	const query = `SELECT ` + feedColumns + ` FROM feeds WHERE active = TRUE AND category = $1 ORDER BY id ASC`
	return repo.list(ctx, query, string(category))
}

func (repo *FeedRepo) list(ctx context.Context, query string, args ...any) ([]*entity.Feed, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list: QueryContext: %w", err)
	}
	defer func() { _ = rows.Close() }()

	feeds := make([]*entity.Feed, 0, 16)
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("list: Scan: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows.Err: %w", err)
	}
	return feeds, nil
}

// Create inserts a feed subscription. The feed URL is unique; a duplicate
// subscription is reported as ErrInvalidInput.
func (repo *FeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	if err := feed.Validate(); err != nil {
		return err
	}
	const query = `
INSERT INTO feeds (url, title, category, added_at, active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id
`
	err := repo.db.QueryRowContext(ctx, query,
		feed.URL, feed.Title, string(feed.Category), time.Now(),
	).Scan(&feed.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("Create: feed %q already subscribed: %w", feed.URL, entity.ErrInvalidInput)
		}
		return fmt.Errorf("Create: QueryRowContext: %w", err)
	}
	feed.Active = true
	return nil
}

// Deactivate performs the logical delete for an unsubscribe. The row is kept
// so processed-entry history remains attributable.
func (repo *FeedRepo) Deactivate(ctx context.Context, url string) error {
	const query = `UPDATE feeds SET active = FALSE WHERE url = $1`
	res, err := repo.db.ExecContext(ctx, query, url)
	if err != nil {
		return fmt.Errorf("Deactivate: ExecContext: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate: RowsAffected: %w", err)
	}
	if n == 0 {
		return entity.ErrNotFound
	}
	return nil
}

// TouchFetchedAt stamps the feed's last successful fetch time.
func (repo *FeedRepo) TouchFetchedAt(ctx context.Context, id int64, t time.Time) error {
	const query = `UPDATE feeds SET last_fetched_at = $2 WHERE id = $1`
	if _, err := repo.db.ExecContext(ctx, query, id, t); err != nil {
		return fmt.Errorf("TouchFetchedAt: ExecContext: %w", err)
	}
	return nil
}
