package feedsource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/observability/metrics"
	"research-pipeline/internal/repository"
)

// defaultFetchConcurrency limits how many feeds are fetched at once.
const defaultFetchConcurrency = 4

// Collector discovers new entries across all active feed subscriptions.
// A feed that fails to fetch is logged and skipped; one broken feed never
// fails the whole discovery pass.
type Collector struct {
	feeds     repository.FeedRepository
	processed repository.ProcessedRepository
	fetcher   Fetcher
	logger    *slog.Logger
}

// NewCollector creates a Collector over the given repositories and fetcher.
func NewCollector(feeds repository.FeedRepository, processed repository.ProcessedRepository, fetcher Fetcher, logger *slog.Logger) *Collector {
	return &Collector{
		feeds:     feeds,
		processed: processed,
		fetcher:   fetcher,
		logger:    logger,
	}
}

// CollectNew fetches every active feed and returns entries that have not been
// processed before, in feed order. The returned entries carry the owning
// feed's category and title.
func (c *Collector) CollectNew(ctx context.Context) ([]*entity.Entry, error) {
	feeds, err := c.feeds.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("CollectNew: list active feeds: %w", err)
	}

	perFeed := make([][]*entity.Entry, len(feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(defaultFetchConcurrency)

	for i, feed := range feeds {
		g.Go(func() error {
			entries, fetchErr := c.collectFeed(gctx, feed)
			if fetchErr != nil {
				c.logger.Warn("feed fetch failed, skipping feed",
					slog.String("url", feed.URL),
					slog.String("category", feed.Category.String()),
					slog.Any("error", fetchErr))
				metrics.RecordFeedFetchError(feed.Category.String(), classifyFetchError(fetchErr))
				return nil
			}
			perFeed[i] = entries
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("CollectNew: %w", err)
	}

	var all []*entity.Entry
	for _, entries := range perFeed {
		all = append(all, entries...)
	}

	c.logger.Info("feed discovery complete",
		slog.Int("feeds", len(feeds)),
		slog.Int("new_entries", len(all)))

	return all, nil
}

// collectFeed fetches one feed and returns its unprocessed entries.
func (c *Collector) collectFeed(ctx context.Context, feed *entity.Feed) ([]*entity.Entry, error) {
	start := time.Now()

	items, err := c.fetcher.Fetch(ctx, feed.URL)
	if err != nil {
		return nil, err
	}

	metrics.RecordFeedFetch(feed.Category.String(), time.Since(start), len(items))

	entries := make([]*entity.Entry, 0, len(items))
	for _, it := range items {
		guid := entity.DeriveGUID(it.SourceID, it.URL, it.Title)

		seen, err := c.processed.IsProcessed(ctx, guid)
		if err != nil {
			return nil, fmt.Errorf("collectFeed: dedupe check for %s: %w", guid, err)
		}
		if seen {
			continue
		}

		entries = append(entries, &entity.Entry{
			GUID:        guid,
			Title:       it.Title,
			URL:         it.URL,
			Content:     it.Content,
			Author:      it.Author,
			PublishedAt: it.PublishedAt,
			FeedID:      feed.ID,
			FeedTitle:   feed.Title,
			Category:    feed.Category,
		})
	}

	if err := c.feeds.TouchFetchedAt(ctx, feed.ID, time.Now()); err != nil {
		// Bookkeeping only; the discovered entries are still good.
		c.logger.Warn("failed to update feed fetch timestamp",
			slog.Int64("feed_id", feed.ID),
			slog.Any("error", err))
	}

	return entries, nil
}

func classifyFetchError(err error) string {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "fetch"
	}
}
