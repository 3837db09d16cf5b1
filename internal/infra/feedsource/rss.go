// Package feedsource provides RSS/Atom feed fetching and new-entry discovery.
// It uses the gofeed library to parse feed content with reliability patterns.
package feedsource

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"

	"research-pipeline/internal/resilience/circuitbreaker"
	"research-pipeline/internal/resilience/retry"
)

// Item is one parsed feed entry before it is promoted to a pipeline entry.
type Item struct {
	SourceID    string
	Title       string
	URL         string
	Content     string
	Author      string
	PublishedAt *time.Time
}

// Fetcher retrieves and parses a feed URL.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string) ([]Item, error)
}

// RSSFetcher implements Fetcher using the gofeed library.
// It includes circuit breaker and retry logic for improved reliability.
type RSSFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

// NewRSSFetcher creates a new RSSFetcher with the given HTTP client.
func NewRSSFetcher(client *http.Client) *RSSFetcher {
	return &RSSFetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
	}
}

// Fetch retrieves and parses an RSS/Atom feed from the given URL.
func (f *RSSFetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	var items []Item

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		cbResult, err := f.circuitBreaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, feedURL)
		})

		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("service", "feed-fetch"),
					slog.String("url", feedURL),
					slog.String("state", f.circuitBreaker.State().String()))
				return err
			}
			return err
		}

		items = cbResult.([]Item)
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return items, nil
}

// ProbeTitle fetches the feed once and returns its declared title. Used when
// subscribing without an explicit title.
func (f *RSSFetcher) ProbeTitle(ctx context.Context, feedURL string) (string, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "ResearchPipelineBot/1.0"
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return "", err
	}
	return feed.Title, nil
}

// doFetch performs the actual feed fetch without retry or circuit breaker.
func (f *RSSFetcher) doFetch(ctx context.Context, feedURL string) ([]Item, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "ResearchPipelineBot/1.0"
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(feed.Items))
	for _, it := range feed.Items {
		var pubAt *time.Time
		if it.PublishedParsed != nil {
			t := *it.PublishedParsed
			pubAt = &t
		} else if it.UpdatedParsed != nil {
			t := *it.UpdatedParsed
			pubAt = &t
		}

		// Content preferred, Description as fallback
		content := it.Content
		if content == "" {
			content = it.Description
		}

		author := ""
		if len(feed.Authors) > 0 {
			author = feed.Authors[0].Name
		}
		if len(it.Authors) > 0 {
			author = it.Authors[0].Name
		}

		items = append(items, Item{
			SourceID:    it.GUID,
			Title:       it.Title,
			URL:         it.Link,
			Content:     content,
			Author:      author,
			PublishedAt: pubAt,
		})
	}

	return items, nil
}
