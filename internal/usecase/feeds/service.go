// Package feeds manages feed subscriptions: add, remove, list, and OPML
// import/export.
package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/repository"
)

// TitleProber fetches a feed's declared title.
type TitleProber interface {
	ProbeTitle(ctx context.Context, feedURL string) (string, error)
}

// Service manages the feed subscription list.
type Service struct {
	feeds  repository.FeedRepository
	prober TitleProber
	logger *slog.Logger
}

// NewService creates a feed management service. prober may be nil, in which
// case subscriptions without an explicit title stay untitled.
func NewService(feeds repository.FeedRepository, prober TitleProber, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{feeds: feeds, prober: prober, logger: logger}
}

// Subscribe adds a feed. An empty category is auto-detected from the URL and
// an empty title is probed from the feed itself; probe failures are not fatal.
func (s *Service) Subscribe(ctx context.Context, feedURL, title, category string) (*entity.Feed, error) {
	feedURL = strings.TrimSpace(feedURL)
	if feedURL == "" {
		return nil, fmt.Errorf("Subscribe: %w: feed url is required", entity.ErrInvalidInput)
	}

	var cat entity.Category
	if category == "" {
		cat = DetectCategory(feedURL)
		s.logger.Info("category auto-detected",
			slog.String("url", feedURL),
			slog.String("category", cat.String()))
	} else {
		parsed, err := entity.ParseCategory(category)
		if err != nil {
			return nil, fmt.Errorf("Subscribe: %w", err)
		}
		cat = parsed
	}

	if title == "" && s.prober != nil {
		probed, err := s.prober.ProbeTitle(ctx, feedURL)
		if err != nil {
			s.logger.Warn("feed title probe failed, subscribing untitled",
				slog.String("url", feedURL),
				slog.Any("error", err))
		} else {
			title = probed
		}
	}

	feed := &entity.Feed{URL: feedURL, Title: title, Category: cat}
	if err := s.feeds.Create(ctx, feed); err != nil {
		return nil, fmt.Errorf("Subscribe: %w", err)
	}

	s.logger.Info("feed subscribed",
		slog.String("url", feedURL),
		slog.String("title", title),
		slog.String("category", cat.String()))
	return feed, nil
}

// Unsubscribe logically deletes the subscription; processed-entry history
// stays attributable to the feed row.
func (s *Service) Unsubscribe(ctx context.Context, feedURL string) error {
	if err := s.feeds.Deactivate(ctx, strings.TrimSpace(feedURL)); err != nil {
		return fmt.Errorf("Unsubscribe: %w", err)
	}
	s.logger.Info("feed unsubscribed", slog.String("url", feedURL))
	return nil
}

// List returns active feeds, all of them or one category's worth.
func (s *Service) List(ctx context.Context, category string) ([]*entity.Feed, error) {
	if category == "" {
		feeds, err := s.feeds.ListActive(ctx)
		if err != nil {
			return nil, fmt.Errorf("List: %w", err)
		}
		return feeds, nil
	}

	cat, err := entity.ParseCategory(category)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	feeds, err := s.feeds.ListActiveByCategory(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return feeds, nil
}

// podcastHosts are feed hosts that serve podcasts regardless of path.
var podcastHosts = []string{
	"anchor.fm",
	"feeds.buzzsprout.com",
	"feeds.libsyn.com",
	"feeds.transistor.fm",
	"feeds.simplecast.com",
	"feeds.megaphone.fm",
}

// DetectCategory guesses the feed category from its URL. YouTube hosts map
// to youtube, known podcast hosts (or a "podcast" path hint) to podcasts,
// everything else to articles.
func DetectCategory(feedURL string) entity.Category {
	u, err := url.Parse(feedURL)
	if err != nil {
		return entity.CategoryArticles
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	if host == "youtube.com" || host == "youtu.be" || strings.HasSuffix(host, ".youtube.com") {
		return entity.CategoryYouTube
	}

	for _, ph := range podcastHosts {
		if host == ph {
			return entity.CategoryPodcasts
		}
	}
	if strings.Contains(strings.ToLower(u.Path), "podcast") {
		return entity.CategoryPodcasts
	}

	return entity.CategoryArticles
}
