package feedsource

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"research-pipeline/internal/domain/entity"
)

type stubFeedRepo struct {
	feeds   []*entity.Feed
	mu      sync.Mutex
	touched []int64
}

func (s *stubFeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	return nil, entity.ErrNotFound
}

func (s *stubFeedRepo) GetByURL(ctx context.Context, url string) (*entity.Feed, error) {
	return nil, entity.ErrNotFound
}

func (s *stubFeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	return s.feeds, nil
}

func (s *stubFeedRepo) ListActiveByCategory(ctx context.Context, category entity.Category) ([]*entity.Feed, error) {
	return nil, nil
}

func (s *stubFeedRepo) Create(ctx context.Context, feed *entity.Feed) error { return nil }

func (s *stubFeedRepo) Deactivate(ctx context.Context, url string) error { return nil }

func (s *stubFeedRepo) TouchFetchedAt(ctx context.Context, id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touched = append(s.touched, id)
	return nil
}

type stubProcessedRepo struct {
	seen map[string]bool
}

func (s *stubProcessedRepo) IsProcessed(ctx context.Context, guid string) (bool, error) {
	return s.seen[guid], nil
}

func (s *stubProcessedRepo) MarkProcessed(ctx context.Context, rec *entity.ProcessedRecord) error {
	return nil
}

func (s *stubProcessedRepo) Count(ctx context.Context) (int, error) { return len(s.seen), nil }

type stubFetcher struct {
	items map[string][]Item
	errs  map[string]error
}

func (s *stubFetcher) Fetch(ctx context.Context, feedURL string) ([]Item, error) {
	if err, ok := s.errs[feedURL]; ok {
		return nil, err
	}
	return s.items[feedURL], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestCollectNew_FiltersProcessedEntries(t *testing.T) {
	feeds := &stubFeedRepo{feeds: []*entity.Feed{
		{ID: 1, URL: "https://a.example/feed", Title: "A", Category: entity.CategoryArticles, Active: true},
	}}
	processed := &stubProcessedRepo{seen: map[string]bool{"guid-old": true}}
	fetcher := &stubFetcher{items: map[string][]Item{
		"https://a.example/feed": {
			{SourceID: "guid-old", Title: "Old", URL: "https://a.example/old"},
			{SourceID: "guid-new", Title: "New", URL: "https://a.example/new"},
		},
	}}

	c := NewCollector(feeds, processed, fetcher, testLogger())

	entries, err := c.CollectNew(context.Background())
	if err != nil {
		t.Fatalf("CollectNew err=%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].GUID != "guid-new" {
		t.Errorf("GUID = %q, want guid-new", entries[0].GUID)
	}
	if entries[0].Category != entity.CategoryArticles {
		t.Errorf("Category = %q, want articles", entries[0].Category)
	}
	if entries[0].FeedID != 1 {
		t.Errorf("FeedID = %d, want 1", entries[0].FeedID)
	}
}

func TestCollectNew_BrokenFeedIsSkipped(t *testing.T) {
	feeds := &stubFeedRepo{feeds: []*entity.Feed{
		{ID: 1, URL: "https://broken.example/feed", Title: "Broken", Category: entity.CategoryArticles, Active: true},
		{ID: 2, URL: "https://ok.example/feed", Title: "OK", Category: entity.CategoryYouTube, Active: true},
	}}
	processed := &stubProcessedRepo{seen: map[string]bool{}}
	fetcher := &stubFetcher{
		items: map[string][]Item{
			"https://ok.example/feed": {{SourceID: "v1", Title: "Video", URL: "https://yt.example/v1"}},
		},
		errs: map[string]error{
			"https://broken.example/feed": errors.New("connection refused"),
		},
	}

	c := NewCollector(feeds, processed, fetcher, testLogger())

	entries, err := c.CollectNew(context.Background())
	if err != nil {
		t.Fatalf("CollectNew err=%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1 (broken feed swallowed)", len(entries))
	}
	if entries[0].GUID != "v1" {
		t.Errorf("GUID = %q, want v1", entries[0].GUID)
	}
}

func TestCollectNew_TouchesFetchTimestamp(t *testing.T) {
	feeds := &stubFeedRepo{feeds: []*entity.Feed{
		{ID: 7, URL: "https://a.example/feed", Title: "A", Category: entity.CategoryPodcasts, Active: true},
	}}
	processed := &stubProcessedRepo{seen: map[string]bool{}}
	fetcher := &stubFetcher{items: map[string][]Item{
		"https://a.example/feed": {},
	}}

	c := NewCollector(feeds, processed, fetcher, testLogger())

	if _, err := c.CollectNew(context.Background()); err != nil {
		t.Fatalf("CollectNew err=%v", err)
	}
	if len(feeds.touched) != 1 || feeds.touched[0] != 7 {
		t.Errorf("touched = %v, want [7]", feeds.touched)
	}
}

func TestCollectNew_GuidFallsBackToLink(t *testing.T) {
	feeds := &stubFeedRepo{feeds: []*entity.Feed{
		{ID: 1, URL: "https://a.example/feed", Title: "A", Category: entity.CategoryArticles, Active: true},
	}}
	processed := &stubProcessedRepo{seen: map[string]bool{}}
	fetcher := &stubFetcher{items: map[string][]Item{
		"https://a.example/feed": {{Title: "No GUID", URL: "https://a.example/p1"}},
	}}

	c := NewCollector(feeds, processed, fetcher, testLogger())

	entries, err := c.CollectNew(context.Background())
	if err != nil {
		t.Fatalf("CollectNew err=%v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].GUID != "https://a.example/p1" {
		t.Errorf("GUID = %q, want link fallback", entries[0].GUID)
	}
}
