package feeds

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"research-pipeline/internal/domain/entity"
)

type memFeedRepo struct {
	byURL  map[string]*entity.Feed
	nextID int64
}

func newMemFeedRepo() *memFeedRepo {
	return &memFeedRepo{byURL: make(map[string]*entity.Feed)}
}

func (m *memFeedRepo) Get(ctx context.Context, id int64) (*entity.Feed, error) {
	for _, f := range m.byURL {
		if f.ID == id {
			return f, nil
		}
	}
	return nil, entity.ErrNotFound
}

func (m *memFeedRepo) GetByURL(ctx context.Context, url string) (*entity.Feed, error) {
	if f, ok := m.byURL[url]; ok {
		return f, nil
	}
	return nil, entity.ErrNotFound
}

func (m *memFeedRepo) ListActive(ctx context.Context) ([]*entity.Feed, error) {
	var out []*entity.Feed
	for _, f := range m.byURL {
		if f.Active {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFeedRepo) ListActiveByCategory(ctx context.Context, category entity.Category) ([]*entity.Feed, error) {
	var out []*entity.Feed
	for _, f := range m.byURL {
		if f.Active && f.Category == category {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFeedRepo) Create(ctx context.Context, feed *entity.Feed) error {
	if err := feed.Validate(); err != nil {
		return err
	}
	if _, ok := m.byURL[feed.URL]; ok {
		return fmt.Errorf("Create: feed %q already subscribed: %w", feed.URL, entity.ErrInvalidInput)
	}
	m.nextID++
	feed.ID = m.nextID
	feed.Active = true
	m.byURL[feed.URL] = feed
	return nil
}

func (m *memFeedRepo) Deactivate(ctx context.Context, url string) error {
	f, ok := m.byURL[url]
	if !ok || !f.Active {
		return entity.ErrNotFound
	}
	f.Active = false
	return nil
}

func (m *memFeedRepo) TouchFetchedAt(ctx context.Context, id int64, t time.Time) error {
	return nil
}

type stubProber struct {
	title string
	err   error
	calls int
}

func (s *stubProber) ProbeTitle(ctx context.Context, feedURL string) (string, error) {
	s.calls++
	return s.title, s.err
}

func newTestService(repo *memFeedRepo, prober TitleProber) *Service {
	return NewService(repo, prober, slog.New(slog.DiscardHandler))
}

func TestDetectCategory(t *testing.T) {
	tests := []struct {
		url  string
		want entity.Category
	}{
		{"https://www.youtube.com/feeds/videos.xml?channel_id=UC123", entity.CategoryYouTube},
		{"https://youtu.be/abc", entity.CategoryYouTube},
		{"https://anchor.fm/s/123/podcast/rss", entity.CategoryPodcasts},
		{"https://feeds.simplecast.com/abcdef", entity.CategoryPodcasts},
		{"https://example.com/podcasts/feed.xml", entity.CategoryPodcasts},
		{"https://blog.example.com/rss.xml", entity.CategoryArticles},
		{"not a url", entity.CategoryArticles},
	}
	for _, tt := range tests {
		if got := DetectCategory(tt.url); got != tt.want {
			t.Errorf("DetectCategory(%q) = %s, want %s", tt.url, got, tt.want)
		}
	}
}

func TestSubscribe_ProbesTitleWhenEmpty(t *testing.T) {
	repo := newMemFeedRepo()
	prober := &stubProber{title: "Example Blog"}
	svc := newTestService(repo, prober)

	feed, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "", "")
	if err != nil {
		t.Fatalf("Subscribe err=%v", err)
	}
	if feed.Title != "Example Blog" {
		t.Errorf("Title = %q", feed.Title)
	}
	if feed.Category != entity.CategoryArticles {
		t.Errorf("Category = %s", feed.Category)
	}
	if prober.calls != 1 {
		t.Errorf("probe calls = %d", prober.calls)
	}
}

func TestSubscribe_ExplicitTitleSkipsProbe(t *testing.T) {
	repo := newMemFeedRepo()
	prober := &stubProber{title: "ignored"}
	svc := newTestService(repo, prober)

	feed, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "My Feed", "youtube")
	if err != nil {
		t.Fatalf("Subscribe err=%v", err)
	}
	if feed.Title != "My Feed" || feed.Category != entity.CategoryYouTube {
		t.Errorf("feed = %+v", feed)
	}
	if prober.calls != 0 {
		t.Errorf("probe calls = %d, want 0", prober.calls)
	}
}

func TestSubscribe_ProbeFailureIsNotFatal(t *testing.T) {
	repo := newMemFeedRepo()
	prober := &stubProber{err: errors.New("connection refused")}
	svc := newTestService(repo, prober)

	feed, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "", "")
	if err != nil {
		t.Fatalf("Subscribe err=%v", err)
	}
	if feed.Title != "" {
		t.Errorf("Title = %q, want empty", feed.Title)
	}
}

func TestSubscribe_RejectsInvalidCategory(t *testing.T) {
	svc := newTestService(newMemFeedRepo(), nil)

	_, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "", "movies")
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestSubscribe_DuplicateURL(t *testing.T) {
	svc := newTestService(newMemFeedRepo(), nil)

	if _, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "A", "articles"); err != nil {
		t.Fatalf("first Subscribe err=%v", err)
	}
	_, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "B", "articles")
	if !errors.Is(err, entity.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	repo := newMemFeedRepo()
	svc := newTestService(repo, nil)

	if _, err := svc.Subscribe(context.Background(), "https://blog.example.com/rss.xml", "A", "articles"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Unsubscribe(context.Background(), "https://blog.example.com/rss.xml"); err != nil {
		t.Fatalf("Unsubscribe err=%v", err)
	}

	active, _ := repo.ListActive(context.Background())
	if len(active) != 0 {
		t.Errorf("active feeds = %d, want 0", len(active))
	}

	if err := svc.Unsubscribe(context.Background(), "https://unknown.example.com/rss"); !errors.Is(err, entity.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestList_ByCategory(t *testing.T) {
	svc := newTestService(newMemFeedRepo(), nil)
	ctx := context.Background()

	for _, f := range []struct{ url, cat string }{
		{"https://a.example.com/rss", "articles"},
		{"https://b.example.com/rss", "youtube"},
		{"https://c.example.com/rss", "youtube"},
	} {
		if _, err := svc.Subscribe(ctx, f.url, "t", f.cat); err != nil {
			t.Fatal(err)
		}
	}

	all, err := svc.List(ctx, "")
	if err != nil {
		t.Fatalf("List err=%v", err)
	}
	if len(all) != 3 {
		t.Errorf("all = %d, want 3", len(all))
	}

	yt, err := svc.List(ctx, "youtube")
	if err != nil {
		t.Fatalf("List err=%v", err)
	}
	if len(yt) != 2 {
		t.Errorf("youtube = %d, want 2", len(yt))
	}

	if _, err := svc.List(ctx, "movies"); !errors.Is(err, entity.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestOPML_ExportImportRoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestService(newMemFeedRepo(), nil)

	for _, f := range []struct{ url, title, cat string }{
		{"https://a.example.com/rss", "Blog A", "articles"},
		{"https://youtube.com/feeds/videos.xml?channel_id=UC1", "Channel", "youtube"},
		{"https://anchor.fm/s/1/podcast/rss", "Show", "podcasts"},
	} {
		if _, err := src.Subscribe(ctx, f.url, f.title, f.cat); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := src.ExportOPML(ctx, &buf); err != nil {
		t.Fatalf("ExportOPML err=%v", err)
	}
	out := buf.String()
	for _, want := range []string{`version="2.0"`, `xmlUrl="https://a.example.com/rss"`, `text="youtube"`} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q in:\n%s", want, out)
		}
	}

	destRepo := newMemFeedRepo()
	dest := newTestService(destRepo, nil)
	result, err := dest.ImportOPML(ctx, &buf)
	if err != nil {
		t.Fatalf("ImportOPML err=%v", err)
	}
	if result.Added != 3 || result.Skipped != 0 {
		t.Errorf("result = %+v", result)
	}

	show, err := destRepo.GetByURL(ctx, "https://anchor.fm/s/1/podcast/rss")
	if err != nil {
		t.Fatal(err)
	}
	if show.Category != entity.CategoryPodcasts || show.Title != "Show" {
		t.Errorf("imported feed = %+v", show)
	}
}

func TestOPML_ImportSkipsDuplicates(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(newMemFeedRepo(), nil)
	if _, err := svc.Subscribe(ctx, "https://a.example.com/rss", "Existing", "articles"); err != nil {
		t.Fatal(err)
	}

	doc := `<?xml version="1.0"?>
<opml version="2.0">
  <head><title>t</title></head>
  <body>
    <outline text="articles">
      <outline text="Blog A" type="rss" xmlUrl="https://a.example.com/rss"/>
      <outline text="Blog B" type="rss" xmlUrl="https://b.example.com/rss"/>
    </outline>
  </body>
</opml>`

	result, err := svc.ImportOPML(ctx, strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ImportOPML err=%v", err)
	}
	if result.Added != 1 || result.Skipped != 1 {
		t.Errorf("result = %+v", result)
	}
}

func TestOPML_ImportAutoDetectsCategoryWithoutGroup(t *testing.T) {
	ctx := context.Background()
	repo := newMemFeedRepo()
	svc := newTestService(repo, nil)

	doc := `<?xml version="1.0"?>
<opml version="2.0">
  <head><title>t</title></head>
  <body>
    <outline text="Channel" type="rss" xmlUrl="https://www.youtube.com/feeds/videos.xml?channel_id=UC9"/>
  </body>
</opml>`

	if _, err := svc.ImportOPML(ctx, strings.NewReader(doc)); err != nil {
		t.Fatalf("ImportOPML err=%v", err)
	}
	feed, err := repo.GetByURL(ctx, "https://www.youtube.com/feeds/videos.xml?channel_id=UC9")
	if err != nil {
		t.Fatal(err)
	}
	if feed.Category != entity.CategoryYouTube {
		t.Errorf("Category = %s, want youtube", feed.Category)
	}
}
