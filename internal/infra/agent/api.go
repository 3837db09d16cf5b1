package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"research-pipeline/internal/config"
	"research-pipeline/internal/domain/entity"
	"research-pipeline/internal/infra/fetcher"
	"research-pipeline/internal/infra/summarizer"
)

// ContentFetcher retrieves full article text for a URL.
type ContentFetcher interface {
	FetchContent(ctx context.Context, urlStr string) (string, error)
}

// APIProcessor processes entries without the claude CLI: it fetches the full
// content, summarizes it through an AI API, and writes the note artifact
// directly into the vault. Post-processing batches are a logged no-op for
// this implementation.
type APIProcessor struct {
	cfg        *config.Config
	vaultPath  string
	fetcher    ContentFetcher
	summarizer summarizer.Summarizer
	fetchCfg   fetcher.ContentFetchConfig
	logger     *slog.Logger
	now        func() time.Time
}

// NewAPIProcessor creates an APIProcessor writing notes under vaultPath.
func NewAPIProcessor(cfg *config.Config, vaultPath string, contentFetcher ContentFetcher, s summarizer.Summarizer, fetchCfg fetcher.ContentFetchConfig, logger *slog.Logger) *APIProcessor {
	return &APIProcessor{
		cfg:        cfg,
		vaultPath:  vaultPath,
		fetcher:    contentFetcher,
		summarizer: s,
		fetchCfg:   fetchCfg,
		logger:     logger,
		now:        time.Now,
	}
}

// Validate checks that the vault directory exists and is writable.
func (p *APIProcessor) Validate() []string {
	info, err := os.Stat(p.vaultPath)
	if err != nil || !info.IsDir() {
		return []string{"vault"}
	}
	return nil
}

// Process fetches, summarizes, and writes the note for one entry.
func (p *APIProcessor) Process(ctx context.Context, entry *entity.Entry) Outcome {
	spec, err := p.cfg.SkillFor(entry.Category)
	if err != nil {
		return FailPermanent(err.Error())
	}

	content, outcome := p.resolveContent(ctx, entry)
	if outcome != nil {
		return *outcome
	}

	summary, err := p.summarizer.Summarize(ctx, content)
	if err != nil {
		return Fail(fmt.Sprintf("summarization failed: %v", err))
	}

	notePath, err := p.writeNote(entry, spec.OutputFolder, summary)
	if err != nil {
		return Fail(fmt.Sprintf("write note: %v", err))
	}

	return Succeed(notePath)
}

// resolveContent returns the text to summarize, fetching the full article
// when the feed content is too short. A non-nil outcome short-circuits
// processing.
func (p *APIProcessor) resolveContent(ctx context.Context, entry *entity.Entry) (string, *Outcome) {
	content := entry.Content
	if !p.fetchCfg.Enabled || utf8.RuneCountInString(content) >= p.fetchCfg.Threshold {
		if content == "" {
			o := FailPermanent("entry has no content and content fetching is disabled")
			return "", &o
		}
		return content, nil
	}

	fetched, err := p.fetcher.FetchContent(ctx, entry.URL)
	if err != nil {
		if errors.Is(err, fetcher.ErrInvalidURL) || errors.Is(err, fetcher.ErrPrivateIP) {
			o := FailPermanent(fmt.Sprintf("content fetch rejected: %v", err))
			return "", &o
		}
		if content != "" {
			// Short feed content is still usable when the full fetch fails
			p.logger.Warn("content fetch failed, using feed content",
				slog.String("url", entry.URL),
				slog.Any("error", err))
			return content, nil
		}
		o := Fail(fmt.Sprintf("content fetch failed: %v", err))
		return "", &o
	}

	return fetched, nil
}

// EvaluateBatch is a no-op for the API processor; knowledge evaluation
// requires the CLI skills.
func (p *APIProcessor) EvaluateBatch(ctx context.Context, notePaths []string) error {
	p.logger.Info("skipping knowledge evaluation, not supported by api processor",
		slog.Int("notes", len(notePaths)))
	return nil
}

// writeNote renders the markdown note and writes it into the category's
// output folder, creating the folder when needed.
func (p *APIProcessor) writeNote(entry *entity.Entry, folder, summary string) (string, error) {
	dir := filepath.Join(p.vaultPath, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	notePath := filepath.Join(dir, sanitizeFilename(entry.Title)+".md")

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "title: %q\n", entry.Title)
	fmt.Fprintf(&b, "url: %s\n", entry.URL)
	fmt.Fprintf(&b, "source: %s\n", entry.FeedTitle)
	if entry.Author != "" {
		fmt.Fprintf(&b, "author: %s\n", entry.Author)
	}
	if entry.PublishedAt != nil {
		fmt.Fprintf(&b, "published: %s\n", entry.PublishedAt.Format("2006-01-02"))
	}
	fmt.Fprintf(&b, "created: %s\n", p.now().Format("2006-01-02"))
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "# %s\n\n", entry.Title)
	b.WriteString(summary)
	b.WriteString("\n")

	if err := os.WriteFile(notePath, []byte(b.String()), 0o644); err != nil {
		return "", err
	}

	return notePath, nil
}

// sanitizeFilename makes a title safe to use as a vault filename.
func sanitizeFilename(title string) string {
	replacer := strings.NewReplacer(
		"/", "-",
		"\\", "-",
		":", " -",
		"*", "",
		"?", "",
		"\"", "'",
		"<", "(",
		">", ")",
		"|", "-",
	)
	name := strings.TrimSpace(replacer.Replace(title))
	if name == "" {
		name = "Untitled"
	}
	const maxLen = 120
	if len(name) > maxLen {
		name = strings.TrimSpace(name[:maxLen])
	}
	return name
}
