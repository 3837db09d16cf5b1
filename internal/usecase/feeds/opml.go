package feeds

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"time"

	"research-pipeline/internal/domain/entity"
)

type opmlDocument struct {
	XMLName xml.Name `xml:"opml"`
	Version string   `xml:"version,attr"`
	Head    opmlHead `xml:"head"`
	Body    opmlBody `xml:"body"`
}

type opmlHead struct {
	Title       string `xml:"title"`
	DateCreated string `xml:"dateCreated,omitempty"`
}

type opmlBody struct {
	Outlines []opmlOutline `xml:"outline"`
}

type opmlOutline struct {
	Text     string        `xml:"text,attr"`
	Title    string        `xml:"title,attr,omitempty"`
	Type     string        `xml:"type,attr,omitempty"`
	XMLURL   string        `xml:"xmlUrl,attr,omitempty"`
	HTMLURL  string        `xml:"htmlUrl,attr,omitempty"`
	Category string        `xml:"category,attr,omitempty"`
	Outlines []opmlOutline `xml:"outline"`
}

// ExportOPML writes the active subscriptions as OPML 2.0, one top-level
// outline per category.
func (s *Service) ExportOPML(ctx context.Context, w io.Writer) error {
	feeds, err := s.feeds.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("ExportOPML: %w", err)
	}

	byCategory := make(map[entity.Category][]*entity.Feed)
	for _, feed := range feeds {
		byCategory[feed.Category] = append(byCategory[feed.Category], feed)
	}

	doc := opmlDocument{
		Version: "2.0",
		Head: opmlHead{
			Title:       "research-pipeline subscriptions",
			DateCreated: time.Now().UTC().Format(time.RFC1123Z),
		},
	}
	for _, cat := range entity.Categories() {
		group := byCategory[cat]
		if len(group) == 0 {
			continue
		}
		outline := opmlOutline{Text: cat.String(), Title: cat.String()}
		for _, feed := range group {
			title := feed.Title
			if title == "" {
				title = feed.URL
			}
			outline.Outlines = append(outline.Outlines, opmlOutline{
				Text:     title,
				Title:    title,
				Type:     "rss",
				XMLURL:   feed.URL,
				Category: cat.String(),
			})
		}
		doc.Body.Outlines = append(doc.Body.Outlines, outline)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("ExportOPML: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("ExportOPML: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("ExportOPML: close encoder: %w", err)
	}
	return nil
}

// ImportResult summarizes one OPML import.
type ImportResult struct {
	Added   int
	Skipped int
}

// ImportOPML subscribes every feed outline in the document. Already
// subscribed URLs are skipped, not errors. The category comes from the
// outline's category attribute or enclosing group when valid, otherwise it is
// auto-detected from the URL.
func (s *Service) ImportOPML(ctx context.Context, r io.Reader) (*ImportResult, error) {
	var doc opmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("ImportOPML: decode: %w", err)
	}

	result := &ImportResult{}
	s.importOutlines(ctx, doc.Body.Outlines, "", result)
	s.logger.Info("opml import finished",
		slog.Int("added", result.Added),
		slog.Int("skipped", result.Skipped))
	return result, nil
}

func (s *Service) importOutlines(ctx context.Context, outlines []opmlOutline, group string, result *ImportResult) {
	for _, outline := range outlines {
		if outline.XMLURL == "" {
			// Grouping outline: its text names the category for children
			s.importOutlines(ctx, outline.Outlines, outline.Text, result)
			continue
		}

		category := ""
		for _, candidate := range []string{outline.Category, group} {
			if _, err := entity.ParseCategory(candidate); err == nil {
				category = candidate
				break
			}
		}

		title := outline.Title
		if title == "" {
			title = outline.Text
		}

		if _, err := s.Subscribe(ctx, outline.XMLURL, title, category); err != nil {
			result.Skipped++
			s.logger.Warn("opml outline skipped",
				slog.String("url", outline.XMLURL),
				slog.Any("error", err))
			continue
		}
		result.Added++
	}
}
