package entity

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Entry is a candidate content item produced by the feed collaborator or
// rebuilt from a retry-queue row. Entries are transient: only their
// processing outcome (ProcessedRecord or RetryEntry) is persisted.
type Entry struct {
	GUID        string
	Title       string
	URL         string
	Content     string
	Author      string
	PublishedAt *time.Time
	FeedID      int64
	FeedTitle   string
	Category    Category
}

// DeriveGUID returns a stable identity for a feed item: the source-provided
// id when present, otherwise the link, otherwise a truncated content hash of
// title+link.
func DeriveGUID(sourceID, link, title string) string {
	if sourceID != "" {
		return sourceID
	}
	if link != "" {
		return link
	}
	sum := sha256.Sum256([]byte(title + link))
	return hex.EncodeToString(sum[:])[:16]
}
