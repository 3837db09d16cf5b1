package entity

import "fmt"

// Category classifies a feed and the entries it yields. The set is closed:
// every category must have a processor capability behind it.
type Category string

const (
	CategoryArticles Category = "articles"
	CategoryYouTube  Category = "youtube"
	CategoryPodcasts Category = "podcasts"
)

// Categories lists all valid categories in a stable order.
func Categories() []Category {
	return []Category{CategoryArticles, CategoryYouTube, CategoryPodcasts}
}

// ParseCategory validates a raw category string.
func ParseCategory(raw string) (Category, error) {
	switch Category(raw) {
	case CategoryArticles, CategoryYouTube, CategoryPodcasts:
		return Category(raw), nil
	default:
		return "", fmt.Errorf("%w: invalid category %q (must be articles, youtube, or podcasts)", ErrInvalidInput, raw)
	}
}

// String implements fmt.Stringer.
func (c Category) String() string { return string(c) }
