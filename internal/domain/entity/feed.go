package entity

import (
	"errors"
	"strings"
	"time"
)

// Feed represents a feed subscription. Feeds are the only long-lived
// configuration entity; entries are reconstructed from feed content on each
// run and never persisted directly.
type Feed struct {
	ID            int64
	URL           string
	Title         string
	Category      Category
	AddedAt       time.Time
	LastFetchedAt *time.Time
	Active        bool
}

// Validate checks the Feed entity fields before persistence.
func (f *Feed) Validate() error {
	if strings.TrimSpace(f.URL) == "" {
		return errors.New("feed url is required")
	}
	if _, err := ParseCategory(string(f.Category)); err != nil {
		return err
	}
	return nil
}
