// Package fetcher provides article content fetching for the API processing mode.
package fetcher

import "errors"

// Sentinel errors for content fetching failures. Callers can classify
// failures with errors.Is; anything but ErrInvalidURL and ErrPrivateIP
// is worth retrying later.
var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrPrivateIP         = errors.New("url resolves to private ip")
	ErrTooManyRedirects  = errors.New("too many redirects")
	ErrTimeout           = errors.New("content fetch timed out")
	ErrBodyTooLarge      = errors.New("response body too large")
	ErrReadabilityFailed = errors.New("readability extraction failed")
)
