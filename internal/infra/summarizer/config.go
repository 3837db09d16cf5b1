package summarizer

import "fmt"

// SummarizerConfig is the common interface for summarizer configuration.
// Both the Claude and OpenAI implementations satisfy it so validation and
// prompt construction behave consistently across providers.
type SummarizerConfig interface {
	// GetCharacterLimit returns the maximum number of characters allowed in a summary.
	GetCharacterLimit() int

	// Validate checks all configuration fields for validity.
	Validate() error
}

const (
	defaultCharLimit = 900
	minCharLimit     = 100
	maxCharLimit     = 5000
)

// ValidateCharacterLimit validates that the character limit is within the
// valid range (100-5000).
func ValidateCharacterLimit(limit int) error {
	if limit < minCharLimit {
		return fmt.Errorf("character limit %d is below minimum %d", limit, minCharLimit)
	}
	if limit > maxCharLimit {
		return fmt.Errorf("character limit %d exceeds maximum %d", limit, maxCharLimit)
	}
	return nil
}
