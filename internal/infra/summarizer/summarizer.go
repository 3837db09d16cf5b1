// Package summarizer provides AI-powered text summarization implementations.
// It includes adapters for Claude (Anthropic) and OpenAI APIs with circuit
// breaker and retry protection, used by the API processing mode to condense
// fetched article content before it is written to the vault.
package summarizer

import "context"

// Summarizer generates a short summary of the given text.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}
