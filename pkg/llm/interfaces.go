// Package llm provides the model-completion clients used for SQL synthesis.
package llm

import "context"

// Client is the synthesis port: a completion capability that, given a
// structured prompt, returns the model's raw text response.
// Use this interface for dependency injection to enable mocking in tests.
type Client interface {
	// Complete generates a completion for the prompt.
	Complete(ctx context.Context, prompt string, systemMessage string) (string, error)

	// GetModel returns the configured model name.
	GetModel() string
}

// Compile-time interface checks.
var (
	_ Client = (*OpenAIClient)(nil)
	_ Client = (*AnthropicClient)(nil)
	_ Client = (*MockClient)(nil)
)
