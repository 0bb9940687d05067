package llm

import (
	"fmt"

	"go.uber.org/zap"
)

// Provider identifies a completion backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
)

// Config holds configuration for creating a completion client.
type Config struct {
	Provider    Provider // Backend; defaults to openai
	Endpoint    string   // Base URL; empty uses the provider default
	Model       string   // Model name, e.g. "gpt-4o"
	APIKey      string   // Optional for local openai-compatible endpoints
	Temperature float64  // Sampling temperature for all completions
}

// NewClient creates a completion client for the configured provider.
func NewClient(cfg *Config, logger *zap.Logger) (Client, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg, logger)
	case ProviderOpenAI, "":
		return NewOpenAIClient(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}
