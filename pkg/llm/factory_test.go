package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClientDefaultsToOpenAI(t *testing.T) {
	client, err := NewClient(&Config{Model: "gpt-4o"}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &OpenAIClient{}, client)
	assert.Equal(t, "gpt-4o", client.GetModel())
}

func TestNewClientAnthropic(t *testing.T) {
	client, err := NewClient(&Config{
		Provider: ProviderAnthropic,
		Model:    "claude-sonnet-4-20250514",
		APIKey:   "test-key",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, client)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(&Config{Provider: ProviderOpenAI}, zap.NewNop())
	assert.Error(t, err, "missing model must fail")

	_, err = NewClient(&Config{Provider: ProviderAnthropic, Model: "claude"}, zap.NewNop())
	assert.Error(t, err, "anthropic requires an api key")

	_, err = NewClient(&Config{Provider: "bard", Model: "x"}, zap.NewNop())
	assert.Error(t, err)
}
