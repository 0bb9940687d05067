package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestLoadDefaultsFromEnvOnly(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8090", cfg.Addr())
	assert.Equal(t, "test", cfg.Version)
	assert.Equal(t, 100000, cfg.Analysis.RowCap)
	assert.Equal(t, 60, cfg.Analysis.MaxSteps)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 300, cfg.RLS.RefreshThresholdSeconds)
}

func TestLoadReadsYAMLWithEnvOverride(t *testing.T) {
	chdirTemp(t)
	yaml := `
port: "9000"
analysis:
  row_cap: 500
llm:
  provider: anthropic
  model: claude-sonnet-4-20250514
`
	require.NoError(t, os.WriteFile("config.yaml", []byte(yaml), 0o644))
	t.Setenv("ANALYSIS_ROW_CAP", "750")
	t.Setenv("LLM_API_KEY", "sk-secret")

	cfg, err := Load("test")
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, 750, cfg.Analysis.RowCap, "environment overrides YAML")
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "sk-secret", cfg.LLM.APIKey)
}

func TestLoadRejectsInvalidProvider(t *testing.T) {
	chdirTemp(t)
	t.Setenv("LLM_PROVIDER", "bard")

	_, err := Load("test")
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveRowCap(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ANALYSIS_ROW_CAP", "-5")

	_, err := Load("test")
	assert.Error(t, err)
}
