package config

import (
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for analyst-engine.
// Configuration can come from YAML file (config.yaml) or environment
// variables; environment variables always override YAML values. Secrets
// (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"8090"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	Version  string `yaml:"-"` // Set at load time, not from config

	// Analysis engine tuning
	Analysis AnalysisConfig `yaml:"analysis"`

	// Language model provider configuration
	LLM LLMConfig `yaml:"llm"`

	// Row-level-security token refresh configuration
	RLS RLSConfig `yaml:"rls"`

	// Datasource holds the default connection used when a request does not
	// carry its own connection settings.
	Datasource DatasourceConfig `yaml:"datasource"`
}

// AnalysisConfig tunes the orchestrator.
type AnalysisConfig struct {
	// RowCap is the dialect-enforced row limit injected into every query.
	RowCap int `yaml:"row_cap" env:"ANALYSIS_ROW_CAP" env-default:"100000"`
	// MaxSteps is the hard ceiling on state transitions per run.
	MaxSteps int `yaml:"max_steps" env:"ANALYSIS_MAX_STEPS" env-default:"60"`
	// MaxDiagnostics bounds the diagnostic batch per diagnose pass.
	MaxDiagnostics int `yaml:"max_diagnostics" env:"ANALYSIS_MAX_DIAGNOSTICS" env-default:"5"`
	// MaxCandidates bounds how many tables the selector keeps.
	MaxCandidates int `yaml:"max_candidates" env:"ANALYSIS_MAX_CANDIDATES" env-default:"12"`
	// DefaultBudgetQueries/Seconds seed specs that omit a budget.
	DefaultBudgetQueries int `yaml:"default_budget_queries" env:"ANALYSIS_DEFAULT_BUDGET_QUERIES" env-default:"30"`
	DefaultBudgetSeconds int `yaml:"default_budget_seconds" env:"ANALYSIS_DEFAULT_BUDGET_SECONDS" env-default:"90"`
}

// LLMConfig holds language model provider settings.
type LLMConfig struct {
	Provider    string  `yaml:"provider" env:"LLM_PROVIDER" env-default:"openai"`
	Endpoint    string  `yaml:"endpoint" env:"LLM_ENDPOINT" env-default:""`
	Model       string  `yaml:"model" env:"LLM_MODEL" env-default:"gpt-4o"`
	APIKey      string  `yaml:"-" env:"LLM_API_KEY"` // Secret - not in YAML
	Temperature float32 `yaml:"temperature" env:"LLM_TEMPERATURE" env-default:"0.1"`
}

// RLSConfig holds Supabase-style token refresh settings.
type RLSConfig struct {
	SupabaseURL             string `yaml:"supabase_url" env:"RLS_SUPABASE_URL" env-default:""`
	AnonKey                 string `yaml:"-" env:"RLS_ANON_KEY"` // Secret - not in YAML
	RefreshThresholdSeconds int    `yaml:"refresh_threshold_seconds" env:"RLS_REFRESH_THRESHOLD_SECONDS" env-default:"300"`
}

// DatasourceConfig holds the default datasource connection.
type DatasourceConfig struct {
	Kind   string `yaml:"kind" env:"DATASOURCE_KIND" env-default:"postgres"`
	DSN    string `yaml:"-" env:"DATASOURCE_DSN"` // Secret - not in YAML
	Schema string `yaml:"schema" env:"DATASOURCE_SCHEMA" env-default:""`
}

// Load reads configuration from config.yaml with environment overrides.
// A missing config.yaml is not an error; the environment alone suffices.
func Load(version string) (*Config, error) {
	cfg := &Config{Version: version}

	if _, err := os.Stat("config.yaml"); err == nil {
		if err := cleanenv.ReadConfig("config.yaml", cfg); err != nil {
			return nil, fmt.Errorf("failed to read config.yaml: %w", err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Analysis.RowCap <= 0 {
		return fmt.Errorf("analysis.row_cap must be positive, got %d", c.Analysis.RowCap)
	}
	if c.Analysis.MaxSteps <= 0 {
		return fmt.Errorf("analysis.max_steps must be positive, got %d", c.Analysis.MaxSteps)
	}
	switch c.LLM.Provider {
	case "openai", "anthropic":
	default:
		return fmt.Errorf("llm.provider must be openai or anthropic, got %q", c.LLM.Provider)
	}
	return nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return c.BindAddr + ":" + c.Port
}
