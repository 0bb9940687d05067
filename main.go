package main

import (
	"log"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/analysis"
	"github.com/insightline/analyst-engine/pkg/config"
	"github.com/insightline/analyst-engine/pkg/handlers"
	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/middleware"
	"github.com/insightline/analyst-engine/pkg/rls"
	"github.com/insightline/analyst-engine/pkg/services"

	// Datasource adapters register themselves on import.
	_ "github.com/insightline/analyst-engine/pkg/adapters/datasource/mssql"
	_ "github.com/insightline/analyst-engine/pkg/adapters/datasource/mysql"
	_ "github.com/insightline/analyst-engine/pkg/adapters/datasource/postgres"
	_ "github.com/insightline/analyst-engine/pkg/adapters/datasource/sqlite"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	client, err := llm.NewClient(&llm.Config{
		Provider:    llm.Provider(cfg.LLM.Provider),
		Endpoint:    cfg.LLM.Endpoint,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		Temperature: float64(cfg.LLM.Temperature),
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create llm client", zap.Error(err))
	}

	var tokens *rls.TokenManager
	if cfg.RLS.SupabaseURL != "" {
		tokens = rls.NewTokenManager(cfg.RLS.SupabaseURL, cfg.RLS.AnonKey,
			time.Duration(cfg.RLS.RefreshThresholdSeconds)*time.Second, logger)
	}

	engine := analysis.NewEngine(client, tokens, analysis.Config{
		RowCap:         cfg.Analysis.RowCap,
		MaxSteps:       cfg.Analysis.MaxSteps,
		MaxDiagnostics: cfg.Analysis.MaxDiagnostics,
		MaxCandidates:  cfg.Analysis.MaxCandidates,
	}, logger)
	jobs := services.NewJobService(engine, logger)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewAnalysisHandler(jobs, cfg, logger).RegisterRoutes(mux)

	logger.Info("starting analyst-engine",
		zap.String("addr", cfg.Addr()),
		zap.String("version", cfg.Version),
		zap.String("llm_provider", cfg.LLM.Provider))

	handler := middleware.RequestLogger(logger)(mux)
	if err := http.ListenAndServe(cfg.Addr(), handler); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
