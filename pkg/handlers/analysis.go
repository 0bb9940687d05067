package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/apperrors"
	"github.com/insightline/analyst-engine/pkg/config"
	"github.com/insightline/analyst-engine/pkg/models"
	"github.com/insightline/analyst-engine/pkg/services"
)

// DatasourceRequest overrides the configured default datasource for one
// analysis request.
type DatasourceRequest struct {
	Kind   string `json:"kind"`
	DSN    string `json:"dsn"`
	Schema string `json:"schema,omitempty"`
}

// AnalyzeRequest is the body of POST /api/analyze.
type AnalyzeRequest struct {
	models.QuerySpec
	RLS        *models.RLSContext `json:"rls,omitempty"`
	Datasource *DatasourceRequest `json:"datasource,omitempty"`
	Async      bool               `json:"async,omitempty"`
}

// SubmitResponse is returned for asynchronous submissions.
type SubmitResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// openFunc matches datasource.Open; swapped for a stub in tests.
type openFunc func(ctx context.Context, kind string, cfg datasource.Config, logger *zap.Logger) (datasource.Connector, error)

// AnalysisHandler handles analysis submission and job lookup endpoints.
type AnalysisHandler struct {
	jobs   services.JobService
	cfg    *config.Config
	logger *zap.Logger
	open   openFunc
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(jobs services.JobService, cfg *config.Config, logger *zap.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		jobs:   jobs,
		cfg:    cfg,
		logger: logger.Named("handlers"),
		open:   datasource.Open,
	}
}

// RegisterRoutes registers the analysis handler's routes on the given mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", h.Analyze)
	mux.HandleFunc("GET /api/jobs/{id}", h.GetJob)
}

// Analyze handles POST /api/analyze requests. The request runs synchronously
// by default and returns the completed result; with async=true it returns
// the job id immediately and the result is fetched via GET /api/jobs/{id}.
func (h *AnalysisHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid JSON body: "+err.Error())
		return
	}
	if req.Question == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", apperrors.ErrNoQuestion.Error())
		return
	}

	kind, dsCfg := h.datasourceFor(&req)
	conn, err := h.open(r.Context(), kind, dsCfg, h.logger)
	if err != nil {
		h.logger.Error("failed to open datasource",
			zap.String("kind", kind), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, apperrors.ErrNoConnector) {
			status = http.StatusBadRequest
		}
		_ = ErrorResponse(w, status, "datasource_unavailable", err.Error())
		return
	}

	if req.Dialect == "" {
		req.Dialect = conn.Dialect()
	}

	if req.Async {
		jobID, err := h.jobs.Submit(r.Context(), req.QuerySpec, conn, req.RLS)
		if err != nil {
			conn.Close()
			_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		if err := WriteJSON(w, http.StatusAccepted, SubmitResponse{JobID: jobID, Status: services.JobStatusRunning}); err != nil {
			h.logger.Error("Failed to encode submit response", zap.Error(err))
		}
		return
	}

	defer conn.Close()
	result, err := h.jobs.Run(r.Context(), req.QuerySpec, conn, req.RLS)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if err := WriteJSON(w, http.StatusOK, result); err != nil {
		h.logger.Error("Failed to encode analysis result", zap.Error(err))
	}
}

// GetJob handles GET /api/jobs/{id} requests.
func (h *AnalysisHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	job, err := h.jobs.Get(jobID)
	if err != nil {
		if errors.Is(err, apperrors.ErrJobNotFound) {
			_ = ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
			return
		}
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", err.Error())
		return
	}

	if err := WriteJSON(w, http.StatusOK, job); err != nil {
		h.logger.Error("Failed to encode job response", zap.Error(err))
	}
}

// datasourceFor resolves the connection settings for a request, falling back
// to the configured default datasource.
func (h *AnalysisHandler) datasourceFor(req *AnalyzeRequest) (string, datasource.Config) {
	if req.Datasource != nil && req.Datasource.DSN != "" {
		kind := req.Datasource.Kind
		if kind == "" {
			kind = h.cfg.Datasource.Kind
		}
		return kind, datasource.Config{DSN: req.Datasource.DSN, Schema: req.Datasource.Schema}
	}
	return h.cfg.Datasource.Kind, datasource.Config{
		DSN:    h.cfg.Datasource.DSN,
		Schema: h.cfg.Datasource.Schema,
	}
}
