package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis"
	"github.com/insightline/analyst-engine/pkg/apperrors"
	"github.com/insightline/analyst-engine/pkg/config"
	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/models"
	"github.com/insightline/analyst-engine/pkg/services"
)

type fakeConnector struct{}

func (c *fakeConnector) Dialect() models.Dialect { return models.DialectPostgres }

func (c *fakeConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	return []string{"orders"}, nil
}

func (c *fakeConnector) GetColumns(ctx context.Context, table string) ([]models.SchemaColumn, error) {
	return []models.SchemaColumn{{Name: "id", Type: "bigint"}}, nil
}

func (c *fakeConnector) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	return &datasource.Constraints{}, nil
}

func (c *fakeConnector) ProfileCounts(ctx context.Context, table, tsCol string) (*datasource.TableProfile, error) {
	return &datasource.TableProfile{Table: table, TotalRows: 10}, nil
}

func (c *fakeConnector) RunSQL(ctx context.Context, sql string, params []any, limit int) (*datasource.Result, error) {
	return &datasource.Result{
		Columns:  []datasource.ColumnInfo{{Name: "n", Type: "INT8"}},
		Rows:     []map[string]any{{"n": int64(42)}},
		RowCount: 1,
	}, nil
}

func (c *fakeConnector) QuoteIdent(name string) string { return name }
func (c *fakeConnector) LimitClause(n int) string      { return "LIMIT 10" }
func (c *fakeConnector) Close() error                  { return nil }

func newTestHandler(t *testing.T) (*AnalysisHandler, *http.ServeMux) {
	t.Helper()

	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"sql": "SELECT COUNT(*) AS n FROM orders", "notes": "count"}`, nil
	}
	engine := analysis.NewEngine(client, nil, analysis.Config{}, zap.NewNop())
	jobs := services.NewJobService(engine, zap.NewNop())

	cfg := &config.Config{Version: "test", Env: "test"}
	cfg.Datasource.Kind = "postgres"

	h := NewAnalysisHandler(jobs, cfg, zap.NewNop())
	h.open = func(ctx context.Context, kind string, dsCfg datasource.Config, logger *zap.Logger) (datasource.Connector, error) {
		if kind != "postgres" {
			return nil, fmt.Errorf("%w: %q", apperrors.ErrNoConnector, kind)
		}
		return &fakeConnector{}, nil
	}

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func TestAnalyzeSynchronous(t *testing.T) {
	_, mux := newTestHandler(t)

	body := `{"question": "how many orders?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var result models.RunResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.NotEmpty(t, result.JobID)
	assert.NotEmpty(t, result.Answer)
	assert.True(t, result.Quality.Passed)
}

func TestAnalyzeAsync(t *testing.T) {
	_, mux := newTestHandler(t)

	body := `{"question": "how many orders?", "async": true}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var submitted SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&submitted))
	require.NotEmpty(t, submitted.JobID)
	assert.Equal(t, services.JobStatusRunning, submitted.Status)

	require.Eventually(t, func() bool {
		getReq := httptest.NewRequest(http.MethodGet, "/api/jobs/"+submitted.JobID, nil)
		getRec := httptest.NewRecorder()
		mux.ServeHTTP(getRec, getReq)
		if getRec.Code != http.StatusOK {
			return false
		}
		var job services.Job
		if err := json.NewDecoder(getRec.Body).Decode(&job); err != nil {
			return false
		}
		return job.Status == services.JobStatusCompleted && job.Result != nil
	}, 5*time.Second, 10*time.Millisecond)
}

func TestAnalyzeRejectsMissingQuestion(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeRejectsInvalidJSON(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeUnknownDatasourceKind(t *testing.T) {
	_, mux := newTestHandler(t)

	body := `{"question": "q", "datasource": {"kind": "oracle", "dsn": "x"}}`
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetJobNotFound(t *testing.T) {
	_, mux := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/nope", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDatasourceForFallsBackToConfig(t *testing.T) {
	h, _ := newTestHandler(t)
	h.cfg.Datasource.DSN = "postgres://default"
	h.cfg.Datasource.Schema = "public"

	kind, dsCfg := h.datasourceFor(&AnalyzeRequest{})
	assert.Equal(t, "postgres", kind)
	assert.Equal(t, "postgres://default", dsCfg.DSN)
	assert.Equal(t, "public", dsCfg.Schema)

	kind, dsCfg = h.datasourceFor(&AnalyzeRequest{
		Datasource: &DatasourceRequest{DSN: "mysql://other", Kind: "mysql"},
	})
	assert.Equal(t, "mysql", kind)
	assert.Equal(t, "mysql://other", dsCfg.DSN)
}
