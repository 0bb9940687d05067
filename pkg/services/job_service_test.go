package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis"
	"github.com/insightline/analyst-engine/pkg/apperrors"
	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/models"
)

type stubConnector struct {
	mu     sync.Mutex
	closed bool
}

func (c *stubConnector) Dialect() models.Dialect { return models.DialectPostgres }

func (c *stubConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	return []string{"orders"}, nil
}

func (c *stubConnector) GetColumns(ctx context.Context, table string) ([]models.SchemaColumn, error) {
	return []models.SchemaColumn{{Name: "id", Type: "bigint"}}, nil
}

func (c *stubConnector) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	return &datasource.Constraints{}, nil
}

func (c *stubConnector) ProfileCounts(ctx context.Context, table, tsCol string) (*datasource.TableProfile, error) {
	return &datasource.TableProfile{Table: table, TotalRows: 2000}, nil
}

func (c *stubConnector) RunSQL(ctx context.Context, sql string, params []any, limit int) (*datasource.Result, error) {
	return &datasource.Result{
		Columns:  []datasource.ColumnInfo{{Name: "n", Type: "INT8"}},
		Rows:     []map[string]any{{"n": int64(1)}},
		RowCount: 1,
	}, nil
}

func (c *stubConnector) QuoteIdent(name string) string { return name }
func (c *stubConnector) LimitClause(n int) string      { return "LIMIT 10" }

func (c *stubConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *stubConnector) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestService() JobService {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"sql": "SELECT COUNT(*) AS n FROM orders", "notes": "count"}`, nil
	}
	engine := analysis.NewEngine(client, nil, analysis.Config{}, zap.NewNop())
	return NewJobService(engine, zap.NewNop())
}

func validSpec() models.QuerySpec {
	return models.QuerySpec{Question: "how many orders?", Dialect: models.DialectPostgres}
}

func TestRunSynchronous(t *testing.T) {
	svc := newTestService()

	result, err := svc.Run(context.Background(), validSpec(), &stubConnector{}, nil)
	require.NoError(t, err)
	assert.True(t, result.Quality.Passed)
	assert.NotEmpty(t, result.Answer)

	job, err := svc.Get(result.JobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusCompleted, job.Status)
	require.NotNil(t, job.Result)
}

func TestRunRejectsEmptyQuestion(t *testing.T) {
	svc := newTestService()
	_, err := svc.Run(context.Background(), models.QuerySpec{}, &stubConnector{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrNoQuestion)
}

func TestRunRejectsUnsafeFilter(t *testing.T) {
	svc := newTestService()
	spec := validSpec()
	spec.Filters = map[string]any{"search": "1' OR '1'='1"}

	_, err := svc.Run(context.Background(), spec, &stubConnector{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnsafeFilter)
}

func TestSubmitAsync(t *testing.T) {
	svc := newTestService()
	conn := &stubConnector{}

	jobID, err := svc.Submit(context.Background(), validSpec(), conn, nil)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	require.Eventually(t, func() bool {
		job, err := svc.Get(jobID)
		return err == nil && job.Status == JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	job, err := svc.Get(jobID)
	require.NoError(t, err)
	require.NotNil(t, job.Result)
	assert.NotEmpty(t, job.Result.Answer)
	assert.True(t, conn.isClosed(), "connector released after the run")
}

func TestGetUnknownJob(t *testing.T) {
	svc := newTestService()
	_, err := svc.Get("nope")
	assert.ErrorIs(t, err, apperrors.ErrJobNotFound)
}

func TestConcurrentJobs(t *testing.T) {
	svc := newTestService()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Run(context.Background(), validSpec(), &stubConnector{}, nil)
			require.NoError(t, err)
			ids[i] = result.JobID
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id], "job ids must be unique")
		seen[id] = true

		job, err := svc.Get(id)
		require.NoError(t, err)
		assert.Equal(t, JobStatusCompleted, job.Status)
	}
}
