package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/models"
)

// fakeConnector is an in-memory Connector for engine tests.
type fakeConnector struct {
	tables   []string
	columns  map[string][]models.SchemaColumn
	rowCount int64
	runSQL   func(sql string) (*datasource.Result, error)
	executed []string
}

func (f *fakeConnector) Dialect() models.Dialect { return models.DialectPostgres }

func (f *fakeConnector) ListTables(ctx context.Context, schema string) ([]string, error) {
	return f.tables, nil
}

func (f *fakeConnector) GetColumns(ctx context.Context, table string) ([]models.SchemaColumn, error) {
	if cols, ok := f.columns[table]; ok {
		return cols, nil
	}
	return []models.SchemaColumn{{Name: "id", Type: "bigint", PrimaryKey: true}}, nil
}

func (f *fakeConnector) GetConstraints(ctx context.Context, table string) (*datasource.Constraints, error) {
	return &datasource.Constraints{}, nil
}

func (f *fakeConnector) ProfileCounts(ctx context.Context, table, tsCol string) (*datasource.TableProfile, error) {
	return &datasource.TableProfile{Table: table, TotalRows: f.rowCount}, nil
}

func (f *fakeConnector) RunSQL(ctx context.Context, sql string, params []any, limit int) (*datasource.Result, error) {
	f.executed = append(f.executed, sql)
	if f.runSQL != nil {
		return f.runSQL(sql)
	}
	return &datasource.Result{
		Columns:  []datasource.ColumnInfo{{Name: "n", Type: "INT8"}},
		Rows:     []map[string]any{{"n": int64(42)}},
		RowCount: 1,
	}, nil
}

func (f *fakeConnector) QuoteIdent(name string) string { return `"` + name + `"` }
func (f *fakeConnector) LimitClause(n int) string      { return "LIMIT 10" }
func (f *fakeConnector) Close() error                  { return nil }

// synthClient answers SQL-generation and diagnostic prompts with canned JSON.
func synthClient(sqlJSON string) *llm.MockClient {
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string) (string, error) {
		if strings.Contains(prompt, "diagnostic_sqls") && strings.Contains(prompt, "debugging") {
			return `{"diagnostic_sqls": ["SELECT COUNT(*) FROM orders"], "purpose": "check data"}`, nil
		}
		return sqlJSON, nil
	}
	return client
}

func testSpec() models.QuerySpec {
	return models.QuerySpec{
		Question: "how many orders were placed?",
		Dialect:  models.DialectPostgres,
		Budget:   models.Budget{Queries: 30, Seconds: 90},
	}
}

func newTestEngine(client llm.Client, observers ...Observer) *Engine {
	return NewEngine(client, nil, Config{}, zap.NewNop(), observers...)
}

func TestRunHappyPath(t *testing.T) {
	conn := &fakeConnector{tables: []string{"orders"}, rowCount: 5000}
	client := synthClient(`{"sql": "SELECT COUNT(*) AS n FROM orders", "notes": "count"}`)

	result := newTestEngine(client).Run(context.Background(), "job-1", testSpec(), conn, nil)

	assert.Contains(t, result.Answer, "Analysis completed successfully")
	assert.True(t, result.Quality.Passed)
	assert.InDelta(t, 1.0, result.Quality.Score, 1e-9)
	assert.Equal(t, 1, result.Attempts)

	// one query consumed, diagnose never entered
	assert.Equal(t, 29, result.BudgetLeft.Queries)
	for _, step := range result.ExecutionSteps {
		assert.NotEqual(t, "diagnose", step.StepName)
	}

	// table artifact plus sql artifact
	require.Len(t, result.Artifacts, 2)
	assert.Equal(t, models.ArtifactTable, result.Artifacts[0].Kind)
	assert.Equal(t, models.ArtifactSQL, result.Artifacts[1].Kind)
}

func TestRunEveryQueryFails(t *testing.T) {
	conn := &fakeConnector{
		tables: []string{"orders"},
		runSQL: func(sql string) (*datasource.Result, error) {
			return nil, errors.New(`relation "orders" does not exist`)
		},
	}
	client := synthClient(`{"sql": "SELECT * FROM orders", "notes": "broken"}`)

	spec := testSpec()
	result := newTestEngine(client).Run(context.Background(), "job-2", spec, conn, nil)

	assert.False(t, result.Quality.Passed)
	assert.Contains(t, result.Answer, "Analysis could not be completed")
	assert.Contains(t, result.Answer, "does not exist")
	assert.LessOrEqual(t, result.Attempts, spec.Normalize().MaxAttempts())
	assert.GreaterOrEqual(t, result.BudgetLeft.Queries, 0)
	assert.Empty(t, result.Artifacts)
}

func TestRunBudgetNonIncreasing(t *testing.T) {
	conn := &fakeConnector{
		tables: []string{"orders"},
		runSQL: func(sql string) (*datasource.Result, error) {
			return nil, errors.New("syntax error")
		},
	}
	client := synthClient(`{"sql": "SELECT broken", "notes": ""}`)

	lastQueries := 1 << 30
	lastSeconds := 1e18
	observer := ObserverFunc(func(jobID string, step Step, state *State) {
		assert.LessOrEqual(t, state.Budget.Queries, lastQueries)
		assert.LessOrEqual(t, state.Budget.Seconds, lastSeconds)
		lastQueries = state.Budget.Queries
		lastSeconds = state.Budget.Seconds
	})

	newTestEngine(client, observer).Run(context.Background(), "job-3", testSpec(), conn, nil)
	assert.GreaterOrEqual(t, lastQueries, 0)
	assert.GreaterOrEqual(t, lastSeconds, 0.0)
}

func TestRunEmptyResultTriggersDiagnose(t *testing.T) {
	calls := 0
	conn := &fakeConnector{
		tables: []string{"orders"},
		runSQL: func(sql string) (*datasource.Result, error) {
			calls++
			if calls == 1 {
				// mvq returns zero rows
				return &datasource.Result{Columns: []datasource.ColumnInfo{{Name: "n"}}, Rows: []map[string]any{}}, nil
			}
			return &datasource.Result{
				Columns:  []datasource.ColumnInfo{{Name: "n"}},
				Rows:     []map[string]any{{"n": int64(3)}},
				RowCount: 1,
			}, nil
		},
	}
	client := synthClient(`{"sql": "SELECT COUNT(*) AS n FROM orders", "notes": ""}`)

	result := newTestEngine(client).Run(context.Background(), "job-4", testSpec(), conn, nil)

	sawDiagnose := false
	for _, step := range result.ExecutionSteps {
		if step.StepName == "diagnose" {
			sawDiagnose = true
		}
	}
	assert.True(t, sawDiagnose, "empty mvq result must route through diagnose")
	assert.Contains(t, result.Answer, "Analysis completed successfully")
}

func TestRunSynthesisFailureFallsBack(t *testing.T) {
	conn := &fakeConnector{tables: []string{"orders"}, rowCount: 10}
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return "I cannot write SQL for this.", nil
	}

	result := newTestEngine(client).Run(context.Background(), "job-5", testSpec(), conn, nil)

	// fallback query executed, run still terminates with an answer
	require.NotEmpty(t, conn.executed)
	assert.Contains(t, conn.executed[len(conn.executed)-1], "SELECT 1")
	assert.NotEmpty(t, result.Answer)
}

func TestRunCancelledContextStillPresents(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conn := &fakeConnector{tables: []string{"orders"}}
	client := synthClient(`{"sql": "SELECT 1", "notes": ""}`)

	result := newTestEngine(client).Run(ctx, "job-6", testSpec(), conn, nil)
	assert.NotEmpty(t, result.Answer)
}

func TestRunStepCeiling(t *testing.T) {
	conn := &fakeConnector{
		tables: []string{"orders"},
		runSQL: func(sql string) (*datasource.Result, error) {
			return nil, errors.New("always fails")
		},
	}
	client := synthClient(`{"sql": "SELECT broken", "notes": ""}`)

	engine := NewEngine(client, nil, Config{MaxSteps: 8}, zap.NewNop())
	spec := testSpec()
	spec.Budget = models.Budget{Queries: 100, Seconds: 600}

	result := engine.Run(context.Background(), "job-7", spec, conn, nil)
	assert.NotEmpty(t, result.Answer, "ceiling must drain the run to present")
}

func TestSelectorFallsBackWithoutQuestion(t *testing.T) {
	catalog := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m", "n"}
	conn := &fakeConnector{tables: catalog}
	client := llm.NewMockClient()

	engine := newTestEngine(client)
	state := NewState("job-8", models.QuerySpec{Dialect: models.DialectPostgres}, conn, nil)

	selected := engine.selectTables(context.Background(), state, catalog)
	assert.Equal(t, catalog[:12], selected)
	assert.Zero(t, client.CompleteCalls, "no question means no synthesis call")
}

func TestSelectorFiltersToCatalog(t *testing.T) {
	catalog := []string{"orders", "users", "events", "d", "e", "f", "g", "h", "i", "j", "k", "l", "m"}
	conn := &fakeConnector{tables: catalog}
	client := llm.NewMockClient()
	client.CompleteFunc = func(ctx context.Context, prompt, system string) (string, error) {
		return `{"tables": ["users", "ghost_table", "orders", "users"]}`, nil
	}

	engine := newTestEngine(client)
	state := NewState("job-9", testSpec(), conn, nil)

	selected := engine.selectTables(context.Background(), state, catalog)
	assert.Equal(t, []string{"users", "orders"}, selected)
}

func TestFilterToCatalog(t *testing.T) {
	catalog := []string{"a", "b", "c"}
	assert.Equal(t, []string{"c", "a"}, filterToCatalog([]string{"c", "x", "a", "c"}, catalog, 5))
	assert.Equal(t, []string{"c"}, filterToCatalog([]string{"c", "a"}, catalog, 1))
	assert.Empty(t, filterToCatalog([]string{"x", "y"}, catalog, 5))
}

func TestExtractSelectStatement(t *testing.T) {
	assert.Equal(t, "SELECT id FROM orders",
		extractSelectStatement("Sure, try this:\nSELECT id FROM orders;\nHope it helps"))
	assert.Equal(t, "WITH t AS (SELECT 1) SELECT * FROM t",
		extractSelectStatement("```sql\nWITH t AS (SELECT 1) SELECT * FROM t\n```"))
	assert.Empty(t, extractSelectStatement("no query here"))
}
