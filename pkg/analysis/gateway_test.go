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
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
)

// rlsFakeConnector wraps fakeConnector with an RLS-aware execution path.
type rlsFakeConnector struct {
	fakeConnector
	rlsCalls []string
}

func (f *rlsFakeConnector) RunSQLWithRLS(ctx context.Context, sql string, params []any, limit int, accessToken string) (*datasource.Result, error) {
	f.rlsCalls = append(f.rlsCalls, sql)
	return f.RunSQL(ctx, sql, params, limit)
}

func gatewayState(conn datasource.Connector) *State {
	return NewState("job-gw", models.QuerySpec{
		Question: "q",
		Dialect:  models.DialectPostgres,
		Budget:   models.Budget{Queries: 5, Seconds: 60},
	}, conn, nil)
}

func TestTryExecuteSQLSuccess(t *testing.T) {
	conn := &fakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{RowCap: 50}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT * FROM t")

	assert.True(t, result.OK)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, "SELECT * FROM t LIMIT 50", result.SQL, "row cap enforced")
	assert.Equal(t, 4, state.Budget.Queries, "exactly one query unit consumed")

	require.Len(t, state.Steps, 1)
	assert.Equal(t, "sql_execution", state.Steps[0].StepName)
	assert.Equal(t, models.StepStatusCompleted, state.Steps[0].Status)
}

func TestTryExecuteSQLFailureConsumesBudgetAndTruncates(t *testing.T) {
	longError := strings.Repeat("x", 5000)
	conn := &fakeConnector{
		runSQL: func(sql string) (*datasource.Result, error) {
			return nil, errors.New(longError)
		},
	}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT broken")

	assert.False(t, result.OK)
	assert.LessOrEqual(t, len(result.Error), logging.MaxErrorLength)
	assert.Equal(t, 4, state.Budget.Queries, "failures consume budget too")

	require.Len(t, state.Errors, 1)
	assert.Equal(t, result.Error, state.Errors[0].Error)
	require.Len(t, state.Steps, 1)
	assert.Equal(t, models.StepStatusFailed, state.Steps[0].Status)
}

func TestTryExecuteSQLPrefersRLSPath(t *testing.T) {
	conn := &rlsFakeConnector{}
	state := gatewayState(conn)
	state.RLS = &models.RLSContext{AccessToken: "tok"}
	engine := NewEngine(llm.NewMockClient(), nil, Config{}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT * FROM t")

	assert.True(t, result.OK)
	require.Len(t, conn.rlsCalls, 1)
}

func TestTryExecuteSQLPlainPathWithoutToken(t *testing.T) {
	conn := &rlsFakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT * FROM t")

	assert.True(t, result.OK)
	assert.Empty(t, conn.rlsCalls)
}

func TestTryExecuteSQLRejectsMultipleStatements(t *testing.T) {
	conn := &fakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT 1; DROP TABLE t")

	assert.False(t, result.OK)
	assert.Equal(t, 5, state.Budget.Queries, "nothing executed, no budget consumed")
	assert.Empty(t, conn.executed)
	require.Len(t, state.Errors, 1)
}

func TestTryExecuteSQLRejectsWrites(t *testing.T) {
	conn := &fakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "DELETE FROM t")

	assert.False(t, result.OK)
	assert.Empty(t, conn.executed)
}

func TestTryExecuteSQLStripsTrailingSemicolon(t *testing.T) {
	conn := &fakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{RowCap: 50}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT * FROM t;")
	assert.True(t, result.OK)
	assert.Equal(t, "SELECT * FROM t LIMIT 50", result.SQL)
}

func TestTryExecuteSQLKeepsExistingLimit(t *testing.T) {
	conn := &fakeConnector{}
	state := gatewayState(conn)
	engine := NewEngine(llm.NewMockClient(), nil, Config{RowCap: 50}, zap.NewNop())

	result := engine.tryExecuteSQL(context.Background(), state, "SELECT * FROM t LIMIT 5")
	assert.Equal(t, "SELECT * FROM t LIMIT 5", result.SQL)
}
