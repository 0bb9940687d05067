package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/logging"
	"github.com/insightline/analyst-engine/pkg/models"
	"github.com/insightline/analyst-engine/pkg/rls"
	sqlguard "github.com/insightline/analyst-engine/pkg/sql"
)

// ExecResult is the structured outcome of one SQL execution attempt.
type ExecResult struct {
	OK          bool               `json:"ok"`
	Table       *datasource.Result `json:"-"`
	Error       string             `json:"error,omitempty"`
	RowCount    int                `json:"row_count"`
	ColumnCount int                `json:"column_count"`
	DurationMs  float64            `json:"duration_ms"`
	SQL         string             `json:"sql"`
}

// tryExecuteSQL is the single execution path for every query in a run. It
// enforces the dialect row cap, refreshes the RLS token when one is attached,
// prefers an RLS-aware execution path when the connector has one, and does
// all budget accounting: exactly one query unit plus elapsed seconds per
// attempt, success or failure.
func (e *Engine) tryExecuteSQL(ctx context.Context, state *State, sqlText string) ExecResult {
	normalized, err := sqlguard.Normalize(sqlText)
	if err != nil {
		return e.rejectStatement(state, sqlText, err)
	}

	final := dialect.EnsureLimit(normalized, state.Spec.Dialect, e.cfg.RowCap)
	start := time.Now()

	if err := e.refreshRLSToken(ctx, state); err != nil {
		return e.failExecution(state, final, err.Error(), start)
	}

	table, err := e.execute(ctx, state, final)
	durationMs := float64(time.Since(start).Microseconds()) / 1000

	if err != nil {
		return e.failExecution(state, final, err.Error(), start)
	}

	state.ConsumeBudget(1, time.Since(start).Seconds())
	state.AppendStep(models.ExecutionStep{
		StepName:   "sql_execution",
		Status:     models.StepStatusCompleted,
		DurationMs: durationMs,
		SQL:        final,
		RowCount:   table.RowCount,
	})

	e.logger.Info("SQL execution successful",
		zap.String("job_id", state.JobID),
		zap.Int("rows", table.RowCount),
		zap.Int("columns", len(table.Columns)),
		zap.Float64("duration_ms", durationMs),
		zap.String("dialect", string(state.Spec.Dialect)))

	return ExecResult{
		OK:          true,
		Table:       table,
		RowCount:    table.RowCount,
		ColumnCount: len(table.Columns),
		DurationMs:  durationMs,
		SQL:         final,
	}
}

func (e *Engine) execute(ctx context.Context, state *State, sqlText string) (*datasource.Result, error) {
	if state.RLS != nil && state.RLS.AccessToken != "" {
		if rlsExec, ok := state.Connector.(datasource.RLSExecutor); ok {
			return rlsExec.RunSQLWithRLS(ctx, sqlText, nil, e.cfg.RowCap, state.RLS.AccessToken)
		}
	}
	return state.Connector.RunSQL(ctx, sqlText, nil, e.cfg.RowCap)
}

// refreshRLSToken proactively refreshes the attached access token when it is
// close to expiry. A refresh failure fails this execution attempt rather than
// continuing with a stale token.
func (e *Engine) refreshRLSToken(ctx context.Context, state *State) error {
	if state.RLS == nil || state.RLS.AccessToken == "" || !state.RLS.AutoRefresh || e.tokens == nil {
		return nil
	}

	pair, err := e.tokens.RefreshIfNeeded(ctx, rls.TokenPair{
		AccessToken:  state.RLS.AccessToken,
		RefreshToken: state.RLS.RefreshToken,
	})
	if err != nil {
		return err
	}

	state.RLS.AccessToken = pair.AccessToken
	state.RLS.RefreshToken = pair.RefreshToken
	return nil
}

// rejectStatement records a statement the guard refused to run. Nothing
// reached the datasource, so no budget is consumed.
func (e *Engine) rejectStatement(state *State, sqlText string, err error) ExecResult {
	errText := err.Error()

	state.AppendStep(models.ExecutionStep{
		StepName: "sql_execution",
		Status:   models.StepStatusFailed,
		SQL:      sqlText,
		Error:    errText,
	})
	state.RecordError(sqlText, errText, 0)

	e.logger.Warn("SQL statement rejected",
		zap.String("job_id", state.JobID),
		zap.String("error", errText),
		zap.String("sql_preview", logging.TruncateSQL(sqlText)))

	return ExecResult{OK: false, Error: errText, SQL: sqlText}
}

func (e *Engine) failExecution(state *State, sqlText, errText string, start time.Time) ExecResult {
	durationMs := float64(time.Since(start).Microseconds()) / 1000
	errText = logging.TruncateError(errText)

	state.ConsumeBudget(1, time.Since(start).Seconds())
	state.AppendStep(models.ExecutionStep{
		StepName:   "sql_execution",
		Status:     models.StepStatusFailed,
		DurationMs: durationMs,
		SQL:        sqlText,
		Error:      errText,
	})
	state.RecordError(sqlText, errText, durationMs)

	e.logger.Error("SQL execution failed",
		zap.String("job_id", state.JobID),
		zap.String("error", errText),
		zap.Float64("duration_ms", durationMs),
		zap.String("dialect", string(state.Spec.Dialect)),
		zap.String("sql_preview", logging.TruncateSQL(sqlText)))

	return ExecResult{
		OK:         false,
		Error:      errText,
		DurationMs: durationMs,
		SQL:        sqlText,
	}
}
