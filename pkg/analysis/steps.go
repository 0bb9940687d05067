package analysis

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/models"
	"github.com/insightline/analyst-engine/pkg/prompts"
)

// Every step below follows the same discipline: record a running entry,
// do the work, and downgrade to a failed entry on error instead of
// propagating it. Control always returns to the run loop so the next
// transition can happen.

// stepPlan sets up the analysis approach. Planning failures are recorded
// and the run continues with best-effort defaults.
func (e *Engine) stepPlan(state *State) {
	e.logger.Info("starting analysis planning", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "plan", Status: models.StepStatusRunning})

	state.AppendStep(models.ExecutionStep{
		StepName: "plan",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"question": state.Spec.Question,
			"dialect":  string(state.Spec.Dialect),
			"approach": "direct_sql_generation",
		},
	})
}

// stepProfile discovers the catalog, selects relevant tables, and builds the
// schema card. Failure falls back to an empty card so the run continues.
func (e *Engine) stepProfile(ctx context.Context, state *State) {
	e.logger.Info("starting database profiling", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "profile", Status: models.StepStatusRunning})

	catalog, err := state.Connector.ListTables(ctx, "")
	if err != nil {
		state.AppendStep(models.ExecutionStep{
			StepName: "profile",
			Status:   models.StepStatusFailed,
			Error:    err.Error(),
		})
		state.Card = &models.SchemaCard{Error: err.Error()}
		e.logger.Error("profiling failed", zap.String("job_id", state.JobID), zap.Error(err))
		return
	}

	state.SelectedTables = e.selectTables(ctx, state, catalog)
	state.Card = e.buildSchemaCard(ctx, state, state.SelectedTables)

	hasSamples := false
	for _, table := range state.Card.Tables {
		if len(table.SampleRows) > 0 {
			hasSamples = true
			break
		}
	}

	state.AppendStep(models.ExecutionStep{
		StepName: "profile",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"tables_found":    len(state.Card.Tables),
			"catalog_size":    len(catalog),
			"has_sample_data": hasSamples,
		},
	})

	e.logger.Info("database profiling completed",
		zap.String("job_id", state.JobID),
		zap.Int("tables", len(state.Card.Tables)))
}

// stepMVQ generates and executes the minimum viable query.
func (e *Engine) stepMVQ(ctx context.Context, state *State) {
	e.logger.Info("generating minimal viable query", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "mvq", Status: models.StepStatusRunning})
	defer func() { state.Attempt++ }()

	if !state.HasBudget() {
		e.recordBudgetExhausted(state, "mvq")
		return
	}

	prompt := prompts.BuildSQLPrompt(state.Spec.Dialect, state.Spec.Question, state.Card)
	generation := e.generateSQL(ctx, prompt)

	result := e.tryExecuteSQL(ctx, state, generation.SQL)
	state.LastResult = &result

	state.RecordAttempt(models.AttemptRecord{
		Stage:    "mvq",
		SQL:      generation.SQL,
		Notes:    generation.Notes,
		OK:       result.OK,
		RowCount: result.RowCount,
		Error:    result.Error,
	})

	status := models.StepStatusCompleted
	if !result.OK {
		status = models.StepStatusFailed
	}
	state.AppendStep(models.ExecutionStep{
		StepName: "mvq",
		Status:   status,
		SQL:      generation.SQL,
		RowCount: result.RowCount,
		Error:    result.Error,
	})

	if result.OK {
		e.logger.Info("MVQ executed successfully",
			zap.String("job_id", state.JobID), zap.Int("rows", result.RowCount))
	} else {
		e.logger.Warn("MVQ execution failed",
			zap.String("job_id", state.JobID), zap.String("error", result.Error))
	}
}

// stepDiagnose generates and executes a bounded batch of diagnostic queries
// to understand the last failure. It does not count as an attempt but each
// diagnostic draws down the budget; the loop stops the moment budget runs out.
func (e *Engine) stepDiagnose(ctx context.Context, state *State) {
	e.logger.Info("running diagnostics", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "diagnose", Status: models.StepStatusRunning})

	if !state.HasBudget() {
		e.logger.Warn("skipping diagnostics, budget exhausted", zap.String("job_id", state.JobID))
		state.AppendStep(models.ExecutionStep{
			StepName: "diagnose",
			Status:   models.StepStatusFailed,
			Error:    "budget exhausted",
		})
		return
	}

	lastSQL := state.LastSQL()
	if lastSQL == "" {
		lastSQL = "No SQL available"
	}
	lastError := state.LastError()
	if lastError == "" {
		lastError = "No data returned"
	}

	prompt := prompts.BuildDiagnosticPrompt(state.Spec.Dialect, state.Spec.Question, lastSQL, lastError, state.Card)
	plan := e.generateDiagnostics(ctx, prompt)

	statements := plan.DiagnosticSQLs
	if len(statements) > e.cfg.MaxDiagnostics {
		statements = statements[:e.cfg.MaxDiagnostics]
	}

	diagnostics := make([]ExecResult, 0, len(statements))
	for _, diagSQL := range statements {
		if !state.HasBudget() {
			break
		}
		diagnostics = append(diagnostics, e.tryExecuteSQL(ctx, state, diagSQL))
	}
	state.Diagnostics = diagnostics

	successful := 0
	for _, d := range diagnostics {
		if d.OK {
			successful++
		}
	}

	state.AppendStep(models.ExecutionStep{
		StepName: "diagnose",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"diagnostic_queries":     len(plan.DiagnosticSQLs),
			"successful_diagnostics": successful,
			"purpose":                plan.Purpose,
		},
	})

	e.logger.Info("diagnostics completed",
		zap.String("job_id", state.JobID),
		zap.Int("successful", successful),
		zap.Int("total", len(diagnostics)))
}

// stepRefine asks for a corrected SQL statement informed by the diagnostics
// and executes it exactly like mvq.
func (e *Engine) stepRefine(ctx context.Context, state *State) {
	e.logger.Info("refining query", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "refine", Status: models.StepStatusRunning})
	defer func() { state.Attempt++ }()

	if !state.HasBudget() {
		e.recordBudgetExhausted(state, "refine")
		return
	}

	diagnostics := make([]prompts.DiagnosticContext, len(state.Diagnostics))
	for i, d := range state.Diagnostics {
		diagnostics[i] = prompts.DiagnosticContext{
			OK:         d.OK,
			RowCount:   d.RowCount,
			Error:      d.Error,
			SampleText: renderSample(d),
		}
	}

	prompt := prompts.BuildRefinementPrompt(
		state.Spec.Dialect, state.Spec.Question, state.LastSQL(), state.LastError(), diagnostics)
	generation := e.generateSQL(ctx, prompt)

	result := e.tryExecuteSQL(ctx, state, generation.SQL)
	state.LastResult = &result

	changes := generation.WhatChanged
	if changes == "" {
		changes = generation.Notes
	}

	state.RecordAttempt(models.AttemptRecord{
		Stage:    "refine",
		SQL:      generation.SQL,
		Notes:    changes,
		OK:       result.OK,
		RowCount: result.RowCount,
		Error:    result.Error,
	})

	status := models.StepStatusCompleted
	if !result.OK {
		status = models.StepStatusFailed
	}
	state.AppendStep(models.ExecutionStep{
		StepName: "refine",
		Status:   status,
		SQL:      generation.SQL,
		RowCount: result.RowCount,
		Error:    result.Error,
		Metadata: map[string]any{"changes": changes},
	})

	if result.OK {
		e.logger.Info("query refinement successful",
			zap.String("job_id", state.JobID), zap.Int("rows", result.RowCount))
	} else {
		e.logger.Warn("refined query still failed",
			zap.String("job_id", state.JobID), zap.String("error", result.Error))
	}
}

// stepTransform reduces a successful result to a summary plus preview.
func (e *Engine) stepTransform(state *State) {
	e.logger.Info("transforming results", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "transform", Status: models.StepStatusRunning})

	if state.LastResult == nil || !state.LastResult.OK {
		e.logger.Warn("skipping transform, no successful results", zap.String("job_id", state.JobID))
		state.AppendStep(models.ExecutionStep{
			StepName: "transform",
			Status:   models.StepStatusFailed,
			Error:    "no successful results",
		})
		return
	}

	table := state.LastResult.Table
	if table == nil || table.RowCount == 0 {
		state.Shaped = &ShapedResult{Empty: true}
		state.AppendStep(models.ExecutionStep{
			StepName: "transform",
			Status:   models.StepStatusCompleted,
			Metadata: map[string]any{"rows": 0},
		})
		return
	}

	names := make([]string, len(table.Columns))
	for i, col := range table.Columns {
		names[i] = col.Name
	}

	preview := table.Rows
	if len(preview) > previewRows {
		preview = preview[:previewRows]
	}

	state.Shaped = &ShapedResult{
		Rows:        table.RowCount,
		Columns:     len(table.Columns),
		ColumnNames: names,
		ColumnTypes: table.Columns,
		Preview:     preview,
	}

	state.AppendStep(models.ExecutionStep{
		StepName: "transform",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"rows":    table.RowCount,
			"columns": len(table.Columns),
		},
	})
}

// stepProduce emits the table and sql artifacts from the shaped result.
// With nothing shaped, no artifacts are produced and validation fails the
// corresponding gates naturally.
func (e *Engine) stepProduce(state *State) {
	e.logger.Info("producing artifacts", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "produce", Status: models.StepStatusRunning})

	shaped := state.Shaped
	if shaped == nil || shaped.Empty || shaped.Error != "" {
		e.logger.Warn("no data to produce artifacts from", zap.String("job_id", state.JobID))
		state.AppendStep(models.ExecutionStep{
			StepName: "produce",
			Status:   models.StepStatusCompleted,
			Metadata: map[string]any{"artifacts_created": 0},
		})
		return
	}

	table := state.LastResult.Table
	state.AddArtifact(models.ArtifactTable, "Analysis Results", map[string]any{
		"data":    table.Rows,
		"columns": shaped.ColumnNames,
		"summary": map[string]any{
			"rows":    shaped.Rows,
			"columns": shaped.Columns,
		},
	})

	for i := len(state.History) - 1; i >= 0; i-- {
		entry := state.History[i]
		if entry.OK && entry.SQL != "" {
			state.AddArtifact(models.ArtifactSQL, "Final SQL Query", map[string]any{
				"sql":       entry.SQL,
				"notes":     entry.Notes,
				"row_count": entry.RowCount,
			})
			break
		}
	}

	state.AppendStep(models.ExecutionStep{
		StepName: "produce",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{"artifacts_created": len(state.Artifacts)},
	})

	e.logger.Info("artifact production completed",
		zap.String("job_id", state.JobID),
		zap.Int("artifacts", len(state.Artifacts)))
}

// stepValidate computes the quality report for the routing decision.
func (e *Engine) stepValidate(state *State) {
	e.logger.Info("validating results", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "validate", Status: models.StepStatusRunning})

	state.Quality = assessQuality(state)

	state.AppendStep(models.ExecutionStep{
		StepName: "validate",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"quality_score":  state.Quality.Score,
			"quality_passed": state.Quality.Passed,
			"plateau":        state.Quality.Plateau,
		},
	})

	e.logger.Info("validation completed",
		zap.String("job_id", state.JobID),
		zap.Float64("score", state.Quality.Score),
		zap.Bool("passed", state.Quality.Passed))
}

// stepPresent writes the final natural-language answer. It is the only step
// that sets the answer, and it always sets one.
func (e *Engine) stepPresent(state *State) {
	e.logger.Info("presenting results", zap.String("job_id", state.JobID))
	state.AppendStep(models.ExecutionStep{StepName: "present", Status: models.StepStatusRunning})

	hasData := state.LastResult != nil && state.LastResult.OK && state.LastResult.RowCount > 0

	switch {
	case hasData && state.Shaped != nil && state.Shaped.Error == "":
		state.Answer = fmt.Sprintf(
			"Analysis completed successfully. Found %d rows of data with %d columns. The query returned relevant data for: %s",
			state.LastResult.RowCount, state.Shaped.Columns, state.Spec.Question)
	case hasData:
		state.Answer = fmt.Sprintf(
			"Analysis completed with %d rows of data, but transformation failed.",
			state.LastResult.RowCount)
	default:
		errText := "Unknown error"
		if state.LastResult != nil && state.LastResult.Error != "" {
			errText = state.LastResult.Error
		} else if state.LastResult != nil && state.LastResult.OK {
			errText = "No data returned"
		}
		state.Answer = fmt.Sprintf(
			"Analysis could not be completed. Error: %s. Question was: %s",
			errText, state.Spec.Question)
	}

	state.AppendStep(models.ExecutionStep{
		StepName: "present",
		Status:   models.StepStatusCompleted,
		Metadata: map[string]any{
			"answer_length":   len(state.Answer),
			"final_artifacts": len(state.Artifacts),
		},
	})
}

func (e *Engine) recordBudgetExhausted(state *State, stepName string) {
	err := fmt.Sprintf("budget exhausted before %s", stepName)
	state.AppendStep(models.ExecutionStep{
		StepName: stepName,
		Status:   models.StepStatusFailed,
		Error:    err,
	})
	state.LastResult = &ExecResult{OK: false, Error: err}
	e.logger.Error("budget exhausted", zap.String("job_id", state.JobID), zap.String("step", stepName))
}

// previewRows bounds the preview carried in the shaped result.
const previewRows = 10

// renderSample textually renders up to three sample rows of a successful
// diagnostic for the refinement prompt.
func renderSample(result ExecResult) string {
	if !result.OK || result.Table == nil || len(result.Table.Rows) == 0 {
		return ""
	}
	rows := result.Table.Rows
	if len(rows) > 3 {
		rows = rows[:3]
	}
	out := ""
	for _, row := range rows {
		out += fmt.Sprintf("  %v\n", row)
	}
	return out
}
