package analysis

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/retry"
)

// fallbackSQL is the always-valid health-check query used when synthesis
// produces nothing usable.
const fallbackSQL = "SELECT 1"

const sqlSystemMessage = "You are a careful data analyst. Respond with valid JSON only."

// SQLGeneration is the synthesis response shape for query generation.
type SQLGeneration struct {
	SQL         string `json:"sql"`
	Notes       string `json:"notes"`
	WhatChanged string `json:"what_changed"`
}

// DiagnosticPlan is the synthesis response shape for diagnostics.
type DiagnosticPlan struct {
	DiagnosticSQLs []string `json:"diagnostic_sqls"`
	Purpose        string   `json:"purpose"`
}

// TableSelection is the synthesis response shape for table selection.
type TableSelection struct {
	Tables []string `json:"tables"`
}

// generateSQL asks the synthesis port for a SQL statement. Model failures
// and unusable JSON never abort the run: the response is salvaged with a
// naive SELECT-line scan, and as a last resort the health-check query.
func (e *Engine) generateSQL(ctx context.Context, prompt string) SQLGeneration {
	raw, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return e.llm.Complete(ctx, prompt, sqlSystemMessage)
	})
	if err != nil {
		e.logger.Warn("SQL generation call failed", zap.Error(err))
		return SQLGeneration{SQL: fallbackSQL, Notes: "synthesis unavailable, using fallback"}
	}

	gen, err := llm.ParseJSONResponse[SQLGeneration](raw)
	if err == nil && strings.TrimSpace(gen.SQL) != "" {
		gen.SQL = strings.TrimSpace(gen.SQL)
		return gen
	}

	if salvaged := extractSelectStatement(raw); salvaged != "" {
		e.logger.Warn("SQL generation returned unparsable JSON, salvaged SELECT line")
		return SQLGeneration{SQL: salvaged, Notes: "salvaged from unstructured response"}
	}

	e.logger.Warn("SQL generation returned nothing usable, using fallback")
	return SQLGeneration{SQL: fallbackSQL, Notes: "unusable synthesis response, using fallback"}
}

// generateDiagnostics asks the synthesis port for a batch of diagnostic
// statements. On failure it returns an empty plan rather than an error.
func (e *Engine) generateDiagnostics(ctx context.Context, prompt string) DiagnosticPlan {
	raw, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return e.llm.Complete(ctx, prompt, sqlSystemMessage)
	})
	if err != nil {
		e.logger.Warn("diagnostic generation call failed", zap.Error(err))
		return DiagnosticPlan{}
	}

	plan, err := llm.ParseJSONResponse[DiagnosticPlan](raw)
	if err != nil {
		if salvaged := extractSelectStatement(raw); salvaged != "" {
			return DiagnosticPlan{DiagnosticSQLs: []string{salvaged}, Purpose: "salvaged from unstructured response"}
		}
		e.logger.Warn("diagnostic generation returned unparsable JSON", zap.Error(err))
		return DiagnosticPlan{}
	}
	return plan
}

// selectTablesLLM asks the synthesis port to rank catalog tables by
// relevance. Errors yield nil so the caller can fall back deterministically.
func (e *Engine) selectTablesLLM(ctx context.Context, prompt string) []string {
	raw, err := retry.DoWithResult(ctx, retry.DefaultConfig(), func() (string, error) {
		return e.llm.Complete(ctx, prompt, sqlSystemMessage)
	})
	if err != nil {
		e.logger.Warn("table selection call failed", zap.Error(err))
		return nil
	}

	selection, err := llm.ParseJSONResponse[TableSelection](raw)
	if err != nil {
		e.logger.Warn("table selection returned unparsable JSON", zap.Error(err))
		return nil
	}
	return selection.Tables
}

// extractSelectStatement scans a raw response for the first line that looks
// like a standalone SELECT or WITH statement.
func extractSelectStatement(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "```sql")
		line = strings.TrimPrefix(line, "```")
		line = strings.TrimSpace(strings.TrimSuffix(line, "```"))

		upper := strings.ToUpper(line)
		if strings.HasPrefix(upper, "SELECT ") || strings.HasPrefix(upper, "WITH ") {
			return strings.TrimSuffix(line, ";")
		}
	}
	return ""
}
