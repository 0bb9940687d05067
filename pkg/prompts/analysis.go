// Package prompts builds the structured prompts sent to the synthesis port.
package prompts

import (
	"fmt"
	"strings"

	"github.com/insightline/analyst-engine/pkg/analysis/dialect"
	"github.com/insightline/analyst-engine/pkg/models"
)

// DiagnosticContext summarizes one executed diagnostic query for the
// refinement prompt.
type DiagnosticContext struct {
	OK         bool
	RowCount   int
	Error      string
	SampleText string // up to 3 sample rows, textually rendered
}

// BuildSQLPrompt creates the prompt for generating the initial SQL query
// from the question and the schema card.
func BuildSQLPrompt(d models.Dialect, question string, card *models.SchemaCard) string {
	caps := dialect.Get(d)
	upper := strings.ToUpper(string(d))

	var b strings.Builder
	fmt.Fprintf(&b, "You are a data analyst who writes only %s SQL. Do not use functions from other dialects.\n\n", upper)
	fmt.Fprintf(&b, "QUESTION: %s\n\n", question)
	fmt.Fprintf(&b, "DATABASE SCHEMA:\n%s\n", formatSchemaCard(card))
	fmt.Fprintf(&b, "%s CAPABILITIES:\n%s\n\n", upper, formatCapabilityHints(caps))
	fmt.Fprintf(&b, "EXAMPLES OF VALID %s SYNTAX:\n%s\n\n", upper, formatExamples(caps.Examples))
	fmt.Fprintf(&b, `REQUIREMENTS:
- Write only valid %s SQL
- Use appropriate functions for date/time operations
- Handle timezone conversion if needed (business timezone: Asia/Kolkata)
- Include an appropriate row limit for large datasets
- Return results that directly answer the question

OUTPUT FORMAT:
Return a JSON object with exactly this structure:
{
    "sql": "<your SQL query here>",
    "notes": "<brief explanation of approach>"
}

Do not include any prose before or after the JSON.`, upper)

	return b.String()
}

// BuildDiagnosticPrompt creates the prompt for generating diagnostic
// queries after a failed or empty execution.
func BuildDiagnosticPrompt(d models.Dialect, question, lastSQL, dbError string, card *models.SchemaCard) string {
	upper := strings.ToUpper(string(d))

	var b strings.Builder
	fmt.Fprintf(&b, "You are a data analyst debugging a %s SQL query that failed.\n\n", upper)
	fmt.Fprintf(&b, "ORIGINAL QUESTION: %s\n\n", question)
	fmt.Fprintf(&b, "FAILED SQL:\n%s\n\n", lastSQL)
	fmt.Fprintf(&b, "DATABASE ERROR:\n%s\n\n", dbError)
	fmt.Fprintf(&b, "DATABASE SCHEMA:\n%s\n", formatSchemaCard(card))
	fmt.Fprintf(&b, `Generate 3-5 diagnostic %s queries to understand why the query failed:
- Check table existence and row counts
- Verify column names and data types
- Check for data availability in date ranges
- Examine distinct values in key columns
- Validate join conditions if applicable

OUTPUT FORMAT:
Return a JSON object:
{
    "diagnostic_sqls": [
        "SELECT COUNT(*) FROM table1",
        "SELECT DISTINCT status FROM orders",
        "SELECT MIN(created_at), MAX(created_at) FROM orders"
    ],
    "purpose": "Brief explanation of what these queries will reveal"
}

Write only valid %s SQL in the diagnostic queries.`, upper, upper)

	return b.String()
}

// BuildRefinementPrompt creates the prompt for producing a corrected SQL
// statement from the failure and the diagnostic results.
func BuildRefinementPrompt(d models.Dialect, question, failedSQL, dbError string, diagnostics []DiagnosticContext) string {
	upper := strings.ToUpper(string(d))

	var diag strings.Builder
	for i, dc := range diagnostics {
		if i >= 5 {
			break
		}
		if dc.OK {
			fmt.Fprintf(&diag, "Diagnostic %d: %d rows found\n", i+1, dc.RowCount)
			if dc.SampleText != "" {
				fmt.Fprintf(&diag, "Sample data:\n%s\n\n", dc.SampleText)
			}
		} else {
			fmt.Fprintf(&diag, "Diagnostic %d: FAILED - %s\n", i+1, dc.Error)
		}
	}
	if diag.Len() == 0 {
		diag.WriteString("No diagnostic results available.\n")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You are a data analyst fixing a %s SQL query that failed.\n\n", upper)
	fmt.Fprintf(&b, "ORIGINAL QUESTION: %s\n\n", question)
	fmt.Fprintf(&b, "FAILED SQL:\n%s\n\n", failedSQL)
	fmt.Fprintf(&b, "DATABASE ERROR:\n%s\n\n", dbError)
	fmt.Fprintf(&b, "DIAGNOSTIC RESULTS:\n%s\n", diag.String())
	fmt.Fprintf(&b, `Based on the diagnostic information, produce a corrected %s SQL query that:
- Fixes the specific error that occurred
- Uses correct table/column names as revealed by diagnostics
- Handles the data types and formats found
- Answers the original question

OUTPUT FORMAT:
Return a JSON object:
{
    "sql": "<corrected SQL query>",
    "what_changed": "<brief explanation of what was fixed>"
}

Write only valid %s SQL.`, upper, upper)

	return b.String()
}

// BuildTableSelectionPrompt creates the prompt that narrows a large
// catalog down to the tables relevant to the question.
func BuildTableSelectionPrompt(question string, catalog []string, maxCandidates int) string {
	var b strings.Builder
	b.WriteString("You are a data analyst choosing which database tables are relevant to a question.\n\n")
	fmt.Fprintf(&b, "QUESTION: %s\n\n", question)
	fmt.Fprintf(&b, "AVAILABLE TABLES (%d):\n", len(catalog))
	for _, name := range catalog {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	fmt.Fprintf(&b, `
Pick at most %d tables that are most likely needed to answer the question,
ordered from most to least relevant. Only use names from the list above.

OUTPUT FORMAT:
Return a JSON object:
{
    "tables": ["table_a", "table_b"]
}

Do not include any prose before or after the JSON.`, maxCandidates)

	return b.String()
}

// formatSchemaCard renders the schema card for inclusion in prompts.
func formatSchemaCard(card *models.SchemaCard) string {
	if card == nil || len(card.Tables) == 0 {
		return "Schema information not available.\n"
	}

	var b strings.Builder
	for _, table := range card.Tables {
		fmt.Fprintf(&b, "Table: %s (%d rows)\n", table.Name, table.RowCount)
		for _, col := range table.Columns {
			nullable := " NOT NULL"
			if col.Nullable {
				nullable = " NULL"
			}
			pk := ""
			if col.PrimaryKey {
				pk = " PRIMARY KEY"
			}
			fmt.Fprintf(&b, "  %s %s%s%s\n", col.Name, col.Type, nullable, pk)
		}
		if len(table.SampleRows) > 0 {
			b.WriteString("Sample data:\n")
			for i, row := range table.SampleRows {
				if i >= 3 {
					break
				}
				fmt.Fprintf(&b, "  %v\n", row)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

// formatCapabilityHints renders dialect hints for the generation prompt.
func formatCapabilityHints(caps dialect.Capabilities) string {
	var hints []string

	if caps.Limit != "" {
		hints = append(hints, fmt.Sprintf("- Use `%s` for limiting results", caps.Limit))
	}
	if caps.DateTrunc != "" {
		hints = append(hints, fmt.Sprintf("- Use `%s` for date grouping", caps.DateTrunc))
	}
	if caps.Timezone != "" {
		hints = append(hints, fmt.Sprintf("- Use `%s` for timezone conversion", caps.Timezone))
	}
	if caps.StringAgg != "" {
		hints = append(hints, fmt.Sprintf("- Use `%s` for string aggregation", caps.StringAgg))
	}
	if caps.ILike {
		hints = append(hints, "- Use `ILIKE` for case-insensitive text search")
	} else {
		hints = append(hints, "- Use `LOWER(col) LIKE LOWER(pattern)` for case-insensitive search")
	}
	if caps.IdentifierQuote != "" {
		hints = append(hints, fmt.Sprintf("- Use %s for table/column identifiers when needed", caps.IdentifierQuote))
	}

	return strings.Join(hints, "\n")
}

// formatExamples renders canonical example statements.
func formatExamples(examples []string) string {
	if len(examples) == 0 {
		return "No examples available."
	}
	var lines []string
	for i, example := range examples {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, example))
	}
	return strings.Join(lines, "\n")
}
