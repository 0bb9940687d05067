package models

import "time"

// QualityGate is the result of a single quality check.
type QualityGate struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Score   float64 `json:"score"`
	Message string  `json:"message,omitempty"`
}

// QualityReport is the quality assessment produced by the validate step.
type QualityReport struct {
	Passed  bool          `json:"passed"`
	Score   float64       `json:"score"`
	Gates   []QualityGate `json:"gates"`
	Notes   []string      `json:"notes,omitempty"`
	Plateau bool          `json:"plateau"`
}

// Gate returns the named gate result, if present.
func (r *QualityReport) Gate(name string) (QualityGate, bool) {
	for _, g := range r.Gates {
		if g.Name == name {
			return g, true
		}
	}
	return QualityGate{}, false
}

// ExecutionStep is one entry in the full audit trail of a run. Unlike
// AttemptRecord it covers every step attempted, not just SQL attempts.
type ExecutionStep struct {
	StepName   string         `json:"step_name"`
	Status     string         `json:"status"`
	Timestamp  time.Time      `json:"timestamp"`
	DurationMs float64        `json:"duration_ms,omitempty"`
	SQL        string         `json:"sql,omitempty"`
	RowCount   int            `json:"row_count,omitempty"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Step statuses recorded in the execution trace.
const (
	StepStatusRunning   = "running"
	StepStatusCompleted = "completed"
	StepStatusFailed    = "failed"
)

// AttemptRecord is one entry in the append-only history of SQL attempts.
// Insertion order is significant: plateau detection and last-SQL/last-error
// lookups walk this slice.
type AttemptRecord struct {
	Stage     string    `json:"stage"`
	SQL       string    `json:"sql"`
	Notes     string    `json:"notes,omitempty"`
	OK        bool      `json:"ok"`
	RowCount  int       `json:"row_count"`
	Error     string    `json:"error,omitempty"`
	Score     float64   `json:"score"`
	FlagWeird bool      `json:"flag_weird,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunResult is the completed analysis handed back to the caller.
type RunResult struct {
	JobID          string          `json:"job_id"`
	Answer         string          `json:"answer"`
	Artifacts      []Artifact      `json:"artifacts"`
	Quality        QualityReport   `json:"quality"`
	ExecutionSteps []ExecutionStep `json:"execution_steps"`
	Attempts       int             `json:"attempts"`
	BudgetLeft     Budget          `json:"budget_remaining"`
	CreatedAt      time.Time       `json:"created_at"`
	CompletedAt    time.Time       `json:"completed_at"`
}
