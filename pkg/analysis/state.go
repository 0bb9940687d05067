package analysis

import (
	"time"

	"github.com/google/uuid"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/models"
)

// ExecError is one entry in the error log kept alongside the attempt history.
type ExecError struct {
	SQL        string    `json:"sql"`
	Error      string    `json:"error"`
	DurationMs float64   `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

// ShapedResult is the post-processed form of a successful execution: a
// row/column summary plus a bounded preview.
type ShapedResult struct {
	Empty       bool                    `json:"empty,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Rows        int                     `json:"rows"`
	Columns     int                     `json:"columns"`
	ColumnNames []string                `json:"column_names"`
	ColumnTypes []datasource.ColumnInfo `json:"column_types"`
	Preview     []map[string]any        `json:"preview"`
}

// State is the mutable record threaded through a single analysis run. It is
// owned exclusively by the engine for the duration of the run and never
// shared across jobs.
type State struct {
	JobID string
	Spec  models.QuerySpec

	Connector      datasource.Connector
	RLS            *models.RLSContext
	Card           *models.SchemaCard
	SelectedTables []string

	LastResult  *ExecResult
	Diagnostics []ExecResult
	Shaped      *ShapedResult

	History   []models.AttemptRecord
	Errors    []ExecError
	Steps     []models.ExecutionStep
	Artifacts []models.Artifact
	Quality   *models.QualityReport

	// ScoreLog records the score of every validation pass in order; the
	// plateau check compares the newest score against the previous two.
	ScoreLog []float64

	Budget  models.Budget
	Attempt int

	Answer      string
	CreatedAt   time.Time
	CompletedAt time.Time
}

// NewState creates the state for one job. The spec is normalized (budget
// clamped, defaults filled) before the budget counters are seeded from it.
func NewState(jobID string, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) *State {
	normalized := spec.Normalize()
	return &State{
		JobID:     jobID,
		Spec:      normalized,
		Connector: conn,
		RLS:       rlsCtx,
		Budget:    normalized.Budget,
		CreatedAt: time.Now().UTC(),
	}
}

// ConsumeBudget draws down the remaining allowance. Counters never go
// negative.
func (s *State) ConsumeBudget(queries int, seconds float64) {
	s.Budget.Queries -= queries
	if s.Budget.Queries < 0 {
		s.Budget.Queries = 0
	}
	s.Budget.Seconds -= seconds
	if s.Budget.Seconds < 0 {
		s.Budget.Seconds = 0
	}
}

// HasBudget reports whether both counters are strictly positive.
func (s *State) HasBudget() bool {
	return s.Budget.Queries > 0 && s.Budget.Seconds > 0
}

// AppendStep adds an entry to the execution trace, stamping the time.
func (s *State) AppendStep(step models.ExecutionStep) {
	step.Timestamp = time.Now().UTC()
	s.Steps = append(s.Steps, step)
}

// RecordAttempt appends to the attempt history, stamping the time.
func (s *State) RecordAttempt(rec models.AttemptRecord) {
	rec.Timestamp = time.Now().UTC()
	s.History = append(s.History, rec)
}

// RecordError appends to the error log, stamping the time.
func (s *State) RecordError(sql, errText string, durationMs float64) {
	s.Errors = append(s.Errors, ExecError{
		SQL:        sql,
		Error:      errText,
		DurationMs: durationMs,
		Timestamp:  time.Now().UTC(),
	})
}

// AddArtifact appends a produced output with a fresh id.
func (s *State) AddArtifact(kind models.ArtifactKind, title string, content map[string]any) models.Artifact {
	artifact := models.Artifact{
		ID:        string(kind) + "_" + uuid.NewString()[:8],
		Kind:      kind,
		Title:     title,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	s.Artifacts = append(s.Artifacts, artifact)
	return artifact
}

// LastSQL returns the most recent SQL text from the history, or "".
func (s *State) LastSQL() string {
	for i := len(s.History) - 1; i >= 0; i-- {
		if s.History[i].SQL != "" {
			return s.History[i].SQL
		}
	}
	return ""
}

// LastError returns the most recent entry from the error log, or "".
func (s *State) LastError() string {
	if len(s.Errors) == 0 {
		return ""
	}
	return s.Errors[len(s.Errors)-1].Error
}

// Result converts the finished state into the caller-facing run result.
func (s *State) Result() *models.RunResult {
	result := &models.RunResult{
		JobID:          s.JobID,
		Answer:         s.Answer,
		Artifacts:      s.Artifacts,
		ExecutionSteps: s.Steps,
		Attempts:       s.Attempt,
		BudgetLeft:     s.Budget,
		CreatedAt:      s.CreatedAt,
		CompletedAt:    s.CompletedAt,
	}
	if s.Quality != nil {
		result.Quality = *s.Quality
	}
	return result
}
