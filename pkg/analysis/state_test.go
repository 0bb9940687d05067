package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightline/analyst-engine/pkg/models"
)

func TestNewStateNormalizesSpec(t *testing.T) {
	s := NewState("job-1", models.QuerySpec{Question: "q"}, nil, nil)

	assert.Equal(t, models.DialectPostgres, s.Spec.Dialect)
	assert.Equal(t, 30, s.Budget.Queries)
	assert.InDelta(t, 90, s.Budget.Seconds, 1e-9)
	assert.Equal(t, models.ValidationBalanced, s.Spec.ValidationProfile)
}

func TestConsumeBudgetFloorsAtZero(t *testing.T) {
	s := NewState("job-2", models.QuerySpec{Budget: models.Budget{Queries: 2, Seconds: 10}}, nil, nil)

	s.ConsumeBudget(1, 4)
	assert.Equal(t, 1, s.Budget.Queries)
	assert.InDelta(t, 6, s.Budget.Seconds, 1e-9)
	assert.True(t, s.HasBudget())

	s.ConsumeBudget(5, 100)
	assert.Equal(t, 0, s.Budget.Queries)
	assert.Zero(t, s.Budget.Seconds)
	assert.False(t, s.HasBudget())
}

func TestHasBudgetRequiresBoth(t *testing.T) {
	s := &State{Budget: models.Budget{Queries: 5, Seconds: 0}}
	assert.False(t, s.HasBudget())

	s.Budget = models.Budget{Queries: 0, Seconds: 5}
	assert.False(t, s.HasBudget())

	s.Budget = models.Budget{Queries: 1, Seconds: 1}
	assert.True(t, s.HasBudget())
}

func TestLastSQLAndLastError(t *testing.T) {
	s := &State{}
	assert.Empty(t, s.LastSQL())
	assert.Empty(t, s.LastError())

	s.RecordAttempt(models.AttemptRecord{Stage: "mvq", SQL: "SELECT 1"})
	s.RecordAttempt(models.AttemptRecord{Stage: "refine", SQL: "SELECT 2"})
	s.RecordAttempt(models.AttemptRecord{Stage: "refine"})
	assert.Equal(t, "SELECT 2", s.LastSQL(), "skips entries without SQL")

	s.RecordError("SELECT 2", "first", 1)
	s.RecordError("SELECT 2", "second", 1)
	assert.Equal(t, "second", s.LastError())
}

func TestAddArtifact(t *testing.T) {
	s := &State{}
	artifact := s.AddArtifact(models.ArtifactTable, "Results", map[string]any{"rows": 3})

	require.Len(t, s.Artifacts, 1)
	assert.Equal(t, models.ArtifactTable, artifact.Kind)
	assert.Contains(t, artifact.ID, "table_")
	assert.False(t, artifact.CreatedAt.IsZero())
}

func TestResultCarriesQuality(t *testing.T) {
	s := NewState("job-3", models.QuerySpec{Question: "q"}, nil, nil)
	s.Quality = &models.QualityReport{Passed: true, Score: 0.9}
	s.Answer = "done"

	result := s.Result()
	assert.Equal(t, "job-3", result.JobID)
	assert.Equal(t, "done", result.Answer)
	assert.True(t, result.Quality.Passed)
}
