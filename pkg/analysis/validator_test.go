package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightline/analyst-engine/pkg/models"
)

func validatorState() *State {
	return &State{
		Spec:   models.QuerySpec{Budget: models.Budget{Queries: 30, Seconds: 90}}.Normalize(),
		Budget: models.Budget{Queries: 10, Seconds: 60},
	}
}

func TestAssessQualityAllGates(t *testing.T) {
	s := validatorState()
	s.Attempt = 1
	s.LastResult = &ExecResult{OK: true, RowCount: 5, ColumnCount: 2}
	s.Artifacts = []models.Artifact{{Kind: models.ArtifactTable}}
	s.History = []models.AttemptRecord{{Stage: "mvq", OK: true}}

	report := assessQuality(s)
	assert.InDelta(t, 1.0, report.Score, 1e-9)
	assert.True(t, report.Passed)
	assert.False(t, report.Plateau)

	gate, ok := report.Gate("has_data")
	require.True(t, ok)
	assert.True(t, gate.Passed)

	// score stamped onto the newest history entry
	assert.InDelta(t, 1.0, s.History[0].Score, 1e-9)
	assert.Equal(t, []float64{1.0}, s.ScoreLog)
}

func TestAssessQualityNoData(t *testing.T) {
	s := validatorState()
	s.Attempt = 2
	s.LastResult = &ExecResult{OK: false, Error: "boom"}

	report := assessQuality(s)
	assert.InDelta(t, 0.1, report.Score, 1e-9)
	assert.False(t, report.Passed)
	assert.Contains(t, report.Notes, "No data returned from query")
	assert.Contains(t, report.Notes, "No artifacts generated")
}

func TestAssessQualityScoreBoundsAndPassRule(t *testing.T) {
	cases := []struct {
		hasData, hasArtifacts bool
		attempt               int
		wantScore             float64
	}{
		{true, true, 1, 1.0},
		{true, true, 4, 0.9},
		{true, false, 1, 0.7},
		{false, true, 1, 0.4},
		{false, false, 4, 0.0},
	}
	for _, tc := range cases {
		s := validatorState()
		s.Attempt = tc.attempt
		s.LastResult = &ExecResult{OK: tc.hasData, RowCount: 1}
		if !tc.hasData {
			s.LastResult = &ExecResult{OK: false}
		}
		if tc.hasArtifacts {
			s.Artifacts = []models.Artifact{{Kind: models.ArtifactTable}}
		}

		report := assessQuality(s)
		assert.InDelta(t, tc.wantScore, report.Score, 1e-9)
		assert.Equal(t, report.Score >= 0.7, report.Passed)
		assert.GreaterOrEqual(t, report.Score, 0.0)
		assert.LessOrEqual(t, report.Score, 1.0)
	}
}

func TestDetectPlateauConverging(t *testing.T) {
	s := validatorState()
	s.Attempt = 3
	s.ScoreLog = []float64{0.50, 0.51}

	assert.True(t, detectPlateau(s, 0.505), "0.505 improves on neither 0.50 nor 0.51 by >0.01")
}

func TestDetectPlateauImproving(t *testing.T) {
	s := validatorState()
	s.Attempt = 3
	s.ScoreLog = []float64{0.50, 0.65}

	assert.False(t, detectPlateau(s, 0.80), "0.80 clearly improves on 0.65")
}

func TestDetectPlateauRequiresAttempts(t *testing.T) {
	s := validatorState()
	s.Attempt = 2
	s.ScoreLog = []float64{0.50, 0.50}
	assert.False(t, detectPlateau(s, 0.50))

	s.Attempt = 3
	s.ScoreLog = nil
	assert.False(t, detectPlateau(s, 0.50), "no prior scores, nothing to compare")
}
