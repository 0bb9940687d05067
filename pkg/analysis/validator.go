package analysis

import (
	"github.com/insightline/analyst-engine/pkg/models"
)

// Gate weights and thresholds for the quality score.
const (
	weightHasData            = 0.6
	weightHasArtifacts       = 0.3
	weightReasonableAttempts = 0.1

	passThreshold = 0.7

	// plateauEpsilon is the minimum score improvement that counts as
	// progress between validation passes.
	plateauEpsilon = 0.01

	// plateauMinAttempts is how many attempts must have happened before
	// plateau detection kicks in.
	plateauMinAttempts = 3

	reasonableAttemptCap = 3
)

// assessQuality computes the weighted gate score for the current state and
// detects score plateaus across validation passes.
func assessQuality(s *State) *models.QualityReport {
	hasData := s.LastResult != nil && s.LastResult.OK && s.LastResult.RowCount > 0
	hasArtifacts := len(s.Artifacts) > 0
	reasonableAttempts := s.Attempt <= reasonableAttemptCap

	var score float64
	gates := []models.QualityGate{
		{Name: "has_data", Passed: hasData, Score: weightHasData},
		{Name: "has_artifacts", Passed: hasArtifacts, Score: weightHasArtifacts},
		{Name: "reasonable_attempts", Passed: reasonableAttempts, Score: weightReasonableAttempts},
	}
	for _, gate := range gates {
		if gate.Passed {
			score += gate.Score
		}
	}

	report := &models.QualityReport{
		Passed:  score >= passThreshold,
		Score:   score,
		Gates:   gates,
		Plateau: detectPlateau(s, score),
	}

	if !hasData {
		report.Notes = append(report.Notes, "No data returned from query")
	}
	if !hasArtifacts {
		report.Notes = append(report.Notes, "No artifacts generated")
	}
	if !s.HasBudget() {
		report.Notes = append(report.Notes, "Budget exhausted")
	}
	if s.Spec.ValidationProfile == models.ValidationStrict && hasData && s.LastResult.ColumnCount == 0 {
		report.Notes = append(report.Notes, "Result has no column metadata")
	}

	// Stamp the score into the log and onto the newest history entry so
	// later passes can compare against it.
	s.ScoreLog = append(s.ScoreLog, score)
	if len(s.History) > 0 {
		s.History[len(s.History)-1].Score = score
	}

	return report
}

// detectPlateau reports whether refinement has stopped improving: once three
// attempts have happened, the current score must beat at least one of the
// previous two validation scores by more than plateauEpsilon to count as
// progress.
func detectPlateau(s *State, score float64) bool {
	if s.Attempt < plateauMinAttempts || len(s.ScoreLog) == 0 {
		return false
	}

	recent := s.ScoreLog
	if len(recent) > 2 {
		recent = recent[len(recent)-2:]
	}

	for _, previous := range recent {
		if score-previous > plateauEpsilon {
			return false
		}
	}
	return true
}
