package analysis

// Step tags the states of the orchestrator's state machine.
type Step string

const (
	StepPlan      Step = "plan"
	StepProfile   Step = "profile"
	StepMVQ       Step = "mvq"
	StepDiagnose  Step = "diagnose"
	StepRefine    Step = "refine"
	StepTransform Step = "transform"
	StepProduce   Step = "produce"
	StepValidate  Step = "validate"
	StepPresent   Step = "present"
	StepDone      Step = "done"
)

// The routing functions below are pure decisions over the state; they make
// no calls and mutate nothing, so the state machine stays table-driven and
// independently testable.

// needDiagnostics routes after mvq: diagnose when the execution failed,
// returned zero rows, or the latest attempt was flagged weird.
func needDiagnostics(s *State) Step {
	failed := s.LastResult == nil || !s.LastResult.OK
	empty := s.LastResult != nil && s.LastResult.OK && s.LastResult.RowCount == 0

	weird := false
	if len(s.History) > 0 {
		weird = s.History[len(s.History)-1].FlagWeird
	}

	if failed || empty || weird {
		return StepDiagnose
	}
	return StepTransform
}

// nextAfterRefine routes after a refinement attempt: transform on success,
// another diagnose pass on failure while the attempt cap and budget allow,
// else fall through to transform so the run drains to present.
func nextAfterRefine(s *State) Step {
	if s.LastResult != nil && s.LastResult.OK {
		return StepTransform
	}
	if s.HasBudget() && s.Attempt < s.Spec.MaxAttempts() {
		return StepDiagnose
	}
	return StepTransform
}

// shouldContinue routes after validation: another diagnose/refine cycle only
// while quality is below target, the score is still improving, and budget
// and attempts remain. Any single exit condition forces present.
func shouldContinue(s *State) Step {
	if s.Quality == nil {
		return StepPresent
	}

	continueIteration := s.Quality.Score < 0.85 &&
		!s.Quality.Plateau &&
		s.HasBudget() &&
		s.Attempt < s.Spec.MaxAttempts()

	if continueIteration {
		return StepDiagnose
	}
	return StepPresent
}
