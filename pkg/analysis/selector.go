package analysis

import (
	"context"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/prompts"
)

// selectTables narrows the full catalog down to the tables worth profiling.
// The synthesis port ranks candidates by relevance to the question; if no
// question is available or the call yields nothing usable, the first N
// catalog entries are used verbatim so profiling never blocks on model
// availability.
func (e *Engine) selectTables(ctx context.Context, state *State, catalog []string) []string {
	maxCandidates := e.cfg.MaxCandidates
	if len(catalog) <= maxCandidates {
		selected := make([]string, len(catalog))
		copy(selected, catalog)
		return selected
	}

	if state.Spec.Question == "" {
		return catalog[:maxCandidates]
	}

	prompt := prompts.BuildTableSelectionPrompt(state.Spec.Question, catalog, maxCandidates)
	suggested := e.selectTablesLLM(ctx, prompt)

	selected := filterToCatalog(suggested, catalog, maxCandidates)
	if len(selected) == 0 {
		e.logger.Warn("table selection yielded no usable names, falling back to catalog order",
			zap.String("job_id", state.JobID))
		return catalog[:maxCandidates]
	}

	e.logger.Info("selected tables",
		zap.String("job_id", state.JobID),
		zap.Int("catalog", len(catalog)),
		zap.Int("selected", len(selected)))
	return selected
}

// filterToCatalog keeps only names present in the real catalog, de-duplicated,
// preserving the suggested order, capped at max.
func filterToCatalog(suggested, catalog []string, max int) []string {
	known := make(map[string]bool, len(catalog))
	for _, name := range catalog {
		known[name] = true
	}

	var selected []string
	seen := make(map[string]bool, len(suggested))
	for _, name := range suggested {
		if !known[name] || seen[name] {
			continue
		}
		seen[name] = true
		selected = append(selected, name)
		if len(selected) == max {
			break
		}
	}
	return selected
}
