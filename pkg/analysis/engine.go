// Package analysis implements the iterative query-synthesis orchestrator:
// a state machine that plans, profiles, generates, executes, diagnoses, and
// refines SQL until a quality threshold is met or the budget runs out.
package analysis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/llm"
	"github.com/insightline/analyst-engine/pkg/models"
	"github.com/insightline/analyst-engine/pkg/rls"
)

// Config tunes engine behavior. Zero values are replaced with defaults.
type Config struct {
	// RowCap is the dialect-enforced row limit injected into every query.
	RowCap int
	// MaxSteps is the hard ceiling on state transitions per run, enforced
	// independently of budget, plateau and attempt caps as a safety net
	// against pathological diagnose/refine oscillation.
	MaxSteps int
	// MaxDiagnostics bounds the diagnostic batch per diagnose pass.
	MaxDiagnostics int
	// MaxCandidates bounds how many tables the selector keeps.
	MaxCandidates int
}

const (
	defaultRowCap         = 100000
	defaultMaxSteps       = 60
	defaultMaxDiagnostics = 5
	defaultMaxCandidates  = 12
)

func (c Config) withDefaults() Config {
	if c.RowCap <= 0 {
		c.RowCap = defaultRowCap
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = defaultMaxSteps
	}
	if c.MaxDiagnostics <= 0 {
		c.MaxDiagnostics = defaultMaxDiagnostics
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = defaultMaxCandidates
	}
	return c
}

// Engine runs analysis jobs. One engine serves many jobs concurrently; all
// per-job mutable state lives in the State threaded through each run.
type Engine struct {
	llm       llm.Client
	tokens    *rls.TokenManager
	cfg       Config
	logger    *zap.Logger
	observers []Observer
}

// NewEngine creates an engine. tokens may be nil when RLS auto-refresh is
// not configured.
func NewEngine(client llm.Client, tokens *rls.TokenManager, cfg Config, logger *zap.Logger, observers ...Observer) *Engine {
	return &Engine{
		llm:       client,
		tokens:    tokens,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("analysis"),
		observers: observers,
	}
}

// AddObserver subscribes an observer to step notifications. Call before any
// runs start; the observer list is not synchronized.
func (e *Engine) AddObserver(observer Observer) {
	e.observers = append(e.observers, observer)
}

// Run executes one job to completion and returns the result. The run always
// terminates at present with an answer, whatever went wrong along the way;
// the returned error is reserved for a nil connector or similar misuse.
func (e *Engine) Run(ctx context.Context, jobID string, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) *models.RunResult {
	state := NewState(jobID, spec, conn, rlsCtx)
	e.logger.Info("starting analysis run",
		zap.String("job_id", jobID),
		zap.String("dialect", string(state.Spec.Dialect)),
		zap.Int("budget_queries", state.Budget.Queries))

	step := StepPlan
	transitions := 0

	for step != StepDone {
		// Cooperative cancellation: checked at step boundaries only, an
		// in-flight call is never aborted mid-execution.
		if ctx.Err() != nil && step != StepPresent {
			e.logger.Warn("run cancelled, jumping to present",
				zap.String("job_id", jobID), zap.String("at_step", string(step)))
			step = StepPresent
		}

		transitions++
		if transitions > e.cfg.MaxSteps && step != StepPresent {
			e.logger.Error("step ceiling reached, jumping to present",
				zap.String("job_id", jobID), zap.Int("max_steps", e.cfg.MaxSteps))
			step = StepPresent
		}

		current := step
		switch step {
		case StepPlan:
			e.stepPlan(state)
			step = StepProfile
		case StepProfile:
			e.stepProfile(ctx, state)
			step = StepMVQ
		case StepMVQ:
			e.stepMVQ(ctx, state)
			step = needDiagnostics(state)
		case StepDiagnose:
			e.stepDiagnose(ctx, state)
			step = StepRefine
		case StepRefine:
			e.stepRefine(ctx, state)
			step = nextAfterRefine(state)
		case StepTransform:
			e.stepTransform(state)
			step = StepProduce
		case StepProduce:
			e.stepProduce(state)
			step = StepValidate
		case StepValidate:
			e.stepValidate(state)
			step = shouldContinue(state)
		case StepPresent:
			e.stepPresent(state)
			step = StepDone
		}
		e.notify(state, current)
	}

	state.CompletedAt = time.Now().UTC()
	e.logger.Info("analysis run finished",
		zap.String("job_id", jobID),
		zap.Int("attempts", state.Attempt),
		zap.Int("transitions", transitions),
		zap.Int("budget_queries_left", state.Budget.Queries))

	return state.Result()
}
