package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/insightline/analyst-engine/pkg/adapters/datasource"
	"github.com/insightline/analyst-engine/pkg/analysis"
	"github.com/insightline/analyst-engine/pkg/apperrors"
	"github.com/insightline/analyst-engine/pkg/models"
	sqlguard "github.com/insightline/analyst-engine/pkg/sql"
)

// Job status values reported while a run is in flight.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
)

// Job is the registry entry for one analysis run.
type Job struct {
	ID          string            `json:"id"`
	Status      string            `json:"status"`
	Spec        models.QuerySpec  `json:"spec"`
	CurrentStep string            `json:"current_step,omitempty"`
	Result      *models.RunResult `json:"result,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// JobService runs analysis jobs and tracks their status. Jobs run
// independently; the registry is the only shared structure.
type JobService interface {
	// Submit starts a job asynchronously and returns its id.
	Submit(ctx context.Context, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) (string, error)

	// Run executes a job synchronously and returns the finished result.
	Run(ctx context.Context, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) (*models.RunResult, error)

	// Get returns the job's current snapshot.
	Get(jobID string) (*Job, error)
}

type jobService struct {
	engine *analysis.Engine
	logger *zap.Logger

	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewJobService creates a job service around the given engine. The service
// registers itself as a step observer so job snapshots track run progress.
func NewJobService(engine *analysis.Engine, logger *zap.Logger) JobService {
	s := &jobService{
		engine: engine,
		logger: logger.Named("jobs"),
		jobs:   make(map[string]*Job),
	}
	engine.AddObserver(s)
	return s
}

func (s *jobService) Submit(ctx context.Context, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) (string, error) {
	if err := validateSpec(spec); err != nil {
		return "", err
	}

	job := s.register(spec)
	go func() {
		// The submitting request's context ends with the HTTP exchange;
		// the run carries on under its own.
		result := s.engine.Run(context.Background(), job.ID, spec, conn, rlsCtx)
		s.complete(job.ID, result)
		conn.Close()
	}()

	return job.ID, nil
}

func (s *jobService) Run(ctx context.Context, spec models.QuerySpec, conn datasource.Connector, rlsCtx *models.RLSContext) (*models.RunResult, error) {
	if err := validateSpec(spec); err != nil {
		return nil, err
	}

	job := s.register(spec)
	result := s.engine.Run(ctx, job.ID, spec, conn, rlsCtx)
	s.complete(job.ID, result)
	return result, nil
}

// validateSpec rejects specs without a question and specs whose filter
// values look like SQL injection attempts.
func validateSpec(spec models.QuerySpec) error {
	if spec.Question == "" {
		return apperrors.ErrNoQuestion
	}
	if findings := sqlguard.ScreenFilters(spec.Filters); len(findings) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrUnsafeFilter, findings[0].Name)
	}
	return nil
}

func (s *jobService) Get(jobID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrJobNotFound, jobID)
	}

	snapshot := *job
	return &snapshot, nil
}

// OnStep implements analysis.Observer; wire it into the engine's observer
// list to surface per-step progress on the job snapshot.
func (s *jobService) OnStep(jobID string, step analysis.Step, state *analysis.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[jobID]; ok {
		job.CurrentStep = string(step)
	}
}

func (s *jobService) register(spec models.QuerySpec) *Job {
	job := &Job{
		ID:        uuid.NewString(),
		Status:    JobStatusRunning,
		Spec:      spec.Normalize(),
		CreatedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.logger.Info("job registered",
		zap.String("job_id", job.ID),
		zap.String("dialect", string(job.Spec.Dialect)))
	return job
}

func (s *jobService) complete(jobID string, result *models.RunResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job, ok := s.jobs[jobID]; ok {
		job.Status = JobStatusCompleted
		job.Result = result
		job.CurrentStep = ""
	}
}
