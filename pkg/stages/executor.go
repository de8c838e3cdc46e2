package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/masking"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/resilience"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/runner"
)

// Executor is the Stage E processor: it dispatches plan steps to
// registered runners in dependency order, with bounded parallelism,
// per-step timeouts, and retry with backoff and jitter.
type Executor struct {
	cfg       *config.PipelineConfig
	registry  *runner.Registry
	sanitizer *masking.Sanitizer
	logger    *slog.Logger
}

// NewExecutor creates the Stage E processor.
func NewExecutor(cfg *config.PipelineConfig, registry *runner.Registry, sanitizer *masking.Sanitizer) *Executor {
	return &Executor{
		cfg:       cfg,
		registry:  registry,
		sanitizer: sanitizer,
		logger:    slog.With("stage", "e"),
	}
}

// stepState tracks one step through the scheduling loop.
type stepState struct {
	step models.PlanStep
	done chan struct{}
	// failed is written before done closes and read only after it.
	failed bool
}

// Process executes the plan. Steps whose dependency closures are disjoint
// run in parallel up to the concurrency cap. A required-step failure
// (one with dependents) fails the plan; failures with no dependents
// degrade to completed-with-warnings. Context cancellation aborts all
// in-flight steps.
func (e *Executor) Process(ctx context.Context, plan *models.Plan, progress models.ProgressFunc) (*models.ExecutionResult, error) {
	result := &models.ExecutionResult{
		ExecutionID: uuid.NewString(),
		DecisionID:  plan.DecisionID,
		Timestamp:   models.Timestamp(),
		TotalSteps:  len(plan.Steps),
		Status:      models.ExecutionStatusRunning,
	}
	if plan.Empty() {
		result.Status = models.ExecutionStatusCompleted
		result.ProgressPercentage = 100
		return result, nil
	}

	states := make(map[string]*stepState, len(plan.Steps))
	for _, step := range plan.Steps {
		states[step.ID] = &stepState{step: step, done: make(chan struct{})}
	}

	sem := semaphore.NewWeighted(int64(e.cfg.StepConcurrencyCap))
	var (
		mu          sync.Mutex
		stepResults = make(map[string]models.StepResult, len(plan.Steps))
		wg          sync.WaitGroup
	)

	for _, st := range states {
		wg.Add(1)
		go func(st *stepState) {
			defer wg.Done()
			defer close(st.done)

			// Wait for dependencies; a failed dependency blocks this step.
			for _, depID := range st.step.DependsOn {
				dep := states[depID]
				select {
				case <-dep.done:
					if dep.failed {
						st.failed = true
						mu.Lock()
						stepResults[st.step.ID] = models.StepResult{
							StepID:       st.step.ID,
							Status:       models.ExecutionStatusFailed,
							ErrorMessage: fmt.Sprintf("skipped: dependency %s failed", depID),
						}
						mu.Unlock()
						return
					}
				case <-ctx.Done():
					st.failed = true
					mu.Lock()
					stepResults[st.step.ID] = cancelledResult(st.step.ID, ctx.Err())
					mu.Unlock()
					return
				}
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				st.failed = true
				mu.Lock()
				stepResults[st.step.ID] = cancelledResult(st.step.ID, err)
				mu.Unlock()
				return
			}
			defer sem.Release(1)

			sr := e.runStep(ctx, st.step, progress)
			st.failed = sr.Status != models.ExecutionStatusCompleted
			mu.Lock()
			stepResults[st.step.ID] = sr
			mu.Unlock()
		}(st)
	}
	wg.Wait()

	return e.aggregate(ctx, plan, states, stepResults, result), nil
}

// runStep dispatches one step to its runner with timeout, retries, and
// progress events.
func (e *Executor) runStep(ctx context.Context, step models.PlanStep, progress models.ProgressFunc) models.StepResult {
	emit := func(phase models.ProgressPhase, payload models.ProgressPayload) {
		if progress != nil {
			progress(models.StageE, phase, payload)
		}
	}
	emit(models.ProgressPhaseStart, models.ProgressPayload{Name: step.ID, Message: step.Name})

	start := time.Now()
	sr := models.StepResult{StepID: step.ID}

	r, err := e.registry.Get(step.Tool)
	if err != nil {
		sr.Status = models.ExecutionStatusFailed
		sr.ErrorMessage = err.Error()
		sr.DurationMS = time.Since(start).Milliseconds()
		emit(models.ProgressPhaseComplete, models.ProgressPayload{Name: step.ID, DurationMS: sr.DurationMS, Message: "failed"})
		return sr
	}

	retryCfg := &resilience.RetryConfig{
		MaxAttempts:     step.RetryCount + 1,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}

	var res *runner.Result
	err = resilience.Retry(ctx, retryCfg, func() error {
		stepCtx, cancel := context.WithTimeout(ctx, time.Duration(step.TimeoutS)*time.Second)
		defer cancel()

		var execErr error
		res, execErr = r.Execute(stepCtx, step.Inputs)
		return execErr
	})

	sr.DurationMS = time.Since(start).Milliseconds()
	switch {
	case err != nil && ctx.Err() != nil:
		sr.Status = models.ExecutionStatusCancelled
		sr.ErrorMessage = e.sanitizer.Sanitize(err.Error())
	case err != nil:
		sr.Status = models.ExecutionStatusFailed
		sr.ErrorMessage = e.sanitizer.Sanitize(err.Error())
	default:
		sr.Status = models.ExecutionStatusCompleted
		if res != nil {
			sr.Stdout = e.sanitizer.SanitizeOutput(res.Stdout)
			sr.Stderr = e.sanitizer.SanitizeOutput(res.Stderr)
			sr.Output = res.Output
		}
	}

	e.logger.Info("Step finished",
		"step_id", step.ID, "tool", step.Tool,
		"status", sr.Status, "duration_ms", sr.DurationMS)
	emit(models.ProgressPhaseComplete, models.ProgressPayload{
		Name: step.ID, DurationMS: sr.DurationMS, Message: string(sr.Status)})
	return sr
}

// aggregate derives the plan-level status from the step outcomes. A
// failed step with dependents fails the plan; isolated failures degrade
// to completed-with-warnings.
func (e *Executor) aggregate(ctx context.Context, plan *models.Plan, states map[string]*stepState, stepResults map[string]models.StepResult, result *models.ExecutionResult) *models.ExecutionResult {
	hasDependents := make(map[string]bool)
	for _, step := range plan.Steps {
		for _, depID := range step.DependsOn {
			hasDependents[depID] = true
		}
	}

	blocking := false
	cancelled := false
	for _, step := range plan.Steps {
		sr := stepResults[step.ID]
		result.StepResults = append(result.StepResults, sr)
		switch sr.Status {
		case models.ExecutionStatusCompleted:
			result.CompletedSteps++
		case models.ExecutionStatusCancelled:
			cancelled = true
			result.FailedSteps++
		default:
			result.FailedSteps++
			if hasDependents[step.ID] {
				blocking = true
			} else {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("step %s (%s) failed: %s", step.ID, step.Name, sr.ErrorMessage))
			}
		}
	}

	if result.TotalSteps > 0 {
		result.ProgressPercentage = 100 * float64(result.CompletedSteps) / float64(result.TotalSteps)
	}

	switch {
	case cancelled || ctx.Err() != nil:
		result.Status = models.ExecutionStatusCancelled
	case blocking:
		result.Status = models.ExecutionStatusFailed
	default:
		result.Status = models.ExecutionStatusCompleted
	}

	e.logger.Info("Plan execution finished",
		"execution_id", result.ExecutionID,
		"status", result.Status,
		"completed", result.CompletedSteps,
		"failed", result.FailedSteps)
	return result
}

func cancelledResult(stepID string, err error) models.StepResult {
	return models.StepResult{
		StepID:       stepID,
		Status:       models.ExecutionStatusCancelled,
		ErrorMessage: err.Error(),
	}
}
