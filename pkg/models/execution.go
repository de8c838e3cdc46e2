package models

import "time"

// ExecutionStatus is the lifecycle status of a plan execution or a step.
type ExecutionStatus string

const (
	ExecutionStatusPending   ExecutionStatus = "pending"
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// StepResult records the outcome of a single plan step.
type StepResult struct {
	StepID       string          `json:"step_id"`
	Status       ExecutionStatus `json:"status"`
	Stdout       string          `json:"stdout,omitempty"`
	Stderr       string          `json:"stderr,omitempty"`
	Output       map[string]any  `json:"output,omitempty"`
	DurationMS   int64           `json:"duration_ms"`
	ErrorMessage string          `json:"error_message,omitempty"`
}

// ExecutionResult is the Stage E output: aggregate plan execution outcome
// with per-step detail.
type ExecutionResult struct {
	ExecutionID string    `json:"execution_id"`
	DecisionID  string    `json:"decision_id"`
	Timestamp   time.Time `json:"timestamp"`

	Status             ExecutionStatus `json:"status"`
	TotalSteps         int             `json:"total_steps"`
	CompletedSteps     int             `json:"completed_steps"`
	FailedSteps        int             `json:"failed_steps"`
	ProgressPercentage float64         `json:"progress_percentage"`

	StepResults []StepResult `json:"step_results"`

	// Warnings carries non-blocking step failures when the plan still
	// completed (failed steps with no dependents).
	Warnings []string `json:"warnings,omitempty"`
}

// StepResultByID returns the result for the given step, if recorded.
func (r *ExecutionResult) StepResultByID(stepID string) (*StepResult, bool) {
	for i := range r.StepResults {
		if r.StepResults[i].StepID == stepID {
			return &r.StepResults[i], true
		}
	}
	return nil, false
}
