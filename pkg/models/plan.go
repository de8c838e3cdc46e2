package models

import "time"

// PlanStep is one executable step in a plan.
type PlanStep struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Tool        string         `json:"tool"`
	Inputs      map[string]any `json:"inputs"`
	TimeoutS    int            `json:"timeout_s"`
	RetryCount  int            `json:"retry_count"`
	// DependsOn lists step IDs that must complete before this step runs.
	// Validation guarantees every referenced ID appears earlier in the plan.
	DependsOn []string `json:"depends_on,omitempty"`
}

// SafetyCheck is a precondition the executor verifies before running a plan.
type SafetyCheck struct {
	Description string `json:"description"`
	StepID      string `json:"step_id,omitempty"`
}

// RollbackEntry describes how to undo a destructive step, or records that
// no rollback is feasible.
type RollbackEntry struct {
	StepID      string `json:"step_id"`
	Description string `json:"description"`
	Feasible    bool   `json:"feasible"`
}

// ApprovalPoint gates a step behind a named role's consent.
type ApprovalPoint struct {
	StepID string `json:"step_id"`
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// ExecutionMetadata aggregates plan-level execution facts.
type ExecutionMetadata struct {
	TotalEstimatedTimeS int             `json:"total_estimated_time_s"`
	RiskFactors         []string        `json:"risk_factors,omitempty"`
	ApprovalPoints      []ApprovalPoint `json:"approval_points,omitempty"`
}

// Plan is the Stage C output: ordered steps with dependencies, safety
// checks, rollback entries, and execution metadata.
type Plan struct {
	DecisionID string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`

	Steps             []PlanStep        `json:"steps"`
	SafetyChecks      []SafetyCheck     `json:"safety_checks,omitempty"`
	RollbackPlan      []RollbackEntry   `json:"rollback_plan,omitempty"`
	ExecutionMetadata ExecutionMetadata `json:"execution_metadata"`

	// Warnings carries non-fatal validation findings (duration ceiling
	// exceeded, sequentialization suggested).
	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports whether the plan carries no executable steps. A structured
// error plan (validation failure) is empty with RiskFactors populated.
func (p *Plan) Empty() bool {
	return p == nil || len(p.Steps) == 0
}

// StepByID returns the step with the given ID, if present.
func (p *Plan) StepByID(id string) (*PlanStep, bool) {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i], true
		}
	}
	return nil, false
}
