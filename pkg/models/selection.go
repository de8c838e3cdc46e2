package models

import "time"

// RiskLevel classifies the blast radius of a selection or plan.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "low"
	RiskLevelMedium   RiskLevel = "medium"
	RiskLevelHigh     RiskLevel = "high"
	RiskLevelCritical RiskLevel = "critical"
)

// riskRank orders risk levels for clamping. Unknown levels rank lowest.
var riskRank = map[RiskLevel]int{
	RiskLevelLow:      0,
	RiskLevelMedium:   1,
	RiskLevelHigh:     2,
	RiskLevelCritical: 3,
}

// Valid reports whether the risk level is one of the defined values.
func (r RiskLevel) Valid() bool {
	_, ok := riskRank[r]
	return ok
}

// AtLeast returns the higher of the two risk levels. Used by the policy
// clamping rules — the LLM's assessment can only be raised, never lowered.
func (r RiskLevel) AtLeast(floor RiskLevel) RiskLevel {
	if riskRank[r] < riskRank[floor] {
		return floor
	}
	return r
}

// GTE reports whether r is at or above the given level.
func (r RiskLevel) GTE(other RiskLevel) bool {
	return riskRank[r] >= riskRank[other]
}

// NextStage identifies where the pipeline goes after Stage AB.
type NextStage string

const (
	NextStageC NextStage = "stage_c" // plan synthesis
	NextStageD NextStage = "stage_d" // direct answer (information-only)
)

// SelectedTool is one tool chosen by Stage AB, in execution order.
type SelectedTool struct {
	ToolName       string   `json:"tool_name"`
	CapabilityName string   `json:"capability_name"`
	PatternName    string   `json:"pattern_name"`
	Justification  string   `json:"justification"`
	ExecutionOrder int      `json:"execution_order"`
	InputsNeeded   []string `json:"inputs_needed,omitempty"`
}

// Policy is the execution policy derived from the selection.
// RequiresApproval and AutoExecute are set by deterministic rules in code,
// not taken verbatim from the LLM.
type Policy struct {
	RiskLevel        RiskLevel `json:"risk_level"`
	RequiresApproval bool      `json:"requires_approval"`
	AutoExecute      bool      `json:"auto_execute"`
}

// Selection is the Stage AB output: combined intent understanding and
// tool selection. Invariant: len(SelectedTools) == 0 ⇔ NextStage == stage_d.
type Selection struct {
	DecisionID string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`

	IntentCategory string `json:"intent_category"`
	IntentAction   string `json:"intent_action"`

	SelectedTools []SelectedTool `json:"selected_tools"`
	Policy        Policy         `json:"policy"`

	// SelectionConfidence is the LLM's self-reported confidence in [0,1].
	SelectionConfidence float64 `json:"selection_confidence"`

	NextStage NextStage `json:"next_stage"`

	// Warnings carries non-fatal issues (dropped unknown tools, parse
	// retries) for Stage D to surface.
	Warnings []string `json:"warnings,omitempty"`
}

// Informational reports whether the selection represents an
// information-only request (no tools, answered directly by Stage D).
func (s *Selection) Informational() bool {
	return len(s.SelectedTools) == 0
}
