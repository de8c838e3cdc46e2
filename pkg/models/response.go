package models

import "time"

// ResponseType discriminates the Stage D output shape.
type ResponseType string

const (
	ResponseTypeInformation     ResponseType = "information"
	ResponseTypePlanSummary     ResponseType = "plan_summary"
	ResponseTypeApprovalRequest ResponseType = "approval_request"
	ResponseTypeExecutionReady  ResponseType = "execution_ready"
	ResponseTypeError           ResponseType = "error"
	ResponseTypeClarification   ResponseType = "clarification"
)

// Confidence is the coarse confidence bucket reported to the user.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ClarificationQuestion is one structured question the user must answer
// before the pipeline can proceed.
type ClarificationQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options,omitempty"`
	Required bool     `json:"required"`
	Context  string   `json:"context,omitempty"`
}

// ExecutionSummary is the structural fact block attached to plan-bearing
// responses. Facts come from the plan, never from LLM prose.
type ExecutionSummary struct {
	TotalSteps     int      `json:"total_steps"`
	ToolsUsed      []string `json:"tools_used"`
	EstimatedTimeS int      `json:"estimated_time_s"`
	RiskLevel      RiskLevel `json:"risk_level"`
}

// Response is the Stage D output — the user-facing result of a pipeline run.
type Response struct {
	ResponseID string    `json:"response_id"`
	DecisionID string    `json:"decision_id"`
	Timestamp  time.Time `json:"timestamp"`

	ResponseType ResponseType `json:"response_type"`
	Message      string       `json:"message"`
	Confidence   Confidence   `json:"confidence"`

	ExecutionSummary *ExecutionSummary `json:"execution_summary,omitempty"`

	ApprovalRequired bool            `json:"approval_required"`
	ApprovalPoints   []ApprovalPoint `json:"approval_points,omitempty"`

	ClarificationNeeded []ClarificationQuestion `json:"clarification_needed,omitempty"`
	PartialAnalysis     string                  `json:"partial_analysis,omitempty"`

	SourcesConsulted []string `json:"sources_consulted,omitempty"`
	Warnings         []string `json:"warnings,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`

	// ErrorKind is set on ResponseTypeError for programmatic handling.
	ErrorKind string `json:"error_kind,omitempty"`

	ProcessingTimeMS int64 `json:"processing_time_ms"`
}
