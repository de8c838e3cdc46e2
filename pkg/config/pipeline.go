package config

import (
	"fmt"
	"time"
)

// PipelineConfig controls orchestrator sequencing, clarification policy,
// and the stage-level limits.
type PipelineConfig struct {
	// Deadline is the end-to-end deadline for one request.
	Deadline time.Duration

	// ConfidenceThreshold is the minimum Stage AB confidence below which
	// Stage D asks for clarification instead of proceeding.
	ConfidenceThreshold float64

	// MaxClarificationAttempts caps consecutive clarification turns per
	// session; the next turn fails with INSUFFICIENT_CONFIDENCE.
	MaxClarificationAttempts int

	// ConversationMaxMessages is the per-session history ring capacity.
	ConversationMaxMessages int

	// MaxSelectedTools caps the Stage AB selection length.
	MaxSelectedTools int

	// MaxPlanSteps caps the Stage C plan length.
	MaxPlanSteps int

	// PlanDurationCeiling caps the summed estimated step durations before
	// the planner attaches a warning.
	PlanDurationCeiling time.Duration

	// StepConcurrencyCap bounds parallel step execution per request.
	StepConcurrencyCap int

	// CandidateShortlist is the number of tools included in the Stage AB
	// system prompt, chosen by keyword overlap.
	CandidateShortlist int

	// TieBreakEpsilon is the score distance within which the top two
	// candidates are considered tied.
	TieBreakEpsilon float64

	// MaxRequestBytes rejects over-long requests as INPUT_INVALID.
	MaxRequestBytes int

	// MetricsHistorySize bounds the rolling metrics history.
	MetricsHistorySize int
}

// DefaultPipelineConfig returns the built-in pipeline defaults.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		Deadline:                 60 * time.Second,
		ConfidenceThreshold:      0.5,
		MaxClarificationAttempts: 3,
		ConversationMaxMessages:  20,
		MaxSelectedTools:         8,
		MaxPlanSteps:             20,
		PlanDurationCeiling:      30 * time.Minute,
		StepConcurrencyCap:       4,
		CandidateShortlist:       20,
		TieBreakEpsilon:          0.02,
		MaxRequestBytes:          8192,
		MetricsHistorySize:       1000,
	}
}

// LoadPipelineConfigFromEnv builds the pipeline config from environment
// variables, falling back to defaults for unset keys.
func LoadPipelineConfigFromEnv() *PipelineConfig {
	def := DefaultPipelineConfig()
	return &PipelineConfig{
		Deadline:                 envSeconds("PIPELINE_DEADLINE_S", def.Deadline),
		ConfidenceThreshold:      envFloat("CONFIDENCE_THRESHOLD", def.ConfidenceThreshold),
		MaxClarificationAttempts: envInt("MAX_CLARIFICATION_ATTEMPTS", def.MaxClarificationAttempts),
		ConversationMaxMessages:  envInt("CONVERSATION_MAX_MESSAGES", def.ConversationMaxMessages),
		MaxSelectedTools:         envInt("MAX_SELECTED_TOOLS", def.MaxSelectedTools),
		MaxPlanSteps:             envInt("MAX_PLAN_STEPS", def.MaxPlanSteps),
		PlanDurationCeiling:      envSeconds("PLAN_DURATION_CEILING_S", def.PlanDurationCeiling),
		StepConcurrencyCap:       envInt("STEP_CONCURRENCY_CAP", def.StepConcurrencyCap),
		CandidateShortlist:       envInt("CANDIDATE_SHORTLIST", def.CandidateShortlist),
		TieBreakEpsilon:          envFloat("TIE_BREAK_EPSILON", def.TieBreakEpsilon),
		MaxRequestBytes:          envInt("MAX_REQUEST_BYTES", def.MaxRequestBytes),
		MetricsHistorySize:       envInt("METRICS_HISTORY_SIZE", def.MetricsHistorySize),
	}
}

// Validate checks the config for values that cannot work at runtime.
func (c *PipelineConfig) Validate() error {
	if c.Deadline <= 0 {
		return fmt.Errorf("pipeline config: deadline must be positive, got %v", c.Deadline)
	}
	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("pipeline config: confidence threshold must be in [0,1], got %v", c.ConfidenceThreshold)
	}
	if c.MaxClarificationAttempts <= 0 {
		return fmt.Errorf("pipeline config: max clarification attempts must be positive, got %d", c.MaxClarificationAttempts)
	}
	if c.ConversationMaxMessages <= 0 {
		return fmt.Errorf("pipeline config: conversation max messages must be positive, got %d", c.ConversationMaxMessages)
	}
	if c.MaxSelectedTools <= 0 {
		return fmt.Errorf("pipeline config: max selected tools must be positive, got %d", c.MaxSelectedTools)
	}
	if c.MaxPlanSteps <= 0 {
		return fmt.Errorf("pipeline config: max plan steps must be positive, got %d", c.MaxPlanSteps)
	}
	if c.StepConcurrencyCap <= 0 {
		return fmt.Errorf("pipeline config: step concurrency cap must be positive, got %d", c.StepConcurrencyCap)
	}
	if c.TieBreakEpsilon < 0 {
		return fmt.Errorf("pipeline config: tie-break epsilon must be non-negative, got %v", c.TieBreakEpsilon)
	}
	if c.MetricsHistorySize <= 0 {
		return fmt.Errorf("pipeline config: metrics history size must be positive, got %d", c.MetricsHistorySize)
	}
	return nil
}
