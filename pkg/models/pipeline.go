package models

import "time"

// PipelineStatus is the terminal status of one pipeline run.
type PipelineStatus string

const (
	PipelineStatusCompleted PipelineStatus = "completed"
	PipelineStatusFailed    PipelineStatus = "failed"
	PipelineStatusCancelled PipelineStatus = "cancelled"
	// PipelineStatusAwaitingApproval marks a run that produced an
	// approval-gated plan; execution resumes via ApproveAndResume.
	PipelineStatusAwaitingApproval PipelineStatus = "awaiting_approval"
)

// StageName identifies a pipeline stage for metrics and progress events.
type StageName string

const (
	StageAB StageName = "stage_ab"
	StageC  StageName = "stage_c"
	StageD  StageName = "stage_d"
	StageE  StageName = "stage_e"
)

// StageDurations records per-stage wall time for one request.
type StageDurations map[StageName]time.Duration

// RequestMetrics is the per-request metrics record.
type RequestMetrics struct {
	RequestID      string         `json:"request_id"`
	TotalMS        int64          `json:"total_ms"`
	StageMS        map[string]int64 `json:"stage_ms"`
	MemoryMB       float64        `json:"memory_mb"`
	Success        bool           `json:"success"`
	StageReached   StageName      `json:"stage_reached"`
	CompletedAt    time.Time      `json:"completed_at"`
}

// PipelineResult is the aggregate outcome returned to the caller.
type PipelineResult struct {
	RequestID string         `json:"request_id"`
	Status    PipelineStatus `json:"status"`
	Success   bool           `json:"success"`

	Selection *Selection       `json:"selection,omitempty"`
	Plan      *Plan            `json:"plan,omitempty"`
	Response  *Response        `json:"response,omitempty"`
	Execution *ExecutionResult `json:"execution,omitempty"`

	ErrorMessage string         `json:"error_message,omitempty"`
	Metrics      RequestMetrics `json:"metrics"`
}

// ProgressPhase marks the boundary of a progress event.
type ProgressPhase string

const (
	ProgressPhaseStart    ProgressPhase = "start"
	ProgressPhaseComplete ProgressPhase = "complete"
)

// ProgressPayload is the payload delivered with each progress event.
type ProgressPayload struct {
	Name       string `json:"name"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ProgressFunc receives stage progress events. Callbacks must be fast and
// non-blocking — they run on the request goroutine.
type ProgressFunc func(stage StageName, phase ProgressPhase, payload ProgressPayload)
