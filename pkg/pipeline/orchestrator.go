// Package pipeline sequences the processing stages for one request:
// combined intent/selection, plan synthesis, answer shaping, and plan
// execution. The orchestrator owns per-session serialization, the
// clarification loop, asset validation, approval gating, and the
// translation of stage errors into user-facing responses.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/assets"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/conversation"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/masking"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/metrics"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/stages"
)

// clarificationSeparator joins the original request with a follow-up
// answer so the combined text goes through the full pipeline again.
const clarificationSeparator = "\n\nAdditional clarification provided: "

// Request is one pipeline invocation.
type Request struct {
	UserRequest string
	RequestID   string
	SessionID   string
	TenantID    string
	ActorID     string
	Progress    models.ProgressFunc
}

// sessionState serializes requests within one session and carries the
// clarification loop state between turns.
type sessionState struct {
	mu sync.Mutex

	awaitingClarification bool
	originalRequest       string
	attempts              int
}

// pendingExecution is an approval-gated plan parked until
// ApproveAndResume is called for its request.
type pendingExecution struct {
	sessionKey string
	selection  *models.Selection
	plan       *models.Plan
	createdAt  time.Time
}

// Orchestrator drives the stage sequence for each request.
type Orchestrator struct {
	cfg *config.PipelineConfig

	selector *stages.Selector
	planner  *stages.Planner
	answerer *stages.Answerer
	executor *stages.Executor

	assets        *assets.Provider
	conversations *conversation.Store
	collector     *metrics.Collector
	sanitizer     *masking.Sanitizer
	logger        *slog.Logger

	sessionMu sync.Mutex
	sessions  map[string]*sessionState

	pendingMu sync.Mutex
	pending   map[string]*pendingExecution
}

// NewOrchestrator wires the stage processors into an orchestrator.
func NewOrchestrator(
	cfg *config.PipelineConfig,
	selector *stages.Selector,
	planner *stages.Planner,
	answerer *stages.Answerer,
	executor *stages.Executor,
	provider *assets.Provider,
	conversations *conversation.Store,
	collector *metrics.Collector,
	sanitizer *masking.Sanitizer,
) *Orchestrator {
	return &Orchestrator{
		cfg:           cfg,
		selector:      selector,
		planner:       planner,
		answerer:      answerer,
		executor:      executor,
		assets:        provider,
		conversations: conversations,
		collector:     collector,
		sanitizer:     sanitizer,
		logger:        slog.With("component", "orchestrator"),
		sessions:      make(map[string]*sessionState),
		pending:       make(map[string]*pendingExecution),
	}
}

// ProcessRequest runs the full stage sequence for one request. It always
// returns a result; stage failures are translated into an error response
// rather than a Go error so callers get a uniform shape.
func (o *Orchestrator) ProcessRequest(ctx context.Context, req *Request) *models.PipelineResult {
	start := time.Now()
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	result := &models.PipelineResult{RequestID: requestID}
	durations := make(models.StageDurations)

	trimmed := strings.TrimSpace(req.UserRequest)
	if trimmed == "" {
		return o.invalidInput(result, start, durations, "The request is empty. Please describe what you need.")
	}
	if len(req.UserRequest) > o.cfg.MaxRequestBytes {
		return o.invalidInput(result, start, durations, fmt.Sprintf(
			"The request exceeds the %d byte limit. Please shorten it.", o.cfg.MaxRequestBytes))
	}

	// Requests within a session run one at a time, in arrival order.
	sessionKey := req.SessionID
	if sessionKey == "" {
		sessionKey = requestID
	}
	session := o.session(sessionKey)
	session.mu.Lock()
	defer session.mu.Unlock()
	if req.SessionID == "" {
		// A sessionless request never sees a second turn; drop its state
		// instead of letting the map grow with one entry per request.
		defer o.dropSession(sessionKey)
	}

	userRequest := trimmed
	if session.awaitingClarification && session.originalRequest != "" {
		userRequest = session.originalRequest + clarificationSeparator + trimmed
	}

	reqCtx := models.NewRequestContext()
	reqCtx.TenantID = req.TenantID
	reqCtx.ActorID = req.ActorID
	reqCtx.SessionID = req.SessionID
	reqCtx.OriginalRequest = userRequest
	reqCtx.SetClarificationAttempts(session.attempts)
	reqCtx.ConversationHistory = o.conversations.Formatted(sessionKey, o.cfg.ConversationMaxMessages)

	o.conversations.Add(sessionKey, conversation.RoleUser, trimmed)

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	// Stage AB: intent + tool selection.
	selection, err := o.runSelection(ctx, userRequest, reqCtx, req.Progress, durations)
	if err != nil {
		return o.failed(result, err, models.StageAB, start, durations)
	}
	result.Selection = selection

	// The clarification budget is spent: the pipeline will not get more
	// confident by asking again.
	if selection.SelectionConfidence < o.cfg.ConfidenceThreshold &&
		reqCtx.ClarificationAttempts() >= o.cfg.MaxClarificationAttempts {
		o.resetSession(session)
		return o.failed(result, models.NewPipelineError(models.ErrKindInsufficientConfidence,
			"I could not reach enough confidence in what you are asking for, even after clarification. "+
				"Please rephrase the request with the specific host and action."),
			models.StageAB, start, durations)
	}

	// Asset validation gate: every host the request names must exist in
	// the inventory before anything is planned against it.
	targetContext, err := o.validateTargets(ctx, reqCtx, selection)
	if err != nil {
		return o.failed(result, err, models.StageAB, start, durations)
	}

	// Stage C: plan synthesis, only when tools were selected.
	var plan *models.Plan
	if !selection.Informational() {
		plan, err = o.runPlanning(ctx, userRequest, selection, targetContext, req.Progress, durations)
		if err != nil {
			return o.failed(result, err, models.StageC, start, durations)
		}
		result.Plan = plan
	}

	// Stage D: shape the user-facing response.
	response, err := o.runAnswer(ctx, userRequest, selection, plan, reqCtx, req.Progress, durations)
	if err != nil {
		return o.failed(result, err, models.StageD, start, durations)
	}
	result.Response = response

	if response.ResponseType == models.ResponseTypeClarification {
		session.awaitingClarification = true
		session.originalRequest = userRequest
		session.attempts = reqCtx.ClarificationAttempts()
	} else {
		o.resetSession(session)
	}

	result.Status = models.PipelineStatusCompleted
	result.Success = true
	stageReached := models.StageD

	switch {
	case response.ApprovalRequired && plan != nil && !plan.Empty():
		o.park(requestID, sessionKey, selection, plan)
		result.Status = models.PipelineStatusAwaitingApproval

	case plan != nil && !plan.Empty() && selection.Policy.AutoExecute &&
		response.ResponseType == models.ResponseTypeExecutionReady:
		stageReached = models.StageE
		execution := o.runExecution(ctx, plan, req.Progress, durations)
		result.Execution = execution
		o.appendExecutionOutput(response, plan, execution)
		switch execution.Status {
		case models.ExecutionStatusCancelled:
			result.Status = models.PipelineStatusCancelled
			result.Success = false
			result.ErrorMessage = "plan execution was cancelled"
		case models.ExecutionStatusFailed:
			result.Status = models.PipelineStatusFailed
			result.Success = false
			result.ErrorMessage = "plan execution failed"
		}
	}

	o.conversations.Add(sessionKey, conversation.RoleAssistant, response.Message)
	o.record(result, stageReached, start, durations)
	return result
}

// ProcessBatch runs requests concurrently up to maxConcurrent, returning
// results in input order.
func (o *Orchestrator) ProcessBatch(ctx context.Context, reqs []*Request, maxConcurrent int) []*models.PipelineResult {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	results := make([]*models.PipelineResult, len(reqs))

	var g errgroup.Group
	g.SetLimit(maxConcurrent)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = o.ProcessRequest(ctx, req)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors
	return results
}

// ApproveAndResume executes the parked plan for an approval-gated
// request. The pending entry is consumed whether execution succeeds or
// not; a second approval for the same request is an error.
func (o *Orchestrator) ApproveAndResume(ctx context.Context, requestID string, progress models.ProgressFunc) *models.PipelineResult {
	start := time.Now()
	durations := make(models.StageDurations)
	result := &models.PipelineResult{RequestID: requestID}

	pending, ok := o.takePending(requestID)
	if !ok {
		return o.failed(result, models.NewPipelineError(models.ErrKindInputInvalid,
			fmt.Sprintf("no plan is awaiting approval for request %q", requestID)),
			models.StageE, start, durations)
	}
	result.Selection = pending.selection
	result.Plan = pending.plan

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Deadline)
	defer cancel()

	execution := o.runExecution(ctx, pending.plan, progress, durations)
	result.Execution = execution

	switch execution.Status {
	case models.ExecutionStatusCompleted:
		result.Status = models.PipelineStatusCompleted
		result.Success = true
	case models.ExecutionStatusCancelled:
		result.Status = models.PipelineStatusCancelled
		result.ErrorMessage = "plan execution was cancelled"
	default:
		result.Status = models.PipelineStatusFailed
		result.ErrorMessage = "plan execution failed"
	}

	o.conversations.Add(pending.sessionKey, conversation.RoleAssistant,
		fmt.Sprintf("Approved plan executed with status %s.", execution.Status))
	o.record(result, models.StageE, start, durations)
	return result
}

// PendingApprovals returns the request IDs with plans parked for approval.
func (o *Orchestrator) PendingApprovals() []string {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	ids := make([]string, 0, len(o.pending))
	for id := range o.pending {
		ids = append(ids, id)
	}
	return ids
}

// Health returns the derived service health.
func (o *Orchestrator) Health() metrics.HealthSnapshot { return o.collector.Health() }

// Metrics returns the rolling metrics snapshot.
func (o *Orchestrator) Metrics() metrics.Snapshot { return o.collector.Snapshot() }

// runSelection runs Stage AB with the token-budget shrink ladder: a
// budget overrun drops the conversation history and retries once before
// the error propagates.
func (o *Orchestrator) runSelection(ctx context.Context, userRequest string, reqCtx *models.RequestContext, progress models.ProgressFunc, durations models.StageDurations) (*models.Selection, error) {
	stageStart := o.stageStart(progress, models.StageAB)

	selection, err := o.selector.Process(ctx, userRequest, reqCtx)
	if models.IsKind(err, models.ErrKindTokenBudgetExceeded) && reqCtx.ConversationHistory != "" {
		o.logger.Warn("prompt over token budget, retrying without conversation history")
		reqCtx.ConversationHistory = ""
		selection, err = o.selector.Process(ctx, userRequest, reqCtx)
	}

	o.stageEnd(progress, models.StageAB, stageStart, durations, err)
	if err != nil {
		return nil, err
	}
	return selection, nil
}

func (o *Orchestrator) runPlanning(ctx context.Context, userRequest string, selection *models.Selection, targetContext string, progress models.ProgressFunc, durations models.StageDurations) (*models.Plan, error) {
	stageStart := o.stageStart(progress, models.StageC)
	plan, err := o.planner.Process(ctx, userRequest, selection, targetContext)
	o.stageEnd(progress, models.StageC, stageStart, durations, err)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (o *Orchestrator) runAnswer(ctx context.Context, userRequest string, selection *models.Selection, plan *models.Plan, reqCtx *models.RequestContext, progress models.ProgressFunc, durations models.StageDurations) (*models.Response, error) {
	stageStart := o.stageStart(progress, models.StageD)
	response, err := o.answerer.Process(ctx, userRequest, selection, plan, reqCtx)
	o.stageEnd(progress, models.StageD, stageStart, durations, err)
	if err != nil {
		return nil, err
	}
	return response, nil
}

// runExecution runs Stage E. The executor reports failures through the
// execution result, not an error, so this never fails the pipeline
// directly.
func (o *Orchestrator) runExecution(ctx context.Context, plan *models.Plan, progress models.ProgressFunc, durations models.StageDurations) *models.ExecutionResult {
	stageStart := o.stageStart(progress, models.StageE)
	execution, err := o.executor.Process(ctx, plan, progress)
	o.stageEnd(progress, models.StageE, stageStart, durations, err)
	if err != nil {
		// Defensive: the executor contract is error-free results.
		execution = &models.ExecutionResult{
			ExecutionID: uuid.NewString(),
			DecisionID:  plan.DecisionID,
			Timestamp:   models.Timestamp(),
			Status:      models.ExecutionStatusFailed,
			TotalSteps:  len(plan.Steps),
		}
	}
	return execution
}

// appendExecutionOutput folds each step's outcome into the response
// message, so the user sees what ran and what it printed instead of only
// the pre-execution plan announcement. Step output went through the
// executor's sanitizer already; the whole message is sanitized once more
// because the plan announcement part was built before execution.
func (o *Orchestrator) appendExecutionOutput(response *models.Response, plan *models.Plan, execution *models.ExecutionResult) {
	var b strings.Builder
	b.WriteString(response.Message)
	fmt.Fprintf(&b, "\n\nExecution %s: %d/%d step(s) completed.",
		execution.Status, execution.CompletedSteps, execution.TotalSteps)

	for _, sr := range execution.StepResults {
		label := sr.StepID
		if step, ok := plan.StepByID(sr.StepID); ok {
			label = step.Name
			if host, ok := step.Inputs["host"].(string); ok && host != "" {
				label += " on " + host
			}
		}
		switch {
		case sr.Stdout != "":
			fmt.Fprintf(&b, "\n\n[%s]\n%s", label, strings.TrimRight(sr.Stdout, "\n"))
		case sr.ErrorMessage != "":
			fmt.Fprintf(&b, "\n\n[%s] %s: %s", label, sr.Status, sr.ErrorMessage)
		default:
			fmt.Fprintf(&b, "\n\n[%s] %s", label, sr.Status)
		}
	}
	response.Message = o.sanitizer.Sanitize(b.String())
}

// validateTargets resolves every hostname/IP entity against the asset
// inventory. Unresolved targets fail the request before any plan is
// made; ad-hoc targets skip validation. A degraded inventory does not
// block the pipeline, it only adds a warning.
func (o *Orchestrator) validateTargets(ctx context.Context, reqCtx *models.RequestContext, selection *models.Selection) (string, error) {
	var targetContext string
	var unresolved []string

	for _, entity := range reqCtx.Entities() {
		if entity.Type != models.EntityTypeHostname && entity.Type != models.EntityTypeIPAddress {
			continue
		}
		if entity.AdHoc {
			continue
		}

		resolution, err := o.assets.ContextForTarget(ctx, entity.Value)
		if err != nil {
			o.logger.Warn("asset validation skipped, inventory degraded",
				"target", entity.Value, "error", err)
			selection.Warnings = append(selection.Warnings,
				"asset inventory unavailable, target "+entity.Value+" was not validated")
			continue
		}
		if !resolution.IsAsset {
			unresolved = append(unresolved, entity.Value)
			continue
		}
		if targetContext == "" {
			targetContext = resolution.Summary
		}
	}

	if len(unresolved) > 0 {
		return "", models.NewPipelineError(models.ErrKindAssetNotFound, fmt.Sprintf(
			"The following targets are not in the asset inventory: %s. "+
				"Check the names, or mark them as ad-hoc targets if they are outside the inventory.",
			strings.Join(unresolved, ", ")))
	}
	return targetContext, nil
}

func (o *Orchestrator) session(key string) *sessionState {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	state, ok := o.sessions[key]
	if !ok {
		state = &sessionState{}
		o.sessions[key] = state
	}
	return state
}

func (o *Orchestrator) dropSession(key string) {
	o.sessionMu.Lock()
	defer o.sessionMu.Unlock()
	delete(o.sessions, key)
}

// resetSession clears the clarification loop state. Callers hold the
// session lock.
func (o *Orchestrator) resetSession(session *sessionState) {
	session.awaitingClarification = false
	session.originalRequest = ""
	session.attempts = 0
}

func (o *Orchestrator) park(requestID, sessionKey string, selection *models.Selection, plan *models.Plan) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	o.pending[requestID] = &pendingExecution{
		sessionKey: sessionKey,
		selection:  selection,
		plan:       plan,
		createdAt:  time.Now(),
	}
}

func (o *Orchestrator) takePending(requestID string) (*pendingExecution, bool) {
	o.pendingMu.Lock()
	defer o.pendingMu.Unlock()
	pending, ok := o.pending[requestID]
	if ok {
		delete(o.pending, requestID)
	}
	return pending, ok
}

func (o *Orchestrator) stageStart(progress models.ProgressFunc, stage models.StageName) time.Time {
	if progress != nil {
		progress(stage, models.ProgressPhaseStart, models.ProgressPayload{Name: string(stage)})
	}
	return time.Now()
}

func (o *Orchestrator) stageEnd(progress models.ProgressFunc, stage models.StageName, stageStart time.Time, durations models.StageDurations, err error) {
	elapsed := time.Since(stageStart)
	durations[stage] = elapsed
	if progress != nil {
		progress(stage, models.ProgressPhaseComplete, models.ProgressPayload{
			Name:       string(stage),
			DurationMS: elapsed.Milliseconds(),
		})
	}
	if err == nil {
		o.collector.MarkStageSuccess(stage)
	}
}

// invalidInput builds the clarification response for empty or oversized
// requests. The pipeline completes with a clarification rather than
// failing; no session state is touched and no LLM call is made.
func (o *Orchestrator) invalidInput(result *models.PipelineResult, start time.Time, durations models.StageDurations, message string) *models.PipelineResult {
	result.Status = models.PipelineStatusCompleted
	result.Success = true
	result.Response = &models.Response{
		ResponseID:   uuid.NewString(),
		Timestamp:    models.Timestamp(),
		ResponseType: models.ResponseTypeClarification,
		Message:      message,
		Confidence:   models.ConfidenceLow,
		ErrorKind:    string(models.ErrKindInputInvalid),
		ClarificationNeeded: []models.ClarificationQuestion{
			{Question: "What would you like to do?", Required: true},
		},
	}
	o.record(result, models.StageAB, start, durations)
	return result
}

// failed translates a stage error into an error response on the result.
// Context errors map to their taxonomy kinds; the user-facing message is
// always sanitized.
func (o *Orchestrator) failed(result *models.PipelineResult, err error, stageReached models.StageName, start time.Time, durations models.StageDurations) *models.PipelineResult {
	kind := models.KindOf(err)
	status := models.PipelineStatusFailed
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = models.ErrKindDeadlineExceeded
	case errors.Is(err, context.Canceled):
		kind = models.ErrKindCancelled
		status = models.PipelineStatusCancelled
	case kind == "":
		// Unclassified errors never expose their detail.
		kind = models.ErrKindExecutionFailed
	}

	message := models.UserMessage(err)
	if kind == models.ErrKindDeadlineExceeded {
		message = "The request did not finish within the processing deadline. Please try again or simplify the request."
	}
	message = o.sanitizer.Sanitize(message)

	o.logger.Error("pipeline request failed",
		"request_id", result.RequestID, "kind", string(kind), "stage", string(stageReached), "error", err)

	result.Status = status
	result.Success = false
	result.ErrorMessage = message
	result.Response = &models.Response{
		ResponseID:   uuid.NewString(),
		Timestamp:    models.Timestamp(),
		ResponseType: models.ResponseTypeError,
		Message:      message,
		Confidence:   models.ConfidenceLow,
		ErrorKind:    string(kind),
	}
	o.record(result, stageReached, start, durations)
	return result
}

// record finalizes the per-request metrics and hands them to the
// collector.
func (o *Orchestrator) record(result *models.PipelineResult, stageReached models.StageName, start time.Time, durations models.StageDurations) {
	stageMS := make(map[string]int64, len(durations))
	for stage, d := range durations {
		stageMS[string(stage)] = d.Milliseconds()
	}
	result.Metrics = models.RequestMetrics{
		RequestID:    result.RequestID,
		TotalMS:      time.Since(start).Milliseconds(),
		StageMS:      stageMS,
		MemoryMB:     metrics.MemorySampleMB(),
		Success:      result.Success,
		StageReached: stageReached,
		CompletedAt:  time.Now().UTC(),
	}
	o.collector.Record(result.Metrics)
}
