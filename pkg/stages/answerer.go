package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/assets"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/masking"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/prompt"
)

// fastPathMaxAssets bounds the inventory summary in the information fast
// path so the prompt stays inside the token budget.
const fastPathMaxAssets = 25

// Answerer is the Stage D processor: it turns the pipeline's findings
// into the user-facing Response, deciding between a direct answer, a
// clarification, an approval request, and a plan summary.
type Answerer struct {
	cfg       *config.PipelineConfig
	gateway   llm.Gateway
	assets    *assets.Provider
	prompts   *prompt.Builder
	sanitizer *masking.Sanitizer
	logger    *slog.Logger
}

// NewAnswerer creates the Stage D processor.
func NewAnswerer(cfg *config.PipelineConfig, gateway llm.Gateway, provider *assets.Provider, sanitizer *masking.Sanitizer) *Answerer {
	return &Answerer{
		cfg:       cfg,
		gateway:   gateway,
		assets:    provider,
		prompts:   prompt.NewBuilder(),
		sanitizer: sanitizer,
		logger:    slog.With("stage", "d"),
	}
}

// Process builds the Response. The response type is decided in order:
// information fast path, clarification, approval request, execution
// ready, plan summary.
func (a *Answerer) Process(ctx context.Context, userRequest string, selection *models.Selection, plan *models.Plan, reqCtx *models.RequestContext) (*models.Response, error) {
	resp := &models.Response{
		ResponseID: uuid.NewString(),
		DecisionID: selection.DecisionID,
		Timestamp:  models.Timestamp(),
		Confidence: confidenceBucket(selection.SelectionConfidence),
		Warnings:   append([]string{}, selection.Warnings...),
	}

	switch {
	case selection.Informational() && selection.IntentCategory == "information":
		if err := a.fastPath(ctx, userRequest, resp); err != nil {
			return nil, err
		}

	case selection.SelectionConfidence < a.cfg.ConfidenceThreshold &&
		reqCtx.ClarificationAttempts() < a.cfg.MaxClarificationAttempts:
		a.clarify(userRequest, selection, reqCtx, resp)

	case plan != nil && len(plan.ExecutionMetadata.ApprovalPoints) > 0:
		if err := a.approvalRequest(ctx, userRequest, selection, plan, resp); err != nil {
			return nil, err
		}

	case !plan.Empty() && selection.Policy.AutoExecute:
		resp.ResponseType = models.ResponseTypeExecutionReady
		resp.Message = fmt.Sprintf("Plan ready: %d step(s) will execute now.", len(plan.Steps))
		resp.ExecutionSummary = summarizePlan(selection, plan)
		resp.Warnings = append(resp.Warnings, plan.Warnings...)

	default:
		if err := a.planSummary(ctx, userRequest, selection, plan, resp); err != nil {
			return nil, err
		}
	}

	resp.Message = a.sanitizer.Sanitize(resp.Message)
	a.logger.Info("Response built",
		"response_type", resp.ResponseType,
		"confidence", resp.Confidence,
		"decision_id", resp.DecisionID)
	return resp, nil
}

// fastPath answers an information-only request with one LLM call,
// grounded in comprehensive asset context when the request is about
// infrastructure. Degraded inventory downgrades to the schema-only block
// with a warning instead of failing the request; a prompt that overruns
// the token budget retries once with the compact block.
func (a *Answerer) fastPath(ctx context.Context, userRequest string, resp *models.Response) error {
	dataBlock := ""
	comprehensive := false
	if assets.ShouldInject(userRequest) {
		full, err := a.assets.ComprehensiveContext(ctx, fastPathMaxAssets)
		if err != nil {
			a.logger.Warn("Asset context unavailable for fast path, using schema only", "error", err)
			resp.Warnings = append(resp.Warnings, "asset inventory was unavailable; the answer may be incomplete")
			dataBlock = a.assets.CompactContext()
		} else {
			dataBlock = full
			comprehensive = true
			resp.SourcesConsulted = append(resp.SourcesConsulted, "asset-inventory")
		}
	}

	result, err := a.generateAnswer(ctx, userRequest, dataBlock)
	if models.IsKind(err, models.ErrKindTokenBudgetExceeded) && comprehensive {
		a.logger.Warn("Fast-path prompt over token budget, retrying with compact asset context")
		resp.Warnings = append(resp.Warnings, "asset context was reduced to fit the token budget; the answer may be incomplete")
		result, err = a.generateAnswer(ctx, userRequest, a.assets.CompactContext())
	}
	if err != nil {
		return err
	}

	resp.ResponseType = models.ResponseTypeInformation
	resp.Message = strings.TrimSpace(result.Content)
	return nil
}

func (a *Answerer) generateAnswer(ctx context.Context, userRequest, dataBlock string) (*llm.Result, error) {
	msgs, err := a.prompts.AnswerMessages(userRequest, "", dataBlock)
	if err != nil {
		return nil, fmt.Errorf("building answer prompt: %w", err)
	}
	return a.gateway.Generate(ctx, &llm.Request{Messages: msgs})
}

// clarify produces rule-based clarification questions and bumps the
// attempt counter.
func (a *Answerer) clarify(userRequest string, selection *models.Selection, reqCtx *models.RequestContext, resp *models.Response) {
	questions := clarificationQuestions(userRequest, selection, reqCtx.Entities())

	reqCtx.IncrementClarificationAttempts()
	resp.ResponseType = models.ResponseTypeClarification
	resp.ClarificationNeeded = questions
	resp.Message = "I need a little more information before proceeding."
	if selection.IntentAction != "" {
		resp.PartialAnalysis = fmt.Sprintf("Interpreted so far as %s/%s (confidence %.2f).",
			selection.IntentCategory, selection.IntentAction, selection.SelectionConfidence)
	}
}

// clarificationQuestions applies the missing-information rules in order.
func clarificationQuestions(userRequest string, selection *models.Selection, entities []models.Entity) []models.ClarificationQuestion {
	var questions []models.ClarificationQuestion

	if selection.IntentCategory == "action" && !hasTargetEntity(entities) {
		questions = append(questions, models.ClarificationQuestion{
			Question: "Which host or device should this run on?",
			Required: true,
			Context:  "No target hostname or IP was found in the request.",
		})
	}
	if vagueAction(selection.IntentAction) || vagueFirstWord(userRequest) {
		questions = append(questions, models.ClarificationQuestion{
			Question: "What specific action should be taken?",
			Options:  []string{"restart a service", "check status", "collect logs", "run a diagnostic"},
			Required: true,
		})
	}
	if len(strings.Fields(userRequest)) < 4 {
		questions = append(questions, models.ClarificationQuestion{
			Question: "Could you describe the request in more detail?",
			Required: true,
		})
	}
	if len(questions) == 0 {
		questions = append(questions, models.ClarificationQuestion{
			Question: "Could you rephrase the request with more specifics?",
			Required: true,
			Context:  "The request could not be interpreted with enough confidence.",
		})
	}
	return questions
}

// approvalRequest surfaces the plan's approval points with their roles
// and a prose summary of what will happen once approved.
func (a *Answerer) approvalRequest(ctx context.Context, userRequest string, selection *models.Selection, plan *models.Plan, resp *models.Response) error {
	message, err := a.describePlan(ctx, userRequest, selection, plan,
		"Summarize what this plan will do and why it needs approval, in 2-4 sentences.")
	if err != nil {
		return err
	}

	resp.ResponseType = models.ResponseTypeApprovalRequest
	resp.Message = message
	resp.ApprovalRequired = true
	resp.ApprovalPoints = append(resp.ApprovalPoints, plan.ExecutionMetadata.ApprovalPoints...)
	resp.ExecutionSummary = summarizePlan(selection, plan)
	resp.Warnings = append(resp.Warnings, plan.Warnings...)
	return nil
}

// planSummary describes a plan that neither auto-executes nor needs
// approval, or explains the absence of one.
func (a *Answerer) planSummary(ctx context.Context, userRequest string, selection *models.Selection, plan *models.Plan, resp *models.Response) error {
	resp.ResponseType = models.ResponseTypePlanSummary

	if plan.Empty() {
		resp.Message = "No executable plan could be produced for this request."
		if plan != nil && len(plan.ExecutionMetadata.RiskFactors) > 0 {
			resp.Message += " " + strings.Join(plan.ExecutionMetadata.RiskFactors, " ")
		}
		return nil
	}

	message, err := a.describePlan(ctx, userRequest, selection, plan,
		"Summarize the plan for the operator in 2-4 sentences.")
	if err != nil {
		return err
	}
	resp.Message = message
	resp.ExecutionSummary = summarizePlan(selection, plan)
	resp.Warnings = append(resp.Warnings, plan.Warnings...)
	return nil
}

// describePlan asks the model for prose grounded in a fact block built
// from the plan, so counts and durations cannot be invented.
func (a *Answerer) describePlan(ctx context.Context, userRequest string, selection *models.Selection, plan *models.Plan, task string) (string, error) {
	msgs, err := a.prompts.AnswerMessages(userRequest, task, planFacts(selection, plan))
	if err != nil {
		return "", fmt.Errorf("building plan summary prompt: %w", err)
	}
	result, err := a.gateway.Generate(ctx, &llm.Request{Messages: msgs})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result.Content), nil
}

// planFacts renders the structural facts of a plan as the prompt data
// block.
func planFacts(selection *models.Selection, plan *models.Plan) string {
	var b strings.Builder
	fmt.Fprintf(&b, "risk_level: %s\n", selection.Policy.RiskLevel)
	fmt.Fprintf(&b, "total_steps: %d\n", len(plan.Steps))
	fmt.Fprintf(&b, "estimated_duration_s: %d\n", plan.ExecutionMetadata.TotalEstimatedTimeS)
	for _, step := range plan.Steps {
		fmt.Fprintf(&b, "step %s: %s (tool %s, timeout %ds)\n", step.ID, step.Name, step.Tool, step.TimeoutS)
	}
	for _, rb := range plan.RollbackPlan {
		fmt.Fprintf(&b, "rollback %s: feasible=%t, %s\n", rb.StepID, rb.Feasible, rb.Description)
	}
	for _, ap := range plan.ExecutionMetadata.ApprovalPoints {
		fmt.Fprintf(&b, "approval %s: role=%s, %s\n", ap.StepID, ap.Role, ap.Reason)
	}
	return strings.TrimRight(b.String(), "\n")
}

func summarizePlan(selection *models.Selection, plan *models.Plan) *models.ExecutionSummary {
	toolSet := make(map[string]struct{})
	var tools []string
	for _, step := range plan.Steps {
		if _, dup := toolSet[step.Tool]; dup {
			continue
		}
		toolSet[step.Tool] = struct{}{}
		tools = append(tools, step.Tool)
	}
	return &models.ExecutionSummary{
		TotalSteps:     len(plan.Steps),
		ToolsUsed:      tools,
		EstimatedTimeS: plan.ExecutionMetadata.TotalEstimatedTimeS,
		RiskLevel:      selection.Policy.RiskLevel,
	}
}

func hasTargetEntity(entities []models.Entity) bool {
	for _, e := range entities {
		if e.Type == models.EntityTypeHostname || e.Type == models.EntityTypeIPAddress {
			return true
		}
	}
	return false
}

var vagueActionWords = map[string]struct{}{
	"check": {}, "fix": {}, "handle": {}, "look": {}, "do": {},
	"help": {}, "something": {}, "stuff": {}, "things": {},
}

func vagueAction(text string) bool {
	for _, f := range strings.Fields(strings.ToLower(strings.ReplaceAll(text, "_", " "))) {
		if _, ok := vagueActionWords[f]; ok {
			return true
		}
	}
	return false
}

// vagueFirstWord looks only at the leading verb of the raw request;
// vague words later in a sentence are usually qualifiers, not the action.
func vagueFirstWord(request string) bool {
	fields := strings.Fields(strings.ToLower(request))
	if len(fields) == 0 {
		return false
	}
	_, ok := vagueActionWords[strings.Trim(fields[0], ".,!?")]
	return ok
}

func confidenceBucket(confidence float64) models.Confidence {
	switch {
	case confidence >= 0.8:
		return models.ConfidenceHigh
	case confidence >= 0.5:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}
