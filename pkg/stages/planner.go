package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/catalog"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/prompt"
)

// planReply is the JSON object Stage C asks the model for.
type planReply struct {
	Steps []planReplyStep `json:"steps"`
	SafetyChecks []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"safety_checks"`
	EstimatedDurationS int `json:"estimated_duration_s"`
}

type planReplyStep struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Tool        string         `json:"tool"`
	Inputs      map[string]any `json:"inputs"`
	TimeoutS    int            `json:"timeout_s"`
	RetryCount  int            `json:"retry_count"`
	DependsOn   []string       `json:"depends_on"`
}

// Planner is the Stage C processor: it materializes a validated
// Selection into ordered, dependency-checked execution steps.
type Planner struct {
	cfg     *config.PipelineConfig
	gateway llm.Gateway
	catalog *catalog.Catalog
	prompts *prompt.Builder
	logger  *slog.Logger
}

// NewPlanner creates the Stage C processor.
func NewPlanner(cfg *config.PipelineConfig, gateway llm.Gateway, cat *catalog.Catalog) *Planner {
	return &Planner{
		cfg:     cfg,
		gateway: gateway,
		catalog: cat,
		prompts: prompt.NewBuilder(),
		logger:  slog.With("stage", "c"),
	}
}

// Process turns the selection into a plan. Validation failures that the
// user can fix (unresolvable dependencies, missing inputs) come back as a
// structured error plan with risk factors populated, which Stage D turns
// into a clarification. Unknown tools in the model's plan are a hard error.
func (p *Planner) Process(ctx context.Context, userRequest string, selection *models.Selection, targetContext string) (*models.Plan, error) {
	msgs, err := p.prompts.PlanMessages(prompt.PlanInput{
		UserRequest:   userRequest,
		Intent:        selection.IntentCategory + "/" + selection.IntentAction,
		SelectedTools: selection.SelectedTools,
		ToolDetails:   p.toolDetails(selection.SelectedTools),
		TargetContext: targetContext,
	})
	if err != nil {
		return nil, fmt.Errorf("building plan prompt: %w", err)
	}

	result, err := p.gateway.Generate(ctx, &llm.Request{Messages: msgs, JSONMode: true})
	if err != nil {
		return nil, err
	}

	var reply planReply
	if err := decodeJSON(result.Content, &reply); err != nil {
		return nil, models.WrapPipelineError(models.ErrKindLLMMalformed,
			"The planner returned an unparseable response.", err)
	}

	plan := &models.Plan{
		DecisionID: selection.DecisionID,
		Timestamp:  models.Timestamp(),
	}
	for _, check := range reply.SafetyChecks {
		desc := check.Description
		if desc == "" {
			desc = check.Name
		}
		plan.SafetyChecks = append(plan.SafetyChecks, models.SafetyCheck{Description: desc})
	}

	if err := p.materializeSteps(plan, reply.Steps); err != nil {
		if models.IsKind(err, models.ErrKindCatalogMiss) {
			return nil, err
		}
		// User-fixable validation failure: structured error plan.
		p.logger.Warn("Plan validation failed, returning structured error plan", "error", err)
		return &models.Plan{
			DecisionID: selection.DecisionID,
			Timestamp:  models.Timestamp(),
			ExecutionMetadata: models.ExecutionMetadata{
				RiskFactors: []string{models.UserMessage(err)},
			},
		}, nil
	}

	p.finalizeMetadata(plan, selection, reply.EstimatedDurationS)

	p.logger.Info("Plan materialized",
		"decision_id", plan.DecisionID,
		"steps", len(plan.Steps),
		"approval_points", len(plan.ExecutionMetadata.ApprovalPoints))
	return plan, nil
}

// materializeSteps converts reply steps into plan steps with stable IDs
// and validates tool membership and dependency ordering.
func (p *Planner) materializeSteps(plan *models.Plan, steps []planReplyStep) error {
	if len(steps) == 0 {
		return models.NewPipelineError(models.ErrKindPlanInvalid,
			"The planner produced no executable steps.")
	}
	if len(steps) > p.cfg.MaxPlanSteps {
		steps = steps[:p.cfg.MaxPlanSteps]
		plan.Warnings = append(plan.Warnings,
			fmt.Sprintf("plan truncated to the %d-step maximum", p.cfg.MaxPlanSteps))
	}

	idByName := make(map[string]string, len(steps))
	for i, step := range steps {
		if _, ok := p.catalog.ByName(step.Tool); !ok {
			return models.NewPipelineError(models.ErrKindCatalogMiss,
				fmt.Sprintf("Planned step references unknown tool %q.", step.Tool))
		}

		id := fmt.Sprintf("step-%d", i+1)
		var deps []string
		for _, depName := range step.DependsOn {
			depID, ok := idByName[depName]
			if !ok {
				return models.NewPipelineError(models.ErrKindPlanInvalid,
					fmt.Sprintf("Step %q depends on %q, which is not an earlier step.", step.Name, depName))
			}
			deps = append(deps, depID)
		}

		timeout := step.TimeoutS
		if timeout <= 0 {
			timeout = 60
		}
		plan.Steps = append(plan.Steps, models.PlanStep{
			ID:          id,
			Name:        step.Name,
			Description: step.Description,
			Tool:        step.Tool,
			Inputs:      step.Inputs,
			TimeoutS:    timeout,
			RetryCount:  step.RetryCount,
			DependsOn:   deps,
		})
		idByName[step.Name] = id
	}
	return nil
}

// finalizeMetadata attaches duration accounting, rollback entries for
// destructive steps, and approval points derived from the selection
// policy.
func (p *Planner) finalizeMetadata(plan *models.Plan, selection *models.Selection, estimatedS int) {
	total := estimatedS
	if total <= 0 {
		for _, step := range plan.Steps {
			total += step.TimeoutS
		}
	}
	plan.ExecutionMetadata.TotalEstimatedTimeS = total

	if time.Duration(total)*time.Second > p.cfg.PlanDurationCeiling {
		plan.Warnings = append(plan.Warnings, fmt.Sprintf(
			"estimated duration %ds exceeds the %s ceiling; consider running steps sequentially in smaller batches",
			total, p.cfg.PlanDurationCeiling))
	}

	for _, step := range plan.Steps {
		profile, ok := p.catalog.ByName(step.Tool)
		if !ok || !stepDestructive(profile, step) {
			continue
		}
		plan.RollbackPlan = append(plan.RollbackPlan, rollbackFor(step))
	}

	if selection.Policy.RequiresApproval && len(plan.Steps) > 0 {
		plan.ExecutionMetadata.ApprovalPoints = append(plan.ExecutionMetadata.ApprovalPoints,
			models.ApprovalPoint{
				StepID: plan.Steps[0].ID,
				Role:   approvalRole(selection),
				Reason: fmt.Sprintf("risk level %s requires approval before execution", selection.Policy.RiskLevel),
			})
	}
}

func stepDestructive(profile *models.ToolProfile, step models.PlanStep) bool {
	if profile.Destructive {
		return true
	}
	return destructiveCapability(step.Name) || destructiveCapability(step.Description)
}

// rollbackFor derives a rollback entry for a destructive step. Restarts
// and stops have a natural inverse; deletions get an explicit
// no-rollback note.
func rollbackFor(step models.PlanStep) models.RollbackEntry {
	lower := strings.ToLower(step.Name + " " + step.Description)
	switch {
	case strings.Contains(lower, "restart"):
		return models.RollbackEntry{StepID: step.ID, Feasible: true,
			Description: "service returns to its previous running state; restart again if degraded"}
	case strings.Contains(lower, "stop"):
		return models.RollbackEntry{StepID: step.ID, Feasible: true,
			Description: "start the service to restore it"}
	case strings.Contains(lower, "deploy"):
		return models.RollbackEntry{StepID: step.ID, Feasible: true,
			Description: "redeploy the previous version"}
	default:
		return models.RollbackEntry{StepID: step.ID, Feasible: false,
			Description: "no rollback feasible"}
	}
}

// approvalRole maps the selection's risk level and operation type to the
// approving role.
func approvalRole(selection *models.Selection) string {
	action := strings.ToLower(selection.IntentAction)
	switch {
	case securitySensitive(action):
		return "security_officer"
	case strings.Contains(action, "database") || strings.Contains(action, "db_"):
		return "dba"
	case strings.Contains(action, "network") || strings.Contains(action, "dns") || strings.Contains(action, "routing"):
		return "network_admin"
	}

	switch selection.Policy.RiskLevel {
	case models.RiskLevelCritical:
		return "security_officer"
	case models.RiskLevelHigh, models.RiskLevelMedium:
		return "operations_manager"
	default:
		return "team_lead"
	}
}

func (p *Planner) toolDetails(tools []models.SelectedTool) map[string]string {
	details := make(map[string]string, len(tools))
	for _, t := range tools {
		profile, ok := p.catalog.ByName(t.ToolName)
		if !ok {
			continue
		}
		pattern, ok := profile.PatternByName(t.PatternName)
		if !ok || len(pattern.InputSchema) == 0 {
			continue
		}
		pairs := make([]string, 0, len(pattern.InputSchema))
		for name, hint := range pattern.InputSchema {
			pairs = append(pairs, fmt.Sprintf("%s (%s)", name, hint))
		}
		sort.Strings(pairs)
		details[t.ToolName] = "inputs: " + strings.Join(pairs, ", ")
	}
	return details
}
