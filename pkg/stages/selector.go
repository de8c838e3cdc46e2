// Package stages implements the four pipeline stage processors: the
// combined understanding+selection stage, the planner, the answerer, and
// the executor. Each stage is a stateless struct over injected
// collaborators; all state flows through the stage inputs and outputs.
package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/assets"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/catalog"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/prompt"
)

// selectionReply is the JSON object Stage AB asks the model for.
type selectionReply struct {
	IntentCategory       string  `json:"intent_category"`
	IntentAction         string  `json:"intent_action"`
	Entities             []replyEntity `json:"entities"`
	RequiredCapabilities []string      `json:"required_capabilities"`
	CandidateTools       []replyCandidate `json:"candidate_tools"`
	RiskLevel            string  `json:"risk_level"`
	RequiresApproval     bool    `json:"requires_approval"`
	SelectionConfidence  float64 `json:"selection_confidence"`
}

type replyEntity struct {
	Type  string `json:"type"`
	Value string `json:"value"`
	AdHoc bool   `json:"ad_hoc"`
}

type replyCandidate struct {
	ToolName string `json:"tool_name"`
	Why      string `json:"why"`
}

type tieBreakReply struct {
	Choice string `json:"choice"`
	Reason string `json:"reason"`
}

// Selector is the combined understanding + selection stage: one LLM turn
// for intent extraction and candidate naming, then deterministic scoring
// and policy derivation in code.
type Selector struct {
	cfg     *config.PipelineConfig
	gateway llm.Gateway
	catalog *catalog.Catalog
	assets  *assets.Provider
	prompts *prompt.Builder
	logger  *slog.Logger
}

// NewSelector creates the Stage AB processor.
func NewSelector(cfg *config.PipelineConfig, gateway llm.Gateway, cat *catalog.Catalog, provider *assets.Provider) *Selector {
	return &Selector{
		cfg:     cfg,
		gateway: gateway,
		catalog: cat,
		assets:  provider,
		prompts: prompt.NewBuilder(),
		logger:  slog.With("stage", "ab"),
	}
}

// Process runs the stage for one request. A malformed model reply after
// the structured retry degrades to an empty selection with a warning
// rather than an error, so the answerer can ask for clarification.
func (s *Selector) Process(ctx context.Context, userRequest string, reqCtx *models.RequestContext) (*models.Selection, error) {
	// 1. Shortlist candidate tools by keyword overlap for the prompt.
	shortlisted := shortlist(s.catalog.All(), userRequest, s.cfg.CandidateShortlist)

	// 2. Conditionally inject asset context.
	assetContext := ""
	if assets.ShouldInject(userRequest) {
		assetContext = s.assets.CompactContext()
	}

	msgs, err := s.prompts.SelectionMessages(prompt.SelectionInput{
		UserRequest:         userRequest,
		ToolListing:         formatToolListing(shortlisted),
		AssetContext:        assetContext,
		ConversationHistory: reqCtx.ConversationHistory,
	})
	if err != nil {
		return nil, fmt.Errorf("building selection prompt: %w", err)
	}

	// 3. One LLM call, with a single structured retry on malformed JSON.
	var warnings []string
	reply, err := s.callModel(ctx, msgs)
	if err != nil {
		if models.IsKind(err, models.ErrKindLLMMalformed) {
			s.logger.Warn("Selection reply unparseable after retry, degrading to empty selection",
				"error", err)
			return s.emptySelection("The request could not be interpreted reliably."), nil
		}
		return nil, err
	}

	// 4. Record extracted entities for asset validation downstream.
	reqCtx.SetEntities(convertEntities(reply.Entities))

	// 5. Resolve and score candidates.
	candidates, candidateWarnings := s.collectCandidates(reply)
	warnings = append(warnings, candidateWarnings...)

	selection := &models.Selection{
		DecisionID:          uuid.NewString(),
		Timestamp:           models.Timestamp(),
		IntentCategory:      reply.IntentCategory,
		IntentAction:        reply.IntentAction,
		SelectionConfidence: clamp01(reply.SelectionConfidence),
		Warnings:            warnings,
	}

	if len(candidates) == 0 {
		selection.NextStage = models.NextStageD
		selection.Policy = models.Policy{RiskLevel: models.RiskLevelLow, AutoExecute: false}
		return selection, nil
	}

	ranked := rankCandidates(candidates, reply.RequiredCapabilities)

	// 6. Tie-break between the top two when they score within epsilon.
	ranked = s.tieBreak(ctx, userRequest, assetContext, ranked, selection)

	// 7. Materialize the selection, capped at the configured maximum.
	limit := s.cfg.MaxSelectedTools
	if len(ranked) < limit {
		limit = len(ranked)
	}
	for i := 0; i < limit; i++ {
		c := ranked[i]
		selection.SelectedTools = append(selection.SelectedTools, models.SelectedTool{
			ToolName:       c.profile.ToolName,
			CapabilityName: c.capability,
			PatternName:    c.pattern.Name,
			Justification:  c.justification,
			ExecutionOrder: i + 1,
			InputsNeeded:   inputsNeeded(c.pattern),
		})
	}

	// 8. Policy derivation: model risk clamped by deterministic rules.
	selection.Policy = s.derivePolicy(reply, selection.SelectedTools, userRequest, reqCtx)
	selection.NextStage = models.NextStageC

	s.logger.Info("Selection complete",
		"intent", reply.IntentCategory+"/"+reply.IntentAction,
		"tools", len(selection.SelectedTools),
		"risk", selection.Policy.RiskLevel,
		"confidence", selection.SelectionConfidence)
	return selection, nil
}

// callModel performs the selection call with one stricter retry on
// malformed JSON. The second failure surfaces as LLM_MALFORMED.
func (s *Selector) callModel(ctx context.Context, msgs []llm.Message) (*selectionReply, error) {
	result, err := s.gateway.Generate(ctx, &llm.Request{Messages: msgs, JSONMode: true})
	if err != nil {
		return nil, err
	}

	var reply selectionReply
	if err := decodeJSON(result.Content, &reply); err == nil {
		return &reply, nil
	}

	s.logger.Warn("Malformed selection JSON, sending structured retry")
	retryMsgs := append(append([]llm.Message{}, msgs...),
		llm.Message{Role: llm.RoleAssistant, Content: result.Content},
		s.prompts.SelectionRetryMessage())

	result, err = s.gateway.Generate(ctx, &llm.Request{Messages: retryMsgs, JSONMode: true})
	if err != nil {
		return nil, err
	}
	if err := decodeJSON(result.Content, &reply); err != nil {
		return nil, models.WrapPipelineError(models.ErrKindLLMMalformed,
			"The language model returned an unparseable response.", err)
	}
	return &reply, nil
}

// collectCandidates resolves the model's named tools against the catalog
// and widens the set with intent- and capability-indexed profiles.
// Unknown names are dropped with a warning; duplicates keep the first
// occurrence.
func (s *Selector) collectCandidates(reply *selectionReply) ([]candidate, []string) {
	var warnings []string
	seen := make(map[string]struct{})
	var out []candidate

	add := func(p *models.ToolProfile, justification string) {
		if _, dup := seen[p.ToolName]; dup {
			return
		}
		pattern := p.BestPattern()
		if pattern == nil {
			return
		}
		seen[p.ToolName] = struct{}{}
		out = append(out, candidate{
			profile:       p,
			capability:    matchedCapability(reply.RequiredCapabilities, p),
			pattern:       pattern,
			justification: justification,
		})
	}

	for _, cand := range reply.CandidateTools {
		p, ok := s.catalog.ByName(cand.ToolName)
		if !ok {
			warnings = append(warnings, fmt.Sprintf("tool %q is not in the catalog and was dropped", cand.ToolName))
			continue
		}
		add(p, cand.Why)
	}
	for _, p := range s.catalog.ByIntent(reply.IntentCategory, reply.IntentAction) {
		add(p, fmt.Sprintf("matches intent %s/%s", reply.IntentCategory, reply.IntentAction))
	}
	for _, capName := range reply.RequiredCapabilities {
		for _, p := range s.catalog.ByCapability(capName) {
			add(p, fmt.Sprintf("provides required capability %s", capName))
		}
	}
	return out, warnings
}

// tieBreak asks the model to choose between the top two candidates when
// their scores are within epsilon. At most one tie-break call per
// request; any failure keeps the deterministic order.
func (s *Selector) tieBreak(ctx context.Context, userRequest, assetContext string, ranked []candidate, selection *models.Selection) []candidate {
	if len(ranked) < 2 || ranked[0].score-ranked[1].score > s.cfg.TieBreakEpsilon {
		return ranked
	}

	msgs, err := s.prompts.TieBreakMessages(userRequest,
		describeCandidate(&ranked[0]), describeCandidate(&ranked[1]), assetContext)
	if err != nil {
		return ranked
	}
	result, err := s.gateway.Generate(ctx, &llm.Request{Messages: msgs, JSONMode: true})
	if err != nil {
		s.logger.Warn("Tie-break call failed, keeping deterministic order", "error", err)
		return ranked
	}

	var reply tieBreakReply
	if err := decodeJSON(result.Content, &reply); err != nil {
		s.logger.Warn("Tie-break reply unparseable, keeping deterministic order", "error", err)
		return ranked
	}
	if strings.EqualFold(reply.Choice, "B") {
		ranked[0], ranked[1] = ranked[1], ranked[0]
		selection.Warnings = append(selection.Warnings,
			fmt.Sprintf("tie-break preferred %s: %s", ranked[0].profile.ToolName, reply.Reason))
	}
	return ranked
}

// derivePolicy clamps the model's risk assessment with deterministic
// rules. The model can only raise risk relative to the rules, never
// lower it.
func (s *Selector) derivePolicy(reply *selectionReply, tools []models.SelectedTool, userRequest string, reqCtx *models.RequestContext) models.Policy {
	risk := models.RiskLevel(strings.ToLower(reply.RiskLevel))
	if !risk.Valid() {
		risk = models.RiskLevelMedium
	}

	if touchesProduction(userRequest, reqCtx.Entities()) {
		risk = risk.AtLeast(models.RiskLevelMedium)
	}

	destructive := false
	for _, t := range tools {
		p, ok := s.catalog.ByName(t.ToolName)
		if ok && p.Destructive {
			destructive = true
		}
		if destructiveCapability(t.CapabilityName) {
			destructive = true
		}
	}
	if destructive {
		risk = risk.AtLeast(models.RiskLevelHigh)
	}
	if securitySensitive(reply.IntentAction) || securitySensitive(userRequest) {
		risk = risk.AtLeast(models.RiskLevelHigh)
	}

	requiresApproval := risk.GTE(models.RiskLevelHigh) || destructive || reply.RequiresApproval
	return models.Policy{
		RiskLevel:        risk,
		RequiresApproval: requiresApproval,
		AutoExecute:      !requiresApproval,
	}
}

func (s *Selector) emptySelection(warning string) *models.Selection {
	return &models.Selection{
		DecisionID: uuid.NewString(),
		Timestamp:  models.Timestamp(),
		NextStage:  models.NextStageD,
		Policy:     models.Policy{RiskLevel: models.RiskLevelLow},
		Warnings:   []string{warning},
	}
}

func formatToolListing(profiles []*models.ToolProfile) string {
	if len(profiles) == 0 {
		return "(no tools available)"
	}
	var b strings.Builder
	for _, p := range profiles {
		caps := make([]string, 0, len(p.Capabilities))
		for _, c := range p.Capabilities {
			caps = append(caps, c.Name)
		}
		fmt.Fprintf(&b, "- %s: %s (capabilities: %s)\n", p.ToolName, p.Description, strings.Join(caps, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func convertEntities(in []replyEntity) []models.Entity {
	out := make([]models.Entity, 0, len(in))
	for _, e := range in {
		out = append(out, models.Entity{
			Type:  models.EntityType(e.Type),
			Value: e.Value,
			AdHoc: e.AdHoc,
		})
	}
	return out
}

func inputsNeeded(p *models.Pattern) []string {
	if len(p.InputSchema) == 0 {
		return nil
	}
	names := make([]string, 0, len(p.InputSchema))
	for name := range p.InputSchema {
		names = append(names, name)
	}
	return names
}

var destructiveCapabilityWords = []string{"restart", "delete", "deploy", "remove", "stop", "kill", "wipe", "reboot"}

func destructiveCapability(name string) bool {
	lower := strings.ToLower(name)
	for _, word := range destructiveCapabilityWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

var securityWords = []string{"credential", "password", "certificate", "firewall", "security", "secret", "iam "}

func securitySensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, word := range securityWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

func touchesProduction(userRequest string, entities []models.Entity) bool {
	if strings.Contains(strings.ToLower(userRequest), "prod") {
		return true
	}
	for _, e := range entities {
		if e.Type == models.EntityTypeEnvironment && strings.Contains(strings.ToLower(e.Value), "prod") {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
