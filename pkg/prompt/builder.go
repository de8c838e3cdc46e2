package prompt

import (
	"fmt"
	"strings"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// Builder builds all prompt text for the pipeline stages. Stateless — all
// state comes from parameters. Thread-safe.
type Builder struct{}

// NewBuilder creates a prompt builder.
func NewBuilder() *Builder { return &Builder{} }

// SelectionInput carries the dynamic data for a Stage AB prompt.
type SelectionInput struct {
	UserRequest string
	// ToolListing is one line per candidate tool: "name: capability summary".
	ToolListing string
	// AssetContext is the inventory block, or empty when not injected.
	AssetContext string
	// ConversationHistory is the formatted prior turns, or empty.
	ConversationHistory string
}

// SelectionMessages builds the Stage AB conversation.
func (b *Builder) SelectionMessages(in SelectionInput) ([]llm.Message, error) {
	system, err := selectionSystemTemplate.Render(map[string]string{
		"asset_context": contextBlock(in.AssetContext),
		"tool_listing":  in.ToolListing,
	})
	if err != nil {
		return nil, err
	}
	user, err := selectionUserTemplate.Render(map[string]string{
		"conversation_history": historyBlock(in.ConversationHistory),
		"user_request":         in.UserRequest,
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: system},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// SelectionRetryMessage is the stricter schema reiteration appended after
// a malformed JSON reply. Slotless, so rendering cannot fail.
func (b *Builder) SelectionRetryMessage() llm.Message {
	text, err := selectionRetryTemplate.Render(nil)
	if err != nil {
		panic(fmt.Sprintf("prompt: rendering slotless template: %v", err))
	}
	return llm.Message{Role: llm.RoleUser, Content: text}
}

// TieBreakMessages builds the single-shot tie-break prompt between two
// near-equal tool options.
func (b *Builder) TieBreakMessages(userRequest, optionA, optionB, assetContext string) ([]llm.Message, error) {
	user, err := tieBreakTemplate.Render(map[string]string{
		"user_request":  userRequest,
		"option_a":      optionA,
		"option_b":      optionB,
		"asset_context": contextBlock(assetContext),
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{{Role: llm.RoleUser, Content: user}}, nil
}

// PlanInput carries the dynamic data for a Stage C prompt.
type PlanInput struct {
	UserRequest   string
	Intent        string
	SelectedTools []models.SelectedTool
	// ToolDetails maps tool name to its pattern/input-schema description.
	ToolDetails map[string]string
	// TargetContext is the resolved target summary, or empty.
	TargetContext string
}

// PlanMessages builds the Stage C conversation.
func (b *Builder) PlanMessages(in PlanInput) ([]llm.Message, error) {
	user, err := plannerUserTemplate.Render(map[string]string{
		"user_request":   in.UserRequest,
		"intent":         in.Intent,
		"selected_tools": formatSelectedTools(in.SelectedTools, in.ToolDetails),
		"target_context": targetBlock(in.TargetContext),
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: plannerSystemTemplate.text},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// AnswerMessages builds the Stage D conversation. dataBlock is the only
// place inventory or execution data may enter the prompt.
func (b *Builder) AnswerMessages(userRequest, findings, dataBlock string) ([]llm.Message, error) {
	if findings == "" {
		findings = "(none)"
	}
	if dataBlock == "" {
		dataBlock = "(no data collected)"
	}
	user, err := answererUserTemplate.Render(map[string]string{
		"user_request": userRequest,
		"findings":     findings,
		"data_block":   dataBlock,
	})
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: answererSystemTemplate.text},
		{Role: llm.RoleUser, Content: user},
	}, nil
}

// contextBlock wraps asset context so it reads as a delimited section.
// Empty context renders as nothing.
func contextBlock(assetContext string) string {
	if assetContext == "" {
		return ""
	}
	return "INFRASTRUCTURE CONTEXT:\n" + strings.TrimRight(assetContext, "\n") + "\n\n"
}

func historyBlock(history string) string {
	if history == "" {
		return ""
	}
	return "CONVERSATION SO FAR:\n" + strings.TrimRight(history, "\n") + "\n\n"
}

func targetBlock(target string) string {
	if target == "" {
		return ""
	}
	return "TARGET:\n" + target
}

func formatSelectedTools(tools []models.SelectedTool, details map[string]string) string {
	if len(tools) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&b, "- %s (capability: %s, pattern: %s)", t.ToolName, t.CapabilityName, t.PatternName)
		if detail := details[t.ToolName]; detail != "" {
			fmt.Fprintf(&b, "\n  %s", detail)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
