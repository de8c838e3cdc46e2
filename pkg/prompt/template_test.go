package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

func TestTemplateRender(t *testing.T) {
	tmpl := MustParse("greeting", "Hello {{name}}, welcome to {{place}}.")

	out, err := tmpl.Render(map[string]string{"name": "ops", "place": "the console"})
	require.NoError(t, err)
	assert.Equal(t, "Hello ops, welcome to the console.", out)
}

func TestTemplateRejectsMissingSlot(t *testing.T) {
	tmpl := MustParse("greeting", "Hello {{name}}.")

	_, err := tmpl.Render(map[string]string{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"name"`)
}

func TestTemplateRejectsUnknownSlot(t *testing.T) {
	tmpl := MustParse("greeting", "Hello {{name}}.")

	_, err := tmpl.Render(map[string]string{"name": "ops", "extra": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"extra"`)
}

func TestTemplateRepeatedSlot(t *testing.T) {
	tmpl := MustParse("echo", "{{word}} and {{word}} again")

	out, err := tmpl.Render(map[string]string{"word": "twice"})
	require.NoError(t, err)
	assert.Equal(t, "twice and twice again", out)
}

func TestSelectionMessages(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.SelectionMessages(SelectionInput{
		UserRequest:         "restart nginx on web-prod-01",
		ToolListing:         "systemctl: restart and inspect system services",
		AssetContext:        "web-prod-01 (10.0.0.10), linux, environment production",
		ConversationHistory: "user: is nginx up?\nassistant: nginx is running.",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "INFRASTRUCTURE CONTEXT:")
	assert.Contains(t, msgs[0].Content, "systemctl: restart")
	assert.Contains(t, msgs[0].Content, "selection_confidence")

	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "CONVERSATION SO FAR:")
	assert.Contains(t, msgs[1].Content, "restart nginx on web-prod-01")
}

func TestSelectionMessagesWithoutContext(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.SelectionMessages(SelectionInput{
		UserRequest: "what can you do?",
		ToolListing: "nmap: scan networks",
	})
	require.NoError(t, err)
	assert.NotContains(t, msgs[0].Content, "INFRASTRUCTURE CONTEXT:")
	assert.NotContains(t, msgs[1].Content, "CONVERSATION SO FAR:")
}

func TestPlanMessages(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.PlanMessages(PlanInput{
		UserRequest: "restart nginx on web-prod-01",
		Intent:      "action/restart_service",
		SelectedTools: []models.SelectedTool{
			{ToolName: "systemctl", CapabilityName: "service_restart", PatternName: "restart"},
		},
		ToolDetails:   map[string]string{"systemctl": "inputs: unit (string), host (string)"},
		TargetContext: "web-prod-01 (10.0.0.10), environment production",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "systemctl (capability: service_restart, pattern: restart)")
	assert.Contains(t, msgs[1].Content, "inputs: unit (string)")
	assert.Contains(t, msgs[1].Content, "TARGET:")
}

func TestAnswerMessagesDefaults(t *testing.T) {
	b := NewBuilder()

	msgs, err := b.AnswerMessages("how many linux servers?", "", "")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "(none)")
	assert.Contains(t, msgs[1].Content, "(no data collected)")
}

func TestSelectionRetryMessage(t *testing.T) {
	msg := NewBuilder().SelectionRetryMessage()
	assert.Equal(t, llm.RoleUser, msg.Role)
	assert.Contains(t, msg.Content, "ONLY the JSON object")
}

func TestTieBreakMessages(t *testing.T) {
	msgs, err := NewBuilder().TieBreakMessages("scan the web tier", "nmap: full scan", "masscan: fast sweep", "")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0].Content, "OPTION A: nmap: full scan")
	assert.Contains(t, msgs[0].Content, `"choice": "A|B"`)
}
