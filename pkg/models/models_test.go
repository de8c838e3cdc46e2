package models

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineErrorKindExtraction(t *testing.T) {
	base := NewPipelineError(ErrKindAssetNotFound, "target web-99 is not in the inventory")
	assert.Equal(t, ErrKindAssetNotFound, KindOf(base))
	assert.True(t, IsKind(base, ErrKindAssetNotFound))
	assert.False(t, IsKind(base, ErrKindCatalogMiss))

	// Kinds survive fmt.Errorf wrapping.
	wrapped := fmt.Errorf("validating targets: %w", base)
	assert.Equal(t, ErrKindAssetNotFound, KindOf(wrapped))
}

func TestPipelineErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := WrapPipelineError(ErrKindLLMUnavailable, "could not reach the language model service", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "LLM_UNAVAILABLE")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUserMessageNeverLeaksUnclassifiedDetail(t *testing.T) {
	classified := NewPipelineError(ErrKindPlanInvalid, "the plan references an unknown step")
	assert.Equal(t, "the plan references an unknown step", UserMessage(classified))

	internal := errors.New("pq: password authentication failed for user admin")
	msg := UserMessage(internal)
	assert.NotContains(t, msg, "password")
	assert.NotContains(t, msg, "admin")
}

func TestKindOfPlainErrorIsEmpty(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, ErrorKind(""), KindOf(nil))
}

func TestRiskLevelClamping(t *testing.T) {
	assert.Equal(t, RiskLevelHigh, RiskLevelLow.AtLeast(RiskLevelHigh))
	assert.Equal(t, RiskLevelCritical, RiskLevelCritical.AtLeast(RiskLevelMedium))
	assert.True(t, RiskLevelHigh.GTE(RiskLevelMedium))
	assert.False(t, RiskLevelLow.GTE(RiskLevelHigh))

	assert.True(t, RiskLevelMedium.Valid())
	assert.False(t, RiskLevel("catastrophic").Valid())
}

func TestSelectionInformational(t *testing.T) {
	s := &Selection{NextStage: NextStageD}
	assert.True(t, s.Informational())

	s.SelectedTools = []SelectedTool{{ToolName: "systemctl"}}
	assert.False(t, s.Informational())
}

func TestPlanEmpty(t *testing.T) {
	var nilPlan *Plan
	assert.True(t, nilPlan.Empty())
	assert.True(t, (&Plan{}).Empty())
	assert.False(t, (&Plan{Steps: []PlanStep{{ID: "step-1"}}}).Empty())
}

func TestPlanStepByID(t *testing.T) {
	plan := &Plan{Steps: []PlanStep{{ID: "step-1", Name: "check"}, {ID: "step-2", Name: "restart"}}}

	step, ok := plan.StepByID("step-2")
	require.True(t, ok)
	assert.Equal(t, "restart", step.Name)

	_, ok = plan.StepByID("step-9")
	assert.False(t, ok)
}

func TestToolProfileBestPattern(t *testing.T) {
	profile := &ToolProfile{Patterns: []Pattern{
		{Name: "quick", Features: PatternFeatures{Accuracy: 0.7}},
		{Name: "thorough", Features: PatternFeatures{Accuracy: 0.95}},
	}}
	best := profile.BestPattern()
	require.NotNil(t, best)
	assert.Equal(t, "thorough", best.Name)

	assert.Nil(t, (&ToolProfile{}).BestPattern())
}

func TestToolProfileLookups(t *testing.T) {
	profile := &ToolProfile{
		Capabilities: []Capability{{Name: "service_restart"}},
		Patterns:     []Pattern{{Name: "restart"}},
	}
	assert.True(t, profile.HasCapability("service_restart"))
	assert.False(t, profile.HasCapability("port_scan"))

	_, ok := profile.PatternByName("restart")
	assert.True(t, ok)
	_, ok = profile.PatternByName("missing")
	assert.False(t, ok)
}

func TestRequestContextEntitiesAreCopied(t *testing.T) {
	ctx := NewRequestContext()
	ctx.SetEntities([]Entity{{Type: EntityTypeHostname, Value: "web-01"}})

	entities := ctx.Entities()
	entities[0].Value = "mutated"
	assert.Equal(t, "web-01", ctx.Entities()[0].Value)
}

func TestRequestContextClarificationCounter(t *testing.T) {
	ctx := NewRequestContext()
	assert.Equal(t, 0, ctx.ClarificationAttempts())
	assert.Equal(t, 1, ctx.IncrementClarificationAttempts())
	ctx.SetClarificationAttempts(3)
	assert.Equal(t, 3, ctx.ClarificationAttempts())
}

func TestRequestContextConcurrentAccess(t *testing.T) {
	ctx := NewRequestContext()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				ctx.Set(fmt.Sprintf("k-%d", n), j)
				_, _ = ctx.Get("k-0")
				ctx.IncrementClarificationAttempts()
				_ = ctx.Entities()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 400, ctx.ClarificationAttempts())
}

func TestExecutionResultStepLookup(t *testing.T) {
	result := &ExecutionResult{StepResults: []StepResult{
		{StepID: "step-1", Status: ExecutionStatusCompleted},
	}}
	sr, ok := result.StepResultByID("step-1")
	require.True(t, ok)
	assert.Equal(t, ExecutionStatusCompleted, sr.Status)

	_, ok = result.StepResultByID("step-2")
	assert.False(t, ok)
}
