package stages

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/catalog"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// scriptedGateway plays back canned generation outcomes in order.
type scriptedTurn struct {
	content string
	err     error
}

type scriptedGateway struct {
	mu       sync.Mutex
	turns    []scriptedTurn
	requests []*llm.Request
}

func newScriptedGateway(turns ...scriptedTurn) *scriptedGateway {
	return &scriptedGateway{turns: turns}
}

func (g *scriptedGateway) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	idx := len(g.requests) - 1
	if idx >= len(g.turns) {
		idx = len(g.turns) - 1
	}
	turn := g.turns[idx]
	if turn.err != nil {
		return nil, turn.err
	}
	return &llm.Result{Content: turn.content, TokensIn: 100, TokensOut: 50}, nil
}

func (g *scriptedGateway) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) CountTokens(text string) int { return len(text) / 4 }
func (g *scriptedGateway) PromptBudget() int           { return 28000 }

func (g *scriptedGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// fixtureProfiles is the shared tool catalog for stage tests.
func fixtureProfiles() []models.ToolProfile {
	return []models.ToolProfile{
		{
			ToolName:    "systemctl",
			Platform:    "linux",
			Category:    "system",
			Description: "Manage systemd services",
			Destructive: true,
			Capabilities: []models.Capability{
				{Name: "service_restart", Description: "Restart a systemd unit"},
				{Name: "service_status", Description: "Query unit status"},
			},
			Patterns: []models.Pattern{
				{Name: "restart", Features: models.PatternFeatures{TimeMS: 500, Accuracy: 0.99, Completeness: 1.0, Complexity: 0.1},
					InputSchema: map[string]string{"unit": "string", "host": "string"}},
			},
			IntentTags: []models.IntentTag{{Category: "action", Action: "restart_service"}},
		},
		{
			ToolName:    "nmap",
			Platform:    "linux",
			Category:    "network",
			Description: "Scan hosts and networks",
			Capabilities: []models.Capability{
				{Name: "port_scan", Description: "Scan open ports"},
			},
			Patterns: []models.Pattern{
				{Name: "quick_scan", Features: models.PatternFeatures{TimeMS: 2000, Accuracy: 0.8, Completeness: 0.6, Complexity: 0.2}},
				{Name: "full_scan", Features: models.PatternFeatures{TimeMS: 60000, Cost: 0.5, Accuracy: 0.95, Completeness: 0.95, Complexity: 0.4}},
			},
			IntentTags: []models.IntentTag{{Category: "information", Action: "scan_network"}},
		},
		{
			ToolName:    "journalctl",
			Platform:    "linux",
			Category:    "system",
			Description: "Collect service logs",
			Capabilities: []models.Capability{
				{Name: "log_collect", Description: "Read unit logs"},
			},
			Patterns: []models.Pattern{
				{Name: "tail", Features: models.PatternFeatures{TimeMS: 800, Accuracy: 0.9, Completeness: 0.7, Complexity: 0.1}},
			},
		},
	}
}

type fixtureLoader struct{ profiles []models.ToolProfile }

func (l *fixtureLoader) LoadAll(ctx context.Context) ([]models.ToolProfile, error) {
	return l.profiles, nil
}

func fixtureCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New(context.Background(), &fixtureLoader{profiles: fixtureProfiles()})
	require.NoError(t, err)
	return cat
}
