package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/assets"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/catalog"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/conversation"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/llm"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/masking"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/metrics"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/pipeline"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/runner"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/stages"
)

func init() { gin.SetMode(gin.TestMode) }

// scriptedGateway plays back canned generation outcomes in order,
// repeating the last turn once the script is exhausted.
type scriptedGateway struct {
	mu      sync.Mutex
	replies []string
	calls   int
}

func (g *scriptedGateway) Generate(ctx context.Context, req *llm.Request) (*llm.Result, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	idx := g.calls
	if idx >= len(g.replies) {
		idx = len(g.replies) - 1
	}
	g.calls++
	return &llm.Result{Content: g.replies[idx], TokensIn: 100, TokensOut: 50}, nil
}

func (g *scriptedGateway) Stream(ctx context.Context, req *llm.Request) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 1)
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

func (g *scriptedGateway) CountTokens(text string) int { return len(text) / 4 }
func (g *scriptedGateway) PromptBudget() int           { return 28000 }

type fixtureLoader struct{ profiles []models.ToolProfile }

func (l *fixtureLoader) LoadAll(ctx context.Context) ([]models.ToolProfile, error) {
	return l.profiles, nil
}

func newTestServer(t *testing.T, assetURL string, replies ...string) *Server {
	t.Helper()

	cfg := config.DefaultPipelineConfig()
	assetCfg := config.DefaultAssetConfig()
	assetCfg.ServiceURL = assetURL

	cat, err := catalog.New(context.Background(), &fixtureLoader{profiles: []models.ToolProfile{
		{
			ToolName:    "systemctl",
			Platform:    "linux",
			Category:    "system",
			Description: "Manage systemd services",
			Destructive: true,
			Capabilities: []models.Capability{
				{Name: "service_restart", Description: "Restart a systemd unit"},
			},
			Patterns: []models.Pattern{
				{Name: "restart", Features: models.PatternFeatures{TimeMS: 500, Accuracy: 0.99, Completeness: 1.0, Complexity: 0.1}},
			},
			IntentTags: []models.IntentTag{{Category: "action", Action: "restart_service"}},
		},
	}})
	require.NoError(t, err)

	gw := &scriptedGateway{replies: replies}
	provider := assets.NewProvider(assetCfg)
	sanitizer := masking.NewSanitizer()
	registry := runner.NewRegistry()
	registry.Register("systemctl", runner.EchoRunner{})

	orch := pipeline.NewOrchestrator(cfg,
		stages.NewSelector(cfg, gw, cat, provider),
		stages.NewPlanner(cfg, gw, cat),
		stages.NewAnswerer(cfg, gw, provider, sanitizer),
		stages.NewExecutor(cfg, registry, sanitizer),
		provider, conversation.NewStore(cfg.ConversationMaxMessages),
		metrics.NewCollector(cfg.MetricsHistorySize), sanitizer)

	return NewServer(orch, ":0")
}

func assetServer(t *testing.T) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		envelope := map[string]any{"data": map[string]any{"assets": []map[string]any{
			{"id": "a1", "hostname": "web-prod-01", "ip_address": "10.0.0.10", "os_type": "linux", "environment": "production", "status": "online"},
		}}}
		require.NoError(t, json.NewEncoder(w).Encode(envelope))
	}))
}

const infoSelectionReply = `{
  "intent_category": "information",
  "intent_action": "list_assets",
  "entities": [],
  "required_capabilities": [],
  "candidate_tools": [],
  "risk_level": "low",
  "requires_approval": false,
  "selection_confidence": 0.9
}`

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) *models.PipelineResult {
	t.Helper()
	var result models.PipelineResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	return &result
}

func TestCreateRequestInformation(t *testing.T) {
	srv := assetServer(t)
	defer srv.Close()

	server := newTestServer(t, srv.URL, infoSelectionReply, "There is 1 server in inventory.")
	rec := postJSON(t, server.Handler(), "/api/v1/requests", CreateRequestBody{
		Request:   "how many servers do we have?",
		SessionID: "api-sess",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	assert.Equal(t, models.PipelineStatusCompleted, result.Status)
	assert.Equal(t, models.ResponseTypeInformation, result.Response.ResponseType)
}

func TestCreateRequestRejectsMissingBody(t *testing.T) {
	server := newTestServer(t, "http://unused.invalid", infoSelectionReply)
	rec := postJSON(t, server.Handler(), "/api/v1/requests", map[string]string{"session_id": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateRequestWhitespaceOnlyIsInputInvalid(t *testing.T) {
	server := newTestServer(t, "http://unused.invalid", infoSelectionReply)
	rec := postJSON(t, server.Handler(), "/api/v1/requests", CreateRequestBody{Request: "   "})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	result := decodeResult(t, rec)
	assert.Equal(t, string(models.ErrKindInputInvalid), result.Response.ErrorKind)
	// The pipeline treats this as a completed clarification; only the
	// HTTP status marks the client error.
	assert.Equal(t, models.PipelineStatusCompleted, result.Status)
	assert.Equal(t, models.ResponseTypeClarification, result.Response.ResponseType)
}

func TestApprovalRoundTrip(t *testing.T) {
	srv := assetServer(t)
	defer srv.Close()

	selectionReply := `{
	  "intent_category": "action",
	  "intent_action": "restart_service",
	  "entities": [{"type": "hostname", "value": "web-prod-01"}],
	  "required_capabilities": ["service_restart"],
	  "candidate_tools": [{"tool_name": "systemctl", "why": "restart"}],
	  "risk_level": "medium",
	  "requires_approval": false,
	  "selection_confidence": 0.9
	}`
	planReply := `{
	  "steps": [{"name": "restart_unit", "description": "Restart nginx", "tool": "systemctl",
	    "inputs": {"unit": "nginx"}, "timeout_s": 60, "retry_count": 0, "depends_on": []}],
	  "safety_checks": [],
	  "estimated_duration_s": 60
	}`
	server := newTestServer(t, srv.URL, selectionReply, planReply,
		"This plan restarts nginx and needs approval.")

	rec := postJSON(t, server.Handler(), "/api/v1/requests", CreateRequestBody{
		Request:   "restart nginx on web-prod-01",
		RequestID: "api-approve-1",
		SessionID: "api-sess-2",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeResult(t, rec)
	require.Equal(t, models.PipelineStatusAwaitingApproval, result.Status)

	approveRec := postJSON(t, server.Handler(), "/api/v1/requests/api-approve-1/approve", nil)
	require.Equal(t, http.StatusOK, approveRec.Code)
	approved := decodeResult(t, approveRec)
	assert.Equal(t, models.PipelineStatusCompleted, approved.Status)
	require.NotNil(t, approved.Execution)
	assert.Equal(t, models.ExecutionStatusCompleted, approved.Execution.Status)
}

func TestApproveUnknownRequestIsNotFound(t *testing.T) {
	server := newTestServer(t, "http://unused.invalid", infoSelectionReply)
	rec := postJSON(t, server.Handler(), "/api/v1/requests/no-such-id/approve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(t, "http://unused.invalid", infoSelectionReply)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var health metrics.HealthSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, metrics.HealthStateHealthy, health.State)

	// Security headers are set on every response.
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRequestIDHeaderIsEchoed(t *testing.T) {
	server := newTestServer(t, "http://unused.invalid", infoSelectionReply)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	req.Header.Set("X-Request-ID", "caller-supplied-id")
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "caller-supplied-id", rec.Header().Get("X-Request-ID"))
}

func TestMetricsEndpointReflectsTraffic(t *testing.T) {
	srv := assetServer(t)
	defer srv.Close()

	server := newTestServer(t, srv.URL, infoSelectionReply, "one server")
	postJSON(t, server.Handler(), "/api/v1/requests", CreateRequestBody{
		Request:   "how many servers do we have?",
		SessionID: "api-metrics",
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap metrics.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Count)
}
