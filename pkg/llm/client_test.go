package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
)

// testConfig uses a model name without a tiktoken encoding so token
// counting stays on the deterministic character heuristic.
func testConfig(baseURL string) *config.LLMConfig {
	cfg := config.DefaultLLMConfig()
	cfg.BaseURL = baseURL
	cfg.Model = "test-model"
	cfg.APIKey = "test-key"
	cfg.Timeout = 5 * time.Second
	cfg.BreakerThreshold = 2
	cfg.BreakerCooldown = time.Minute
	return cfg
}

func chatServer(t *testing.T, content string, capture *atomic.Int32, lastBody *chatRequest) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			capture.Add(1)
		}
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if lastBody != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(lastBody))
		}

		reply := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}, "finish_reason": "stop"},
			},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30},
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
}

func TestGenerateReturnsContentAndUsage(t *testing.T) {
	var body chatRequest
	srv := chatServer(t, "hello there", nil, &body)
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	result, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
		JSONMode: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "hello there", result.Content)
	assert.Equal(t, 120, result.TokensIn)
	assert.Equal(t, 30, result.TokensOut)

	assert.Equal(t, "test-model", body.Model)
	require.NotNil(t, body.ResponseFormat)
	assert.Equal(t, "json_object", body.ResponseFormat.Type)
}

func TestGenerateServerErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error": {"message": "upstream worker crashed"}}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	_, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindLLMUnavailable))
	assert.Contains(t, err.Error(), "502")
}

func TestGenerateMalformedBodyIsMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not json"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	_, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindLLMMalformed))
}

func TestGenerateTokenBudgetFailsFast(t *testing.T) {
	var hits atomic.Int32
	srv := chatServer(t, "unused", &hits, nil)
	defer srv.Close()

	cfg := testConfig(srv.URL + "/v1")
	cfg.MaxModelLen = 600
	cfg.OutputReserve = 400
	cfg.SafetyMargin = 100 // prompt budget: 100 tokens

	client := NewClient(cfg)
	big := make([]byte, 2000) // heuristic: ~500 tokens
	for i := range big {
		big[i] = 'a'
	}
	_, err := client.Generate(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: string(big)}},
	})
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindTokenBudgetExceeded))
	assert.Equal(t, int32(0), hits.Load(), "budget check must run before any network call")
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1")) // threshold 2
	req := &Request{Messages: []Message{{Role: RoleUser, Content: "hi"}}}

	for i := 0; i < 2; i++ {
		_, err := client.Generate(context.Background(), req)
		assert.True(t, models.IsKind(err, models.ErrKindLLMUnavailable))
	}

	_, err := client.Generate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, models.IsKind(err, models.ErrKindCircuitOpen))
	assert.Equal(t, int32(2), hits.Load(), "open breaker short-circuits without a network call")
}

func TestStreamDeliversDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
				"data: {\"choices\":[{\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n" +
				"data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client := NewClient(testConfig(srv.URL + "/v1"))
	chunks, err := client.Stream(context.Background(), &Request{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)

	var content string
	for chunk := range chunks {
		require.NoError(t, chunk.Err)
		content += chunk.Delta
	}
	assert.Equal(t, "Hello", content)
}

func TestTokenEstimatorHeuristic(t *testing.T) {
	est := NewTokenEstimator("no-such-model")

	assert.Equal(t, 0, est.Count(""))
	assert.Equal(t, 1, est.Count("abc"), "partial tokens round up")
	assert.Equal(t, 2, est.Count("abcdefgh"))

	// Two messages of one token each, plus framing overhead per message.
	total := est.CountMessages([]Message{
		{Role: RoleSystem, Content: "abcd"},
		{Role: RoleUser, Content: "efgh"},
	})
	assert.Equal(t, 2+2*messageOverheadTokens, total)
}

func TestPromptBudgetMatchesConfig(t *testing.T) {
	cfg := testConfig("http://unused.invalid/v1")
	client := NewClient(cfg)
	assert.Equal(t, cfg.MaxModelLen-cfg.OutputReserve-cfg.SafetyMargin, client.PromptBudget())
}
