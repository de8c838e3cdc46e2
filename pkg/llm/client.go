package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/config"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/models"
	"github.com/andrewcho-dev/opsconductor-ng-sub003/pkg/resilience"
)

// chatRequest is the OpenAI-compatible chat/completions request payload.
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	Temperature    float64        `json:"temperature"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Stream         bool           `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the non-streaming response payload.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *apiError `json:"error,omitempty"`
}

// streamResponse is one SSE data chunk of a streaming response.
type streamResponse struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// Client is the HTTP LLM gateway. It speaks the OpenAI chat/completions
// wire format, enforces the token budget before every call, and routes
// every request through a circuit breaker.
type Client struct {
	cfg       *config.LLMConfig
	http      *http.Client
	breaker   *resilience.Breaker
	estimator *TokenEstimator
}

// NewClient creates a gateway client for the configured endpoint.
func NewClient(cfg *config.LLMConfig) *Client {
	return &Client{
		cfg:       cfg,
		http:      &http.Client{Timeout: cfg.Timeout},
		breaker:   resilience.NewBreaker("llm", uint32(cfg.BreakerThreshold), cfg.BreakerCooldown),
		estimator: NewTokenEstimator(cfg.Model),
	}
}

// CountTokens estimates the token count of text.
func (c *Client) CountTokens(text string) int {
	return c.estimator.Count(text)
}

// PromptBudget returns maxModelLen − outputReserve − safetyMargin.
func (c *Client) PromptBudget() int {
	return c.cfg.PromptBudget()
}

// checkBudget enforces the prompt token budget. Budget violations are
// permanent failures — retrying the identical prompt cannot succeed.
func (c *Client) checkBudget(req *Request) error {
	promptTokens := c.estimator.CountMessages(req.Messages)
	if promptTokens > c.cfg.PromptBudget() {
		return models.NewPipelineError(models.ErrKindTokenBudgetExceeded,
			fmt.Sprintf("prompt is too large for the model (%d tokens, budget %d)",
				promptTokens, c.cfg.PromptBudget()))
	}
	return nil
}

// Generate sends one request and waits for the full response.
func (c *Client) Generate(ctx context.Context, req *Request) (*Result, error) {
	if err := c.checkBudget(req); err != nil {
		return nil, err
	}

	result, err := resilience.Do(c.breaker, func() (*Result, error) {
		return c.generate(ctx, req)
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, models.WrapPipelineError(models.ErrKindCircuitOpen,
				"the language model service is temporarily unavailable (circuit open)", err)
		}
		return nil, err
	}
	return result, nil
}

func (c *Client) generate(ctx context.Context, req *Request) (*Result, error) {
	body := c.buildRequest(req, false)

	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, c.statusError(resp)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, models.WrapPipelineError(models.ErrKindLLMMalformed,
			"the language model returned an unreadable response", err)
	}
	if parsed.Error != nil {
		return nil, models.NewPipelineError(models.ErrKindLLMUnavailable,
			fmt.Sprintf("language model error: %s", parsed.Error.Message))
	}
	if len(parsed.Choices) == 0 {
		return nil, models.NewPipelineError(models.ErrKindLLMMalformed,
			"the language model returned no choices")
	}

	return &Result{
		Content:   parsed.Choices[0].Message.Content,
		TokensIn:  parsed.Usage.PromptTokens,
		TokensOut: parsed.Usage.CompletionTokens,
	}, nil
}

// Stream sends one request and returns a channel of deltas.
func (c *Client) Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	if err := c.checkBudget(req); err != nil {
		return nil, err
	}

	resp, err := resilience.Do(c.breaker, func() (*http.Response, error) {
		r, postErr := c.post(ctx, c.buildRequest(req, true))
		if postErr != nil {
			return nil, postErr
		}
		if r.StatusCode != http.StatusOK {
			err := c.statusError(r)
			_ = r.Body.Close()
			return nil, err
		}
		return r, nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return nil, models.WrapPipelineError(models.ErrKindCircuitOpen,
				"the language model service is temporarily unavailable (circuit open)", err)
		}
		return nil, err
	}

	chunks := make(chan StreamChunk, 64)
	go func() {
		defer close(chunks)
		defer func() { _ = resp.Body.Close() }()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data: ") {
				continue
			}
			data := strings.TrimPrefix(line, "data: ")
			if data == "[DONE]" {
				break
			}

			var chunk streamResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				continue // Skip malformed keep-alive chunks
			}
			if chunk.Error != nil {
				c.emit(ctx, chunks, StreamChunk{
					Err:  models.NewPipelineError(models.ErrKindLLMUnavailable, chunk.Error.Message),
					Done: true,
				})
				return
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				if !c.emit(ctx, chunks, StreamChunk{Delta: delta}) {
					return
				}
			}
			if chunk.Choices[0].FinishReason != "" {
				break
			}
		}
		if err := scanner.Err(); err != nil {
			c.emit(ctx, chunks, StreamChunk{
				Err:  models.WrapPipelineError(models.ErrKindLLMUnavailable, "stream interrupted", err),
				Done: true,
			})
			return
		}
		c.emit(ctx, chunks, StreamChunk{Done: true})
	}()

	return chunks, nil
}

// emit delivers a chunk unless the context is cancelled. Returns false
// when the consumer is gone.
func (c *Client) emit(ctx context.Context, chunks chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Client) buildRequest(req *Request, stream bool) *chatRequest {
	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.cfg.Temperature
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.cfg.OutputReserve {
		maxTokens = c.cfg.OutputReserve
	}

	body := &chatRequest{
		Model:       c.cfg.Model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
		Stream:      stream,
	}
	if req.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	return body
}

func (c *Client) post(ctx context.Context, body *chatRequest) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	url := strings.TrimSuffix(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, models.WrapPipelineError(models.ErrKindLLMUnavailable,
				"the language model did not respond in time", err)
		}
		return nil, models.WrapPipelineError(models.ErrKindLLMUnavailable,
			"could not reach the language model service", err)
	}
	return resp, nil
}

// statusError converts a non-200 response into a taxonomy error. The body
// is read with a small cap — provider error bodies are short.
func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var parsed struct {
		Error *apiError `json:"error"`
	}
	detail := ""
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		detail = ": " + parsed.Error.Message
	}

	return models.NewPipelineError(models.ErrKindLLMUnavailable,
		fmt.Sprintf("the language model service returned HTTP %d%s", resp.StatusCode, detail))
}
