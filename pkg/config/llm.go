package config

import (
	"fmt"
	"time"
)

// LLMConfig configures the LLM gateway: endpoint, model, timeout, and the
// token budget parameters. The budget invariant enforced by the gateway is
//
//	promptTokens ≤ MaxModelLen − OutputReserve − SafetyMargin
//
// Requests exceeding it fail fast with TOKEN_BUDGET_EXCEEDED.
type LLMConfig struct {
	// BaseURL is the chat/completions endpoint root (OpenAI-compatible).
	BaseURL string

	// APIKey is sent as a bearer token when non-empty.
	APIKey string

	// Model is the model identifier sent with every request.
	Model string

	// Timeout is the hard deadline for a single LLM call.
	Timeout time.Duration

	// MaxModelLen is the model's context window in tokens.
	MaxModelLen int

	// OutputReserve is the token count reserved for the model's output.
	OutputReserve int

	// SafetyMargin absorbs tokenizer estimation error.
	SafetyMargin int

	// Temperature is the default sampling temperature.
	Temperature float64

	// BreakerThreshold is the consecutive-failure count that opens the
	// LLM circuit breaker.
	BreakerThreshold int

	// BreakerCooldown is how long the breaker stays open before a probe.
	BreakerCooldown time.Duration
}

// DefaultLLMConfig returns the built-in LLM gateway defaults.
func DefaultLLMConfig() *LLMConfig {
	return &LLMConfig{
		BaseURL:          "http://localhost:8000/v1",
		Model:            "gpt-4o-mini",
		Timeout:          30 * time.Second,
		MaxModelLen:      32768,
		OutputReserve:    4096,
		SafetyMargin:     512,
		Temperature:      0.1,
		BreakerThreshold: 5,
		BreakerCooldown:  30 * time.Second,
	}
}

// LoadLLMConfigFromEnv builds the LLM config from environment variables,
// falling back to defaults for unset keys.
func LoadLLMConfigFromEnv() *LLMConfig {
	def := DefaultLLMConfig()
	return &LLMConfig{
		BaseURL:          envString("LLM_BASE_URL", def.BaseURL),
		APIKey:           envString("LLM_API_KEY", ""),
		Model:            envString("LLM_MODEL", def.Model),
		Timeout:          envSeconds("LLM_TIMEOUT_S", def.Timeout),
		MaxModelLen:      envInt("LLM_MAX_MODEL_LEN", def.MaxModelLen),
		OutputReserve:    envInt("LLM_OUTPUT_RESERVE", def.OutputReserve),
		SafetyMargin:     envInt("LLM_SAFETY_MARGIN", def.SafetyMargin),
		Temperature:      envFloat("LLM_TEMPERATURE", def.Temperature),
		BreakerThreshold: envInt("LLM_BREAKER_THRESHOLD", def.BreakerThreshold),
		BreakerCooldown:  envSeconds("LLM_BREAKER_COOLDOWN_S", def.BreakerCooldown),
	}
}

// Validate checks the config for values that cannot work at runtime.
func (c *LLMConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("llm config: base URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("llm config: model is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("llm config: timeout must be positive, got %v", c.Timeout)
	}
	if c.MaxModelLen <= 0 {
		return fmt.Errorf("llm config: max model length must be positive, got %d", c.MaxModelLen)
	}
	if c.OutputReserve < 0 || c.SafetyMargin < 0 {
		return fmt.Errorf("llm config: output reserve and safety margin must be non-negative")
	}
	if c.OutputReserve+c.SafetyMargin >= c.MaxModelLen {
		return fmt.Errorf("llm config: output reserve (%d) + safety margin (%d) leaves no prompt budget within max model length (%d)",
			c.OutputReserve, c.SafetyMargin, c.MaxModelLen)
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("llm config: breaker threshold must be positive, got %d", c.BreakerThreshold)
	}
	return nil
}

// PromptBudget returns the maximum prompt token count the budget allows.
func (c *LLMConfig) PromptBudget() int {
	return c.MaxModelLen - c.OutputReserve - c.SafetyMargin
}
