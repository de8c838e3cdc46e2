// Package llm provides the uniform gateway in front of the LLM inference
// server: one call shape (messages in, content + usage out), token budget
// enforcement, streaming, and circuit-breaker guarding. Centralizing the
// call shape isolates model/provider choice from the pipeline stages.
package llm

import "context"

// Role constants for chat messages.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat message sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single generation request.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONMode asks the provider for a JSON-object response.
	JSONMode bool
}

// Result is the outcome of a generation call.
type Result struct {
	Content   string
	TokensIn  int
	TokensOut int
}

// StreamChunk is one delta from a streaming generation.
type StreamChunk struct {
	Delta string
	// Done marks the terminal chunk. Err, if set, ended the stream early.
	Done bool
	Err  error
}

// Gateway is the pipeline-facing LLM interface. Implemented by Client;
// defined as an interface so stages can be tested with scripted fakes.
type Gateway interface {
	// Generate sends one request and waits for the full response.
	// Fails fast with TOKEN_BUDGET_EXCEEDED when the prompt exceeds
	// maxModelLen − outputReserve − safetyMargin.
	Generate(ctx context.Context, req *Request) (*Result, error)

	// Stream sends one request and returns a channel of deltas. The
	// channel is closed after the terminal chunk.
	Stream(ctx context.Context, req *Request) (<-chan StreamChunk, error)

	// CountTokens estimates the token count of the given text.
	CountTokens(text string) int

	// PromptBudget returns the maximum prompt token count allowed.
	PromptBudget() int
}
