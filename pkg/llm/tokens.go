package llm

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the fallback heuristic for models without a known
// tiktoken encoding: ~4 characters per token for English text. Errs on
// the high side for multi-byte content, which is the safe direction —
// the budget check triggers slightly early rather than late.
const charsPerToken = 4

// messageOverheadTokens approximates the per-message framing cost of the
// chat format (role markers, separators).
const messageOverheadTokens = 4

// TokenEstimator counts tokens for budget enforcement. It resolves a
// tiktoken encoding for the configured model once, lazily, and falls back
// to the character heuristic when the model is unknown.
type TokenEstimator struct {
	model string

	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenEstimator creates an estimator for the given model.
func NewTokenEstimator(model string) *TokenEstimator {
	return &TokenEstimator{model: model}
}

// Count returns the estimated token count for text.
func (e *TokenEstimator) Count(text string) int {
	if text == "" {
		return 0
	}

	e.once.Do(func() {
		enc, err := tiktoken.EncodingForModel(e.model)
		if err != nil {
			slog.Warn("No tiktoken encoding for model, using character heuristic",
				"model", e.model, "error", err)
			return
		}
		e.enc = enc
	})

	if e.enc != nil {
		return len(e.enc.Encode(text, nil, nil))
	}
	return (len(text) + charsPerToken - 1) / charsPerToken // Round up
}

// CountMessages returns the estimated prompt token count for a message
// list, including per-message framing overhead.
func (e *TokenEstimator) CountMessages(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += e.Count(m.Content) + messageOverheadTokens
	}
	return total
}
