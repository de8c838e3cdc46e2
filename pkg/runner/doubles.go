package runner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// EchoRunner succeeds immediately, echoing its inputs to stdout. Useful
// for wiring checks and plan dry runs.
type EchoRunner struct{}

func (EchoRunner) Execute(ctx context.Context, inputs map[string]any) (*Result, error) {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%v\n", k, inputs[k])
	}
	return &Result{Stdout: b.String()}, nil
}

// ScriptedStep describes one canned invocation outcome.
type ScriptedStep struct {
	Result *Result
	Err    error
	// Delay is applied before returning, honoring context cancellation.
	Delay time.Duration
}

// ScriptedRunner returns canned outcomes in order, repeating the last one
// once the script is exhausted. Safe for concurrent use.
type ScriptedRunner struct {
	mu     sync.Mutex
	script []ScriptedStep
	calls  int
}

// NewScriptedRunner creates a runner that plays back the given script.
func NewScriptedRunner(script ...ScriptedStep) *ScriptedRunner {
	return &ScriptedRunner{script: script}
}

// Calls returns how many times Execute ran.
func (r *ScriptedRunner) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *ScriptedRunner) Execute(ctx context.Context, inputs map[string]any) (*Result, error) {
	r.mu.Lock()
	idx := r.calls
	r.calls++
	if idx >= len(r.script) {
		idx = len(r.script) - 1
	}
	step := r.script[idx]
	r.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return step.Result, step.Err
}
