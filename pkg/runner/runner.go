// Package runner defines the step-runner contract and the registry the
// executor dispatches through. Real runners (SSH, WinRM, HTTP) live
// outside the core; this package ships test doubles only.
package runner

import (
	"context"
	"fmt"
	"sync"
)

// Result is the outcome of one step invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Output carries structured data for runners that produce more than
	// text streams.
	Output map[string]any
}

// Runner executes one tool's steps.
type Runner interface {
	Execute(ctx context.Context, inputs map[string]any) (*Result, error)
}

// Registry maps tool names to runners. Safe for concurrent use; lookups
// dominate, registration happens at startup.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
}

// NewRegistry creates an empty runner registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]Runner)}
}

// Register binds a runner to a tool name, replacing any previous binding.
func (r *Registry) Register(toolName string, runner Runner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runners[toolName] = runner
}

// Get returns the runner for the tool, or an error naming the tool so the
// executor can fail the step without guessing.
func (r *Registry) Get(toolName string) (Runner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[toolName]
	if !ok {
		return nil, fmt.Errorf("no runner registered for tool %q", toolName)
	}
	return runner, nil
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.runners))
	for name := range r.runners {
		names = append(names, name)
	}
	return names
}
