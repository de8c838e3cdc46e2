// Package models defines the inter-stage data contracts for the pipeline.
// All stage outputs are versioned, immutable-by-convention records carrying
// a decision ID and timestamp. Stages read the previous stage's output plus
// a shared request context; they never reach back into earlier stages.
package models

import (
	"sync"
	"time"
)

// Context keys for well-known request context entries.
const (
	ContextKeyTenantID             = "tenant_id"
	ContextKeyActorID              = "actor_id"
	ContextKeySessionID            = "session_id"
	ContextKeyConversationHistory  = "conversation_history"
	ContextKeyClarificationAttempt = "clarification_attempts"
	ContextKeyOriginalRequest      = "original_request"
	ContextKeyEntities             = "entities"
)

// EntityType classifies an entity extracted from the user request.
type EntityType string

const (
	EntityTypeHostname    EntityType = "hostname"
	EntityTypeIPAddress   EntityType = "ip_address"
	EntityTypeService     EntityType = "service"
	EntityTypeEnvironment EntityType = "environment"
	EntityTypePath        EntityType = "path"
	EntityTypeOther       EntityType = "other"
)

// Entity is a typed value extracted from the user request by Stage AB.
type Entity struct {
	Type  EntityType `json:"type"`
	Value string     `json:"value"`
	// AdHoc marks a host/IP the user explicitly allowed outside the
	// inventory ("ad-hoc target"). Asset validation skips these.
	AdHoc bool `json:"ad_hoc,omitempty"`
}

// RequestContext is the mutable dictionary threaded through all stages.
// Well-known keys have typed accessors; free-form carry goes through
// Set/Get. Safe for concurrent use — Stage E progress callbacks may read
// it while the orchestrator writes clarification state.
type RequestContext struct {
	mu sync.RWMutex

	TenantID            string
	ActorID             string
	SessionID           string
	ConversationHistory string
	OriginalRequest     string

	clarificationAttempts int
	entities              []Entity
	carry                 map[string]any
}

// NewRequestContext creates an empty request context.
func NewRequestContext() *RequestContext {
	return &RequestContext{carry: make(map[string]any)}
}

// Set stores a free-form carry value.
func (c *RequestContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carry[key] = value
}

// Get returns a free-form carry value.
func (c *RequestContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.carry[key]
	return v, ok
}

// Entities returns a copy of the extracted entities.
func (c *RequestContext) Entities() []Entity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entity, len(c.entities))
	copy(out, c.entities)
	return out
}

// SetEntities replaces the extracted entity list (populated by Stage AB).
func (c *RequestContext) SetEntities(entities []Entity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities = make([]Entity, len(entities))
	copy(c.entities, entities)
}

// ClarificationAttempts returns the per-session clarification counter.
func (c *RequestContext) ClarificationAttempts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clarificationAttempts
}

// SetClarificationAttempts sets the clarification counter (carried over
// from session state by the orchestrator).
func (c *RequestContext) SetClarificationAttempts(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clarificationAttempts = n
}

// IncrementClarificationAttempts bumps the counter and returns the new value.
func (c *RequestContext) IncrementClarificationAttempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clarificationAttempts++
	return c.clarificationAttempts
}

// Timestamp is the shared timestamp type for stage records.
// Records are stamped once at creation and never mutated.
func Timestamp() time.Time { return time.Now().UTC() }
