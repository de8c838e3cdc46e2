// Package conversation provides the per-session bounded message history
// injected into LLM prompts. Histories are in-memory ring buffers; nothing
// survives a restart.
package conversation

import (
	"strings"
	"sync"
	"time"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one conversation turn.
type Message struct {
	Role      Role
	Content   string
	Timestamp time.Time
}

// Store holds per-session conversation histories. Each session is a ring
// of at most maxMessages entries; the oldest message is dropped on
// overflow. Safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	maxMessages int
	sessions    map[string][]Message
}

// NewStore creates a store with the given per-session capacity.
// Panics on a non-positive capacity (programming error in wiring).
func NewStore(maxMessages int) *Store {
	if maxMessages <= 0 {
		panic("conversation.NewStore: maxMessages must be positive")
	}
	return &Store{
		maxMessages: maxMessages,
		sessions:    make(map[string][]Message),
	}
}

// Add appends a message to the session history, evicting the oldest
// message when the session is at capacity.
func (s *Store) Add(sessionID string, role Role, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.sessions[sessionID]
	history = append(history, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	})
	if len(history) > s.maxMessages {
		// FIFO eviction. Copy to release the backing array's head.
		trimmed := make([]Message, s.maxMessages)
		copy(trimmed, history[len(history)-s.maxMessages:])
		history = trimmed
	}
	s.sessions[sessionID] = history
}

// Get returns up to max messages for the session, oldest first. max <= 0
// returns the full history.
func (s *Store) Get(sessionID string, max int) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.sessions[sessionID]
	if max > 0 && len(history) > max {
		history = history[len(history)-max:]
	}
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// Len returns the number of messages stored for the session.
func (s *Store) Len(sessionID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[sessionID])
}

// Formatted renders the session history as a prompt-injectable block:
// one "role: content" line per message, oldest first. Returns the empty
// string for an unknown session.
func (s *Store) Formatted(sessionID string, max int) string {
	messages := s.Get(sessionID, max)
	if len(messages) == 0 {
		return ""
	}

	var sb strings.Builder
	for i, msg := range messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	return sb.String()
}

// Clear drops the session history.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}
