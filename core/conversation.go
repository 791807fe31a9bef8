package core

import (
	"sync"
	"time"
)

// ConversationStatus is the lifecycle status of a conversation.
type ConversationStatus string

const (
	// ConversationActive accepts new user turns.
	ConversationActive ConversationStatus = "active"
	// ConversationTerminated no longer accepts turns (explicit close or cancel).
	ConversationTerminated ConversationStatus = "terminated"
)

// Engine states a conversation moves through during a turn. Exposed on
// snapshots for observability; transitions are owned by the engine.
const (
	StateAwaitingUserInput = "AWAITING_USER_INPUT"
	StateGuardrailInput    = "GUARDRAIL_INPUT"
	StateModelInvoking     = "MODEL_INVOKING"
	StateToolRequested     = "TOOL_REQUESTED"
	StateToolExecuting     = "TOOL_EXECUTING"
	StateGuardrailOutput   = "GUARDRAIL_OUTPUT"
	StateTerminated        = "TERMINATED"
)

// Conversation is an append-only transcript plus bookkeeping for one session
// with the engine. It is safe for concurrent access.
//
// Contract:
//   - Messages are never edited or reordered after append
//   - Append and state mutations update the Updated timestamp
//   - History returns a defensive copy to avoid external mutation
//   - Clone performs deep copies of slices/maps for safe divergence
type Conversation struct {
	ID            string             `json:"id"`
	Messages      []Message          `json:"messages"`
	State         string             `json:"state"`
	TokenEstimate int                `json:"token_estimate"`
	Status        ConversationStatus `json:"status"`
	Created       time.Time          `json:"created"`
	Updated       time.Time          `json:"updated"`
	Metadata      map[string]string  `json:"metadata"`
	mu            sync.RWMutex
}

// NewConversation creates an active conversation awaiting its first user turn.
func NewConversation(id string) *Conversation {
	now := time.Now()
	return &Conversation{
		ID:       id,
		Messages: []Message{},
		State:    StateAwaitingUserInput,
		Status:   ConversationActive,
		Created:  now,
		Updated:  now,
		Metadata: map[string]string{},
	}
}

// Append adds a message to the transcript updating the Updated timestamp.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Messages = append(c.Messages, msg)
	c.Updated = time.Now()
}

// History returns a defensive copy of the full message slice.
func (c *Conversation) History() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	messages := make([]Message, len(c.Messages))
	copy(messages, c.Messages)
	return messages
}

// SetState records the current engine state label.
func (c *Conversation) SetState(state string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = state
	c.Updated = time.Now()
}

// CurrentState returns the engine state label.
func (c *Conversation) CurrentState() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.State
}

// SetTokenEstimate records the accumulated token estimate for the transcript.
func (c *Conversation) SetTokenEstimate(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenEstimate = n
}

// Terminate marks the conversation terminated. Idempotent.
func (c *Conversation) Terminate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = ConversationTerminated
	c.State = StateTerminated
	c.Updated = time.Now()
}

// IsActive reports whether the conversation still accepts user turns.
func (c *Conversation) IsActive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Status == ConversationActive
}

// Clone returns a deep copy of the conversation safe for independent mutation.
func (c *Conversation) Clone() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	clone := &Conversation{
		ID:            c.ID,
		Messages:      make([]Message, len(c.Messages)),
		State:         c.State,
		TokenEstimate: c.TokenEstimate,
		Status:        c.Status,
		Created:       c.Created,
		Updated:       c.Updated,
		Metadata:      make(map[string]string, len(c.Metadata)),
	}
	copy(clone.Messages, c.Messages)
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// ConversationStore persists conversations as append-only transcript logs
// keyed by conversation id. The engine never garbage-collects transcripts;
// archival/TTL is an external concern of the store implementation.
type ConversationStore interface {
	Create(id string) (*Conversation, error)
	Get(id string) (*Conversation, error)
	Append(conversationID string, msg Message) error
	SetState(conversationID, state string) error
	SetTokenEstimate(conversationID string, n int) error
	SetStatus(conversationID string, status ConversationStatus) error
}
