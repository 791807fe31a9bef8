package core

import (
	"time"

	"github.com/google/uuid"
)

// Event is the unit of turn progress streamed to clients by the engine. After
// emission it should be treated as immutable. It captures:
//   - Correlation (ConversationID, TurnID, ID, Author)
//   - The engine state at emission time
//   - Conversational content (optional Message)
//   - Citations backing an assistant message grounded in retrieval
//   - Error / termination metadata
//
// Message may be nil for state-transition or error-only events.
type Event struct {
	ID             string            `json:"id"`
	ConversationID string            `json:"conversation_id"`
	TurnID         string            `json:"turn_id"`
	Author         string            `json:"author"`
	State          string            `json:"state,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Message        *Message          `json:"message,omitempty"`
	Citations      []Citation        `json:"citations,omitempty"`
	TurnComplete   *bool             `json:"turn_complete,omitempty"`
	ErrorCode      *string           `json:"error_code,omitempty"`
	ErrorMessage   *string           `json:"error_message,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a bare event authored by 'author' bound to a turn.
func NewEvent(conversationID, turnID, author string) Event {
	return Event{
		ID:             NewID(),
		ConversationID: conversationID,
		TurnID:         turnID,
		Author:         author,
		Timestamp:      time.Now().UTC(),
	}
}

// NewMessageEvent wraps a message into an event.
func NewMessageEvent(conversationID, turnID, author string, msg Message) Event {
	e := NewEvent(conversationID, turnID, author)
	e.Message = &msg
	return e
}

// NewStateEvent records an engine state transition.
func NewStateEvent(conversationID, turnID, state string) Event {
	e := NewEvent(conversationID, turnID, "engine")
	e.State = state
	return e
}

// NewErrorEvent records a turn failure or policy intervention.
func NewErrorEvent(conversationID, turnID, code, message string) Event {
	e := NewEvent(conversationID, turnID, "engine")
	e.ErrorCode = &code
	e.ErrorMessage = &message
	return e
}

// NewID generates a new unique identifier for events, turns and tool calls.
func NewID() string { return uuid.NewString() }

// IsTurnComplete reports whether this event closes the turn.
func (e Event) IsTurnComplete() bool { return e.TurnComplete != nil && *e.TurnComplete }
