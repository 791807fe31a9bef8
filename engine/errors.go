package engine

import "fmt"

// Event error codes emitted on turn failures and policy interventions.
// guardrail_blocked is informational: the turn still completes with the
// policy message as the assistant reply.
const (
	ErrCodeModelError       = "model_error"
	ErrCodePromptError      = "prompt_error"
	ErrCodeToolLoopLimit    = "tool_loop_limit_exceeded"
	ErrCodeContextOverflow  = "context_overflow"
	ErrCodeGuardrailError   = "guardrail_error"
	ErrCodeGuardrailBlocked = "guardrail_blocked"
	ErrCodeCancelled        = "cancelled"
	ErrCodeQueueFull        = "queue_full"
)

// ToolLoopLimitExceeded reports a turn that kept requesting tool calls past
// the configured iteration bound. The turn ends with a degraded fallback
// message; the conversation stays active.
type ToolLoopLimitExceeded struct {
	ConversationID string
	TurnID         string
	Limit          int
}

// Error implements the error interface.
func (e *ToolLoopLimitExceeded) Error() string {
	return fmt.Sprintf("turn %s exceeded the tool iteration limit of %d", e.TurnID, e.Limit)
}

// ContextOverflowError reports a transcript window that cannot be pruned
// under the token budget without dropping protected messages.
type ContextOverflowError struct {
	ConversationID string
	Estimate       int
	Budget         int
}

// Error implements the error interface.
func (e *ContextOverflowError) Error() string {
	return fmt.Sprintf("conversation %s context window overflow: estimated %d tokens exceeds budget %d after pruning", e.ConversationID, e.Estimate, e.Budget)
}

// QueueFullError reports a user message rejected because the conversation's
// pending-turn queue is at capacity.
type QueueFullError struct {
	ConversationID string
	Capacity       int
}

// Error implements the error interface.
func (e *QueueFullError) Error() string {
	return fmt.Sprintf("conversation %s turn queue is full (capacity %d)", e.ConversationID, e.Capacity)
}
