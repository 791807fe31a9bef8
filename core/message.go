package core

// Conversation roles. System content is carried separately as the system
// prompt; transcript messages only use user, assistant and tool.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Part represents a polymorphic segment of a message. Concrete part types
// implement the unexported isPart marker enabling a closed set.
type Part interface{ isPart() }

// TextPart is a plain text content segment.
type TextPart struct {
	Text     string         // Plain UTF-8 text
	Metadata map[string]any // Optional producer-provided metadata
}

// isPart implements the Part interface for TextPart.
func (TextPart) isPart() {}

// ToolUse describes a tool invocation requested by the model.
type ToolUse struct {
	ID    string `json:"id"`              // Call id correlating request & result
	Name  string `json:"name"`            // Tool name
	Input string `json:"input,omitempty"` // Serialized JSON argument payload
}

// ToolUsePart wraps a ToolUse request as a message part.
type ToolUsePart struct {
	ToolUse  ToolUse
	Metadata map[string]any
}

// isPart implements the Part interface for ToolUsePart.
func (ToolUsePart) isPart() {}

// ToolResult describes the outcome of a tool call. Exactly one result exists
// per call id before the engine resumes model invocation.
type ToolResult struct {
	CallID  string `json:"call_id"`           // Matches originating ToolUse ID
	Name    string `json:"name"`              // Tool name
	Content any    `json:"content,omitempty"` // Successful output (any JSON-serializable shape)
	Error   string `json:"error,omitempty"`   // Populated on failure / timeout / cancellation
}

// ToolResultPart wraps a ToolResult as a message part.
type ToolResultPart struct {
	ToolResult ToolResult
	Metadata   map[string]any
}

// isPart implements the Part interface for ToolResultPart.
func (ToolResultPart) isPart() {}

// Message holds a role plus ordered heterogeneous parts. Messages are
// immutable once appended to a conversation.
type Message struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// NewUserMessage builds a single-text-part user message.
func NewUserMessage(text string) Message {
	return Message{Role: RoleUser, Parts: []Part{TextPart{Text: text}}}
}

// NewAssistantMessage builds a single-text-part assistant message.
func NewAssistantMessage(text string) Message {
	return Message{Role: RoleAssistant, Parts: []Part{TextPart{Text: text}}}
}

// NewToolResultMessage wraps one or more tool results into a tool-role message.
// Result order is preserved.
func NewToolResultMessage(results ...ToolResult) Message {
	parts := make([]Part, 0, len(results))
	for _, r := range results {
		parts = append(parts, ToolResultPart{ToolResult: r})
	}
	return Message{Role: RoleTool, Parts: parts}
}

// Text concatenates all text parts of the message in order.
func (m Message) Text() string {
	var text string
	for _, p := range m.Parts {
		if tp, ok := p.(TextPart); ok {
			text += tp.Text
		}
	}
	return text
}

// ToolUses returns any tool-use requests contained within the message
// preserving their original order.
func (m Message) ToolUses() []ToolUse {
	var uses []ToolUse
	for _, p := range m.Parts {
		if tu, ok := p.(ToolUsePart); ok {
			uses = append(uses, tu.ToolUse)
		}
	}
	return uses
}

// ToolResults returns any tool results contained within the message
// preserving their original order.
func (m Message) ToolResults() []ToolResult {
	var results []ToolResult
	for _, p := range m.Parts {
		if tr, ok := p.(ToolResultPart); ok {
			results = append(results, tr.ToolResult)
		}
	}
	return results
}

// HasToolUse reports whether the message requests at least one tool call.
func (m Message) HasToolUse() bool {
	for _, p := range m.Parts {
		if _, ok := p.(ToolUsePart); ok {
			return true
		}
	}
	return false
}
