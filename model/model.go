package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/promptmesh/core"
)

// StopReason explains why the model stopped generating.
type StopReason string

const (
	// StopEndTurn signals a complete assistant turn.
	StopEndTurn StopReason = "end_turn"
	// StopToolUse signals the assistant requested one or more tool calls.
	StopToolUse StopReason = "tool_use"
	// StopMaxTokens signals the configured output token limit was reached.
	StopMaxTokens StopReason = "max_tokens"
	// StopGuardrailIntervened signals a provider-side guardrail interrupted generation.
	StopGuardrailIntervened StopReason = "guardrail_intervened"
)

// InferenceConfig holds the generation parameters attached to a prompt variant
// and forwarded to the provider on every invocation.
type InferenceConfig struct {
	MaxTokens     int      `json:"max_tokens,omitempty"`
	Temperature   float64  `json:"temperature,omitempty"`
	TopP          float64  `json:"top_p,omitempty"`
	StopSequences []string `json:"stop_sequences,omitempty"`
}

// ToolChoice steers whether the model may, must or must not call tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone disables tool calling for the invocation.
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceAny forces the model to call some tool.
	ToolChoiceAny ToolChoice = "any"
)

// ToolDefinition declaratively exposes a callable tool to the model.
// InputSchema is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	SystemPrompt string           `json:"system_prompt,omitempty"`
	Messages     []core.Message   `json:"messages"`
	Inference    InferenceConfig  `json:"inference"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   ToolChoice       `json:"tool_choice,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final result of one model invocation.
type Response struct {
	Message    core.Message `json:"message"`
	StopReason StopReason   `json:"stop_reason"`
	Usage      *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the model-invocation capability consumed by the engine. Invoke is a
// blocking, context-aware suspension point; one call produces exactly one
// response or an error.
type Model interface {
	Invoke(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockResponder produces a scripted response for a request. Used by MockModel.
type MockResponder func(req Request) (*Response, error)

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are consumed from a FIFO script; when the script is exhausted (or
// empty) the model echoes the last user message. A Responder overrides the
// script entirely.
type MockModel struct {
	info      Info
	mu        sync.Mutex
	script    []*Response
	responder MockResponder
	calls     int
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      "mock",
			SupportsTools: true,
		},
	}
}

// Enqueue appends scripted responses consumed in FIFO order by Invoke.
func (m *MockModel) Enqueue(responses ...*Response) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, responses...)
}

// SetResponder installs a function that produces every response, bypassing the script.
func (m *MockModel) SetResponder(fn MockResponder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
}

// Calls returns how many times Invoke has been called.
func (m *MockModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Invoke implements Model.
func (m *MockModel) Invoke(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.calls++
	responder := m.responder
	var scripted *Response
	if responder == nil && len(m.script) > 0 {
		scripted = m.script[0]
		m.script = m.script[1:]
	}
	m.mu.Unlock()

	if responder != nil {
		return responder(req)
	}
	if scripted != nil {
		return scripted, nil
	}

	var lastUser string
	for _, msg := range req.Messages {
		if msg.Role == core.RoleUser {
			lastUser = msg.Text()
		}
	}

	return &Response{
		Message:    core.NewAssistantMessage(fmt.Sprintf("Mock response to: %s", lastUser)),
		StopReason: StopEndTurn,
	}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
