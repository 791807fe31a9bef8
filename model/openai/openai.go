// Package openai provides an implementation of model.Model using the OpenAI
// Chat Completions API (including function/tool calling). It adapts the
// normalized Request/Response structures into the SDK's message format and back.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/model"
	"github.com/openai/openai-go"
)

// Options configure the OpenAI model adapter.
// Fields mirror a subset of Chat Completion parameters intentionally kept
// minimal; per-request inference configuration overrides these defaults.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int64
}

// Model wraps the OpenAI Chat Completions API behind the generic model.Model interface.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates a new OpenAI model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	client := openai.NewClient()
	return NewModelFromClient(&client, optFns...)
}

// NewModelFromClient creates a new OpenAI model from an existing client
func NewModelFromClient(client *openai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:               openai.ChatModelGPT4oMini,
		Temperature:         0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Invoke adapts OpenAI Chat Completions (with tool calling) into the
// normalized Response. Rate limits and server-side faults are surfaced as
// retryable invocation errors.
func (m *Model) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	params := m.buildParams(req, buildMessages(req))

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, model.NewInvocationError("openai", isRetryable(err), fmt.Errorf("openai api error: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, model.NewInvocationError("openai", false, fmt.Errorf("no choices returned"))
	}

	ch0 := resp.Choices[0]
	parts := make([]core.Part, 0, len(ch0.Message.ToolCalls)+1)
	if ch0.Message.Content != "" {
		parts = append(parts, core.TextPart{Text: ch0.Message.Content})
	}
	for _, tc := range ch0.Message.ToolCalls {
		parts = append(parts, core.ToolUsePart{ToolUse: core.ToolUse{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: tc.Function.Arguments,
		}})
	}

	return &model.Response{
		Message:    core.Message{Role: core.RoleAssistant, Parts: parts},
		StopReason: mapFinishReason(ch0.FinishReason),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Info returns metadata describing this OpenAI model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openai",
		SupportsTools: true,
	}
}

// buildMessages converts normalized messages into OpenAI chat messages. Tool
// results are emitted as tool-role messages keyed by call id, directly after
// the assistant message that requested them (transcript order guarantees this).
func buildMessages(req model.Request) []openai.ChatCompletionMessageParamUnion {
	var messages []openai.ChatCompletionMessageParamUnion

	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	for _, msg := range req.Messages {
		switch msg.Role {
		case core.RoleUser:
			if text := msg.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		case core.RoleAssistant:
			toolCalls := extractToolCalls(msg)
			if len(toolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(msg.Text()))
				continue
			}
			messages = append(
				messages,
				openai.ChatCompletionMessageParamUnion{OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				}},
			)
		case core.RoleTool:
			for _, result := range msg.ToolResults() {
				messages = append(messages, openai.ToolMessage(resultText(result), result.CallID))
			}
		default:
			if text := msg.Text(); text != "" {
				messages = append(messages, openai.UserMessage(text))
			}
		}
	}

	return messages
}

// extractToolCalls converts tool-use parts into OpenAI formatted tool calls.
func extractToolCalls(msg core.Message) []openai.ChatCompletionMessageToolCallParam {
	var toolCalls []openai.ChatCompletionMessageToolCallParam
	for _, use := range msg.ToolUses() {
		toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
			ID:   use.ID,
			Type: "function",
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      use.Name,
				Arguments: use.Input,
			},
		})
	}
	return toolCalls
}

// buildParams assembles the OpenAI request parameters including tool definitions.
func (m *Model) buildParams(
	req model.Request,
	messages []openai.ChatCompletionMessageParamUnion,
) openai.ChatCompletionNewParams {
	temperature := m.opts.Temperature
	if req.Inference.Temperature > 0 {
		temperature = req.Inference.Temperature
	}

	maxTokens := m.opts.MaxCompletionTokens
	if req.Inference.MaxTokens > 0 {
		maxTokens = int64(req.Inference.MaxTokens)
	}

	params := openai.ChatCompletionNewParams{
		Messages:            messages,
		Model:               m.opts.Model,
		Temperature:         openai.Float(temperature),
		MaxCompletionTokens: openai.Int(maxTokens),
	}

	if req.Inference.TopP > 0 {
		params.TopP = openai.Float(req.Inference.TopP)
	}
	if len(req.Inference.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Inference.StopSequences}
	}

	if len(req.Tools) == 0 || req.ToolChoice == model.ToolChoiceNone {
		return params
	}
	tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
	for i, tdef := range req.Tools {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        tdef.Name,
				Description: openai.String(tdef.Description),
				Parameters:  tdef.InputSchema,
			},
		}
	}
	params.Tools = tools
	return params
}

// resultText renders a tool result as the textual payload OpenAI expects.
func resultText(result core.ToolResult) string {
	if result.Error != "" {
		return result.Error
	}
	if s, ok := result.Content.(string); ok {
		return s
	}
	if b, err := json.Marshal(result.Content); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", result.Content)
}

// mapFinishReason normalizes OpenAI finish reasons onto the model package enum.
func mapFinishReason(reason string) model.StopReason {
	switch reason {
	case "tool_calls":
		return model.StopToolUse
	case "length":
		return model.StopMaxTokens
	case "content_filter":
		return model.StopGuardrailIntervened
	default:
		return model.StopEndTurn
	}
}

// isRetryable classifies provider errors: rate limits and server faults are
// worth retrying, everything else surfaces immediately.
func isRetryable(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
