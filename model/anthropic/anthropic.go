// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/promptmesh/core"
	"github.com/hupe1980/promptmesh/model"
)

// Options configures the Anthropic model adapter (model id, default max
// tokens / temperature, API key). Per-request inference configuration from a
// prompt variant overrides these defaults.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0.7,
		MaxTokens:   4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Invoke adapts the Anthropic Messages API (with tool calling) into the
// normalized Response. Rate limits and server-side faults are surfaced as
// retryable invocation errors.
func (m *Model) Invoke(ctx context.Context, req model.Request) (*model.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     m.opts.Model,
		Messages:  m.buildMessages(req.Messages),
		MaxTokens: m.opts.MaxTokens,
	}

	temperature := m.opts.Temperature
	if req.Inference.Temperature > 0 {
		temperature = req.Inference.Temperature
	}
	params.Temperature = anthropic.Float(temperature)

	if req.Inference.MaxTokens > 0 {
		params.MaxTokens = int64(req.Inference.MaxTokens)
	}
	if req.Inference.TopP > 0 {
		params.TopP = anthropic.Float(req.Inference.TopP)
	}
	if len(req.Inference.StopSequences) > 0 {
		params.StopSequences = req.Inference.StopSequences
	}

	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}

	if len(req.Tools) > 0 && req.ToolChoice != model.ToolChoiceNone {
		params.Tools = m.buildTools(req.Tools)
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, model.NewInvocationError("anthropic", isRetryable(err), fmt.Errorf("anthropic api error: %w", err))
	}

	// Build message parts (text + tool uses)
	var parts []core.Part

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			textBlock := block.AsText()
			if textBlock.Text != "" {
				parts = append(parts, core.TextPart{Text: textBlock.Text})
			}
		case "tool_use":
			toolBlock := block.AsToolUse()
			input := ""
			if toolBlock.Input != nil {
				if inputBytes, err := json.Marshal(toolBlock.Input); err == nil {
					input = string(inputBytes)
				}
			}
			parts = append(parts, core.ToolUsePart{
				ToolUse: core.ToolUse{
					ID:    toolBlock.ID,
					Name:  toolBlock.Name,
					Input: input,
				},
			})
		}
	}

	return &model.Response{
		Message:    core.Message{Role: core.RoleAssistant, Parts: parts},
		StopReason: mapStopReason(string(resp.StopReason)),
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}

// buildMessages converts transcript messages to Anthropic message format.
// Tool results become tool_result blocks inside user-role messages as the
// Messages API expects.
func (m *Model) buildMessages(messages []core.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case core.RoleUser:
			content := buildTextContent(msg.Parts)
			if len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		case core.RoleAssistant:
			content := buildAssistantContent(msg.Parts)
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
		case core.RoleTool:
			var content []anthropic.ContentBlockParamUnion
			for _, result := range msg.ToolResults() {
				content = append(content, anthropic.NewToolResultBlock(result.CallID, resultText(result), result.Error != ""))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		default:
			// Treat unknown roles as user
			content := buildTextContent(msg.Parts)
			if len(content) > 0 {
				out = append(out, anthropic.NewUserMessage(content...))
			}
		}
	}

	return out
}

// buildTextContent builds content blocks from text parts only.
func buildTextContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		if tp, ok := p.(core.TextPart); ok && tp.Text != "" {
			content = append(content, anthropic.NewTextBlock(tp.Text))
		}
	}

	return content
}

// buildAssistantContent builds content blocks for assistant messages (text + tool_use).
func buildAssistantContent(parts []core.Part) []anthropic.ContentBlockParamUnion {
	var content []anthropic.ContentBlockParamUnion

	for _, p := range parts {
		switch part := p.(type) {
		case core.TextPart:
			if part.Text != "" {
				content = append(content, anthropic.NewTextBlock(part.Text))
			}
		case core.ToolUsePart:
			var input interface{}
			if part.ToolUse.Input != "" {
				if err := json.Unmarshal([]byte(part.ToolUse.Input), &input); err != nil {
					input = part.ToolUse.Input // fallback to string
				}
			}

			content = append(content, anthropic.NewToolUseBlock(
				part.ToolUse.ID,
				input,
				part.ToolUse.Name,
			))
		}
	}

	return content
}

// buildTools converts normalized tool definitions to Anthropic tool format.
func (m *Model) buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, t := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if props, ok := t.InputSchema["properties"]; ok {
			inputSchema.Properties = props
		}
		if required, ok := t.InputSchema["required"]; ok {
			inputSchema.Required = toStringSlice(required)
		}

		anthropicTools[i] = anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: inputSchema,
			},
		}
	}

	return anthropicTools
}

// toStringSlice normalizes a schema "required" value that may be []string or []any.
func toStringSlice(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// resultText renders a tool result as the textual payload Anthropic expects.
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

// mapStopReason normalizes Anthropic stop reasons onto the model package enum.
func mapStopReason(reason string) model.StopReason {
	switch reason {
	case "tool_use":
		return model.StopToolUse
	case "max_tokens":
		return model.StopMaxTokens
	case "end_turn", "stop_sequence", "":
		return model.StopEndTurn
	default:
		return model.StopEndTurn
	}
}

// isRetryable classifies provider errors: rate limits and server faults are
// worth retrying, everything else surfaces immediately.
func isRetryable(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}
