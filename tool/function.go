package tool

import (
	"context"

	"github.com/hupe1980/promptmesh/internal/util"
)

// Handler is the implementation signature wrapped by FunctionTool. Input has
// already been validated against the tool's schema. Return MarkTransient(err)
// to request a retry; any other error becomes a terminal error Result.
type Handler func(ctx context.Context, input map[string]any) (any, error)

// FunctionTool adapts a plain Go function into a Tool.
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use.
type FunctionTool struct {
	name        string
	description string
	inputSchema map[string]any
	fn          Handler
}

// NewFunctionTool constructs a FunctionTool from an explicit JSON schema.
//
// Example:
//
//	sumTool := NewFunctionTool(
//	  "calculate_sum",
//	  "Calculate the sum of two numbers",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "a": map[string]any{"type": "number"},
//	      "b": map[string]any{"type": "number"},
//	    },
//	    "required": []string{"a", "b"},
//	  },
//	  func(ctx context.Context, input map[string]any) (any, error) {
//	    return input["a"].(float64) + input["b"].(float64), nil
//	  },
//	)
func NewFunctionTool(name, description string, inputSchema map[string]any, fn Handler) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		inputSchema: inputSchema,
		fn:          fn,
	}
}

// NewFunctionToolFromStruct derives the input schema from a struct using
// reflection. Pointer and omitempty fields become optional; the description
// tag becomes the property description.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sumTool := NewFunctionToolFromStruct("calculate_sum", "Calculate the sum of two numbers", SumArgs{}, fn)
func NewFunctionToolFromStruct(name, description string, structType any, fn Handler) *FunctionTool {
	return NewFunctionTool(name, description, util.CreateSchema(structType), fn)
}

// Spec implements Tool.
func (t *FunctionTool) Spec() Spec {
	return Spec{Name: t.name, Description: t.description, InputSchema: t.inputSchema}
}

// Call implements Tool.
func (t *FunctionTool) Call(ctx context.Context, input map[string]any) (any, error) {
	return t.fn(ctx, input)
}
