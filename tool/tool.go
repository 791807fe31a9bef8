// Package tool implements the function / tool calling subsystem: structured
// capabilities invoked with schema validated arguments, per-call timeouts,
// bounded retries and consistent error capture. Failures surface as structured
// error Results, never as raised errors, so a misbehaving tool cannot take
// down a conversation turn.
package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Spec describes a registered tool to models and callers.
type Spec struct {
	// Name is the unique identifier (snake_case recommended).
	Name string `json:"name"`
	// Description is shown to the LLM to guide tool selection.
	Description string `json:"description"`
	// InputSchema is a JSON Schema for the accepted arguments.
	InputSchema map[string]any `json:"input_schema"`
}

// Tool is a callable capability registered with a Dispatcher.
//
// Implementations should be thread-safe; the dispatcher invokes tools
// concurrently within a batch.
type Tool interface {
	// Spec returns the tool's name, description and input schema.
	Spec() Spec

	// Call executes the tool with already validated arguments.
	Call(ctx context.Context, input map[string]any) (any, error)
}

// Status of a completed tool call.
type Status string

const (
	// StatusDone indicates successful execution.
	StatusDone Status = "done"
	// StatusError indicates a validation, lookup or handler failure.
	StatusError Status = "error"
	// StatusTimeout indicates the call exceeded its deadline on every attempt.
	StatusTimeout Status = "timeout"
	// StatusCancelled indicates the surrounding turn was cancelled.
	StatusCancelled Status = "cancelled"
)

// Result is the structured outcome of one tool call. Exactly one Result is
// produced per call; failures are carried in Status and Error rather than
// returned as Go errors.
type Result struct {
	CallID   string        `json:"call_id"`
	Name     string        `json:"name"`
	Status   Status        `json:"status"`
	Content  any           `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}

// OK reports whether the call succeeded.
func (r *Result) OK() bool { return r.Status == StatusDone }

// SchemaValidationError reports arguments rejected by a tool's input schema.
type SchemaValidationError struct {
	Tool   string
	Causes []string
}

// Error implements the error interface.
func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("invalid input for tool %s: %s", e.Tool, strings.Join(e.Causes, "; "))
}

// NotFoundError reports a call naming an unregistered tool.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %s is not registered", e.Name)
}

// TimeoutError reports a tool call that exceeded its deadline on every
// attempt. It is recorded inside the Result, not returned to the caller.
type TimeoutError struct {
	Tool    string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("tool %s timed out after %s", e.Tool, e.Timeout)
}

// TransientError marks a handler failure as retryable by the dispatcher.
type TransientError struct {
	Err error
}

// Error implements the error interface.
func (e *TransientError) Error() string { return e.Err.Error() }

// Unwrap supports errors.Is / errors.As.
func (e *TransientError) Unwrap() error { return e.Err }

// MarkTransient wraps err so the dispatcher retries the call.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
