package model

import (
	"errors"
	"fmt"
)

// InvocationError wraps a provider failure and classifies whether it is worth
// retrying (rate limits, transient network faults) or must surface to the
// caller immediately (auth failures, malformed requests).
type InvocationError struct {
	Provider  string // Provider identifier ("anthropic", "openai", ...)
	Retryable bool   // Whether a retry with backoff may succeed
	Err       error  // Underlying provider error
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("model invocation error (provider=%s, retryable=%t): %v", e.Provider, e.Retryable, e.Err)
}

// Unwrap exposes the underlying provider error to errors.Is / errors.As.
func (e *InvocationError) Unwrap() error { return e.Err }

// NewInvocationError constructs an InvocationError.
func NewInvocationError(provider string, retryable bool, err error) *InvocationError {
	return &InvocationError{Provider: provider, Retryable: retryable, Err: err}
}

// IsRetryable reports whether err is an InvocationError marked retryable.
func IsRetryable(err error) bool {
	var ie *InvocationError
	if errors.As(err, &ie) {
		return ie.Retryable
	}
	return false
}
