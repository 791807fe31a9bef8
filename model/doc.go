// Package model defines the model-invocation capability consumed by the
// conversation engine: a normalized Request (system prompt, message history,
// inference configuration, tool specs, tool choice) and Response (assistant
// message plus stop reason). Provider adapters live in subpackages
// (anthropic, openai); MockModel supports tests and examples; Retryable wraps
// any Model with exponential backoff and jitter for transient failures.
package model
