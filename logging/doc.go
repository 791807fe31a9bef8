// Package logging provides a minimal logging interface and adapters for promptmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the engine and its collaborators use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - MeshLogger with contextual helpers (conversation, turn, component) and
//     domain specific helpers for tool calls, model calls and guardrail outcomes
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	eng := engine.New(mdl, func(o *engine.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
