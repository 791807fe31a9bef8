// Package engine orchestrates multi-turn conversations against a language
// model. Each conversation is owned by a dedicated actor goroutine that
// processes user turns strictly one at a time (messages arriving mid-turn
// queue FIFO), while independent conversations run fully in parallel.
//
// A turn moves through a fixed state machine: input guardrail, optional
// retrieval, model invocation, tool dispatch rounds (bounded by
// MaxToolIterations), and output guardrail. Turn progress streams to the
// caller as core.Events over channels; PostUserMessageSync drains them for
// simple request-response use.
//
// Before every model invocation the engine enforces the context-window
// budget, pruning the oldest prunable messages from the request window (the
// persisted transcript is never truncated) and failing the turn with
// ContextOverflowError when pruning reaches the retained floor.
package engine
