// Package workflow provides a small typed-node graph for composing
// multi-step conversational pipelines around the engine. A Graph is built
// from named nodes wired by directed edges and evaluated with an explicit
// work-list: a node runs once all of its inbound edges have resolved, so
// fan-in nodes act as barrier joins over their branches.
//
// Node kinds:
//   - TaskNode runs a function against the shared state
//   - ConditionNode routes to exactly one successor via a pure predicate;
//     the unchosen branch is skipped and the skip propagates
//   - IteratorNode fans out a body over a bounded item sequence and stores
//     the ordered results
//   - CollectorNode gathers branch outputs into a single value, typically
//     placed at a join point
package workflow
