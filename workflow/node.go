package workflow

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/pool"
)

// State is the shared value bag flowing through a graph run. Nodes read it
// and return deltas that the traversal merges in execution order.
type State map[string]any

// Clone returns a shallow copy.
func (s State) Clone() State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}

// Node is a unit of work in a Graph.
type Node interface {
	// Name returns the unique node identifier used in edges.
	Name() string

	// Run executes the node and returns a state delta to merge.
	Run(ctx context.Context, state State) (State, error)
}

// Router is implemented by nodes that pick a subset of their successors at
// runtime. Successors not returned are skipped.
type Router interface {
	Route(state State, successors []string) []string
}

// TaskNode runs an arbitrary function.
type TaskNode struct {
	name string
	fn   func(ctx context.Context, state State) (State, error)
}

// NewTaskNode creates a TaskNode.
func NewTaskNode(name string, fn func(ctx context.Context, state State) (State, error)) *TaskNode {
	return &TaskNode{name: name, fn: fn}
}

// Name implements Node.
func (n *TaskNode) Name() string { return n.name }

// Run implements Node.
func (n *TaskNode) Run(ctx context.Context, state State) (State, error) {
	return n.fn(ctx, state)
}

// ConditionNode routes to whenTrue or whenFalse based on a pure predicate
// over the state. It contributes no state delta.
type ConditionNode struct {
	name      string
	predicate func(state State) bool
	whenTrue  string
	whenFalse string
}

// NewConditionNode creates a ConditionNode. Both branch targets must be
// wired as successors of this node.
func NewConditionNode(name string, predicate func(state State) bool, whenTrue, whenFalse string) *ConditionNode {
	return &ConditionNode{name: name, predicate: predicate, whenTrue: whenTrue, whenFalse: whenFalse}
}

// Name implements Node.
func (n *ConditionNode) Name() string { return n.name }

// Run implements Node.
func (n *ConditionNode) Run(_ context.Context, _ State) (State, error) { return nil, nil }

// Route implements Router selecting exactly one branch.
func (n *ConditionNode) Route(state State, successors []string) []string {
	target := n.whenFalse
	if n.predicate(state) {
		target = n.whenTrue
	}
	for _, s := range successors {
		if s == target {
			return []string{target}
		}
	}
	return nil
}

// IteratorNode fans a body function out over an item sequence, bounded by
// maxItems, and stores the results in input order under outputKey.
type IteratorNode struct {
	name        string
	items       func(state State) []any
	body        func(ctx context.Context, item any, state State) (any, error)
	outputKey   string
	maxItems    int
	maxParallel int
}

// IteratorOption customizes an IteratorNode.
type IteratorOption func(n *IteratorNode)

// WithMaxItems bounds the number of items processed. Excess items fail the
// node rather than being silently dropped.
func WithMaxItems(n int) IteratorOption {
	return func(it *IteratorNode) { it.maxItems = n }
}

// WithIteratorParallelism bounds concurrent body executions.
func WithIteratorParallelism(n int) IteratorOption {
	return func(it *IteratorNode) { it.maxParallel = n }
}

// NewIteratorNode creates an IteratorNode.
func NewIteratorNode(
	name string,
	items func(state State) []any,
	body func(ctx context.Context, item any, state State) (any, error),
	outputKey string,
	optFns ...IteratorOption,
) *IteratorNode {
	it := &IteratorNode{
		name:        name,
		items:       items,
		body:        body,
		outputKey:   outputKey,
		maxItems:    100,
		maxParallel: 4,
	}
	for _, fn := range optFns {
		fn(it)
	}
	return it
}

// Name implements Node.
func (n *IteratorNode) Name() string { return n.name }

// Run implements Node. Body executions run concurrently; results keep the
// item order.
func (n *IteratorNode) Run(ctx context.Context, state State) (State, error) {
	items := n.items(state)
	if n.maxItems > 0 && len(items) > n.maxItems {
		return nil, fmt.Errorf("iterator %s received %d items exceeding the bound of %d", n.name, len(items), n.maxItems)
	}
	if len(items) == 0 {
		return State{n.outputKey: []any{}}, nil
	}

	results := make([]any, len(items))
	errs := make([]error, len(items))

	p := pool.New()
	if n.maxParallel > 0 {
		p = p.WithMaxGoroutines(n.maxParallel)
	}

	frozen := state.Clone()
	for i, item := range items {
		i, item := i, item
		p.Go(func() {
			results[i], errs[i] = n.body(ctx, item, frozen)
		})
	}
	p.Wait()

	for i, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("iterator %s item %d: %w", n.name, i, err)
		}
	}

	return State{n.outputKey: results}, nil
}

// CollectorNode gathers the values stored under inputKeys into one ordered
// slice at outputKey. Wired at a fan-in point it acts as the barrier join
// over the joined branches; missing keys (skipped branches) are omitted.
type CollectorNode struct {
	name      string
	inputKeys []string
	outputKey string
}

// NewCollectorNode creates a CollectorNode.
func NewCollectorNode(name string, inputKeys []string, outputKey string) *CollectorNode {
	return &CollectorNode{name: name, inputKeys: inputKeys, outputKey: outputKey}
}

// Name implements Node.
func (n *CollectorNode) Name() string { return n.name }

// Run implements Node.
func (n *CollectorNode) Run(_ context.Context, state State) (State, error) {
	collected := make([]any, 0, len(n.inputKeys))
	for _, key := range n.inputKeys {
		if v, ok := state[key]; ok {
			collected = append(collected, v)
		}
	}
	return State{n.outputKey: collected}, nil
}
