package workflow

import (
	"context"
	"fmt"

	"github.com/hupe1980/promptmesh/logging"
)

// GraphOptions configures a Graph.
type GraphOptions struct {
	Logger logging.Logger
}

// Graph is a directed acyclic graph of named nodes. Build it with AddNode /
// AddEdge / SetStart, then evaluate with Run. A Graph is safe for concurrent
// Run calls once construction is finished.
type Graph struct {
	name   string
	nodes  map[string]Node
	succ   map[string][]string
	pred   map[string][]string
	start  string
	logger logging.Logger
}

// NewGraph creates an empty graph.
func NewGraph(name string, optFns ...func(o *GraphOptions)) *Graph {
	opts := GraphOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Graph{
		name:   name,
		nodes:  make(map[string]Node),
		succ:   make(map[string][]string),
		pred:   make(map[string][]string),
		logger: opts.Logger,
	}
}

// AddNode registers a node. Duplicate names fail.
func (g *Graph) AddNode(n Node) error {
	name := n.Name()
	if name == "" {
		return fmt.Errorf("node name must not be empty")
	}
	if _, exists := g.nodes[name]; exists {
		return fmt.Errorf("node %s already exists in graph %s", name, g.name)
	}
	g.nodes[name] = n
	return nil
}

// AddEdge wires from -> to. Both nodes must already be registered.
func (g *Graph) AddEdge(from, to string) error {
	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("unknown node %s in graph %s", from, g.name)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("unknown node %s in graph %s", to, g.name)
	}
	g.succ[from] = append(g.succ[from], to)
	g.pred[to] = append(g.pred[to], from)
	return nil
}

// SetStart selects the entry node.
func (g *Graph) SetStart(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return fmt.Errorf("unknown node %s in graph %s", name, g.name)
	}
	g.start = name
	return nil
}

// Run evaluates the graph with an explicit work-list. A node executes once
// every inbound edge has resolved, so fan-in points join their branches
// before running. Skipped branches (unchosen condition targets) propagate:
// a node whose inbound edges all resolved as skipped is itself skipped.
// Node deltas merge into the shared state in execution order; the final
// state is returned.
func (g *Graph) Run(ctx context.Context, initial State) (State, error) {
	if g.start == "" {
		return nil, fmt.Errorf("graph %s has no start node", g.name)
	}

	state := initial.Clone()

	const (
		resolvedDone    = "done"
		resolvedSkipped = "skipped"
	)

	resolved := make(map[string]string, len(g.nodes))
	edgeActive := make(map[string]bool)

	edgeKey := func(from, to string) string { return from + "\x00" + to }

	ready := func(id string) bool {
		if id == g.start {
			return true
		}
		for _, p := range g.pred[id] {
			if resolved[p] == "" {
				return false
			}
		}
		return true
	}

	activated := func(id string) bool {
		if id == g.start {
			return true
		}
		for _, p := range g.pred[id] {
			if edgeActive[edgeKey(p, id)] {
				return true
			}
		}
		return false
	}

	queue := []string{g.start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if resolved[id] != "" || !ready(id) {
			continue
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		successors := g.succ[id]

		if !activated(id) {
			resolved[id] = resolvedSkipped
			queue = append(queue, successors...)
			continue
		}

		node := g.nodes[id]
		delta, err := node.Run(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("graph %s node %s: %w", g.name, id, err)
		}
		for k, v := range delta {
			state[k] = v
		}
		resolved[id] = resolvedDone

		g.logger.Debug("workflow.node", "graph", g.name, "node", id)

		activeSucc := successors
		if router, ok := node.(Router); ok {
			activeSucc = router.Route(state, successors)
		}
		activeSet := make(map[string]bool, len(activeSucc))
		for _, s := range activeSucc {
			activeSet[s] = true
		}
		for _, s := range successors {
			edgeActive[edgeKey(id, s)] = activeSet[s]
		}

		queue = append(queue, successors...)
	}

	return state, nil
}
