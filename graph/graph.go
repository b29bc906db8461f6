package graph

import (
	"context"

	"github.com/cockroachdb/errors"
)

// END is the name of the terminal node
const END = "__end__"

var (
	// ErrRecursionLimit is returned when a run exceeds the number of steps
	ErrRecursionLimit = errors.New("recursion limit reached")
	// ErrNodeNotFound is returned when an edge points to an unknown node
	ErrNodeNotFound = errors.New("node not found")
	// ErrInterrupted is returned when a run stops before an interrupt node
	ErrInterrupted = errors.New("interrupted")
)

// NodeFunc runs a step and returns the update to merge into the state
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// Router returns the key of the next node for the state
type Router[S any] func(ctx context.Context, state S) (string, error)

// Reducer merges the node update into the current state
type Reducer[S any] func(state, update S) S

type conditionalEdge[S any] struct {
	router  Router[S]
	pathMap map[string]string
}

// StateGraph is a builder of a graph over state S
type StateGraph[S any] struct {
	reducer     Reducer[S]
	nodes       map[string]NodeFunc[S]
	order       []string
	edges       map[string]string
	conditional map[string]conditionalEdge[S]
	entry       string
	err         error
}

// New returns a graph builder. When reducer is nil,
// the node update replaces the state.
func New[S any](reducer Reducer[S]) *StateGraph[S] {
	if reducer == nil {
		reducer = func(_, update S) S { return update }
	}
	return &StateGraph[S]{
		reducer:     reducer,
		nodes:       make(map[string]NodeFunc[S]),
		edges:       make(map[string]string),
		conditional: make(map[string]conditionalEdge[S]),
	}
}

// AddNode adds a named node
func (g *StateGraph[S]) AddNode(name string, fn NodeFunc[S]) *StateGraph[S] {
	switch {
	case name == "" || name == END:
		g.setErr(errors.Errorf("invalid node name: %q", name))
	case fn == nil:
		g.setErr(errors.Errorf("node %q: nil function", name))
	case g.nodes[name] != nil:
		g.setErr(errors.Errorf("node %q already exists", name))
	default:
		g.nodes[name] = fn
		g.order = append(g.order, name)
	}
	return g
}

// AddEdge adds unconditional transition from one node to another
func (g *StateGraph[S]) AddEdge(from, to string) *StateGraph[S] {
	if g.hasEdge(from) {
		g.setErr(errors.Errorf("node %q already has an outgoing edge", from))
		return g
	}
	g.edges[from] = to
	return g
}

// AddConditionalEdges adds transition chosen by router.
// The router result is looked up in pathMap, when pathMap is empty
// the result is the name of the next node.
func (g *StateGraph[S]) AddConditionalEdges(from string, router Router[S], pathMap map[string]string) *StateGraph[S] {
	if router == nil {
		g.setErr(errors.Errorf("node %q: nil router", from))
		return g
	}
	if g.hasEdge(from) {
		g.setErr(errors.Errorf("node %q already has an outgoing edge", from))
		return g
	}
	g.conditional[from] = conditionalEdge[S]{router: router, pathMap: pathMap}
	return g
}

// SetEntryPoint sets the first node
func (g *StateGraph[S]) SetEntryPoint(name string) *StateGraph[S] {
	g.entry = name
	return g
}

func (g *StateGraph[S]) hasEdge(from string) bool {
	_, ok := g.edges[from]
	if !ok {
		_, ok = g.conditional[from]
	}
	return ok
}

func (g *StateGraph[S]) setErr(err error) {
	if g.err == nil {
		g.err = err
	}
}

// Compile validates the graph and returns a runnable
func (g *StateGraph[S]) Compile(opts ...Option) (*Runnable[S], error) {
	if g.err != nil {
		return nil, g.err
	}
	if g.entry == "" {
		return nil, errors.New("entry point is not set")
	}
	if g.nodes[g.entry] == nil {
		return nil, errors.WithMessagef(ErrNodeNotFound, "entry point %q", g.entry)
	}

	for _, name := range g.order {
		if !g.hasEdge(name) {
			return nil, errors.Errorf("node %q has no outgoing edge", name)
		}
	}
	for from, to := range g.edges {
		if g.nodes[from] == nil {
			return nil, errors.WithMessagef(ErrNodeNotFound, "edge from %q", from)
		}
		if to != END && g.nodes[to] == nil {
			return nil, errors.WithMessagef(ErrNodeNotFound, "edge to %q", to)
		}
	}
	for from, ce := range g.conditional {
		if g.nodes[from] == nil {
			return nil, errors.WithMessagef(ErrNodeNotFound, "conditional edge from %q", from)
		}
		for _, to := range ce.pathMap {
			if to != END && g.nodes[to] == nil {
				return nil, errors.WithMessagef(ErrNodeNotFound, "conditional edge to %q", to)
			}
		}
	}

	r := &Runnable[S]{
		graph: g,
		config: config{
			recursionLimit: DefaultRecursionLimit,
			interrupts:     map[string]bool{},
		},
	}
	for _, opt := range opts {
		opt(&r.config)
	}
	for name := range r.interrupts {
		if g.nodes[name] == nil {
			return nil, errors.WithMessagef(ErrNodeNotFound, "interrupt before %q", name)
		}
	}
	return r, nil
}

// Nodes returns node names in the order they were added
func (g *StateGraph[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}
