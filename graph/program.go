package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelai/agentgraph/graph/emit"
	"github.com/kestrelai/agentgraph/graph/store"
)

// Program is the compiled, immutable topology an Engine runs: a map of
// name to Node, the static and conditional edges between them, the entry
// node, an optional interrupt-before set for human-in-the-loop review,
// default execution config, and optional checkpointer/observer bindings.
//
// Build the program with NewProgram and the With* builder methods, then
// call Build to validate it before handing it to New.
type Program[S any] struct {
	nodes            map[string]Node[S]
	edges            []Edge
	conditionalEdges []ConditionalEdge[S]
	entry            string
	interruptBefore  map[string]bool
	defaults         Config
	wallClockBudget  time.Duration

	checkpointer store.Checkpointer[S]
	threadID     string
	emitter      emit.Emitter

	// reduce is only set when this Program is to be used as a subgraph
	// node (see WithReducer, Run). A top-level Program that is only ever
	// driven by an explicit Engine does not need one.
	reduce Reducer[S]
}

// NewProgram creates an empty, unbuilt Program.
func NewProgram[S any](opts ...Option[S]) *Program[S] {
	p := &Program[S]{
		nodes:           make(map[string]Node[S]),
		interruptBefore: make(map[string]bool),
		defaults:        DefaultConfig(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AddNode registers a node under name. Re-registering an existing name
// is an error surfaced at Build time, not here, so builder calls can be
// chained without per-call error checking.
func (p *Program[S]) AddNode(name string, n Node[S]) *Program[S] {
	if p.nodes == nil {
		p.nodes = make(map[string]Node[S])
	}
	if _, exists := p.nodes[name]; exists {
		p.nodes[name] = duplicateNodeMarker[S]{orig: n}
		return p
	}
	p.nodes[name] = n
	return p
}

// duplicateNodeMarker wraps a re-registration so Build can report
// DuplicateNode deterministically instead of silently overwriting.
type duplicateNodeMarker[S any] struct{ orig Node[S] }

func (duplicateNodeMarker[S]) Run(_ context.Context, state S, _ GraphContext) (S, error) {
	return state, fmt.Errorf("unreachable: duplicate node invoked")
}

// AddEdge adds a static edge from one node to another.
func (p *Program[S]) AddEdge(from, to string) *Program[S] {
	p.edges = append(p.edges, Edge{From: from, To: to})
	return p
}

// AddEdges adds one static edge from "from" to each of "to".
func (p *Program[S]) AddEdges(from string, to []string) *Program[S] {
	for _, t := range to {
		p.edges = append(p.edges, Edge{From: from, To: t})
	}
	return p
}

// AddConditionalEdge adds a router evaluated against the merged state
// after "from" runs; its return value names the successors to dispatch.
func (p *Program[S]) AddConditionalEdge(from string, when Router[S]) *Program[S] {
	p.conditionalEdges = append(p.conditionalEdges, ConditionalEdge[S]{From: from, When: when})
	return p
}

// SetEntry designates the program's entry node.
func (p *Program[S]) SetEntry(name string) *Program[S] {
	p.entry = name
	return p
}

// WithInterruptBefore marks nodes the engine must halt before, persisting
// a checkpoint and returning Interrupted rather than dispatching them.
func (p *Program[S]) WithInterruptBefore(names ...string) *Program[S] {
	if p.interruptBefore == nil {
		p.interruptBefore = make(map[string]bool)
	}
	for _, n := range names {
		p.interruptBefore[n] = true
	}
	return p
}

// WithCheckpointer binds a Checkpointer and the thread id checkpoints are
// saved/loaded under.
func (p *Program[S]) WithCheckpointer(cp store.Checkpointer[S], threadID string) *Program[S] {
	p.checkpointer = cp
	p.threadID = threadID
	return p
}

// WithObserver binds an Emitter that receives lifecycle events as the
// engine runs.
func (p *Program[S]) WithObserver(e emit.Emitter) *Program[S] {
	p.emitter = e
	return p
}

// WithDefaultConfig overrides the program's safety knob defaults wholesale.
func (p *Program[S]) WithDefaultConfig(cfg Config) *Program[S] {
	p.defaults = cfg
	return p
}

// WithReducer binds the Reducer this Program uses when it is itself
// registered as a node in an outer Program (see Run). Top-level programs
// driven directly by an Engine via New do not need this; it only matters
// for subgraph-as-node composition.
func (p *Program[S]) WithReducer(reduce Reducer[S]) *Program[S] {
	p.reduce = reduce
	return p
}

// ProgramError reports a build-time topology defect.
type ProgramError struct {
	Kind    string
	Detail  string
}

func (e *ProgramError) Error() string {
	return fmt.Sprintf("graph: program %s: %s", e.Kind, e.Detail)
}

// Build validates the topology: every referenced node name other than
// START/END must be registered, the entry must exist, and no name may be
// registered twice. It returns the validated Program unchanged on
// success so Build can be chained into New.
func (p *Program[S]) Build() (*Program[S], error) {
	if p.entry == "" {
		return nil, &ProgramError{Kind: "MissingEntry", Detail: "no entry node set"}
	}
	if _, ok := p.nodes[p.entry]; !ok {
		return nil, &ProgramError{Kind: "MissingNode", Detail: "entry node " + p.entry + " is not registered"}
	}
	for name, n := range p.nodes {
		if _, dup := n.(duplicateNodeMarker[S]); dup {
			return nil, &ProgramError{Kind: "DuplicateNode", Detail: name}
		}
	}
	for _, e := range p.edges {
		if err := p.checkRef(e.From); err != nil {
			return nil, err
		}
		if err := p.checkRef(e.To); err != nil {
			return nil, err
		}
	}
	for _, ce := range p.conditionalEdges {
		if err := p.checkRef(ce.From); err != nil {
			return nil, err
		}
		if ce.When == nil {
			return nil, &ProgramError{Kind: "MissingRouter", Detail: ce.From}
		}
	}
	for name := range p.interruptBefore {
		if err := p.checkRef(name); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Run implements Node[S], letting a compiled Program be registered as a
// node inside another Program. The nested run shares the caller's
// context and folds with the subgraph's own reducer (see WithReducer;
// without one, each delta replaces the state). It takes nothing from
// gctx: the nested run gets a fresh RunID, checkpoints under the
// subgraph's own thread id (or that fresh RunID when none is bound), and
// agent events of inner nodes are not forwarded to gctx.Events.
func (p *Program[S]) Run(ctx context.Context, state S, gctx GraphContext) (S, error) {
	reduce := p.reduce
	if reduce == nil {
		reduce = func(_, delta S) S { return delta }
	}
	engine := New(p, reduce)
	res, err := engine.run(ctx, state, ExecutionOptions{}, nil)
	if err != nil {
		return state, err
	}
	return res.State, nil
}

func (p *Program[S]) checkRef(name string) error {
	if name == START || name == END {
		return nil
	}
	if _, ok := p.nodes[name]; !ok {
		return &ProgramError{Kind: "MissingNode", Detail: name}
	}
	return nil
}

// successors computes the set of node names to dispatch next after
// nodeID ran and state was merged, combining static and conditional
// edges. Duplicates are preserved: a fan-in node reached via two
// producers runs twice.
func (p *Program[S]) successors(nodeID string, state S) []string {
	var out []string
	for _, e := range p.edges {
		if e.From == nodeID && e.To != START {
			if e.To == END {
				continue
			}
			out = append(out, e.To)
		}
	}
	for _, ce := range p.conditionalEdges {
		if ce.From != nodeID {
			continue
		}
		for _, target := range ce.When(state) {
			if target == END || target == START {
				continue
			}
			out = append(out, target)
		}
	}
	return out
}
