package global

import (
	"github.com/yourbasic/graph"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/callgraph"
	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
	"github.com/715d/typeflow/pkg/local"
	"github.com/715d/typeflow/pkg/resolver"
)

// GlobalTypeAnalyzer propagates argument partitions over the call graph to
// a monotone fixpoint. Each node's entry partition is the join over its
// incoming edges of the caller's outgoing partition projected through the
// edge; each node's transfer replays the intraprocedural analysis and
// captures argument environments at every call site the graph recorded.
type GlobalTypeAnalyzer struct {
	program *ir.Program
	cg      *callgraph.Graph
	res     *resolver.Resolver
	view    local.WholeProgramView
	tracer  *trace.Tracer

	nodes   []*callgraph.Node
	index   map[*callgraph.Node]int
	entries []lattice.ArgumentTypePartition
}

func newGlobalTypeAnalyzer(program *ir.Program, cg *callgraph.Graph, res *resolver.Resolver, view local.WholeProgramView, tracer *trace.Tracer) *GlobalTypeAnalyzer {
	g := &GlobalTypeAnalyzer{
		program: program,
		cg:      cg,
		res:     res,
		view:    view,
		tracer:  tracer,
	}
	g.indexNodes()
	g.entries = make([]lattice.ArgumentTypePartition, len(g.nodes))
	for i := range g.entries {
		g.entries[i] = lattice.PartitionBottom()
	}
	return g
}

// indexNodes assigns dense ids to every node reachable from ghost entry,
// in breadth-first discovery order.
func (g *GlobalTypeAnalyzer) indexNodes() {
	g.index = make(map[*callgraph.Node]int)
	queue := []*callgraph.Node{g.cg.Entry()}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if _, seen := g.index[n]; seen {
			continue
		}
		g.index[n] = len(g.nodes)
		g.nodes = append(g.nodes, n)
		for _, e := range n.Callees() {
			queue = append(queue, e.Callee())
		}
	}
}

// run iterates to fixpoint. The initial worklist visits the nodes in
// topological order of the strongly-connected-component condensation, so
// acyclic regions converge in one pass and only cycles re-enqueue.
func (g *GlobalTypeAnalyzer) run() {
	entry := g.index[g.cg.Entry()]
	g.entries[entry] = lattice.PartitionBottom().Set(lattice.CurrentLabel, lattice.EnvTop())

	order := g.componentOrder()
	pending := make([]bool, len(g.nodes))
	worklist := make([]int, 0, len(order))
	for _, id := range order {
		worklist = append(worklist, id)
		pending[id] = true
	}

	steps := 0
	for len(worklist) > 0 {
		id := worklist[0]
		worklist = worklist[1:]
		pending[id] = false
		steps++

		node := g.nodes[id]
		out := g.analyzeNode(node, g.entries[id])
		for _, e := range node.Callees() {
			calleeID := g.index[e.Callee()]
			contrib := g.analyzeEdge(e, out)
			joined := g.entries[calleeID].Join(contrib)
			if joined.Leq(g.entries[calleeID]) {
				continue
			}
			g.entries[calleeID] = joined
			if !pending[calleeID] {
				pending[calleeID] = true
				worklist = append(worklist, calleeID)
			}
		}
	}
	g.tracer.Tracef(trace.Type, 3, "interprocedural fixpoint: %d nodes, %d steps", len(g.nodes), steps)
}

// componentOrder returns all node ids ordered so that callers precede
// callees wherever the condensation permits.
func (g *GlobalTypeAnalyzer) componentOrder() []int {
	cg := graph.New(len(g.nodes))
	for id, n := range g.nodes {
		for _, e := range n.Callees() {
			cg.Add(id, g.index[e.Callee()])
		}
	}
	// StrongComponents yields components in reverse topological order.
	components := graph.StrongComponents(cg)
	order := make([]int, 0, len(g.nodes))
	for i := len(components) - 1; i >= 0; i-- {
		order = append(order, components[i]...)
	}
	return order
}

// analyzeNode computes a node's outgoing partition from its entry
// partition. Ghost and bodyless nodes pass their state through unchanged.
func (g *GlobalTypeAnalyzer) analyzeNode(n *callgraph.Node, entry lattice.ArgumentTypePartition) lattice.ArgumentTypePartition {
	m := n.Method()
	if m == nil || m.Code == nil {
		return entry
	}
	args := entry.Get(lattice.CurrentLabel)
	if args.IsBottom() {
		return lattice.PartitionBottom()
	}

	recorded := make(map[*ir.Instruction]bool)
	for _, e := range n.Callees() {
		if e.Invoke() != nil {
			recorded[e.Invoke()] = true
		}
	}

	la := local.NewAnalyzer(m, g.res, g.view, g.tracer)
	la.Run(local.EnvWithParams(m, args))

	out := entry
	for _, b := range m.Code.Blocks {
		st := la.EntryStateAt(b)
		if st.IsBottom() {
			continue
		}
		for _, insn := range b.Instrs {
			if insn.IsInvoke() && recorded[insn] {
				out = out.Update(insn, local.CallArguments(insn, st))
			}
			la.AnalyzeInstruction(insn, &st)
		}
	}
	return out
}

// analyzeEdge projects a caller's outgoing partition into the contribution
// flowing along one edge: the environment captured at the edge's call
// instruction becomes the callee's current-context environment. Sentinel
// edges carry no call site and contribute the unconstrained environment.
func (g *GlobalTypeAnalyzer) analyzeEdge(e *callgraph.Edge, out lattice.ArgumentTypePartition) lattice.ArgumentTypePartition {
	env := lattice.EnvTop()
	if e.Invoke() != nil {
		env = out.Get(e.Invoke())
	}
	return lattice.PartitionBottom().Set(lattice.CurrentLabel, env)
}

// EntryPartition returns the fixpoint entry partition of a method's node.
func (g *GlobalTypeAnalyzer) EntryPartition(m *ir.Method) lattice.ArgumentTypePartition {
	if !g.cg.HasNode(m) {
		return lattice.PartitionBottom()
	}
	return g.entries[g.index[g.cg.Node(m)]]
}

// IsReachable reports whether the interprocedural fixpoint found any
// calling context for the method.
func (g *GlobalTypeAnalyzer) IsReachable(m *ir.Method) bool {
	return !g.EntryPartition(m).Get(lattice.CurrentLabel).IsBottom()
}

// LocalAnalysis re-derives the intraprocedural fixpoint of a method under
// its interprocedural entry environment. An unreachable method is analyzed
// under the unconstrained environment instead, so callers always get a
// usable result. The method must have a body.
func (g *GlobalTypeAnalyzer) LocalAnalysis(m *ir.Method) *local.Analyzer {
	args := g.EntryPartition(m).Get(lattice.CurrentLabel)
	if args.IsBottom() {
		args = lattice.EnvTop()
	}
	la := local.NewAnalyzer(m, g.res, g.view, g.tracer)
	la.Run(local.EnvWithParams(m, args))
	return la
}
