// Package callgraph builds interprocedural call graphs over a program's
// methods under several soundness/precision trade-offs.
package callgraph

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/typeflow/pkg/ir"
)

// NodeKind distinguishes the two sentinel nodes from method nodes.
type NodeKind uint8

const (
	// MethodNode wraps a method definition.
	MethodNode NodeKind = iota

	// GhostEntry is the synthetic program-start node; every root hangs
	// off it.
	GhostEntry

	// GhostExit is the synthetic no-further-calls node; methods without
	// call sites point at it.
	GhostExit
)

// Node is a call-graph node. Nodes are memoized per method: the graph holds
// exactly one node per distinct method identity, and node pointers are
// stable for the life of the graph.
type Node struct {
	kind   NodeKind
	id     int
	method *ir.Method

	successors   []*Edge
	predecessors []*Edge
}

// Method returns the wrapped method, or nil for the ghost nodes.
func (n *Node) Method() *ir.Method { return n.method }

// Kind returns the node kind.
func (n *Node) Kind() NodeKind { return n.kind }

// Callees returns the outgoing edges in insertion order.
func (n *Node) Callees() []*Edge { return n.successors }

// Callers returns the incoming edges in insertion order.
func (n *Node) Callers() []*Edge { return n.predecessors }

func (n *Node) String() string {
	switch n.kind {
	case GhostEntry:
		return "<ghost-entry>"
	case GhostExit:
		return "<ghost-exit>"
	default:
		return n.method.String()
	}
}

// Edge is an immutable call edge. Invoke is nil exactly for the sentinel
// edges (ghost-entry to root, leaf method to ghost-exit).
type Edge struct {
	caller *Node
	callee *Node
	invoke *ir.Instruction
}

// Caller returns the source node.
func (e *Edge) Caller() *Node { return e.caller }

// Callee returns the destination node.
func (e *Edge) Callee() *Node { return e.callee }

// Invoke returns the originating call instruction, or nil for sentinel edges.
func (e *Edge) Invoke() *ir.Instruction { return e.invoke }

// CallSite pairs a resolved callee with the instruction calling it.
type CallSite struct {
	Callee *ir.Method
	Invoke *ir.Instruction
}

// BuildStrategy is the capability interface the graph construction is
// parameterized over: which methods seed the traversal, and which call
// sites a method contributes.
type BuildStrategy interface {
	Roots() []*ir.Method
	CallSites(caller *ir.Method) []CallSite
}

// Graph is an immutable call graph: the two ghost nodes plus one node per
// method reached during construction. The graph owns every node and edge;
// nodes and edges reference each other freely and are torn down with the
// graph as a whole.
type Graph struct {
	entry *Node
	exit  *Node
	nodes map[*ir.Method]*Node

	nextID int
}

// NewGraph builds a call graph with the given strategy. Construction is an
// explicit-worklist depth-first traversal from the roots sharing a single
// visited set, so no method is expanded twice and cyclic call structure
// terminates. Methods with no call sites get the fallback edge to ghost-exit.
func NewGraph(strat BuildStrategy) *Graph {
	g := &Graph{
		entry: &Node{kind: GhostEntry, id: 0},
		exit:  &Node{kind: GhostExit, id: 1},
		nodes: make(map[*ir.Method]*Node),
	}
	g.nextID = 2

	roots := strat.Roots()
	for _, root := range roots {
		g.addEdge(g.entry, g.makeNode(root), nil)
	}

	visited := make(map[*ir.Method]bool)
	var stack []*ir.Method
	for _, root := range roots {
		stack = append(stack[:0], root)
		for len(stack) > 0 {
			caller := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if visited[caller] {
				continue
			}
			visited[caller] = true
			callsites := strat.CallSites(caller)
			if len(callsites) == 0 {
				g.addEdge(g.makeNode(caller), g.exit, nil)
			}
			for _, cs := range callsites {
				g.addEdge(g.makeNode(caller), g.makeNode(cs.Callee), cs.Invoke)
				if !visited[cs.Callee] {
					stack = append(stack, cs.Callee)
				}
			}
		}
	}
	return g
}

// Entry returns the ghost entry node.
func (g *Graph) Entry() *Node { return g.entry }

// Exit returns the ghost exit node.
func (g *Graph) Exit() *Node { return g.exit }

// HasNode reports whether the method was reached during construction.
func (g *Graph) HasNode(m *ir.Method) bool {
	_, ok := g.nodes[m]
	return ok
}

// Node returns the node for a method reached during construction. Looking
// up a method the traversal never visited is a bug in the caller and panics.
func (g *Graph) Node(m *ir.Method) *Node {
	n, ok := g.nodes[m]
	if !ok {
		panic(fmt.Sprintf("callgraph: no node for %s", m))
	}
	return n
}

func (g *Graph) makeNode(m *ir.Method) *Node {
	if n, ok := g.nodes[m]; ok {
		return n
	}
	n := &Node{kind: MethodNode, id: g.nextID, method: m}
	g.nextID++
	g.nodes[m] = n
	return n
}

func (g *Graph) addEdge(caller, callee *Node, invoke *ir.Instruction) {
	e := &Edge{caller: caller, callee: callee, invoke: invoke}
	caller.successors = append(caller.successors, e)
	callee.predecessors = append(callee.predecessors, e)
}

// ResolveCalleesInGraph returns the set of methods recorded as callees of
// the exact call instruction insn within method's node. Multiple entries
// mean the instruction was expanded as a multi-callee virtual call.
func ResolveCalleesInGraph(g *Graph, method *ir.Method, insn *ir.Instruction) map[*ir.Method]bool {
	out := make(map[*ir.Method]bool)
	if !g.HasNode(method) {
		return out
	}
	for _, e := range g.Node(method).Callees() {
		if e.Invoke() == insn && e.Callee().Method() != nil {
			out[e.Callee().Method()] = true
		}
	}
	return out
}

// Stats summarizes a graph for diagnostics.
type Stats struct {
	Nodes     int
	Edges     int
	CallSites int
}

// ComputeStats counts nodes, edges and distinct call sites reachable from
// the ghost entry node.
func ComputeStats(g *Graph) Stats {
	var visited intsets.Sparse
	callsites := make(map[*ir.Instruction]bool)
	var stats Stats

	queue := []*Node{g.entry}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if !visited.Insert(n.id) {
			continue
		}
		stats.Nodes++
		stats.Edges += len(n.Callees())
		for _, e := range n.Callees() {
			queue = append(queue, e.Callee())
			if e.Invoke() != nil {
				callsites[e.Invoke()] = true
			}
		}
	}
	stats.CallSites = len(callsites)
	return stats
}
