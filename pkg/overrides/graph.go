// Package overrides computes the method override graph: which virtual
// methods override which, across the class hierarchy and interface graph.
package overrides

import "github.com/715d/typeflow/pkg/ir"

// Graph links every virtual method to its direct overrides. External
// methods participate: an internal method overriding a library method is
// recorded the same way as an internal override.
type Graph struct {
	nodes   map[*ir.Method]*node
	ordered []*ir.Method
}

type node struct {
	method   *ir.Method
	parents  []*ir.Method // methods this one overrides
	children []*ir.Method // methods overriding this one
}

// BuildGraph constructs the override graph for a program.
func BuildGraph(program *ir.Program) *Graph {
	g := &Graph{nodes: make(map[*ir.Method]*node)}
	for _, cls := range program.Classes {
		for _, m := range cls.Methods {
			g.node(m)
			if !m.Virtual {
				continue
			}
			for _, parent := range findParents(program, cls, m) {
				g.link(parent, m)
			}
		}
	}
	return g
}

// findParents returns the nearest matching virtual method in the superclass
// chain plus any matching declarations on transitively implemented
// interfaces.
func findParents(program *ir.Program, cls *ir.Class, m *ir.Method) []*ir.Method {
	var parents []*ir.Method
	for super := program.Class(cls.Super); super != nil; super = program.Class(super.Super) {
		if pm := super.Method(m.Name, m.Proto); pm != nil && pm.Virtual {
			parents = append(parents, pm)
			break
		}
	}
	seen := make(map[string]bool)
	var walkInterfaces func(c *ir.Class)
	walkInterfaces = func(c *ir.Class) {
		for ; c != nil; c = program.Class(c.Super) {
			for _, name := range c.Interfaces {
				if seen[name] {
					continue
				}
				seen[name] = true
				iface := program.Class(name)
				if iface == nil {
					continue
				}
				if pm := iface.Method(m.Name, m.Proto); pm != nil {
					parents = append(parents, pm)
				}
				walkInterfaces(iface)
			}
		}
	}
	walkInterfaces(cls)
	return parents
}

func (g *Graph) node(m *ir.Method) *node {
	n, ok := g.nodes[m]
	if !ok {
		n = &node{method: m}
		g.nodes[m] = n
		g.ordered = append(g.ordered, m)
	}
	return n
}

func (g *Graph) link(parent, child *ir.Method) {
	g.node(parent).children = append(g.node(parent).children, child)
	g.node(child).parents = append(g.node(child).parents, parent)
}

// Nodes enumerates every method known to the graph, including external
// ones, in deterministic order.
func (g *Graph) Nodes() []*ir.Method {
	return g.ordered
}

// OverridingMethods returns all methods transitively overriding m, in
// deterministic discovery order.
func (g *Graph) OverridingMethods(m *ir.Method) []*ir.Method {
	return g.collect(m, func(n *node) []*ir.Method { return n.children })
}

// OverriddenMethods returns all methods m transitively overrides.
func (g *Graph) OverriddenMethods(m *ir.Method) []*ir.Method {
	return g.collect(m, func(n *node) []*ir.Method { return n.parents })
}

// IsTrueVirtual reports whether m participates in dynamic dispatch: it
// overrides another method or is itself overridden.
func (g *Graph) IsTrueVirtual(m *ir.Method) bool {
	n, ok := g.nodes[m]
	return ok && (len(n.parents) > 0 || len(n.children) > 0)
}

// collect walks the override relation with an explicit stack; cycle-safe
// even though a well-formed hierarchy has none.
func (g *Graph) collect(m *ir.Method, next func(*node) []*ir.Method) []*ir.Method {
	start, ok := g.nodes[m]
	if !ok {
		return nil
	}
	var out []*ir.Method
	seen := map[*ir.Method]bool{m: true}
	stack := append([]*ir.Method(nil), next(start)...)
	for len(stack) > 0 {
		cur := stack[0]
		stack = stack[1:]
		if seen[cur] {
			continue
		}
		seen[cur] = true
		out = append(out, cur)
		if n, ok := g.nodes[cur]; ok {
			stack = append(stack, next(n)...)
		}
	}
	return out
}

// NonTrueVirtuals returns the set of internal virtual methods that are
// statically resolvable: they neither override nor are overridden.
func NonTrueVirtuals(g *Graph, program *ir.Program) map[*ir.Method]bool {
	out := make(map[*ir.Method]bool)
	for _, cls := range program.Classes {
		if cls.External {
			continue
		}
		for _, m := range cls.Methods {
			if m.Virtual && !g.IsTrueVirtual(m) {
				out[m] = true
			}
		}
	}
	return out
}
