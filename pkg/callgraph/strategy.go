package callgraph

import (
	"runtime"
	"sort"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/overrides"
	"github.com/715d/typeflow/pkg/resolver"
)

// SingleCalleeStrategy only records call sites whose callee is statically
// known: direct, static and non-true-virtual calls. True-virtual dispatch
// is left out of the graph entirely; such methods become roots instead.
type SingleCalleeStrategy struct {
	program    *ir.Program
	res        *resolver.Resolver
	overrideG  *overrides.Graph
	nonVirtual map[*ir.Method]bool
}

// NewSingleCalleeStrategy computes the override graph for the program and
// precomputes the statically resolvable virtual methods.
func NewSingleCalleeStrategy(program *ir.Program) *SingleCalleeStrategy {
	og := overrides.BuildGraph(program)
	return &SingleCalleeStrategy{
		program:    program,
		res:        resolver.New(program),
		overrideG:  og,
		nonVirtual: overrides.NonTrueVirtuals(og, program),
	}
}

// Roots returns every internal method with a body that is definitely
// virtual, explicitly root-marked, or a static initializer. Definitely
// virtual methods are roots because no call site in this strategy can ever
// reach them.
func (s *SingleCalleeStrategy) Roots() []*ir.Method {
	var roots []*ir.Method
	s.program.WalkCode(func(m *ir.Method, _ *ir.Code) {
		if s.isDefinitelyVirtual(m) || m.Root || m.Kind == ir.MethodClinit {
			roots = append(roots, m)
		}
	})
	return roots
}

// CallSites returns the statically resolvable call sites of caller.
func (s *SingleCalleeStrategy) CallSites(caller *ir.Method) []CallSite {
	if caller.Code == nil {
		return nil
	}
	var out []CallSite
	for _, insn := range caller.Code.Invokes() {
		callee := s.res.ResolveInvoke(insn)
		if callee == nil || s.isDefinitelyVirtual(callee) {
			continue
		}
		if callee.IsConcrete() {
			out = append(out, CallSite{Callee: callee, Invoke: insn})
		}
	}
	return out
}

// isDefinitelyVirtual reports whether m can only be entered through dynamic
// dispatch with more than one possible target.
func (s *SingleCalleeStrategy) isDefinitelyVirtual(m *ir.Method) bool {
	return m.Virtual && !s.nonVirtual[m]
}

// MultipleCalleeBaseStrategy expands root selection over override chains so
// that every dispatch target of a root-marked method is itself a root.
// Concrete strategies layer on top of it and refine call-site expansion.
type MultipleCalleeBaseStrategy struct {
	SingleCalleeStrategy

	// additionalRoots lets a derived strategy append roots after the base
	// expansion; it sees the set gathered so far.
	additionalRoots func(existing map[*ir.Method]bool) []*ir.Method
}

func newMultipleCalleeBaseStrategy(program *ir.Program) MultipleCalleeBaseStrategy {
	return MultipleCalleeBaseStrategy{
		SingleCalleeStrategy: *NewSingleCalleeStrategy(program),
	}
}

// Roots gathers root-marked methods, static initializers and keep-marked
// interface methods, expands each over its override chains, and then adds
// the internal overriders of external methods, which can be entered by
// library code without any internal call site.
func (s *MultipleCalleeBaseStrategy) Roots() []*ir.Method {
	emplaced := make(map[*ir.Method]bool)
	var roots []*ir.Method
	add := func(m *ir.Method) {
		if !emplaced[m] {
			emplaced[m] = true
			roots = append(roots, m)
		}
	}
	addOverrideChain := func(m *ir.Method) {
		for _, rel := range s.overrideG.OverridingMethods(m) {
			if rel.Code == nil || rel.Root || rel.IsExternal() {
				continue
			}
			add(rel)
		}
		for _, rel := range s.overrideG.OverriddenMethods(m) {
			if rel.Code == nil || rel.Root || rel.IsExternal() {
				continue
			}
			add(rel)
		}
	}

	for _, cls := range s.program.Classes {
		if cls.External {
			continue
		}
		for _, m := range cls.Methods {
			if m.Kind == ir.MethodClinit {
				add(m)
				continue
			}
			if !m.Root && !(m.Virtual && cls.IsInterface && m.Keep) {
				continue
			}
			if m.Code != nil {
				add(m)
			}
			addOverrideChain(m)
		}
	}

	// A method overriding an external definition is reachable from library
	// code even when no internal call site names it.
	for _, m := range s.overrideG.Nodes() {
		if !m.IsExternal() {
			continue
		}
		for _, o := range s.overrideG.OverridingMethods(m) {
			if o.Code == nil || o.IsExternal() {
				continue
			}
			add(o)
		}
	}

	if s.additionalRoots != nil {
		for _, m := range s.additionalRoots(emplaced) {
			add(m)
		}
	}
	return roots
}

// CompleteCallGraphStrategy records every resolvable call site and expands
// each virtual call to the resolved callee plus all of its overriders, with
// no filtering. The result over-approximates every other strategy.
type CompleteCallGraphStrategy struct {
	MultipleCalleeBaseStrategy
}

// NewCompleteCallGraphStrategy builds the exhaustive strategy.
func NewCompleteCallGraphStrategy(program *ir.Program) *CompleteCallGraphStrategy {
	return &CompleteCallGraphStrategy{
		MultipleCalleeBaseStrategy: newMultipleCalleeBaseStrategy(program),
	}
}

// Roots returns root-marked methods and static initializers only; override
// chains are not expanded because call-site expansion already reaches every
// dispatch target.
func (s *CompleteCallGraphStrategy) Roots() []*ir.Method {
	var roots []*ir.Method
	s.program.WalkCode(func(m *ir.Method, _ *ir.Code) {
		if m.Root || m.Kind == ir.MethodClinit {
			roots = append(roots, m)
		}
	})
	return roots
}

// CallSites returns every resolvable call site of caller, expanding each
// callee over all its overriders.
func (s *CompleteCallGraphStrategy) CallSites(caller *ir.Method) []CallSite {
	if caller.Code == nil {
		return nil
	}
	var out []CallSite
	for _, insn := range caller.Code.Invokes() {
		callee := s.res.ResolveInvoke(insn)
		if callee == nil {
			continue
		}
		if callee.IsConcrete() {
			out = append(out, CallSite{Callee: callee, Invoke: insn})
		}
		if insn.Op != ir.InvokeSuper {
			for _, o := range s.overrideG.OverridingMethods(callee) {
				out = append(out, CallSite{Callee: o, Invoke: insn})
			}
		}
	}
	return out
}

// MultipleCalleeStrategy expands virtual call sites over their overriders
// like the complete strategy, but caps the fan-out: a callee whose number
// of overriding bodies exceeds the threshold is not expanded at call sites
// at all, and its whole override set becomes roots instead.
type MultipleCalleeStrategy struct {
	MultipleCalleeBaseStrategy

	bigOverrides map[*ir.Method]bool
}

// NewMultipleCalleeStrategy prescans every call site in parallel to find
// callees whose override fan-out exceeds threshold.
func NewMultipleCalleeStrategy(program *ir.Program, threshold int) *MultipleCalleeStrategy {
	s := &MultipleCalleeStrategy{
		MultipleCalleeBaseStrategy: newMultipleCalleeBaseStrategy(program),
	}
	s.bigOverrides = s.prescanBigOverrides(threshold)
	s.additionalRoots = s.bigOverrideRoots
	return s
}

// prescanBigOverrides scans all bodies concurrently. For each resolvable
// virtual callee it counts the overriders that have a body; when the count
// exceeds threshold, the callee and its entire override set are marked.
func (s *MultipleCalleeStrategy) prescanBigOverrides(threshold int) map[*ir.Method]bool {
	marked := xsync.NewMap[*ir.Method, bool]()

	var grp errgroup.Group
	grp.SetLimit(runtime.NumCPU())
	s.program.WalkCode(func(m *ir.Method, code *ir.Code) {
		grp.Go(func() error {
			for _, insn := range code.Invokes() {
				callee := s.res.ResolveInvoke(insn)
				if callee == nil || !callee.Virtual {
					continue
				}
				if _, done := marked.Load(callee); done {
					continue
				}
				overriding := s.overrideG.OverridingMethods(callee)
				withCode := 0
				for _, o := range overriding {
					if o.Code != nil {
						withCode++
					}
				}
				if withCode > threshold {
					marked.Store(callee, true)
					for _, o := range overriding {
						marked.Store(o, true)
					}
				}
			}
			return nil
		})
	})
	// Workers never return errors; Wait is only a join point.
	_ = grp.Wait()

	out := make(map[*ir.Method]bool, marked.Size())
	marked.Range(func(m *ir.Method, _ bool) bool {
		out[m] = true
		return true
	})
	return out
}

// bigOverrideRoots returns the internal members of big override sets, in
// deterministic order. They get no call-site edges, so rooting them keeps
// them reachable.
func (s *MultipleCalleeStrategy) bigOverrideRoots(existing map[*ir.Method]bool) []*ir.Method {
	var out []*ir.Method
	for m := range s.bigOverrides {
		if m.IsExternal() || existing[m] {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// CallSites expands virtual call sites over overriders unless the callee
// belongs to a big override set. Super invokes bind statically and are
// never expanded over overriders.
func (s *MultipleCalleeStrategy) CallSites(caller *ir.Method) []CallSite {
	if caller.Code == nil {
		return nil
	}
	var out []CallSite
	for _, insn := range caller.Code.Invokes() {
		callee := s.res.ResolveInvoke(insn)
		if callee == nil {
			continue
		}
		if s.isDefinitelyVirtual(callee) {
			if s.bigOverrides[callee] {
				continue
			}
			if callee.Code != nil {
				out = append(out, CallSite{Callee: callee, Invoke: insn})
			}
			if insn.Op != ir.InvokeSuper {
				for _, o := range s.overrideG.OverridingMethods(callee) {
					out = append(out, CallSite{Callee: o, Invoke: insn})
				}
			}
			continue
		}
		if callee.IsConcrete() {
			out = append(out, CallSite{Callee: callee, Invoke: insn})
		}
	}
	return out
}

// NewSingleCalleeGraph builds the graph used by the interprocedural type
// analysis.
func NewSingleCalleeGraph(program *ir.Program) *Graph {
	return NewGraph(NewSingleCalleeStrategy(program))
}

// NewCompleteCallGraph builds the exhaustive graph.
func NewCompleteCallGraph(program *ir.Program) *Graph {
	return NewGraph(NewCompleteCallGraphStrategy(program))
}

// NewMultipleCalleeGraph builds the bounded-fan-out graph.
func NewMultipleCalleeGraph(program *ir.Program, bigOverrideThreshold int) *Graph {
	return NewGraph(NewMultipleCalleeStrategy(program, bigOverrideThreshold))
}
