package global

import (
	"fmt"
	"runtime"

	"github.com/puzpuzpuz/xsync/v4"
	"golang.org/x/sync/errgroup"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/callgraph"
	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
	"github.com/715d/typeflow/pkg/local"
	"github.com/715d/typeflow/pkg/resolver"
)

// DefaultMaxGlobalIterations bounds the outer refinement loop.
const DefaultMaxGlobalIterations = 10

// Config tunes an analysis run.
type Config struct {
	// MaxGlobalIterations caps the outer refinement loop; zero or negative
	// means the default.
	MaxGlobalIterations int

	// Tracer receives diagnostics; nil discards them.
	Tracer *trace.Tracer
}

// Analysis is the result of a whole-program analysis run: the call graph,
// the final interprocedural fixpoint, and the final whole-program summary.
type Analysis struct {
	program *ir.Program
	cg      *callgraph.Graph
	res     *resolver.Resolver
	gta     *GlobalTypeAnalyzer
	wps     *WholeProgramState

	iterations int
	converged  bool
}

// Run performs the whole-program type analysis: it builds the
// single-callee call graph, seals every method body, computes the
// any-init-reachable set, and then alternates interprocedural fixpoints
// with whole-program-state collection until the summary stops improving or
// the iteration cap is hit.
func Run(program *ir.Program, cfg Config) (*Analysis, error) {
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = trace.Discard()
	}
	maxIter := cfg.MaxGlobalIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxGlobalIterations
	}

	if err := sealAll(program); err != nil {
		return nil, fmt.Errorf("sealing control-flow graphs: %w", err)
	}

	res := resolver.New(program)
	cg := callgraph.NewSingleCalleeGraph(program)
	stats := callgraph.ComputeStats(cg)
	tracer.Tracef(trace.CG, 1, "single-callee graph: %d nodes, %d edges, %d call sites",
		stats.Nodes, stats.Edges, stats.CallSites)

	anyInit := findAnyInitReachables(program, cg)
	tracer.Tracef(trace.Type, 2, "%d methods reachable from initializers", len(anyInit))

	a := &Analysis{program: program, cg: cg, res: res}

	// Bootstrap round: no summary installed, every lookup answers top.
	a.gta = newGlobalTypeAnalyzer(program, cg, res, nil, tracer)
	a.gta.run()
	a.wps = NewWholeProgramState(anyInit)

	for a.iterations = 0; a.iterations < maxIter; a.iterations++ {
		next := collectWholeProgramState(a.gta, res, anyInit)
		if a.wps.Leq(next) {
			a.converged = true
			break
		}
		for _, line := range next.Diff(a.wps) {
			tracer.Tracef(trace.Type, 4, "iteration %d: %s", a.iterations, line)
		}
		tracer.Tracef(trace.Type, 2, "iteration %d: %d fields, %d returns resolved",
			a.iterations, next.ResolvedFields(), next.ResolvedReturns())
		a.wps = next
		a.gta = newGlobalTypeAnalyzer(program, cg, res, a.wps, tracer)
		a.gta.run()
	}
	if !a.converged {
		tracer.Tracef(trace.Type, 1, "analysis did not converge within %d iterations", maxIter)
	}
	return a, nil
}

// sealAll finalizes every method body in parallel.
func sealAll(program *ir.Program) error {
	var grp errgroup.Group
	grp.SetLimit(runtime.NumCPU())
	program.WalkCode(func(m *ir.Method, code *ir.Code) {
		grp.Go(func() error {
			if err := code.Seal(); err != nil {
				return fmt.Errorf("%s: %w", m, err)
			}
			return nil
		})
	})
	return grp.Wait()
}

// findAnyInitReachables collects every method transitively reachable from a
// constructor or static initializer, following only the internal concrete
// callees the graph recorded. Roots fan out over a worker pool; the walk
// from each root uses an explicit stack and the shared set makes revisits
// cheap and termination certain.
func findAnyInitReachables(program *ir.Program, cg *callgraph.Graph) map[*ir.Method]bool {
	reached := xsync.NewMap[*ir.Method, bool]()

	var grp errgroup.Group
	grp.SetLimit(runtime.NumCPU())
	program.WalkCode(func(root *ir.Method, _ *ir.Code) {
		if !root.IsAnyInit() {
			return
		}
		grp.Go(func() error {
			stack := []*ir.Method{root}
			for len(stack) > 0 {
				m := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				if _, loaded := reached.LoadOrStore(m, true); loaded {
					continue
				}
				if m.Code == nil || !cg.HasNode(m) {
					continue
				}
				for _, insn := range m.Code.Invokes() {
					for callee := range callgraph.ResolveCalleesInGraph(cg, m, insn) {
						if callee.IsConcrete() {
							stack = append(stack, callee)
						}
					}
				}
			}
			return nil
		})
	})
	// Workers never return errors; Wait is only a join point.
	_ = grp.Wait()

	out := make(map[*ir.Method]bool, reached.Size())
	reached.Range(func(m *ir.Method, _ bool) bool {
		out[m] = true
		return true
	})
	return out
}

// Graph returns the call graph the analysis ran over.
func (a *Analysis) Graph() *callgraph.Graph { return a.cg }

// WholeProgramState returns the final summary.
func (a *Analysis) WholeProgramState() *WholeProgramState { return a.wps }

// Iterations returns how many refinement rounds ran after the bootstrap.
func (a *Analysis) Iterations() int { return a.iterations }

// Converged reports whether the summary stopped improving within the cap.
func (a *Analysis) Converged() bool { return a.converged }

// IsReachable reports whether the final fixpoint found a calling context
// for the method.
func (a *Analysis) IsReachable(m *ir.Method) bool { return a.gta.IsReachable(m) }

// LocalAnalysis re-derives the final intraprocedural fixpoint for a method.
func (a *Analysis) LocalAnalysis(m *ir.Method) *local.Analyzer {
	return a.gta.LocalAnalysis(m)
}

// EntryPartition exposes the final interprocedural entry partition of a
// method.
func (a *Analysis) EntryPartition(m *ir.Method) lattice.ArgumentTypePartition {
	return a.gta.EntryPartition(m)
}
