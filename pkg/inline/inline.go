// Package inline selects inline candidates from a call graph. It only
// picks methods; it performs no transformation.
package inline

import (
	"strings"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/callgraph"
	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/overrides"
)

// smallCodeSize is the instruction count under which a method is always
// worth inlining regardless of how often it is called.
const smallCodeSize = 3

// Config is the pass configuration block.
type Config struct {
	// VirtualInline admits statically resolvable virtual methods.
	VirtualInline bool `yaml:"virtual_inline"`

	// NoInline lists class-name prefixes whose methods are never selected.
	NoInline []string `yaml:"no_inline"`
}

// Pass selects inline candidates.
type Pass struct {
	cfg    Config
	tracer *trace.Tracer
}

// NewPass creates the pass. A nil tracer discards diagnostics.
func NewPass(cfg Config, tracer *trace.Tracer) *Pass {
	if tracer == nil {
		tracer = trace.Discard()
	}
	return &Pass{cfg: cfg, tracer: tracer}
}

// Candidates returns the selected methods in program declaration order:
// non-virtual methods with bodies (plus statically resolvable virtuals
// when enabled) that are either small or called from exactly one call
// site in the graph. Constructors and static initializers are never
// selected.
func (p *Pass) Candidates(program *ir.Program, cg *callgraph.Graph) []*ir.Method {
	og := overrides.BuildGraph(program)
	nonTrueVirtual := overrides.NonTrueVirtuals(og, program)

	var out []*ir.Method
	program.WalkCode(func(m *ir.Method, code *ir.Code) {
		if m.IsAnyInit() || p.suppressed(m) {
			return
		}
		if m.Virtual && !(p.cfg.VirtualInline && nonTrueVirtual[m]) {
			return
		}
		size := instructionCount(code)
		switch {
		case size <= smallCodeSize:
			p.tracer.Tracef(trace.Inline, 3, "small candidate %s (%d instructions)", m, size)
		case p.singleCalled(cg, m):
			p.tracer.Tracef(trace.Inline, 3, "single-called candidate %s", m)
		default:
			return
		}
		out = append(out, m)
	})
	p.tracer.Tracef(trace.Inline, 1, "%d inline candidates", len(out))
	return out
}

// singleCalled reports whether exactly one call site in the graph targets m.
func (p *Pass) singleCalled(cg *callgraph.Graph, m *ir.Method) bool {
	if !cg.HasNode(m) {
		return false
	}
	sites := 0
	for _, e := range cg.Node(m).Callers() {
		if e.Invoke() != nil {
			sites++
			if sites > 1 {
				return false
			}
		}
	}
	return sites == 1
}

func (p *Pass) suppressed(m *ir.Method) bool {
	for _, prefix := range p.cfg.NoInline {
		if strings.HasPrefix(m.Class.Name, prefix) {
			return true
		}
	}
	return false
}

func instructionCount(code *ir.Code) int {
	n := 0
	code.ForEachInstruction(func(_ *ir.Block, _ *ir.Instruction) { n++ })
	return n
}
