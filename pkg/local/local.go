// Package local implements the intraprocedural type analyzer: a monotone
// worklist fixpoint over one method's control-flow graph, with the
// instruction semantics supplied by a composed chain of instruction
// analyzers.
package local

import (
	"fmt"

	"golang.org/x/tools/container/intsets"

	"github.com/715d/typeflow/internal/trace"
	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
	"github.com/715d/typeflow/pkg/resolver"
)

// WholeProgramView is what the analyzer may ask of interprocedural results.
// A nil view answers top for everything.
type WholeProgramView interface {
	FieldType(f *ir.Field) lattice.TypeDomain
	ReturnType(m *ir.Method) lattice.TypeDomain
}

// State is the abstract state flowing through a method body: the register
// environment plus the locally tracked field environment used inside
// initializers.
type State struct {
	Regs   lattice.ArgumentTypeEnvironment
	Fields lattice.Environment[*ir.Field]
}

// BottomState returns the unreachable state.
func BottomState() State {
	return State{Regs: lattice.EnvBottom(), Fields: lattice.BottomEnvironment[*ir.Field]()}
}

// IsBottom reports whether the state is unreachable. The register
// environment is authoritative.
func (s State) IsBottom() bool { return s.Regs.IsBottom() }

// Join returns the componentwise least upper bound.
func (s State) Join(o State) State {
	return State{Regs: s.Regs.Join(o.Regs), Fields: s.Fields.Join(o.Fields)}
}

// Leq reports the componentwise order.
func (s State) Leq(o State) bool {
	return s.Regs.Leq(o.Regs) && s.Fields.Leq(o.Fields)
}

// EnvWithParams seeds a register environment from an argument environment:
// slot i of args lands in the method's i-th parameter register. Inside
// initializers the first slot is the receiver and is known not-null.
func EnvWithParams(m *ir.Method, args lattice.ArgumentTypeEnvironment) State {
	regs := lattice.EnvTop()
	if m.Code != nil {
		for i, reg := range m.Code.Params {
			regs = regs.Set(reg, args.Get(i))
		}
		if m.Kind == ir.MethodInit && len(m.Code.Params) > 0 {
			regs = regs.Set(m.Code.Params[0], lattice.TypeOf(m.Class.Name))
		}
	}
	return State{Regs: regs, Fields: lattice.TopEnvironment[*ir.Field]()}
}

// CallArguments projects the abstract values of an invoke's operands into
// an argument environment keyed by callee slot index.
func CallArguments(insn *ir.Instruction, st State) lattice.ArgumentTypeEnvironment {
	env := lattice.EnvTop()
	for i, reg := range insn.Srcs {
		env = env.Set(i, st.Regs.Get(reg))
	}
	return env
}

// Context carries the per-method inputs an instruction analyzer may consult.
type Context struct {
	Method   *ir.Method
	Resolver *resolver.Resolver
	View     WholeProgramView
}

// InstructionAnalyzer interprets one instruction against a state. Analyze
// reports whether it handled the instruction; a chain stops at the first
// analyzer that does.
type InstructionAnalyzer interface {
	Analyze(ctx *Context, insn *ir.Instruction, st *State) bool
}

// DefaultAnalyzers returns the standard chain, most specific first: field
// tracking inside static initializers and constructors, whole-program
// lookups, then plain register dataflow.
func DefaultAnalyzers() []InstructionAnalyzer {
	return []InstructionAnalyzer{
		ClinitFieldAnalyzer{},
		CtorFieldAnalyzer{},
		WholeProgramAwareAnalyzer{},
		RegisterTypeAnalyzer{},
	}
}

// ClinitFieldAnalyzer tracks static fields of the enclosing class flow
// sensitively while its static initializer runs. Before the first write a
// field reads as top, not as its steady-state type.
type ClinitFieldAnalyzer struct{}

// Analyze implements InstructionAnalyzer.
func (ClinitFieldAnalyzer) Analyze(ctx *Context, insn *ir.Instruction, st *State) bool {
	if ctx.Method.Kind != ir.MethodClinit {
		return false
	}
	switch insn.Op {
	case ir.SGet, ir.SPut:
	default:
		return false
	}
	f := ctx.Resolver.ResolveField(insn.Field)
	if f == nil || f.Class != ctx.Method.Class {
		return false
	}
	if insn.Op == ir.SPut {
		st.Fields = st.Fields.Set(f, st.Regs.Get(insn.Srcs[0]))
	} else {
		st.Regs = st.Regs.Set(insn.Dest, st.Fields.Get(f))
	}
	return true
}

// CtorFieldAnalyzer tracks instance fields of the object under construction
// while its constructor runs, for accesses through the receiver register.
type CtorFieldAnalyzer struct{}

// Analyze implements InstructionAnalyzer.
func (CtorFieldAnalyzer) Analyze(ctx *Context, insn *ir.Instruction, st *State) bool {
	if ctx.Method.Kind != ir.MethodInit || ctx.Method.Code == nil || len(ctx.Method.Code.Params) == 0 {
		return false
	}
	receiver := ctx.Method.Code.Params[0]
	var object int
	switch insn.Op {
	case ir.IGet:
		object = insn.Srcs[0]
	case ir.IPut:
		object = insn.Srcs[1]
	default:
		return false
	}
	if object != receiver {
		return false
	}
	f := ctx.Resolver.ResolveField(insn.Field)
	if f == nil || f.Class != ctx.Method.Class {
		return false
	}
	if insn.Op == ir.IPut {
		st.Fields = st.Fields.Set(f, st.Regs.Get(insn.Srcs[0]))
	} else {
		st.Regs = st.Regs.Set(insn.Dest, st.Fields.Get(f))
	}
	return true
}

// WholeProgramAwareAnalyzer refines field reads and statically resolved
// call results with interprocedural results when a view is installed.
type WholeProgramAwareAnalyzer struct{}

// Analyze implements InstructionAnalyzer.
func (WholeProgramAwareAnalyzer) Analyze(ctx *Context, insn *ir.Instruction, st *State) bool {
	if ctx.View == nil {
		return false
	}
	switch {
	case insn.Op == ir.SGet || insn.Op == ir.IGet:
		f := ctx.Resolver.ResolveField(insn.Field)
		if f == nil {
			return false
		}
		v := ctx.View.FieldType(f)
		if v.IsTop() {
			return false
		}
		st.Regs = st.Regs.Set(insn.Dest, v)
		return true
	case insn.IsInvoke():
		if insn.Dest == ir.NoRegister {
			return false
		}
		callee := ctx.Resolver.ResolveInvoke(insn)
		if callee == nil || callee.Virtual {
			return false
		}
		v := ctx.View.ReturnType(callee)
		if v.IsTop() {
			return false
		}
		st.Regs = st.Regs.Set(insn.Dest, v)
		return true
	}
	return false
}

// RegisterTypeAnalyzer is the base dataflow over registers. It handles
// every opcode; unknown results degrade to top.
type RegisterTypeAnalyzer struct{}

// Analyze implements InstructionAnalyzer.
func (RegisterTypeAnalyzer) Analyze(ctx *Context, insn *ir.Instruction, st *State) bool {
	switch insn.Op {
	case ir.ConstNull:
		st.Regs = st.Regs.Set(insn.Dest, lattice.NullType())
	case ir.ConstString:
		st.Regs = st.Regs.Set(insn.Dest, lattice.TypeOf("Ljava/lang/String;"))
	case ir.NewInstance:
		st.Regs = st.Regs.Set(insn.Dest, lattice.TypeOf(insn.TypeName))
	case ir.Move:
		st.Regs = st.Regs.Set(insn.Dest, st.Regs.Get(insn.Srcs[0]))
	case ir.IGet, ir.SGet:
		if f := ctx.Resolver.ResolveField(insn.Field); f != nil {
			st.Regs = st.Regs.Set(insn.Dest, lattice.NullableTypeOf(f.Type))
		} else {
			st.Regs = st.Regs.Set(insn.Dest, lattice.TypeTop())
		}
	default:
		if insn.IsInvoke() && insn.Dest != ir.NoRegister {
			st.Regs = st.Regs.Set(insn.Dest, lattice.TypeTop())
		}
	}
	return true
}

// Analyzer runs the composed chain to fixpoint over one method body.
type Analyzer struct {
	ctx     *Context
	code    *ir.Code
	chain   []InstructionAnalyzer
	entryIn []State
	tracer  *trace.Tracer
}

// NewAnalyzer builds an analyzer for a method with the default chain. The
// method must have a body. The view may be nil.
func NewAnalyzer(m *ir.Method, res *resolver.Resolver, view WholeProgramView, tracer *trace.Tracer) *Analyzer {
	if m.Code == nil {
		panic(fmt.Sprintf("local: analyzer for bodyless method %s", m))
	}
	if tracer == nil {
		tracer = trace.Discard()
	}
	return &Analyzer{
		ctx:     &Context{Method: m, Resolver: res, View: view},
		code:    m.Code,
		chain:   DefaultAnalyzers(),
		entryIn: make([]State, len(m.Code.Blocks)),
		tracer:  tracer,
	}
}

// AnalyzeInstruction applies the chain to one instruction in place.
func (a *Analyzer) AnalyzeInstruction(insn *ir.Instruction, st *State) {
	if st.IsBottom() {
		return
	}
	for _, ia := range a.chain {
		if ia.Analyze(a.ctx, insn, st) {
			return
		}
	}
}

// Run iterates the blocks to fixpoint from an initial register state at the
// entry block. It can be called repeatedly; each call recomputes from
// scratch.
func (a *Analyzer) Run(initial State) {
	for i := range a.entryIn {
		a.entryIn[i] = BottomState()
	}
	entry := a.code.Entry()
	if entry == nil {
		return
	}
	a.entryIn[entry.ID] = initial

	var queued intsets.Sparse
	worklist := []*ir.Block{entry}
	queued.Insert(entry.ID)
	for len(worklist) > 0 {
		b := worklist[0]
		worklist = worklist[1:]
		queued.Remove(b.ID)

		out := a.transferBlock(b, a.entryIn[b.ID])
		for _, succ := range b.Succs {
			joined := a.entryIn[succ.ID].Join(out)
			if joined.Leq(a.entryIn[succ.ID]) {
				continue
			}
			a.entryIn[succ.ID] = joined
			if queued.Insert(succ.ID) {
				worklist = append(worklist, succ)
			}
		}
	}
	a.tracef(5, "fixpoint done for %s over %d blocks", a.ctx.Method, len(a.code.Blocks))
}

// EntryStateAt returns the fixpoint state at a block's entry. Valid after
// Run; blocks never reached are bottom.
func (a *Analyzer) EntryStateAt(b *ir.Block) State {
	return a.entryIn[b.ID]
}

// Method returns the analyzed method.
func (a *Analyzer) Method() *ir.Method { return a.ctx.Method }

// ReturnType replays the fixpoint and joins the abstract value of every
// reachable return instruction. Void and unreachable methods yield bottom.
func (a *Analyzer) ReturnType() lattice.TypeDomain {
	ret := lattice.TypeBottom()
	for _, b := range a.code.Blocks {
		st := a.entryIn[b.ID]
		if st.IsBottom() {
			continue
		}
		for _, insn := range b.Instrs {
			if insn.Op == ir.Return {
				ret = ret.Join(st.Regs.Get(insn.Srcs[0]))
			}
			a.AnalyzeInstruction(insn, &st)
		}
	}
	return ret
}

func (a *Analyzer) transferBlock(b *ir.Block, st State) State {
	if st.IsBottom() {
		return st
	}
	for _, insn := range b.Instrs {
		a.AnalyzeInstruction(insn, &st)
	}
	return st
}

func (a *Analyzer) tracef(level int, format string, args ...any) {
	a.tracer.Tracef(trace.Type, level, format, args...)
}
