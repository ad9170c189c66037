package callgraph

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/pkg/ir"
)

func callDirect(cls, name string, recv int) *ir.Instruction {
	return &ir.Instruction{
		Op:     ir.InvokeDirect,
		Dest:   ir.NoRegister,
		Srcs:   []int{recv},
		Method: &ir.MethodRef{Class: cls, Name: name, Proto: "()V"},
	}
}

func callSuper(cls, name string, recv int) *ir.Instruction {
	return &ir.Instruction{
		Op:     ir.InvokeSuper,
		Dest:   ir.NoRegister,
		Srcs:   []int{recv},
		Method: &ir.MethodRef{Class: cls, Name: name, Proto: "()V"},
	}
}

// dispatchProgram has a virtual method with two overrides and a root that
// calls it through the base type.
func dispatchProgram() *ir.Program {
	base := &ir.Class{
		Name:    "LBase;",
		Methods: []*ir.Method{{Name: "m", Proto: "()V", Virtual: true, Code: body([]int{0})}},
	}
	sub1 := &ir.Class{
		Name:  "LSub1;",
		Super: "LBase;",
		Methods: []*ir.Method{
			{Name: "m", Proto: "()V", Virtual: true, Code: body([]int{0})},
			{Name: "callSuper", Proto: "()V", Root: true, Code: body([]int{0}, callSuper("LBase;", "m", 0))},
			{Name: "<init>", Proto: "()V", Kind: ir.MethodInit, Code: body([]int{0})},
		},
	}
	sub2 := &ir.Class{
		Name:    "LSub2;",
		Super:   "LBase;",
		Methods: []*ir.Method{{Name: "m", Proto: "()V", Virtual: true, Code: body([]int{0})}},
	}
	main := &ir.Class{
		Name: "LMain;",
		Methods: []*ir.Method{
			{Name: "main", Proto: "()V", Root: true, Code: body(nil,
				&ir.Instruction{Op: ir.NewInstance, Dest: 0, TypeName: "LSub1;"},
				callDirect("LSub1;", "<init>", 0),
				callVirtual("LBase;", "m", 0),
			)},
		},
	}
	return ir.NewProgram(base, sub1, sub2, main)
}

func dm(p *ir.Program, cls, name string) *ir.Method {
	return p.Class(cls).Method(name, "()V")
}

func virtualCallOf(p *ir.Program) (*ir.Method, *ir.Instruction) {
	main := dm(p, "LMain;", "main")
	for _, insn := range main.Code.Invokes() {
		if insn.Op == ir.InvokeVirtual {
			return main, insn
		}
	}
	return main, nil
}

func TestSingleCalleeSkipsTrueVirtualCalls(t *testing.T) {
	p := dispatchProgram()
	g := NewSingleCalleeGraph(p)

	main, virt := virtualCallOf(p)
	require.NotNil(t, virt)
	require.Empty(t, ResolveCalleesInGraph(g, main, virt), "true-virtual call site stays unexpanded")

	// The dispatch targets become roots instead.
	for _, cls := range []string{"LBase;", "LSub1;", "LSub2;"} {
		require.True(t, g.HasNode(dm(p, cls, "m")), "%s.m rooted", cls)
	}
}

func TestCompleteCallGraphExpandsOverriders(t *testing.T) {
	p := dispatchProgram()
	g := NewCompleteCallGraph(p)

	main, virt := virtualCallOf(p)
	callees := ResolveCalleesInGraph(g, main, virt)
	require.Len(t, callees, 3)
	for _, cls := range []string{"LBase;", "LSub1;", "LSub2;"} {
		require.True(t, callees[dm(p, cls, "m")], "%s.m", cls)
	}
}

// Every call edge of the single-callee graph appears in the complete graph.
func TestCompleteSupersetOfSingleCallee(t *testing.T) {
	for _, p := range []*ir.Program{chainProgram(), dispatchProgram()} {
		single := NewSingleCalleeGraph(p)
		complete := NewCompleteCallGraph(p)

		for _, m := range p.Methods() {
			if !single.HasNode(m) || m.Code == nil {
				continue
			}
			for _, insn := range m.Code.Invokes() {
				for callee := range ResolveCalleesInGraph(single, m, insn) {
					if !complete.HasNode(m) {
						continue
					}
					require.True(t, ResolveCalleesInGraph(complete, m, insn)[callee],
						"edge %s -> %s missing from complete graph", m, callee)
				}
			}
		}
	}
}

func TestMultipleCalleeThresholdZero(t *testing.T) {
	p := dispatchProgram()
	g := NewMultipleCalleeGraph(p, 0)

	main, virt := virtualCallOf(p)
	require.Empty(t, ResolveCalleesInGraph(g, main, virt),
		"any overridden callee is excluded at threshold zero")

	// The whole override set is rooted instead.
	for _, cls := range []string{"LBase;", "LSub1;", "LSub2;"} {
		m := dm(p, cls, "m")
		require.True(t, g.HasNode(m))
		rooted := false
		for _, e := range g.Node(m).Callers() {
			if e.Caller() == g.Entry() {
				rooted = true
			}
		}
		require.True(t, rooted, "%s.m should hang off ghost entry", cls)
	}
}

func TestMultipleCalleeHighThreshold(t *testing.T) {
	p := dispatchProgram()
	g := NewMultipleCalleeGraph(p, 100)

	main, virt := virtualCallOf(p)
	callees := ResolveCalleesInGraph(g, main, virt)
	require.Len(t, callees, 3, "below the cap the site expands like the complete graph")
}

func TestMultipleCalleeSuperInvokeNeverExpands(t *testing.T) {
	p := dispatchProgram()
	g := NewMultipleCalleeGraph(p, 100)

	caller := dm(p, "LSub1;", "callSuper")
	insn := caller.Code.Invokes()[0]
	callees := ResolveCalleesInGraph(g, caller, insn)
	require.Len(t, callees, 1)
	require.True(t, callees[dm(p, "LBase;", "m")], "super call binds to the base definition only")
}
