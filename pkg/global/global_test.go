package global

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
)

func ret() *ir.Instruction {
	return &ir.Instruction{Op: ir.ReturnVoid, Dest: ir.NoRegister}
}

func block(insns ...*ir.Instruction) *ir.Code {
	insns = append(insns, ret())
	return &ir.Code{Blocks: []*ir.Block{{Instrs: insns}}}
}

// chainProgram threads a freshly created object through a chain of static
// calls: entry creates a LPayload; and hands it to a, which hands it to b,
// which hands it to c.
func chainProgram() *ir.Program {
	pass := func(name, next string) *ir.Method {
		var code *ir.Code
		if next != "" {
			code = &ir.Code{
				Params: []int{0},
				Blocks: []*ir.Block{{Instrs: []*ir.Instruction{
					{Op: ir.InvokeStatic, Dest: ir.NoRegister, Srcs: []int{0},
						Method: &ir.MethodRef{Class: "LChain;", Name: next, Proto: "(LPayload;)V"}},
					ret(),
				}}},
			}
		} else {
			code = &ir.Code{Params: []int{0}, Blocks: []*ir.Block{{Instrs: []*ir.Instruction{ret()}}}}
		}
		return &ir.Method{Name: name, Proto: "(LPayload;)V", Code: code}
	}

	entry := &ir.Method{Name: "entry", Proto: "()V", Root: true, Code: block(
		&ir.Instruction{Op: ir.NewInstance, Dest: 0, TypeName: "LPayload;"},
		&ir.Instruction{Op: ir.InvokeStatic, Dest: ir.NoRegister, Srcs: []int{0},
			Method: &ir.MethodRef{Class: "LChain;", Name: "a", Proto: "(LPayload;)V"}},
	)}

	cls := &ir.Class{Name: "LChain;", Methods: []*ir.Method{entry, pass("a", "b"), pass("b", "c"), pass("c", "")}}
	return ir.NewProgram(cls)
}

func chainMethod(p *ir.Program, name, proto string) *ir.Method {
	return p.Class("LChain;").Method(name, proto)
}

func TestArgumentPropagationThroughChain(t *testing.T) {
	p := chainProgram()
	a, err := Run(p, Config{})
	require.NoError(t, err)

	for _, name := range []string{"a", "b", "c"} {
		m := chainMethod(p, name, "(LPayload;)V")
		require.True(t, a.IsReachable(m), "method %s", name)

		env := a.EntryPartition(m).Get(lattice.CurrentLabel)
		arg := env.Get(0)
		require.Equal(t, "LPayload;", arg.TypeName(), "argument type survives hop into %s", name)
		require.Equal(t, lattice.NotNull, arg.GetNullness())
	}
}

func TestReachability(t *testing.T) {
	p := chainProgram()
	orphan := &ir.Method{Name: "orphan", Proto: "()V", Code: block()}
	p = ir.NewProgram(&ir.Class{
		Name:    "LChain;",
		Methods: append(p.Class("LChain;").Methods, orphan),
	})

	a, err := Run(p, Config{})
	require.NoError(t, err)

	require.True(t, a.IsReachable(chainMethod(p, "entry", "()V")))
	require.False(t, a.IsReachable(orphan))

	// An unreachable method still yields a usable local analysis under the
	// unconstrained environment.
	la := a.LocalAnalysis(orphan)
	require.NotNil(t, la)
	require.False(t, la.EntryStateAt(orphan.Code.Entry()).IsBottom())
}

func TestTopOnlyProgramStopsImmediately(t *testing.T) {
	// No fields, void returns everywhere: the first collected summary is
	// already top, so the loop stops at iteration zero.
	p := chainProgram()
	a, err := Run(p, Config{})
	require.NoError(t, err)

	require.True(t, a.Converged())
	require.Equal(t, 0, a.Iterations())
	require.Equal(t, 0, a.WholeProgramState().ResolvedFields())
	require.Equal(t, 0, a.WholeProgramState().ResolvedReturns())
}

func TestAnyInitReachableChain(t *testing.T) {
	helper2 := &ir.Method{Name: "helper2", Proto: "()V", Code: block()}
	helper := &ir.Method{Name: "helper", Proto: "()V", Code: block(
		&ir.Instruction{Op: ir.InvokeStatic, Dest: ir.NoRegister,
			Method: &ir.MethodRef{Class: "LApp;", Name: "helper2", Proto: "()V"}},
	)}
	init := &ir.Method{Name: "<init>", Proto: "()V", Kind: ir.MethodInit, Root: true, Code: &ir.Code{
		Params: []int{0},
		Blocks: []*ir.Block{{Instrs: []*ir.Instruction{
			{Op: ir.InvokeStatic, Dest: ir.NoRegister,
				Method: &ir.MethodRef{Class: "LApp;", Name: "helper", Proto: "()V"}},
			ret(),
		}}},
	}}
	outside := &ir.Method{Name: "outside", Proto: "()V", Root: true, Code: block()}
	p := ir.NewProgram(&ir.Class{Name: "LApp;", Methods: []*ir.Method{init, helper, helper2, outside}})

	a, err := Run(p, Config{})
	require.NoError(t, err)

	wps := a.WholeProgramState()
	require.True(t, wps.IsAnyInitReachable(init))
	require.True(t, wps.IsAnyInitReachable(helper), "direct callee of a constructor")
	require.True(t, wps.IsAnyInitReachable(helper2), "transitive callee of a constructor")
	require.False(t, wps.IsAnyInitReachable(outside))
}

func TestWholeProgramStateLeqAndDiff(t *testing.T) {
	f := &ir.Field{Name: "x", Type: "LFoo;"}
	cls := &ir.Class{Name: "LApp;", Fields: []*ir.Field{f}}
	f.Class = cls
	m := &ir.Method{Name: "make", Proto: "()LFoo;", Class: cls}

	top := NewWholeProgramState(nil)
	refined := NewWholeProgramState(nil)
	refined.joinField(f, lattice.TypeOf("LFoo;"))
	refined.setReturn(m, lattice.TypeOf("LFoo;"))

	require.True(t, refined.Leq(top), "refined summary is below top")
	require.False(t, top.Leq(refined))
	require.True(t, refined.Leq(refined))

	require.Equal(t, 1, refined.ResolvedFields())
	require.Equal(t, 1, refined.ResolvedReturns())
	require.Len(t, refined.Diff(top), 2)
	require.Empty(t, top.Diff(top))
}

func TestJoinFieldWidensToTop(t *testing.T) {
	f := &ir.Field{Name: "x", Type: "LFoo;", Class: &ir.Class{Name: "LApp;"}}
	w := NewWholeProgramState(nil)
	w.joinField(f, lattice.TypeOf("LFoo;"))
	require.Equal(t, 1, w.ResolvedFields())

	w.joinField(f, lattice.TypeTop())
	require.Equal(t, 0, w.ResolvedFields(), "top writes erase the entry")
	require.True(t, w.FieldType(f).IsTop())
}
