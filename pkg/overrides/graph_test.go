package overrides

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/pkg/ir"
)

// hierarchy:
//
//	LRunnable;          (external interface, run)
//	LBase;              (implements LRunnable;, defines run, local)
//	LMid;   : LBase;    (overrides run)
//	LLeaf;  : LMid;     (overrides run)
func overrideProgram() *ir.Program {
	runnable := &ir.Class{
		Name:        "LRunnable;",
		IsInterface: true,
		External:    true,
		Methods:     []*ir.Method{{Name: "run", Proto: "()V", Virtual: true}},
	}
	base := &ir.Class{
		Name:       "LBase;",
		Interfaces: []string{"LRunnable;"},
		Methods: []*ir.Method{
			{Name: "run", Proto: "()V", Virtual: true, Code: &ir.Code{}},
			{Name: "local", Proto: "()V", Virtual: true, Code: &ir.Code{}},
		},
	}
	mid := &ir.Class{
		Name:    "LMid;",
		Super:   "LBase;",
		Methods: []*ir.Method{{Name: "run", Proto: "()V", Virtual: true, Code: &ir.Code{}}},
	}
	leaf := &ir.Class{
		Name:    "LLeaf;",
		Super:   "LMid;",
		Methods: []*ir.Method{{Name: "run", Proto: "()V", Virtual: true, Code: &ir.Code{}}},
	}
	return ir.NewProgram(runnable, base, mid, leaf)
}

func method(p *ir.Program, cls, name string) *ir.Method {
	return p.Class(cls).Method(name, "()V")
}

func TestOverridingMethodsTransitive(t *testing.T) {
	p := overrideProgram()
	g := BuildGraph(p)

	baseRun := method(p, "LBase;", "run")
	got := g.OverridingMethods(baseRun)
	require.ElementsMatch(t, []*ir.Method{method(p, "LMid;", "run"), method(p, "LLeaf;", "run")}, got)

	ifaceRun := method(p, "LRunnable;", "run")
	got = g.OverridingMethods(ifaceRun)
	require.Contains(t, got, baseRun, "interface declaration sees the implementation")
	require.Contains(t, got, method(p, "LLeaf;", "run"), "transitively through the chain")
}

func TestOverriddenMethodsTransitive(t *testing.T) {
	p := overrideProgram()
	g := BuildGraph(p)

	leafRun := method(p, "LLeaf;", "run")
	got := g.OverriddenMethods(leafRun)
	require.Contains(t, got, method(p, "LMid;", "run"))
	require.Contains(t, got, method(p, "LBase;", "run"))
	require.Contains(t, got, method(p, "LRunnable;", "run"))
}

func TestIsTrueVirtual(t *testing.T) {
	p := overrideProgram()
	g := BuildGraph(p)

	require.True(t, g.IsTrueVirtual(method(p, "LBase;", "run")))
	require.True(t, g.IsTrueVirtual(method(p, "LRunnable;", "run")))
	require.False(t, g.IsTrueVirtual(method(p, "LBase;", "local")))
}

func TestNonTrueVirtuals(t *testing.T) {
	p := overrideProgram()
	g := BuildGraph(p)

	nv := NonTrueVirtuals(g, p)
	require.True(t, nv[method(p, "LBase;", "local")])
	require.False(t, nv[method(p, "LBase;", "run")])
	require.False(t, nv[method(p, "LRunnable;", "run")], "external methods are excluded")
}

func TestNodesIncludeExternal(t *testing.T) {
	p := overrideProgram()
	g := BuildGraph(p)
	require.Contains(t, g.Nodes(), method(p, "LRunnable;", "run"))
}
