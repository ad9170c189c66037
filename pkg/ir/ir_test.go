package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExternalName(t *testing.T) {
	tests := []struct {
		name     string
		internal string
		want     string
	}{
		{name: "internal form", internal: "Lcom/foo/Bar;", want: "com.foo.Bar"},
		{name: "nested package", internal: "Lcom/foo/bar/Baz;", want: "com.foo.bar.Baz"},
		{name: "already external", internal: "com.foo.Bar", want: "com.foo.Bar"},
		{name: "empty", internal: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ExternalName(tt.internal))
		})
	}
}

func TestProgramLinking(t *testing.T) {
	m := &Method{Name: "run", Proto: "()V"}
	f := &Field{Name: "state", Type: "I"}
	cls := &Class{Name: "LApp;", Methods: []*Method{m}, Fields: []*Field{f}}
	p := NewProgram(cls)

	require.Same(t, cls, p.Class("LApp;"))
	require.Nil(t, p.Class("LMissing;"))
	require.Same(t, cls, m.Class)
	require.Same(t, cls, f.Class)
	require.Equal(t, "LApp;.run:()V", m.String())
	require.Equal(t, "LApp;.state:I", f.String())
}

func TestMethodPredicates(t *testing.T) {
	internal := &Class{Name: "LApp;"}
	external := &Class{Name: "LLib;", External: true}

	tests := []struct {
		name     string
		method   *Method
		concrete bool
		anyInit  bool
	}{
		{
			name:     "internal with body",
			method:   &Method{Class: internal, Code: &Code{}},
			concrete: true,
		},
		{
			name:   "internal abstract",
			method: &Method{Class: internal},
		},
		{
			name:   "external with body",
			method: &Method{Class: external, Code: &Code{}},
		},
		{
			name:     "constructor",
			method:   &Method{Class: internal, Kind: MethodInit, Code: &Code{}},
			concrete: true,
			anyInit:  true,
		},
		{
			name:     "static initializer",
			method:   &Method{Class: internal, Kind: MethodClinit, Code: &Code{}},
			concrete: true,
			anyInit:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.concrete, tt.method.IsConcrete())
			require.Equal(t, tt.anyInit, tt.method.IsAnyInit())
		})
	}
}

func TestParseOpcode(t *testing.T) {
	for op, name := range opcodeNames {
		parsed, ok := ParseOpcode(name)
		require.True(t, ok, "mnemonic %q", name)
		require.Equal(t, op, parsed)
	}
	_, ok := ParseOpcode("frobnicate")
	require.False(t, ok)
}

func TestIsInvoke(t *testing.T) {
	require.True(t, InvokeStatic.IsInvoke())
	require.True(t, InvokeSuper.IsInvoke())
	require.False(t, Move.IsInvoke())
	require.False(t, Return.IsInvoke())
}
