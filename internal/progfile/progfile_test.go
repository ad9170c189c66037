package progfile

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/715d/typeflow/pkg/ir"
)

const sampleDoc = `
classes:
  - name: "LApp;"
    fields:
      - {name: cache, type: "LFoo;", static: true}
    methods:
      - name: main
        proto: "()V"
        root: true
        blocks:
          - instrs:
              - {op: new-instance, dest: 0, type: "LFoo;"}
              - {op: sput, srcs: [0], field: "LApp;.cache"}
              - {op: if-z, srcs: [0]}
            succs: [1, 2]
          - instrs:
              - {op: return-void}
          - instrs:
              - {op: return-void}
  - name: "LFoo;"
    external: true
`

func TestParseProgram(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	app := p.Class("LApp;")
	require.NotNil(t, app)
	require.True(t, p.Class("LFoo;").External)

	m := app.Method("main", "()V")
	require.NotNil(t, m)
	require.True(t, m.Root)
	require.NotNil(t, m.Code)
	require.Len(t, m.Code.Blocks, 3)
	require.Len(t, m.Code.Blocks[0].Succs, 2)

	insns := m.Code.Blocks[0].Instrs
	require.Equal(t, ir.NewInstance, insns[0].Op)
	require.Equal(t, 0, insns[0].Dest)
	require.Equal(t, "LFoo;", insns[0].TypeName)
	require.Equal(t, ir.SPut, insns[1].Op)
	require.Equal(t, ir.NoRegister, insns[1].Dest, "omitted dest defaults to none")
	require.Equal(t, &ir.FieldRef{Class: "LApp;", Name: "cache"}, insns[1].Field)

	require.NoError(t, m.Code.Seal())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "unknown opcode", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: teleport}`},
		{name: "unknown kind", doc: `
classes:
  - name: "LApp;"
    methods:
      - {name: m, proto: "()V", kind: destructor}`},
		{name: "successor out of range", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: return-void}
            succs: [5]`},
		{name: "move without source", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: move, dest: 1}
              - {op: return-void}`},
		{name: "return without source", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: return}`},
		{name: "iput with one source", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: iput, srcs: [0], field: "LApp;.f"}
              - {op: return-void}`},
		{name: "sput without field", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: sput, srcs: [0]}
              - {op: return-void}`},
		{name: "new-instance without dest", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: new-instance, type: "LFoo;"}
              - {op: return-void}`},
		{name: "invoke without method ref", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: invoke-static}
              - {op: return-void}`},
		{name: "malformed method ref", doc: `
classes:
  - name: "LApp;"
    methods:
      - name: m
        proto: "()V"
        blocks:
          - instrs:
              - {op: invoke-static, method: "garbage"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestParseRefs(t *testing.T) {
	mref, err := ParseMethodRef("LFoo;.bar:(II)V")
	require.NoError(t, err)
	require.Equal(t, &ir.MethodRef{Class: "LFoo;", Name: "bar", Proto: "(II)V"}, mref)

	fref, err := ParseFieldRef("LFoo;.f")
	require.NoError(t, err)
	require.Equal(t, &ir.FieldRef{Class: "LFoo;", Name: "f"}, fref)

	_, err = ParseMethodRef("nodot")
	require.Error(t, err)
}

func TestFindMethodAndField(t *testing.T) {
	p, err := Parse([]byte(sampleDoc))
	require.NoError(t, err)

	m, err := FindMethod(p, "LApp;.main:()V")
	require.NoError(t, err)
	require.Equal(t, "main", m.Name)

	f, err := FindField(p, "LApp;.cache")
	require.NoError(t, err)
	require.Equal(t, "cache", f.Name)

	_, err = FindMethod(p, "LApp;.missing:()V")
	require.Error(t, err)
	_, err = FindField(p, "LNope;.cache")
	require.Error(t, err)
}
