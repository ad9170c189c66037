package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSealDerivesPredecessors(t *testing.T) {
	b0 := &Block{Instrs: []*Instruction{{Op: IfZ, Dest: NoRegister, Srcs: []int{0}}}}
	b1 := &Block{Instrs: []*Instruction{{Op: Goto, Dest: NoRegister}}}
	b2 := &Block{Instrs: []*Instruction{{Op: ReturnVoid, Dest: NoRegister}}}
	b0.Succs = []*Block{b1, b2}
	b1.Succs = []*Block{b2}
	code := &Code{Blocks: []*Block{b0, b1, b2}}

	require.NoError(t, code.Seal())
	require.Equal(t, 0, b0.ID)
	require.Empty(t, b0.Preds)
	require.Equal(t, []*Block{b0}, b1.Preds)
	require.ElementsMatch(t, []*Block{b0, b1}, b2.Preds)
	require.Same(t, b0, code.Entry())

	// Idempotent: a second seal must not double the predecessor lists.
	require.NoError(t, code.Seal())
	require.Len(t, b2.Preds, 2)
}

func TestSealRejectsMalformedGraphs(t *testing.T) {
	t.Run("foreign successor", func(t *testing.T) {
		outside := &Block{}
		b0 := &Block{Succs: []*Block{outside}}
		code := &Code{Blocks: []*Block{b0}}
		require.Error(t, code.Seal())
	})

	t.Run("return block with successor", func(t *testing.T) {
		b1 := &Block{Instrs: []*Instruction{{Op: ReturnVoid, Dest: NoRegister}}}
		b0 := &Block{Instrs: []*Instruction{{Op: ReturnVoid, Dest: NoRegister}}, Succs: []*Block{b1}}
		code := &Code{Blocks: []*Block{b0, b1}}
		require.Error(t, code.Seal())
	})

	t.Run("branch with one successor", func(t *testing.T) {
		b1 := &Block{Instrs: []*Instruction{{Op: ReturnVoid, Dest: NoRegister}}}
		b0 := &Block{Instrs: []*Instruction{{Op: IfZ, Dest: NoRegister, Srcs: []int{0}}}, Succs: []*Block{b1}}
		code := &Code{Blocks: []*Block{b0, b1}}
		require.Error(t, code.Seal())
	})
}

func TestInvokes(t *testing.T) {
	call := &Instruction{Op: InvokeStatic, Dest: NoRegister, Method: &MethodRef{Class: "LA;", Name: "f", Proto: "()V"}}
	code := &Code{Blocks: []*Block{
		{Instrs: []*Instruction{{Op: Nop, Dest: NoRegister}, call, {Op: ReturnVoid, Dest: NoRegister}}},
	}}
	require.Equal(t, []*Instruction{call}, code.Invokes())
}
