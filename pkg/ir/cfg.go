package ir

import "fmt"

// Code is a method body: the parameter registers in slot order and the
// basic blocks of the control-flow graph. Blocks[0] is the entry block.
type Code struct {
	Params []int
	Blocks []*Block

	sealed bool
}

// Block is a basic block. Successors are set by the code builder; Seal
// derives the predecessor lists.
type Block struct {
	ID     int
	Instrs []*Instruction
	Succs  []*Block
	Preds  []*Block
}

// Entry returns the entry block, or nil for an empty body.
func (c *Code) Entry() *Block {
	if len(c.Blocks) == 0 {
		return nil
	}
	return c.Blocks[0]
}

// Seal finalizes the control-flow graph: it assigns block IDs, derives
// predecessor edges from the successor lists, and validates that branch
// structure and block membership agree. Seal is idempotent and must run
// before any analysis walks the graph.
func (c *Code) Seal() error {
	if c.sealed {
		return nil
	}
	index := make(map[*Block]bool, len(c.Blocks))
	for i, b := range c.Blocks {
		b.ID = i
		b.Preds = nil
		index[b] = true
	}
	for _, b := range c.Blocks {
		for _, succ := range b.Succs {
			if !index[succ] {
				return fmt.Errorf("block b%d: successor not a member of this code", b.ID)
			}
			succ.Preds = append(succ.Preds, b)
		}
		if n := len(b.Instrs); n > 0 {
			last := b.Instrs[n-1]
			switch last.Op {
			case Return, ReturnVoid:
				if len(b.Succs) != 0 {
					return fmt.Errorf("block b%d: return block has successors", b.ID)
				}
			case IfZ:
				if len(b.Succs) != 2 {
					return fmt.Errorf("block b%d: if-z needs 2 successors, has %d", b.ID, len(b.Succs))
				}
			}
		}
	}
	c.sealed = true
	return nil
}

// ForEachInstruction invokes fn for every instruction in block order.
func (c *Code) ForEachInstruction(fn func(*Block, *Instruction)) {
	for _, b := range c.Blocks {
		for _, insn := range b.Instrs {
			fn(b, insn)
		}
	}
}

// Invokes returns every invoke instruction in the body, in block order.
func (c *Code) Invokes() []*Instruction {
	var out []*Instruction
	c.ForEachInstruction(func(_ *Block, insn *Instruction) {
		if insn.IsInvoke() {
			out = append(out, insn)
		}
	})
	return out
}
