package ir

import (
	"fmt"
	"strings"
)

// Opcode identifies an instruction kind. The set is the subset of the
// bytecode the type analysis interprets; everything else is modeled as Nop.
type Opcode uint8

const (
	Nop Opcode = iota

	// ConstNull loads the null reference into Dest.
	ConstNull

	// ConstString loads a string constant into Dest.
	ConstString

	// NewInstance allocates an object of TypeName into Dest.
	NewInstance

	// Move copies Srcs[0] into Dest.
	Move

	InvokeStatic
	InvokeDirect
	InvokeVirtual
	InvokeInterface
	InvokeSuper

	// IGet reads instance field Field of object Srcs[0] into Dest.
	IGet

	// IPut writes Srcs[0] into instance field Field of object Srcs[1].
	IPut

	// SGet reads static field Field into Dest.
	SGet

	// SPut writes Srcs[0] into static field Field.
	SPut

	// IfZ branches when Srcs[0] is zero/null. Successor edges live on the
	// enclosing block.
	IfZ

	// Goto is an unconditional branch; the target is the block's successor.
	Goto

	// Return returns the value in Srcs[0].
	Return

	// ReturnVoid returns without a value.
	ReturnVoid
)

var opcodeNames = map[Opcode]string{
	Nop:             "nop",
	ConstNull:       "const-null",
	ConstString:     "const-string",
	NewInstance:     "new-instance",
	Move:            "move",
	InvokeStatic:    "invoke-static",
	InvokeDirect:    "invoke-direct",
	InvokeVirtual:   "invoke-virtual",
	InvokeInterface: "invoke-interface",
	InvokeSuper:     "invoke-super",
	IGet:            "iget",
	IPut:            "iput",
	SGet:            "sget",
	SPut:            "sput",
	IfZ:             "if-z",
	Goto:            "goto",
	Return:          "return",
	ReturnVoid:      "return-void",
}

var opcodesByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opcodeNames))
	for op, name := range opcodeNames {
		m[name] = op
	}
	return m
}()

func (op Opcode) String() string {
	if s, ok := opcodeNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}

// ParseOpcode maps a mnemonic like "invoke-virtual" back to its opcode.
func ParseOpcode(name string) (Opcode, bool) {
	op, ok := opcodesByName[name]
	return op, ok
}

// IsInvoke reports whether the opcode is any of the invoke variants.
func (op Opcode) IsInvoke() bool {
	return op >= InvokeStatic && op <= InvokeSuper
}

// NoRegister marks an absent Dest register.
const NoRegister = -1

// Instruction is a single operation. The pointer is the instruction's
// identity: call-graph edges and argument partitions key on it.
type Instruction struct {
	Op   Opcode
	Dest int
	Srcs []int

	// Method is the symbolic callee reference for invoke opcodes.
	Method *MethodRef

	// Field is the symbolic field reference for field opcodes.
	Field *FieldRef

	// TypeName is the class allocated by NewInstance.
	TypeName string
}

// IsInvoke reports whether the instruction is a call.
func (i *Instruction) IsInvoke() bool {
	return i.Op.IsInvoke()
}

func (i *Instruction) String() string {
	var b strings.Builder
	b.WriteString(i.Op.String())
	if i.Dest != NoRegister {
		fmt.Fprintf(&b, " v%d <-", i.Dest)
	}
	for _, s := range i.Srcs {
		fmt.Fprintf(&b, " v%d", s)
	}
	if i.Method != nil {
		b.WriteByte(' ')
		b.WriteString(i.Method.String())
	}
	if i.Field != nil {
		b.WriteByte(' ')
		b.WriteString(i.Field.String())
	}
	if i.TypeName != "" {
		b.WriteByte(' ')
		b.WriteString(i.TypeName)
	}
	return b.String()
}
