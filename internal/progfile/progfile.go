// Package progfile parses the YAML program description consumed by the
// command line tool and the test fixtures.
package progfile

import (
	"fmt"
	"os"
	"strings"

	yaml "gopkg.in/yaml.v3"

	"github.com/715d/typeflow/pkg/ir"
)

// File is the top-level document.
type File struct {
	Classes []ClassDoc `yaml:"classes"`
}

// ClassDoc describes one class or interface.
type ClassDoc struct {
	Name       string      `yaml:"name"`
	Super      string      `yaml:"super,omitempty"`
	Interfaces []string    `yaml:"interfaces,omitempty"`
	Interface  bool        `yaml:"interface,omitempty"`
	External   bool        `yaml:"external,omitempty"`
	Fields     []FieldDoc  `yaml:"fields,omitempty"`
	Methods    []MethodDoc `yaml:"methods,omitempty"`
}

// FieldDoc describes one field.
type FieldDoc struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Static bool   `yaml:"static,omitempty"`
}

// MethodDoc describes one method. Kind is "regular" (default), "init" or
// "clinit". A method without blocks is abstract.
type MethodDoc struct {
	Name    string     `yaml:"name"`
	Proto   string     `yaml:"proto"`
	Kind    string     `yaml:"kind,omitempty"`
	Virtual bool       `yaml:"virtual,omitempty"`
	Root    bool       `yaml:"root,omitempty"`
	Keep    bool       `yaml:"keep,omitempty"`
	Params  []int      `yaml:"params,omitempty"`
	Blocks  []BlockDoc `yaml:"blocks,omitempty"`
}

// BlockDoc describes one basic block; successors are indices into the
// method's block list.
type BlockDoc struct {
	Instrs []InstrDoc `yaml:"instrs"`
	Succs  []int      `yaml:"succs,omitempty"`
}

// InstrDoc describes one instruction. References use the textual forms
// "LFoo;.bar:(II)V" for methods and "LFoo;.f" for fields.
type InstrDoc struct {
	Op     string `yaml:"op"`
	Dest   *int   `yaml:"dest,omitempty"`
	Srcs   []int  `yaml:"srcs,omitempty"`
	Method string `yaml:"method,omitempty"`
	Field  string `yaml:"field,omitempty"`
	Type   string `yaml:"type,omitempty"`
}

// Load reads and parses a program file.
func Load(path string) (*ir.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program file: %w", err)
	}
	return Parse(data)
}

// Parse builds a program from YAML.
func Parse(data []byte) (*ir.Program, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing program file: %w", err)
	}
	return Build(&f)
}

// Build converts a parsed document into a linked program.
func Build(f *File) (*ir.Program, error) {
	classes := make([]*ir.Class, 0, len(f.Classes))
	for _, cd := range f.Classes {
		cls := &ir.Class{
			Name:        cd.Name,
			Super:       cd.Super,
			Interfaces:  cd.Interfaces,
			IsInterface: cd.Interface,
			External:    cd.External,
		}
		for _, fd := range cd.Fields {
			cls.Fields = append(cls.Fields, &ir.Field{Name: fd.Name, Type: fd.Type, Static: fd.Static})
		}
		for _, md := range cd.Methods {
			m, err := buildMethod(&md)
			if err != nil {
				return nil, fmt.Errorf("class %s method %s: %w", cd.Name, md.Name, err)
			}
			cls.Methods = append(cls.Methods, m)
		}
		classes = append(classes, cls)
	}
	return ir.NewProgram(classes...), nil
}

func buildMethod(md *MethodDoc) (*ir.Method, error) {
	m := &ir.Method{
		Name:    md.Name,
		Proto:   md.Proto,
		Virtual: md.Virtual,
		Root:    md.Root,
		Keep:    md.Keep,
	}
	switch md.Kind {
	case "", "regular":
		m.Kind = ir.MethodRegular
	case "init":
		m.Kind = ir.MethodInit
	case "clinit":
		m.Kind = ir.MethodClinit
	default:
		return nil, fmt.Errorf("unknown method kind %q", md.Kind)
	}
	if len(md.Blocks) == 0 {
		return m, nil
	}

	code := &ir.Code{Params: md.Params}
	blocks := make([]*ir.Block, len(md.Blocks))
	for i := range md.Blocks {
		blocks[i] = &ir.Block{}
	}
	for i, bd := range md.Blocks {
		for _, id := range bd.Instrs {
			insn, err := buildInstr(&id)
			if err != nil {
				return nil, fmt.Errorf("block %d: %w", i, err)
			}
			blocks[i].Instrs = append(blocks[i].Instrs, insn)
		}
		for _, s := range bd.Succs {
			if s < 0 || s >= len(blocks) {
				return nil, fmt.Errorf("block %d: successor %d out of range", i, s)
			}
			blocks[i].Succs = append(blocks[i].Succs, blocks[s])
		}
	}
	code.Blocks = blocks
	m.Code = code
	return m, nil
}

func buildInstr(id *InstrDoc) (*ir.Instruction, error) {
	op, ok := ir.ParseOpcode(id.Op)
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", id.Op)
	}
	insn := &ir.Instruction{Op: op, Dest: ir.NoRegister, Srcs: id.Srcs, TypeName: id.Type}
	if id.Dest != nil {
		insn.Dest = *id.Dest
	}
	if id.Method != "" {
		ref, err := ParseMethodRef(id.Method)
		if err != nil {
			return nil, err
		}
		insn.Method = ref
	}
	if id.Field != "" {
		ref, err := ParseFieldRef(id.Field)
		if err != nil {
			return nil, err
		}
		insn.Field = ref
	}
	if err := validateInstr(insn); err != nil {
		return nil, err
	}
	return insn, nil
}

// validateInstr checks per-opcode operand shape. The analysis indexes
// operands without rechecking, so the description file is the last point
// where a malformed instruction can be turned into an error.
func validateInstr(insn *ir.Instruction) error {
	needSrcs := 0
	needDest := false
	switch insn.Op {
	case ir.ConstNull, ir.ConstString, ir.SGet:
		needDest = true
	case ir.NewInstance:
		needDest = true
		if insn.TypeName == "" {
			return fmt.Errorf("%s needs a type", insn.Op)
		}
	case ir.Move, ir.IGet:
		needDest = true
		needSrcs = 1
	case ir.IPut:
		needSrcs = 2
	case ir.SPut, ir.IfZ, ir.Return:
		needSrcs = 1
	}
	if insn.IsInvoke() && insn.Method == nil {
		return fmt.Errorf("%s needs a method reference", insn.Op)
	}
	switch insn.Op {
	case ir.IGet, ir.IPut, ir.SGet, ir.SPut:
		if insn.Field == nil {
			return fmt.Errorf("%s needs a field reference", insn.Op)
		}
	}
	if needDest && insn.Dest == ir.NoRegister {
		return fmt.Errorf("%s needs a dest register", insn.Op)
	}
	if len(insn.Srcs) < needSrcs {
		return fmt.Errorf("%s needs %d source registers, got %d", insn.Op, needSrcs, len(insn.Srcs))
	}
	return nil
}

// ParseMethodRef parses "LFoo;.bar:(II)V".
func ParseMethodRef(s string) (*ir.MethodRef, error) {
	cls, rest, ok := strings.Cut(s, ".")
	if !ok {
		return nil, fmt.Errorf("malformed method reference %q", s)
	}
	name, proto, ok := strings.Cut(rest, ":")
	if !ok {
		return nil, fmt.Errorf("malformed method reference %q", s)
	}
	return &ir.MethodRef{Class: cls, Name: name, Proto: proto}, nil
}

// ParseFieldRef parses "LFoo;.f".
func ParseFieldRef(s string) (*ir.FieldRef, error) {
	cls, name, ok := strings.Cut(s, ".")
	if !ok {
		return nil, fmt.Errorf("malformed field reference %q", s)
	}
	return &ir.FieldRef{Class: cls, Name: name}, nil
}

// FindMethod resolves a textual method reference to its definition.
func FindMethod(p *ir.Program, s string) (*ir.Method, error) {
	ref, err := ParseMethodRef(s)
	if err != nil {
		return nil, err
	}
	cls := p.Class(ref.Class)
	if cls == nil {
		return nil, fmt.Errorf("unknown class %q", ref.Class)
	}
	m := cls.Method(ref.Name, ref.Proto)
	if m == nil {
		return nil, fmt.Errorf("unknown method %q", s)
	}
	return m, nil
}

// FindField resolves a textual field reference to its definition.
func FindField(p *ir.Program, s string) (*ir.Field, error) {
	ref, err := ParseFieldRef(s)
	if err != nil {
		return nil, err
	}
	cls := p.Class(ref.Class)
	if cls == nil {
		return nil, fmt.Errorf("unknown class %q", ref.Class)
	}
	f := cls.Field(ref.Name)
	if f == nil {
		return nil, fmt.Errorf("unknown field %q", s)
	}
	return f, nil
}
