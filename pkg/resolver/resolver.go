// Package resolver maps symbolic method and field references to their
// definitions by walking the class hierarchy.
package resolver

import (
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/715d/typeflow/pkg/ir"
)

// Search selects the lookup rule for a method reference.
type Search uint8

const (
	// SearchStatic resolves static invokes along the superclass chain.
	SearchStatic Search = iota

	// SearchDirect resolves constructors and private methods on the
	// referenced class only.
	SearchDirect

	// SearchVirtual resolves virtual and super invokes along the
	// superclass chain.
	SearchVirtual

	// SearchInterface resolves interface invokes along the superclass
	// chain and the transitive interface graph.
	SearchInterface
)

// SearchFor returns the search rule matching an invoke opcode.
func SearchFor(op ir.Opcode) Search {
	switch op {
	case ir.InvokeStatic:
		return SearchStatic
	case ir.InvokeDirect:
		return SearchDirect
	case ir.InvokeInterface:
		return SearchInterface
	default:
		return SearchVirtual
	}
}

// Resolver resolves references against one program. Resolution is
// deterministic and never fails hard: unknown classes and dangling
// references resolve to nil. Safe for concurrent use.
type Resolver struct {
	program *ir.Program

	// refCache memoizes per-reference results, including misses.
	refCache *xsync.Map[*ir.MethodRef, *ir.Method]
}

// New creates a resolver for the program.
func New(program *ir.Program) *Resolver {
	return &Resolver{
		program:  program,
		refCache: xsync.NewMap[*ir.MethodRef, *ir.Method](),
	}
}

// ResolveMethod resolves a method reference under the given search rule.
// Returns nil when the reference does not denote a known definition.
func (r *Resolver) ResolveMethod(ref *ir.MethodRef, search Search) *ir.Method {
	if ref == nil {
		return nil
	}
	if m, ok := r.refCache.Load(ref); ok {
		return m
	}
	m := r.resolve(ref, search)
	r.refCache.Store(ref, m)
	return m
}

// ResolveInvoke resolves the callee of an invoke instruction.
func (r *Resolver) ResolveInvoke(insn *ir.Instruction) *ir.Method {
	if insn == nil || !insn.IsInvoke() {
		return nil
	}
	return r.ResolveMethod(insn.Method, SearchFor(insn.Op))
}

// ResolveField resolves a field reference along the superclass chain.
func (r *Resolver) ResolveField(ref *ir.FieldRef) *ir.Field {
	if ref == nil {
		return nil
	}
	for cls := r.program.Class(ref.Class); cls != nil; cls = r.program.Class(cls.Super) {
		if f := cls.Field(ref.Name); f != nil {
			return f
		}
	}
	return nil
}

func (r *Resolver) resolve(ref *ir.MethodRef, search Search) *ir.Method {
	cls := r.program.Class(ref.Class)
	if cls == nil {
		return nil
	}
	if search == SearchDirect {
		return cls.Method(ref.Name, ref.Proto)
	}
	if m := r.searchSuperChain(cls, ref); m != nil {
		return m
	}
	if search == SearchInterface {
		return r.searchInterfaces(cls, ref, make(map[string]bool))
	}
	return nil
}

func (r *Resolver) searchSuperChain(cls *ir.Class, ref *ir.MethodRef) *ir.Method {
	for ; cls != nil; cls = r.program.Class(cls.Super) {
		if m := cls.Method(ref.Name, ref.Proto); m != nil {
			return m
		}
	}
	return nil
}

func (r *Resolver) searchInterfaces(cls *ir.Class, ref *ir.MethodRef, seen map[string]bool) *ir.Method {
	for ; cls != nil; cls = r.program.Class(cls.Super) {
		for _, ifaceName := range cls.Interfaces {
			if seen[ifaceName] {
				continue
			}
			seen[ifaceName] = true
			iface := r.program.Class(ifaceName)
			if iface == nil {
				continue
			}
			if m := iface.Method(ref.Name, ref.Proto); m != nil {
				return m
			}
			if m := r.searchInterfaces(iface, ref, seen); m != nil {
				return m
			}
		}
	}
	return nil
}
