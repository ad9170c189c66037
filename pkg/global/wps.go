// Package global implements the interprocedural type analysis: argument
// partitions propagated over the call graph to fixpoint, the whole-program
// summary of field and return types, and the outer refinement driver.
package global

import (
	"fmt"
	"sort"

	"github.com/715d/typeflow/pkg/ir"
	"github.com/715d/typeflow/pkg/lattice"
	"github.com/715d/typeflow/pkg/local"
	"github.com/715d/typeflow/pkg/resolver"
)

// WholeProgramState is the interprocedural summary one refinement round
// produces and the next consumes: the abstract value of every written
// field and every method return. Entries never recorded read as top, so an
// empty state is the top element.
type WholeProgramState struct {
	fields  map[*ir.Field]lattice.TypeDomain
	returns map[*ir.Method]lattice.TypeDomain

	anyInitReachable map[*ir.Method]bool
}

// NewWholeProgramState returns the all-top state carrying the
// any-init-reachable set.
func NewWholeProgramState(anyInitReachable map[*ir.Method]bool) *WholeProgramState {
	return &WholeProgramState{
		fields:           make(map[*ir.Field]lattice.TypeDomain),
		returns:          make(map[*ir.Method]lattice.TypeDomain),
		anyInitReachable: anyInitReachable,
	}
}

// FieldType returns the summarized value of a field, top when unknown.
func (w *WholeProgramState) FieldType(f *ir.Field) lattice.TypeDomain {
	if v, ok := w.fields[f]; ok {
		return v
	}
	return lattice.TypeTop()
}

// ReturnType returns the summarized return value of a method, top when
// unknown.
func (w *WholeProgramState) ReturnType(m *ir.Method) lattice.TypeDomain {
	if v, ok := w.returns[m]; ok {
		return v
	}
	return lattice.TypeTop()
}

// IsAnyInitReachable reports whether the method is transitively reachable
// from a constructor or static initializer.
func (w *WholeProgramState) IsAnyInitReachable(m *ir.Method) bool {
	return w.anyInitReachable[m]
}

// joinField folds one observed field write into the summary. Top values
// are not stored; absence already means top.
func (w *WholeProgramState) joinField(f *ir.Field, v lattice.TypeDomain) {
	if cur, ok := w.fields[f]; ok {
		v = cur.Join(v)
	}
	if v.IsTop() {
		delete(w.fields, f)
		return
	}
	w.fields[f] = v
}

// setReturn records a method's summarized return value.
func (w *WholeProgramState) setReturn(m *ir.Method, v lattice.TypeDomain) {
	if v.IsTop() {
		delete(w.returns, m)
		return
	}
	w.returns[m] = v
}

// Leq reports whether w is at or below o pointwise, reading missing
// entries as top on both sides.
func (w *WholeProgramState) Leq(o *WholeProgramState) bool {
	for f, ov := range o.fields {
		if !w.FieldType(f).Leq(ov) {
			return false
		}
	}
	for m, ov := range o.returns {
		if !w.ReturnType(m).Leq(ov) {
			return false
		}
	}
	return true
}

// ResolvedFields counts fields with a summary below top.
func (w *WholeProgramState) ResolvedFields() int { return len(w.fields) }

// ResolvedReturns counts methods with a return summary below top.
func (w *WholeProgramState) ResolvedReturns() int { return len(w.returns) }

// Diff lists, one line per entry, the field and return summaries of w that
// differ from old, sorted for stable output.
func (w *WholeProgramState) Diff(old *WholeProgramState) []string {
	var out []string
	for f, v := range w.fields {
		if !v.Equal(old.FieldType(f)) {
			out = append(out, fmt.Sprintf("field %s: %s -> %s", f, old.FieldType(f), v))
		}
	}
	for f := range old.fields {
		if _, ok := w.fields[f]; !ok {
			out = append(out, fmt.Sprintf("field %s: %s -> T", f, old.fields[f]))
		}
	}
	for m, v := range w.returns {
		if !v.Equal(old.ReturnType(m)) {
			out = append(out, fmt.Sprintf("return %s: %s -> %s", m, old.ReturnType(m), v))
		}
	}
	for m := range old.returns {
		if _, ok := w.returns[m]; !ok {
			out = append(out, fmt.Sprintf("return %s: %s -> T", m, old.returns[m]))
		}
	}
	sort.Strings(out)
	return out
}

// collectWholeProgramState builds a fresh summary from the fixpoint results
// of one analyzer run. Field writes in any-init-reachable methods keep
// their type component but lose nullness: the write may happen before the
// object or class is fully initialized.
func collectWholeProgramState(gta *GlobalTypeAnalyzer, res *resolver.Resolver, anyInitReachable map[*ir.Method]bool) *WholeProgramState {
	w := NewWholeProgramState(anyInitReachable)
	gta.program.WalkCode(func(m *ir.Method, code *ir.Code) {
		if !gta.IsReachable(m) {
			return
		}
		la := gta.LocalAnalysis(m)
		for _, b := range code.Blocks {
			st := la.EntryStateAt(b)
			if st.IsBottom() {
				continue
			}
			for _, insn := range b.Instrs {
				if insn.Op == ir.SPut || insn.Op == ir.IPut {
					if f := res.ResolveField(insn.Field); f != nil {
						v := st.Regs.Get(insn.Srcs[0])
						if anyInitReachable[m] {
							v = v.WithNullness(lattice.NullnessTop)
						}
						w.joinField(f, v)
					}
				}
				la.AnalyzeInstruction(insn, &st)
			}
		}
		if ret := la.ReturnType(); !ret.IsBottom() {
			w.setReturn(m, ret)
		}
	})
	return w
}

// compile-time check: the summary serves the intraprocedural analyzer.
var _ local.WholeProgramView = (*WholeProgramState)(nil)
