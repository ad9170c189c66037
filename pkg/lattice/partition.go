package lattice

import (
	"fmt"
	"strings"

	"github.com/715d/typeflow/pkg/ir"
)

// CurrentLabel is the distinguished partition label naming the environment
// of the context currently being analyzed, as opposed to the environment
// captured at a specific call instruction. It is a reserved instruction
// identity that never appears in any method body.
var CurrentLabel = &ir.Instruction{Op: ir.Nop, Dest: ir.NoRegister}

// ArgumentTypePartition maps labels (CurrentLabel or call instructions) to
// argument environments. Unbound labels read as bottom and top is
// absorbing, so the partition behaves as a labeled disjoint union of
// environments. Partitions are immutable.
type ArgumentTypePartition struct {
	top    bool
	labels map[*ir.Instruction]ArgumentTypeEnvironment
}

// PartitionBottom returns the partition with every label unreachable.
func PartitionBottom() ArgumentTypePartition {
	return ArgumentTypePartition{}
}

// PartitionTop returns the absorbing top partition.
func PartitionTop() ArgumentTypePartition {
	return ArgumentTypePartition{top: true}
}

// IsTop reports whether the partition is the absorbing top.
func (p ArgumentTypePartition) IsTop() bool { return p.top }

// IsBottom reports whether every label is unreachable.
func (p ArgumentTypePartition) IsBottom() bool {
	return !p.top && len(p.labels) == 0
}

// Get returns the environment bound at the label. Unbound labels are
// bottom; every label of the top partition is top.
func (p ArgumentTypePartition) Get(label *ir.Instruction) ArgumentTypeEnvironment {
	if p.top {
		return EnvTop()
	}
	if env, ok := p.labels[label]; ok {
		return env
	}
	return EnvBottom()
}

// Set binds a label. Binding into top is a no-op; binding a bottom
// environment removes the label.
func (p ArgumentTypePartition) Set(label *ir.Instruction, env ArgumentTypeEnvironment) ArgumentTypePartition {
	if p.top {
		return p
	}
	out := ArgumentTypePartition{labels: make(map[*ir.Instruction]ArgumentTypeEnvironment, len(p.labels)+1)}
	for l, e := range p.labels {
		out.labels[l] = e
	}
	if env.IsBottom() {
		delete(out.labels, label)
	} else {
		out.labels[label] = env
	}
	return out
}

// Update joins env into the label's current binding.
func (p ArgumentTypePartition) Update(label *ir.Instruction, env ArgumentTypeEnvironment) ArgumentTypePartition {
	return p.Set(label, p.Get(label).Join(env))
}

// Join returns the labelwise least upper bound.
func (p ArgumentTypePartition) Join(o ArgumentTypePartition) ArgumentTypePartition {
	if p.top || o.top {
		return PartitionTop()
	}
	out := p
	for l, env := range o.labels {
		out = out.Update(l, env)
	}
	return out
}

// Leq reports whether p is at or below o labelwise.
func (p ArgumentTypePartition) Leq(o ArgumentTypePartition) bool {
	if o.top {
		return true
	}
	if p.top {
		return false
	}
	for l, env := range p.labels {
		if !env.Leq(o.Get(l)) {
			return false
		}
	}
	return true
}

// Equal reports lattice equality.
func (p ArgumentTypePartition) Equal(o ArgumentTypePartition) bool {
	return p.Leq(o) && o.Leq(p)
}

// Labels returns the bound labels in unspecified order.
func (p ArgumentTypePartition) Labels() []*ir.Instruction {
	out := make([]*ir.Instruction, 0, len(p.labels))
	for l := range p.labels {
		out = append(out, l)
	}
	return out
}

func (p ArgumentTypePartition) String() string {
	if p.top {
		return "T"
	}
	if p.IsBottom() {
		return "_|_"
	}
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for l, env := range p.labels {
		if !first {
			b.WriteString(", ")
		}
		first = false
		name := "<current>"
		if l != CurrentLabel {
			name = l.String()
		}
		fmt.Fprintf(&b, "%s: %s", name, env)
	}
	b.WriteByte('}')
	return b.String()
}
