// Package lattice implements the abstract domains of the type analysis:
// per-value type/nullness elements, per-method argument environments, and
// labeled partitions of environments.
package lattice

import "fmt"

// Nullness is a four-point bitset lattice. Join is bitwise or, meet is
// bitwise and, order is subset inclusion.
type Nullness uint8

const (
	// NullnessBottom is the unreachable nullness.
	NullnessBottom Nullness = 0

	// IsNull: the value is definitely the null reference.
	IsNull Nullness = 1

	// NotNull: the value is definitely a live object.
	NotNull Nullness = 2

	// NullnessTop: nothing is known.
	NullnessTop Nullness = IsNull | NotNull
)

// Join returns the least upper bound.
func (n Nullness) Join(o Nullness) Nullness { return n | o }

// Meet returns the greatest lower bound.
func (n Nullness) Meet(o Nullness) Nullness { return n & o }

// Leq reports whether n is at or below o in the lattice order.
func (n Nullness) Leq(o Nullness) bool { return n&o == n }

func (n Nullness) String() string {
	switch n {
	case NullnessBottom:
		return "bottom"
	case IsNull:
		return "null"
	case NotNull:
		return "not-null"
	default:
		return "nullable"
	}
}

type typeKind uint8

const (
	typeBottom typeKind = iota
	typeValue
	typeTop
)

// TypeDomain is the product of a singleton class-type component and a
// nullness component. The type component holds at most one class name; the
// join of two distinct names gives up to the unconstrained type rather than
// searching for a common ancestor, which keeps the lattice height finite
// and the domain independent of any class hierarchy.
type TypeDomain struct {
	kind     typeKind
	typeName string // empty means the type component is unconstrained
	nullness Nullness
}

// TypeBottom returns the unreachable element.
func TypeBottom() TypeDomain { return TypeDomain{kind: typeBottom} }

// TypeTop returns the no-information element.
func TypeTop() TypeDomain { return TypeDomain{kind: typeTop} }

// NullType returns the abstract value of the null constant: no class, known
// to be null.
func NullType() TypeDomain {
	return TypeDomain{kind: typeValue, nullness: IsNull}
}

// TypeOf returns the abstract value of a freshly created object of the
// named class.
func TypeOf(typeName string) TypeDomain {
	return TypeDomain{kind: typeValue, typeName: typeName, nullness: NotNull}
}

// NullableTypeOf returns an object of the named class that may be null.
func NullableTypeOf(typeName string) TypeDomain {
	return TypeDomain{kind: typeValue, typeName: typeName, nullness: NullnessTop}
}

// IsBottom reports whether the element is unreachable.
func (t TypeDomain) IsBottom() bool { return t.kind == typeBottom }

// IsTop reports whether the element carries no information.
func (t TypeDomain) IsTop() bool { return t.kind == typeTop }

// TypeName returns the singleton class name, or "" when the type component
// is unconstrained or the element is top/bottom.
func (t TypeDomain) TypeName() string {
	if t.kind != typeValue {
		return ""
	}
	return t.typeName
}

// GetNullness returns the nullness component. Top maps to nullable, bottom
// to the unreachable nullness.
func (t TypeDomain) GetNullness() Nullness {
	switch t.kind {
	case typeBottom:
		return NullnessBottom
	case typeTop:
		return NullnessTop
	default:
		return t.nullness
	}
}

// WithNullness replaces the nullness component of a value element. Top and
// bottom are fixed points.
func (t TypeDomain) WithNullness(n Nullness) TypeDomain {
	if t.kind != typeValue {
		return t
	}
	t.nullness = n
	return t.normalize()
}

// Join returns the least upper bound.
func (t TypeDomain) Join(o TypeDomain) TypeDomain {
	switch {
	case t.IsBottom():
		return o
	case o.IsBottom():
		return t
	case t.IsTop() || o.IsTop():
		return TypeTop()
	}
	out := TypeDomain{kind: typeValue, nullness: t.nullness | o.nullness}
	if t.typeName == o.typeName {
		out.typeName = t.typeName
	}
	return out.normalize()
}

// Meet returns the greatest lower bound.
func (t TypeDomain) Meet(o TypeDomain) TypeDomain {
	switch {
	case t.IsTop():
		return o
	case o.IsTop():
		return t
	case t.IsBottom() || o.IsBottom():
		return TypeBottom()
	}
	if t.typeName != o.typeName && t.typeName != "" && o.typeName != "" {
		return TypeBottom()
	}
	out := TypeDomain{kind: typeValue, nullness: t.nullness & o.nullness}
	if out.nullness == NullnessBottom {
		return TypeBottom()
	}
	if t.typeName != "" {
		out.typeName = t.typeName
	} else {
		out.typeName = o.typeName
	}
	return out
}

// Leq reports whether t is at or below o.
func (t TypeDomain) Leq(o TypeDomain) bool {
	switch {
	case t.IsBottom() || o.IsTop():
		return true
	case t.IsTop() || o.IsBottom():
		return false
	}
	if !t.nullness.Leq(o.nullness) {
		return false
	}
	return o.typeName == "" || t.typeName == o.typeName
}

// Equal reports lattice equality.
func (t TypeDomain) Equal(o TypeDomain) bool {
	return t.Leq(o) && o.Leq(t)
}

// normalize collapses the all-unconstrained value onto top so equality
// stays canonical.
func (t TypeDomain) normalize() TypeDomain {
	if t.kind == typeValue && t.typeName == "" && t.nullness == NullnessTop {
		return TypeTop()
	}
	if t.kind == typeValue && t.nullness == NullnessBottom {
		return TypeBottom()
	}
	return t
}

func (t TypeDomain) String() string {
	switch t.kind {
	case typeBottom:
		return "_|_"
	case typeTop:
		return "T"
	}
	name := t.typeName
	if name == "" {
		name = "*"
	}
	return fmt.Sprintf("%s[%s]", name, t.nullness)
}
