package lattice

import (
	"fmt"
	"sort"
	"strings"
)

type envKind uint8

const (
	envValue envKind = iota
	envTop
	envBottom
)

// Environment is a functional map from keys to abstract values: unbound
// keys read as top, the whole environment can be top or bottom, and
// join/meet/leq are pointwise. Environments are immutable; every operation
// returns a fresh value.
type Environment[K comparable] struct {
	kind  envKind
	slots map[K]TypeDomain
}

// ArgumentTypeEnvironment maps argument-slot (register) indices to
// abstract values.
type ArgumentTypeEnvironment = Environment[int]

// TopEnvironment returns the environment with no information.
func TopEnvironment[K comparable]() Environment[K] {
	return Environment[K]{kind: envTop}
}

// BottomEnvironment returns the unreachable environment.
func BottomEnvironment[K comparable]() Environment[K] {
	return Environment[K]{kind: envBottom}
}

// EnvTop returns the argument environment with no information.
func EnvTop() ArgumentTypeEnvironment { return TopEnvironment[int]() }

// EnvBottom returns the unreachable argument environment.
func EnvBottom() ArgumentTypeEnvironment { return BottomEnvironment[int]() }

// NewEnv returns an argument environment binding the given slots; every
// other slot reads as top.
func NewEnv(slots map[int]TypeDomain) ArgumentTypeEnvironment {
	env := ArgumentTypeEnvironment{kind: envValue, slots: make(map[int]TypeDomain)}
	for i, v := range slots {
		env = env.Set(i, v)
	}
	return env
}

// IsTop reports whether the environment carries no information.
func (e Environment[K]) IsTop() bool {
	return e.kind == envTop || (e.kind == envValue && len(e.slots) == 0)
}

// IsBottom reports whether the environment is unreachable.
func (e Environment[K]) IsBottom() bool { return e.kind == envBottom }

// Get returns the value of a key. Unbound keys are top.
func (e Environment[K]) Get(key K) TypeDomain {
	switch e.kind {
	case envBottom:
		return TypeBottom()
	case envTop:
		return TypeTop()
	}
	if v, ok := e.slots[key]; ok {
		return v
	}
	return TypeTop()
}

// Set binds a key. Binding bottom collapses the whole environment to
// bottom; binding into bottom stays bottom.
func (e Environment[K]) Set(key K, v TypeDomain) Environment[K] {
	if e.kind == envBottom {
		return e
	}
	if v.IsBottom() {
		return BottomEnvironment[K]()
	}
	out := Environment[K]{kind: envValue, slots: make(map[K]TypeDomain, len(e.slots)+1)}
	for k, val := range e.slots {
		out.slots[k] = val
	}
	if v.IsTop() {
		delete(out.slots, key)
	} else {
		out.slots[key] = v
	}
	return out
}

// Update joins v into the key's current binding.
func (e Environment[K]) Update(key K, v TypeDomain) Environment[K] {
	if e.kind == envBottom {
		return e
	}
	return e.Set(key, e.Get(key).Join(v))
}

// Join returns the pointwise least upper bound.
func (e Environment[K]) Join(o Environment[K]) Environment[K] {
	switch {
	case e.IsBottom():
		return o
	case o.IsBottom():
		return e
	case e.IsTop() || o.IsTop():
		return TopEnvironment[K]()
	}
	out := Environment[K]{kind: envValue, slots: make(map[K]TypeDomain)}
	for k, v := range e.slots {
		if ov, ok := o.slots[k]; ok {
			j := v.Join(ov)
			if !j.IsTop() {
				out.slots[k] = j
			}
		}
	}
	return out
}

// Leq reports whether e is at or below o pointwise.
func (e Environment[K]) Leq(o Environment[K]) bool {
	switch {
	case e.IsBottom() || o.IsTop():
		return true
	case o.IsBottom() || e.IsTop():
		return false
	}
	for k, ov := range o.slots {
		if !e.Get(k).Leq(ov) {
			return false
		}
	}
	return true
}

// Equal reports lattice equality.
func (e Environment[K]) Equal(o Environment[K]) bool {
	return e.Leq(o) && o.Leq(e)
}

// Keys returns the bound keys in unspecified order.
func (e Environment[K]) Keys() []K {
	if e.kind != envValue {
		return nil
	}
	out := make([]K, 0, len(e.slots))
	for k := range e.slots {
		out = append(out, k)
	}
	return out
}

func (e Environment[K]) String() string {
	switch {
	case e.IsBottom():
		return "_|_"
	case e.IsTop():
		return "T"
	}
	parts := make([]string, 0, len(e.slots))
	for k, v := range e.slots {
		parts = append(parts, fmt.Sprintf("%v: %s", k, v))
	}
	sort.Strings(parts)
	var b strings.Builder
	b.WriteByte('{')
	b.WriteString(strings.Join(parts, ", "))
	b.WriteByte('}')
	return b.String()
}
