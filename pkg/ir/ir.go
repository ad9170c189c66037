// Package ir defines the method-level program model the analyses operate on:
// classes, fields, methods and their control-flow graphs.
package ir

import (
	"fmt"
	"strings"
)

// MethodKind classifies a method definition.
type MethodKind uint8

const (
	// MethodRegular is any ordinary method.
	MethodRegular MethodKind = iota

	// MethodInit is an instance constructor (<init>).
	MethodInit

	// MethodClinit is a class static initializer (<clinit>).
	MethodClinit
)

// Program is the set of classes under analysis ("scope"). Classes marked
// External model library code: their methods have no bodies but still
// participate in override resolution.
type Program struct {
	Classes []*Class

	classesByName map[string]*Class
}

// NewProgram builds a program from classes, linking methods and fields back
// to their declaring class and indexing classes by name.
func NewProgram(classes ...*Class) *Program {
	p := &Program{
		Classes:       classes,
		classesByName: make(map[string]*Class, len(classes)),
	}
	for _, cls := range classes {
		p.classesByName[cls.Name] = cls
		for _, m := range cls.Methods {
			m.Class = cls
		}
		for _, f := range cls.Fields {
			f.Class = cls
		}
	}
	return p
}

// Class returns the class with the given name, or nil if the program does
// not contain it.
func (p *Program) Class(name string) *Class {
	return p.classesByName[name]
}

// Methods returns all method definitions in declaration order.
func (p *Program) Methods() []*Method {
	var out []*Method
	for _, cls := range p.Classes {
		out = append(out, cls.Methods...)
	}
	return out
}

// WalkCode invokes fn for every internal method that has a body, in
// declaration order.
func (p *Program) WalkCode(fn func(*Method, *Code)) {
	for _, cls := range p.Classes {
		if cls.External {
			continue
		}
		for _, m := range cls.Methods {
			if m.Code != nil {
				fn(m, m.Code)
			}
		}
	}
}

// Class is a class or interface definition.
type Class struct {
	Name        string
	Super       string
	Interfaces  []string
	IsInterface bool
	External    bool
	Fields      []*Field
	Methods     []*Method
}

// Method returns the method declared directly on this class with the given
// name and proto, or nil. Inherited methods are not considered; use the
// resolver for hierarchy-aware lookup.
func (c *Class) Method(name, proto string) *Method {
	for _, m := range c.Methods {
		if m.Name == name && m.Proto == proto {
			return m
		}
	}
	return nil
}

// Field returns the field declared on this class with the given name, or nil.
func (c *Class) Field(name string) *Field {
	for _, f := range c.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

// Field is a field definition. The pointer is the field's stable identity.
type Field struct {
	Class  *Class
	Name   string
	Type   string
	Static bool
}

func (f *Field) String() string {
	return f.Class.Name + "." + f.Name + ":" + f.Type
}

// Method is a method definition. The pointer is the method's stable,
// opaque identity: two *Method values are the same method iff they are the
// same pointer, and the analyses key every map on it.
type Method struct {
	Class *Class
	Name  string
	Proto string
	Kind  MethodKind

	// Virtual marks methods entered through dynamic dispatch.
	Virtual bool

	// Root marks explicitly configured entry points.
	Root bool

	// Keep marks methods that must stay addressable by name (keep rules,
	// dynamic proxies); such interface methods are dispatch targets even
	// without an internal call site.
	Keep bool

	// Code is nil for abstract and external methods.
	Code *Code
}

// IsExternal reports whether the method belongs to an external class.
func (m *Method) IsExternal() bool {
	return m.Class != nil && m.Class.External
}

// IsConcrete reports whether the method is an internal definition with a body.
func (m *Method) IsConcrete() bool {
	return m.Code != nil && !m.IsExternal()
}

// IsAnyInit reports whether the method is a constructor or static initializer.
func (m *Method) IsAnyInit() bool {
	return m.Kind == MethodInit || m.Kind == MethodClinit
}

func (m *Method) String() string {
	var b strings.Builder
	if m.Class != nil {
		b.WriteString(m.Class.Name)
	}
	b.WriteByte('.')
	b.WriteString(m.Name)
	b.WriteByte(':')
	b.WriteString(m.Proto)
	return b.String()
}

// PrettyName renders the method the way a stack trace would print it:
// the external class name, a dot, and the method name ("com.foo.Bar.baz").
func (m *Method) PrettyName() string {
	return ExternalName(m.Class.Name) + "." + m.Name
}

// ExternalName converts an internal class name like "Lcom/foo/Bar;" to its
// external form "com.foo.Bar". Names not in internal form are returned as is.
func ExternalName(internal string) string {
	s := internal
	if strings.HasPrefix(s, "L") && strings.HasSuffix(s, ";") {
		s = s[1 : len(s)-1]
	}
	return strings.ReplaceAll(s, "/", ".")
}

// MethodRef is an unresolved symbolic reference to a method, as carried by
// invoke instructions.
type MethodRef struct {
	Class string
	Name  string
	Proto string
}

func (r *MethodRef) String() string {
	return fmt.Sprintf("%s.%s:%s", r.Class, r.Name, r.Proto)
}

// FieldRef is an unresolved symbolic reference to a field.
type FieldRef struct {
	Class string
	Name  string
}

func (r *FieldRef) String() string {
	return r.Class + "." + r.Name
}
