package ir

import (
	"errors"
	"fmt"
	"strings"
)

// Flags are modifiers shared by classes and methods.
type Flags uint16

// Modifier flags.
const (
	FlagAbstract Flags = 1 << iota
	FlagInterface
	FlagNative
	FlagStatic
	FlagPhantom
	FlagSynthetic
	FlagPrivate
)

var flagNames = []struct {
	flag Flags
	name string
}{
	{FlagAbstract, "abstract"},
	{FlagInterface, "interface"},
	{FlagNative, "native"},
	{FlagStatic, "static"},
	{FlagPhantom, "phantom"},
	{FlagSynthetic, "synthetic"},
	{FlagPrivate, "private"},
}

// ParseFlag returns the flag named s.
func ParseFlag(s string) (Flags, error) {
	for _, f := range flagNames {
		if f.name == s {
			return f.flag, nil
		}
	}
	return 0, fmt.Errorf("unknown flag %q", s)
}

// Has reports whether every bit of f2 is set in f.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

func (f Flags) String() string {
	var parts []string
	for _, fn := range flagNames {
		if f.Has(fn.flag) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, " ")
}

// ErrNoBody is returned when a method has no retrievable body.
var ErrNoBody = errors.New("method has no body")

// Method is a callable unit declared on a Class.
//
// The body is attached directly for synthesized methods and otherwise
// lifted on first access through the owning Program.
type Method struct {
	Class  *Class
	Name   string
	Params []Type
	Return Type
	Flags  Flags

	body *Body
}

// NewMethod creates a method with an attached body. It is used for methods
// that exist only in memory, such as slices.
func NewMethod(class *Class, name string, params []Type, ret Type, body *Body) *Method {
	return &Method{Class: class, Name: name, Params: params, Return: ret, Flags: FlagSynthetic, body: body}
}

// Signature returns "name(p1,p2)ret".
func (m *Method) Signature() string {
	return Signature(m.Name, m.Params, m.Return)
}

// Signature formats a method signature from its parts.
func Signature(name string, params []Type, ret Type) string {
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = string(p)
	}
	if ret == "" {
		ret = TypeVoid
	}
	return fmt.Sprintf("%s(%s)%s", name, strings.Join(ps, ","), ret)
}

// ClassName returns the declaring class name, or "" for a detached method.
func (m *Method) ClassName() string {
	if m.Class == nil {
		return ""
	}
	return m.Class.Name
}

// Key identifies the method within a program: "class#name(p1,p2)ret".
func (m *Method) Key() string { return m.ClassName() + "#" + m.Signature() }

func (m *Method) String() string { return m.Key() }

// ParseKey splits a "class#name(p1,p2)ret" key into its parts.
func ParseKey(key string) (class, name string, params []Type, ret Type, err error) {
	class, sig, ok := strings.Cut(key, "#")
	if !ok || class == "" {
		return "", "", nil, "", fmt.Errorf("method key %q: missing class", key)
	}
	open := strings.IndexByte(sig, '(')
	closing := strings.LastIndexByte(sig, ')')
	if open <= 0 || closing < open {
		return "", "", nil, "", fmt.Errorf("method key %q: malformed signature", key)
	}
	name = sig[:open]
	if list := sig[open+1 : closing]; list != "" {
		for _, p := range strings.Split(list, ",") {
			params = append(params, Type(strings.TrimSpace(p)))
		}
	}
	ret = Type(sig[closing+1:])
	if ret == "" {
		ret = TypeVoid
	}
	return class, name, params, ret, nil
}

// IsAbstract reports whether m is declared without an implementation.
func (m *Method) IsAbstract() bool { return m.Flags.Has(FlagAbstract) }

// IsConcrete reports whether m has, or can lift, a body.
func (m *Method) IsConcrete() bool {
	if m.body != nil {
		return true
	}
	if m.Flags.Has(FlagAbstract) || m.Flags.Has(FlagNative) || m.Flags.Has(FlagPhantom) {
		return false
	}
	return m.hasSource()
}

func (m *Method) hasSource() bool {
	if m.Class == nil || m.Class.program == nil || m.Class.program.source == nil {
		return false
	}
	return m.Class.program.source.HasBody(m)
}

// Body returns the method body, lifting it on first use.
func (m *Method) Body() (*Body, error) {
	if m.body != nil {
		return m.body, nil
	}
	if !m.IsConcrete() {
		return nil, fmt.Errorf("%s: %w", m, ErrNoBody)
	}
	return m.Class.program.loadBody(m)
}

// SetBody attaches b as the method body.
func (m *Method) SetBody(b *Body) { m.body = b }

// Class is a named type with methods.
type Class struct {
	Name       string
	Super      string
	Outer      string
	Interfaces []string
	Flags      Flags
	Methods    []*Method

	program *Program
}

// IsInterface reports whether c is an interface.
func (c *Class) IsInterface() bool { return c.Flags.Has(FlagInterface) }

// IsAbstract reports whether c is abstract. Interfaces are abstract.
func (c *Class) IsAbstract() bool { return c.Flags.Has(FlagAbstract) || c.IsInterface() }

// IsPhantom reports whether c was referenced but never declared.
func (c *Class) IsPhantom() bool { return c.Flags.Has(FlagPhantom) }

// Package returns the dotted package prefix of the class name.
func (c *Class) Package() string {
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[:i]
	}
	return ""
}

// ShortName returns the class name without its package.
func (c *Class) ShortName() string {
	if i := strings.LastIndex(c.Name, "."); i >= 0 {
		return c.Name[i+1:]
	}
	return c.Name
}

// Method returns the method with the given signature, or nil.
func (c *Class) Method(sig string) *Method {
	for _, m := range c.Methods {
		if m.Signature() == sig {
			return m
		}
	}
	return nil
}

// MethodsNamed returns every method called name, in declaration order.
func (c *Class) MethodsNamed(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name {
			out = append(out, m)
		}
	}
	return out
}

// AddMethod declares m on c. It fails if the signature is already taken.
func (c *Class) AddMethod(m *Method) error {
	if c.Method(m.Signature()) != nil {
		return fmt.Errorf("%s: duplicate method %s", c.Name, m.Signature())
	}
	m.Class = c
	c.Methods = append(c.Methods, m)
	return nil
}
