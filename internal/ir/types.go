package ir

import (
	"fmt"
	"strconv"
	"strings"
)

// Type is a semantic type name such as "int", "void" or "android.os.Parcel".
// Array types carry a "[]" suffix.
type Type string

// Common primitive types.
const (
	TypeVoid    Type = "void"
	TypeBoolean Type = "boolean"
	TypeInt     Type = "int"
	TypeLong    Type = "long"
)

// IsVoid reports whether t is the void type.
func (t Type) IsVoid() bool { return t == TypeVoid || t == "" }

// IsPrimitive reports whether t is a non-reference, non-void type.
func (t Type) IsPrimitive() bool {
	switch t {
	case TypeBoolean, TypeInt, TypeLong, "byte", "short", "char", "float", "double":
		return true
	}
	return false
}

// IsArray reports whether t is an array type.
func (t Type) IsArray() bool { return strings.HasSuffix(string(t), "[]") }

// Local is an SSA-form variable. Identity is the pointer: two locals with the
// same name in different bodies are different variables.
type Local struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

func (l *Local) String() string { return l.Name }

// Value is an operand or expression appearing in a statement.
//
// The set of implementations is closed: *Local, IntConst, StringConst,
// NullConst, *BinExpr, *InvokeExpr, *NewArrayExpr, *FieldRef and *OpExpr.
type Value interface {
	fmt.Stringer
	value()
}

// IntConst is an integer literal.
type IntConst int64

// StringConst is a string literal.
type StringConst string

// NullConst is the null reference.
type NullConst struct{}

func (*Local) value()      {}
func (IntConst) value()    {}
func (StringConst) value() {}
func (NullConst) value()   {}

func (c IntConst) String() string    { return strconv.FormatInt(int64(c), 10) }
func (c StringConst) String() string { return strconv.Quote(string(c)) }
func (NullConst) String() string     { return "null" }

// BinOp is a binary operator.
type BinOp string

// Binary operators.
const (
	OpEq  BinOp = "=="
	OpNe  BinOp = "!="
	OpLt  BinOp = "<"
	OpLe  BinOp = "<="
	OpGt  BinOp = ">"
	OpGe  BinOp = ">="
	OpAdd BinOp = "+"
	OpSub BinOp = "-"
	OpMul BinOp = "*"
	OpDiv BinOp = "/"
	OpRem BinOp = "%"
	OpAnd BinOp = "&"
	OpOr  BinOp = "|"
	OpXor BinOp = "^"
	OpShl BinOp = "<<"
	OpShr BinOp = ">>"
)

var validBinOps = map[BinOp]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true,
	OpAdd: true, OpSub: true, OpMul: true, OpDiv: true, OpRem: true,
	OpAnd: true, OpOr: true, OpXor: true, OpShl: true, OpShr: true,
}

// ParseBinOp returns the operator for s.
func ParseBinOp(s string) (BinOp, error) {
	op := BinOp(s)
	if !validBinOps[op] {
		return "", fmt.Errorf("unknown binary operator %q", s)
	}
	return op, nil
}

// IsComparison reports whether op yields a boolean.
func (op BinOp) IsComparison() bool {
	switch op {
	case OpEq, OpNe, OpLt, OpLe, OpGt, OpGe:
		return true
	}
	return false
}

// BinExpr is a binary expression.
type BinExpr struct {
	Op BinOp
	X  Value
	Y  Value
}

func (*BinExpr) value() {}

func (e *BinExpr) String() string { return fmt.Sprintf("%s %s %s", e.X, e.Op, e.Y) }

// InvokeKind distinguishes call forms.
type InvokeKind string

// Invoke kinds.
const (
	InvokeVirtual   InvokeKind = "virtual"
	InvokeInterface InvokeKind = "interface"
	InvokeSpecial   InvokeKind = "special"
	InvokeStatic    InvokeKind = "static"
)

// InvokeExpr is a method call. Base is nil for static calls.
type InvokeExpr struct {
	Kind   InvokeKind
	Method *Method
	Base   Value
	Args   []Value
}

func (*InvokeExpr) value() {}

func (e *InvokeExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	callee := "<unresolved>"
	if e.Method != nil {
		callee = e.Method.String()
	}
	if e.Base != nil {
		return fmt.Sprintf("%sinvoke %s.<%s>(%s)", e.Kind, e.Base, callee, strings.Join(args, ", "))
	}
	return fmt.Sprintf("%sinvoke <%s>(%s)", e.Kind, callee, strings.Join(args, ", "))
}

// ArgIndex returns the index of the first argument that is exactly v, or -1.
// The receiver is not an argument.
func (e *InvokeExpr) ArgIndex(v Value) int {
	for i, a := range e.Args {
		if a == v {
			return i
		}
	}
	return -1
}

// NewArrayExpr allocates a fresh array.
type NewArrayExpr struct {
	Elem Type
	Size Value
}

func (*NewArrayExpr) value() {}

func (e *NewArrayExpr) String() string { return fmt.Sprintf("newarray (%s)[%s]", e.Elem, e.Size) }

// FieldRef reads or writes a field. Base is nil for static fields.
type FieldRef struct {
	Base  Value
	Class string
	Field string
}

func (*FieldRef) value() {}

func (f *FieldRef) String() string {
	if f.Base != nil {
		return fmt.Sprintf("%s.<%s: %s>", f.Base, f.Class, f.Field)
	}
	return fmt.Sprintf("<%s: %s>", f.Class, f.Field)
}

// OpExpr is an expression the engine does not interpret, such as a cast,
// an array load or a front-end specific operation. Its operands are still
// tracked so locals can be remapped.
type OpExpr struct {
	Op   string
	Args []Value
}

func (*OpExpr) value() {}

func (e *OpExpr) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Op, strings.Join(args, ", "))
}

// Operands returns the direct sub-values of v.
func Operands(v Value) []Value {
	switch e := v.(type) {
	case *BinExpr:
		return []Value{e.X, e.Y}
	case *InvokeExpr:
		ops := make([]Value, 0, len(e.Args)+1)
		if e.Base != nil {
			ops = append(ops, e.Base)
		}
		return append(ops, e.Args...)
	case *NewArrayExpr:
		return []Value{e.Size}
	case *FieldRef:
		if e.Base != nil {
			return []Value{e.Base}
		}
	case *OpExpr:
		return e.Args
	}
	return nil
}

// LocalsOf appends every local reachable inside v to dst, in operand order.
func LocalsOf(dst []*Local, v Value) []*Local {
	if v == nil {
		return dst
	}
	if l, ok := v.(*Local); ok {
		return append(dst, l)
	}
	for _, op := range Operands(v) {
		dst = LocalsOf(dst, op)
	}
	return dst
}

// FindInvoke returns the first invocation nested in v, or nil.
func FindInvoke(v Value) *InvokeExpr {
	if v == nil {
		return nil
	}
	if ie, ok := v.(*InvokeExpr); ok {
		return ie
	}
	for _, op := range Operands(v) {
		if ie := FindInvoke(op); ie != nil {
			return ie
		}
	}
	return nil
}

// RewriteLocals returns a deep copy of v with every local replaced by
// m[local]. Locals missing from m are kept as-is.
func RewriteLocals(v Value, m map[*Local]*Local) Value {
	switch e := v.(type) {
	case nil:
		return nil
	case *Local:
		if n, ok := m[e]; ok {
			return n
		}
		return e
	case *BinExpr:
		return &BinExpr{Op: e.Op, X: RewriteLocals(e.X, m), Y: RewriteLocals(e.Y, m)}
	case *InvokeExpr:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = RewriteLocals(a, m)
		}
		return &InvokeExpr{Kind: e.Kind, Method: e.Method, Base: RewriteLocals(e.Base, m), Args: args}
	case *NewArrayExpr:
		return &NewArrayExpr{Elem: e.Elem, Size: RewriteLocals(e.Size, m)}
	case *FieldRef:
		return &FieldRef{Base: RewriteLocals(e.Base, m), Class: e.Class, Field: e.Field}
	case *OpExpr:
		args := make([]Value, len(e.Args))
		for i, a := range e.Args {
			args[i] = RewriteLocals(a, m)
		}
		return &OpExpr{Op: e.Op, Args: args}
	default:
		// Constants are immutable values.
		return v
	}
}

// ZeroValue returns the default value of t, or nil for void.
func ZeroValue(t Type) Value {
	switch {
	case t.IsVoid():
		return nil
	case t.IsPrimitive():
		return IntConst(0)
	default:
		return NullConst{}
	}
}
