package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/ir"
)

// Common types used by binder fixtures.
const (
	TypeParcel ir.Type = "android.os.Parcel"
	TypeBinder ir.Type = "android.os.Binder"
)

// TransactParams is the parameter list of Binder.onTransact.
var TransactParams = []ir.Type{ir.TypeInt, TypeParcel, TypeParcel, ir.TypeInt}

// ProgramBuilder assembles an ir.Program whose method bodies are attached
// directly rather than lifted.
type ProgramBuilder struct {
	t       testing.TB
	program *ir.Program
}

// NewProgram creates an empty program builder.
func NewProgram(t testing.TB) *ProgramBuilder {
	t.Helper()
	p, err := ir.NewProgram(nil)
	require.NoError(t, err)
	return &ProgramBuilder{t: t, program: p}
}

// TB returns the test the builder reports to.
func (pb *ProgramBuilder) TB() testing.TB { return pb.t }

// Program returns the program built so far.
func (pb *ProgramBuilder) Program() *ir.Program { return pb.program }

// ClassOption customises a class declared through ProgramBuilder.Class.
type ClassOption func(*ir.Class)

// Super sets the superclass.
func Super(name string) ClassOption { return func(c *ir.Class) { c.Super = name } }

// Outer sets the enclosing class.
func Outer(name string) ClassOption { return func(c *ir.Class) { c.Outer = name } }

// Implements adds interfaces.
func Implements(names ...string) ClassOption {
	return func(c *ir.Class) { c.Interfaces = append(c.Interfaces, names...) }
}

// WithFlags sets class flags.
func WithFlags(f ir.Flags) ClassOption { return func(c *ir.Class) { c.Flags |= f } }

// Class declares a class, or returns the existing one with that name.
// Declaring a class that was referenced as a phantom makes it real.
func (pb *ProgramBuilder) Class(name string, opts ...ClassOption) *ir.Class {
	pb.t.Helper()
	c := pb.program.Class(name)
	if c == nil {
		c = &ir.Class{Name: name}
		require.NoError(pb.t, pb.program.AddClass(c))
	}
	c.Flags &^= ir.FlagPhantom
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Method declares a bodiless method on class. Attach a body with SetBody
// or mark it abstract through flags.
func (pb *ProgramBuilder) Method(class *ir.Class, name string, params []ir.Type, ret ir.Type, flags ...ir.Flags) *ir.Method {
	pb.t.Helper()
	m := &ir.Method{Name: name, Params: params, Return: ret}
	for _, f := range flags {
		m.Flags |= f
	}
	require.NoError(pb.t, class.AddMethod(m))
	return m
}

// Phantom returns a method reference on a class that has no declaration,
// such as a framework API.
func (pb *ProgramBuilder) Phantom(class, name string, params []ir.Type, ret ir.Type) *ir.Method {
	pb.t.Helper()
	c := pb.program.Phantom(class)
	if m := c.Method(ir.Signature(name, params, ret)); m != nil {
		return m
	}
	return pb.Method(c, name, params, ret, ir.FlagPhantom)
}

// BodyBuilder assembles a Body block by block.
type BodyBuilder struct {
	body *ir.Body
	fall map[ir.BlockID]ir.BlockID
}

// NewBody creates an empty body builder. The first block added is the
// entry unless Entry is called.
func NewBody() *BodyBuilder {
	return &BodyBuilder{body: &ir.Body{Entry: ir.NoBlock}, fall: make(map[ir.BlockID]ir.BlockID)}
}

// This declares the receiver local.
func (bb *BodyBuilder) This(name string, t ir.Type) *ir.Local {
	l := bb.Local(name, t)
	bb.body.This = l
	return l
}

// Param declares the next parameter local.
func (bb *BodyBuilder) Param(name string, t ir.Type) *ir.Local {
	l := bb.Local(name, t)
	bb.body.Params = append(bb.body.Params, l)
	return l
}

// Local declares a local variable.
func (bb *BodyBuilder) Local(name string, t ir.Type) *ir.Local {
	l := &ir.Local{Name: name, Type: t}
	bb.body.Locals = append(bb.body.Locals, l)
	return l
}

// Block appends a block with the given statements in program order.
func (bb *BodyBuilder) Block(id ir.BlockID, stmts ...ir.Stmt) *BodyBuilder {
	bb.body.Blocks = append(bb.body.Blocks, &ir.Block{ID: id, Stmts: stmts})
	if bb.body.Entry == ir.NoBlock {
		bb.body.Entry = id
	}
	return bb
}

// Falls records that the non-branching block from continues in to.
func (bb *BodyBuilder) Falls(from, to ir.BlockID) *BodyBuilder {
	bb.fall[from] = to
	return bb
}

// Entry overrides the entry block.
func (bb *BodyBuilder) Entry(id ir.BlockID) *BodyBuilder {
	bb.body.Entry = id
	return bb
}

// Build links the blocks and fails the test if the body is not
// self-contained.
func (bb *BodyBuilder) Build(t testing.TB) *ir.Body {
	t.Helper()
	for _, blk := range bb.body.Blocks {
		if to, ok := bb.fall[blk.ID]; ok {
			blk.Succs = []ir.BlockID{to}
		}
	}
	bb.body.Link()
	require.NoError(t, bb.body.Validate())
	return bb.body
}

// Call builds an invocation. A nil base makes it static.
func Call(m *ir.Method, base ir.Value, args ...ir.Value) *ir.InvokeExpr {
	kind := ir.InvokeVirtual
	if base == nil {
		kind = ir.InvokeStatic
	}
	return &ir.InvokeExpr{Kind: kind, Method: m, Base: base, Args: args}
}

// Eq builds "x == y".
func Eq(x, y ir.Value) *ir.BinExpr { return &ir.BinExpr{Op: ir.OpEq, X: x, Y: y} }

// Ne builds "x != y".
func Ne(x, y ir.Value) *ir.BinExpr { return &ir.BinExpr{Op: ir.OpNe, X: x, Y: y} }

// Ge builds "x >= y".
func Ge(x, y ir.Value) *ir.BinExpr { return &ir.BinExpr{Op: ir.OpGe, X: x, Y: y} }

// Int is shorthand for an integer constant.
func Int(v int64) ir.IntConst { return ir.IntConst(v) }
