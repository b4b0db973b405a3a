package gossa

import (
	"fmt"
	"go/constant"
	"go/token"
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/roach88/binderscan/internal/ir"
)

var binOps = map[token.Token]ir.BinOp{
	token.EQL: ir.OpEq,
	token.NEQ: ir.OpNe,
	token.LSS: ir.OpLt,
	token.LEQ: ir.OpLe,
	token.GTR: ir.OpGt,
	token.GEQ: ir.OpGe,
	token.ADD: ir.OpAdd,
	token.SUB: ir.OpSub,
	token.MUL: ir.OpMul,
	token.QUO: ir.OpDiv,
	token.REM: ir.OpRem,
	token.AND: ir.OpAnd,
	token.OR:  ir.OpOr,
	token.XOR: ir.OpXor,
	token.SHL: ir.OpShl,
	token.SHR: ir.OpShr,
}

// lifter converts one SSA function into an ir.Body. Block IDs are the SSA
// block indices and locals keep SSA value names.
type lifter struct {
	program *ir.Program
	fn      *ssa.Function
	body    *ir.Body
	locals  map[ssa.Value]*ir.Local
	names   map[string]int
}

func newLifter(p *ir.Program, fn *ssa.Function) *lifter {
	return &lifter{
		program: p,
		fn:      fn,
		body:    &ir.Body{},
		locals:  make(map[ssa.Value]*ir.Local),
		names:   make(map[string]int),
	}
}

func (l *lifter) lift() (*ir.Body, error) {
	params := l.fn.Params
	if l.fn.Signature.Recv() != nil && len(params) > 0 {
		l.body.This = l.declare(params[0])
		params = params[1:]
	}
	for _, p := range params {
		l.body.Params = append(l.body.Params, l.declare(p))
	}
	for _, fv := range l.fn.FreeVars {
		l.declare(fv)
	}
	for _, b := range l.fn.Blocks {
		for _, instr := range b.Instrs {
			if v, ok := instr.(ssa.Value); ok && !isVoid(v.Type()) {
				l.declare(v)
			}
		}
	}

	for _, b := range l.fn.Blocks {
		blk := &ir.Block{ID: ir.BlockID(b.Index)}
		for _, instr := range b.Instrs {
			s, err := l.stmt(b, instr)
			if err != nil {
				return nil, err
			}
			if s != nil {
				blk.Stmts = append(blk.Stmts, s)
			}
		}
		l.body.Blocks = append(l.body.Blocks, blk)
	}
	l.body.Entry = ir.BlockID(l.fn.Blocks[0].Index)
	l.body.Link()
	return l.body, nil
}

// declare creates the local for v. Blank and repeated names get a suffix.
func (l *lifter) declare(v ssa.Value) *ir.Local {
	name := v.Name()
	if n := l.names[name]; n > 0 || name == "_" || name == "" {
		name = fmt.Sprintf("%s_%d", strings.Trim(name, "_"), n)
	}
	l.names[v.Name()]++
	loc := &ir.Local{Name: name, Type: typeName(v.Type())}
	l.locals[v] = loc
	l.body.Locals = append(l.body.Locals, loc)
	return loc
}

func blockID(b *ssa.BasicBlock) ir.BlockID { return ir.BlockID(b.Index) }

func (l *lifter) stmt(b *ssa.BasicBlock, instr ssa.Instruction) (ir.Stmt, error) {
	switch in := instr.(type) {
	case *ssa.DebugRef:
		return nil, nil
	case *ssa.Jump:
		return &ir.Goto{Target: blockID(b.Succs[0])}, nil
	case *ssa.If:
		return &ir.If{Cond: l.cond(in.Cond), Then: blockID(b.Succs[0]), Else: blockID(b.Succs[1])}, nil
	case *ssa.Return:
		switch len(in.Results) {
		case 0:
			return &ir.Return{}, nil
		case 1:
			return &ir.Return{Value: l.value(in.Results[0])}, nil
		}
		return &ir.Return{Value: &ir.OpExpr{Op: "tuple", Args: l.values(in.Results)}}, nil
	case *ssa.Phi:
		phi := &ir.Phi{Dst: l.locals[in]}
		for i, e := range in.Edges {
			phi.Args = append(phi.Args, ir.PhiArg{Pred: blockID(b.Preds[i]), Value: l.value(e)})
		}
		return phi, nil
	case *ssa.Store:
		return &ir.Assign{Dst: &ir.OpExpr{Op: "store", Args: []ir.Value{l.value(in.Addr)}}, Src: l.value(in.Val)}, nil
	}

	if site, ok := callOf(instr); ok {
		call, err := l.invoke(site)
		if err != nil {
			return nil, err
		}
		if v, isCall := instr.(*ssa.Call); isCall && !isVoid(v.Type()) {
			return &ir.Assign{Dst: l.locals[v], Src: call}, nil
		}
		return &ir.Invoke{Call: call}, nil
	}

	v, ok := instr.(ssa.Value)
	if !ok {
		return nil, fmt.Errorf("%s: unsupported instruction %T", l.fn, instr)
	}
	return &ir.Assign{Dst: l.locals[v], Src: l.expr(v)}, nil
}

func (l *lifter) invoke(site callSite) (*ir.InvokeExpr, error) {
	m := l.program.Method(site.ref.key())
	if m == nil {
		if c := l.program.Class(site.ref.class); c != nil {
			m = l.program.LookupMethod(c, site.ref.signature())
		}
	}
	if m == nil {
		return nil, fmt.Errorf("%s: unresolved callee %s", l.fn, site.ref.key())
	}
	call := &ir.InvokeExpr{Kind: site.kind, Method: m, Args: l.values(site.args)}
	if site.base != nil {
		call.Base = l.value(site.base)
	}
	return call, nil
}

// cond lifts a branch condition. A comparison computed in SSA is inlined
// so the engine sees its operands; any other boolean is tested against 0.
func (l *lifter) cond(v ssa.Value) *ir.BinExpr {
	if b, ok := v.(*ssa.BinOp); ok {
		if op, ok := binOps[b.Op]; ok && op.IsComparison() {
			return &ir.BinExpr{Op: op, X: l.value(b.X), Y: l.value(b.Y)}
		}
	}
	return &ir.BinExpr{Op: ir.OpNe, X: l.value(v), Y: ir.IntConst(0)}
}

func (l *lifter) expr(v ssa.Value) ir.Value {
	switch in := v.(type) {
	case *ssa.BinOp:
		if op, ok := binOps[in.Op]; ok {
			return &ir.BinExpr{Op: op, X: l.value(in.X), Y: l.value(in.Y)}
		}
	case *ssa.MakeSlice:
		elem := ir.Type("unknown")
		if s, ok := in.Type().Underlying().(*types.Slice); ok {
			elem = typeName(s.Elem())
		}
		return &ir.NewArrayExpr{Elem: elem, Size: l.value(in.Len)}
	case *ssa.Alloc:
		if arr, ok := deref(in.Type()).Underlying().(*types.Array); ok {
			return &ir.NewArrayExpr{Elem: typeName(arr.Elem()), Size: ir.IntConst(arr.Len())}
		}
		return &ir.OpExpr{Op: "new " + string(typeName(in.Type()))}
	case *ssa.FieldAddr:
		return l.field(in.X, in.Field)
	case *ssa.Field:
		return l.field(in.X, in.Field)
	case *ssa.UnOp:
		return &ir.OpExpr{Op: unOpName(in.Op), Args: []ir.Value{l.value(in.X)}}
	case *ssa.Extract:
		return &ir.OpExpr{Op: fmt.Sprintf("extract%d", in.Index), Args: []ir.Value{l.value(in.Tuple)}}
	case *ssa.Call:
		c := in.Common()
		args := l.values(c.Args)
		if b, ok := c.Value.(*ssa.Builtin); ok {
			return &ir.OpExpr{Op: b.Name(), Args: args}
		}
		return &ir.OpExpr{Op: "call", Args: append([]ir.Value{l.value(c.Value)}, args...)}
	}
	return &ir.OpExpr{Op: opName(v), Args: l.operands(v.(ssa.Instruction))}
}

func (l *lifter) field(x ssa.Value, i int) *ir.FieldRef {
	t := deref(x.Type())
	ref := &ir.FieldRef{Base: l.value(x), Class: string(typeName(t)), Field: fmt.Sprintf("field%d", i)}
	if st, ok := t.Underlying().(*types.Struct); ok && i < st.NumFields() {
		ref.Field = st.Field(i).Name()
	}
	return ref
}

func (l *lifter) value(v ssa.Value) ir.Value {
	switch v := v.(type) {
	case *ssa.Const:
		return constValue(v)
	case *ssa.Global:
		return &ir.FieldRef{Class: packageClass(v.Pkg), Field: v.Name()}
	case *ssa.Function:
		return &ir.OpExpr{Op: "func " + v.Name()}
	case *ssa.Builtin:
		return &ir.OpExpr{Op: v.Name()}
	}
	if loc, ok := l.locals[v]; ok {
		return loc
	}
	return &ir.OpExpr{Op: v.Name()}
}

func (l *lifter) values(vs []ssa.Value) []ir.Value {
	out := make([]ir.Value, len(vs))
	for i, v := range vs {
		out[i] = l.value(v)
	}
	return out
}

func (l *lifter) operands(instr ssa.Instruction) []ir.Value {
	var out []ir.Value
	for _, p := range instr.Operands(nil) {
		if p != nil && *p != nil {
			out = append(out, l.value(*p))
		}
	}
	return out
}

func constValue(c *ssa.Const) ir.Value {
	if c.Value == nil {
		if b, ok := c.Type().Underlying().(*types.Basic); ok {
			if b.Info()&types.IsString != 0 {
				return ir.StringConst("")
			}
			if b.Info()&(types.IsNumeric|types.IsBoolean) != 0 {
				return ir.IntConst(0)
			}
		}
		return ir.NullConst{}
	}
	switch c.Value.Kind() {
	case constant.Bool:
		if constant.BoolVal(c.Value) {
			return ir.IntConst(1)
		}
		return ir.IntConst(0)
	case constant.String:
		return ir.StringConst(constant.StringVal(c.Value))
	case constant.Int:
		if n, exact := constant.Int64Val(c.Value); exact {
			return ir.IntConst(n)
		}
	}
	return &ir.OpExpr{Op: "const", Args: []ir.Value{ir.StringConst(c.Value.ExactString())}}
}

func unOpName(op token.Token) string {
	switch op {
	case token.MUL:
		return "load"
	case token.SUB:
		return "neg"
	case token.NOT:
		return "not"
	case token.XOR:
		return "compl"
	case token.ARROW:
		return "recv"
	}
	return op.String()
}

// opName names an uninterpreted instruction after its SSA kind.
func opName(v ssa.Value) string {
	return strings.ToLower(strings.TrimPrefix(fmt.Sprintf("%T", v), "*ssa."))
}
