package gossa

import (
	"go/types"
	"strings"

	"golang.org/x/tools/go/ssa"

	"github.com/roach88/binderscan/internal/ir"
)

// builtinClass holds phantom methods standing in for builtins and
// statements without an ir form.
const builtinClass = "builtin"

// typeName maps a Go type to an ir type name. Pointers collapse to their
// element so that *T and T name the same class; unnamed composite types
// map to their kind so names never carry parentheses.
func typeName(t types.Type) ir.Type {
	switch t := t.(type) {
	case *types.Basic:
		return basicName(t)
	case *types.Pointer:
		return typeName(t.Elem())
	case *types.Alias:
		return typeName(types.Unalias(t))
	case *types.Named:
		obj := t.Obj()
		if obj.Pkg() == nil {
			return ir.Type(obj.Name())
		}
		return ir.Type(obj.Pkg().Path() + "." + obj.Name())
	case *types.TypeParam:
		return ir.Type(t.Obj().Name())
	case *types.Slice:
		return typeName(t.Elem()) + "[]"
	case *types.Array:
		return typeName(t.Elem()) + "[]"
	case *types.Interface:
		return "interface"
	case *types.Struct:
		return "struct"
	case *types.Signature:
		return "func"
	case *types.Map:
		return "map"
	case *types.Chan:
		return "chan"
	case *types.Tuple:
		return tupleName(t)
	}
	return ir.Type(t.String())
}

func basicName(t *types.Basic) ir.Type {
	switch t.Kind() {
	case types.Bool, types.UntypedBool:
		return ir.TypeBoolean
	case types.Int64, types.Uint64:
		return ir.TypeLong
	case types.Float32:
		return "float"
	case types.Float64, types.UntypedFloat:
		return "double"
	case types.String, types.UntypedString:
		return "string"
	case types.UntypedNil:
		return "null"
	}
	if t.Info()&types.IsInteger != 0 {
		return ir.TypeInt
	}
	return ir.Type(t.Name())
}

func tupleName(t *types.Tuple) ir.Type {
	switch t.Len() {
	case 0:
		return ir.TypeVoid
	case 1:
		return typeName(t.At(0).Type())
	}
	parts := make([]string, t.Len())
	for i := range parts {
		parts[i] = string(typeName(t.At(i).Type()))
	}
	return ir.Type("tuple<" + strings.Join(parts, ",") + ">")
}

// signature returns the ir parameter and return types of sig. The
// receiver is not a parameter.
func signature(sig *types.Signature) ([]ir.Type, ir.Type) {
	params := make([]ir.Type, sig.Params().Len())
	for i := range params {
		params[i] = typeName(sig.Params().At(i).Type())
	}
	return params, tupleName(sig.Results())
}

func isVoid(t types.Type) bool {
	tup, ok := t.(*types.Tuple)
	return ok && tup.Len() == 0
}

// methodRef names a method before it is looked up in the program.
type methodRef struct {
	class  string
	name   string
	params []ir.Type
	ret    ir.Type
}

func (r methodRef) signature() string { return ir.Signature(r.name, r.params, r.ret) }

func (r methodRef) key() string { return r.class + "#" + r.signature() }

func packageClass(pkg *ssa.Package) string {
	if pkg == nil || pkg.Pkg == nil {
		return "synthetic"
	}
	return pkg.Pkg.Path()
}

// funcRef names a function with a static identity: a method, a package
// function or a closure.
func funcRef(fn *ssa.Function) methodRef {
	params, ret := signature(fn.Signature)
	class := packageClass(fn.Pkg)
	if recv := fn.Signature.Recv(); recv != nil {
		class = string(typeName(recv.Type()))
	}
	return methodRef{class: class, name: fn.Name(), params: params, ret: ret}
}

// invokeRef names the interface method of a dynamic call.
func invokeRef(c *ssa.CallCommon) methodRef {
	params, ret := signature(c.Method.Type().(*types.Signature))
	return methodRef{class: string(typeName(c.Value.Type())), name: c.Method.Name(), params: params, ret: ret}
}

// callSite is an instruction that lifts to an ir.InvokeExpr.
type callSite struct {
	ref  methodRef
	kind ir.InvokeKind
	base ssa.Value
	args []ssa.Value
}

func builtinSite(name string, args ...ssa.Value) callSite {
	params := make([]ir.Type, len(args))
	for i, a := range args {
		params[i] = typeName(a.Type())
	}
	ref := methodRef{class: builtinClass, name: name, params: params, ret: ir.TypeVoid}
	return callSite{ref: ref, kind: ir.InvokeStatic, args: args}
}

// callOf returns the call an instruction lifts to, if any. Builtins and
// calls through function values that produce a result lift to opaque
// expressions instead; as statements they call a builtin phantom.
func callOf(instr ssa.Instruction) (callSite, bool) {
	switch in := instr.(type) {
	case ssa.CallInstruction:
		c := in.Common()
		if c.IsInvoke() {
			return callSite{ref: invokeRef(c), kind: ir.InvokeInterface, base: c.Value, args: c.Args}, true
		}
		if fn := c.StaticCallee(); fn != nil {
			if fn.Signature.Recv() != nil && len(c.Args) > 0 {
				return callSite{ref: funcRef(fn), kind: ir.InvokeVirtual, base: c.Args[0], args: c.Args[1:]}, true
			}
			return callSite{ref: funcRef(fn), kind: ir.InvokeStatic, args: c.Args}, true
		}
		if call, ok := in.(*ssa.Call); ok && !isVoid(call.Type()) {
			return callSite{}, false
		}
		if b, ok := c.Value.(*ssa.Builtin); ok {
			return builtinSite(b.Name(), c.Args...), true
		}
		return builtinSite("call", append([]ssa.Value{c.Value}, c.Args...)...), true
	case *ssa.Panic:
		return builtinSite("panic", in.X), true
	case *ssa.MapUpdate:
		return builtinSite("mapupdate", in.Map, in.Key, in.Value), true
	case *ssa.Send:
		return builtinSite("send", in.Chan, in.X), true
	case *ssa.RunDefers:
		return builtinSite("rundefers"), true
	}
	return callSite{}, false
}
