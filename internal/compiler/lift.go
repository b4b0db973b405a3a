package compiler

import (
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/roach88/binderscan/internal/ir"
)

// fixtureSource lifts method bodies from their YAML form. It is read-only
// after Compile returns, so concurrent lifts are safe.
type fixtureSource struct {
	file    string
	program *ir.Program
	bodies  map[string]*bodyDoc
	order   []string
}

// HasBody implements ir.BodySource.
func (s *fixtureSource) HasBody(m *ir.Method) bool {
	_, ok := s.bodies[m.Key()]
	return ok
}

// LoadBody implements ir.BodySource. Every call builds a fresh Body.
func (s *fixtureSource) LoadBody(m *ir.Method) (*ir.Body, error) {
	doc, ok := s.bodies[m.Key()]
	if !ok {
		return nil, ir.ErrNoBody
	}
	l := &lifter{src: s, method: m, locals: make(map[string]*ir.Local), body: &ir.Body{}}
	return l.lift(doc)
}

// declareReferences creates phantom classes and methods for call targets
// that the fixture does not declare.
func (s *fixtureSource) declareReferences() error {
	for _, key := range s.order {
		for _, blk := range s.bodies[key].Blocks {
			for i := range blk.Stmts {
				if err := s.walkCalls(key, &blk.Stmts[i]); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *fixtureSource) walkCalls(owner string, n *yaml.Node) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			if (k.Value == "call" || k.Value == "invoke") && v.Kind == yaml.MappingNode {
				if ref := lookupField(v, "method"); ref != nil {
					if err := s.declareRef(owner, ref); err != nil {
						return err
					}
				}
			}
			if err := s.walkCalls(owner, v); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := s.walkCalls(owner, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *fixtureSource) declareRef(owner string, ref *yaml.Node) error {
	class, name, params, ret, err := ir.ParseKey(ref.Value)
	if err != nil {
		return &CompileError{File: s.file, Field: owner, Message: err.Error(), Line: ref.Line, Column: ref.Column}
	}
	c := s.program.Phantom(class)
	if s.program.LookupMethod(c, ir.Signature(name, params, ret)) != nil {
		return nil
	}
	if !c.IsPhantom() {
		return &CompileError{File: s.file, Field: owner, Line: ref.Line, Column: ref.Column,
			Message: fmt.Sprintf("class %s declares no method %s", class, ir.Signature(name, params, ret))}
	}
	return c.AddMethod(&ir.Method{Name: name, Params: params, Return: ret, Flags: ir.FlagPhantom})
}

func lookupField(n *yaml.Node, name string) *yaml.Node {
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == name {
			return n.Content[i+1]
		}
	}
	return nil
}

// lifter turns one bodyDoc into an ir.Body.
type lifter struct {
	src    *fixtureSource
	method *ir.Method
	locals map[string]*ir.Local
	body   *ir.Body
}

func (l *lifter) errorf(n *yaml.Node, format string, args ...any) error {
	e := &CompileError{File: l.src.file, Field: l.method.Key(), Message: fmt.Sprintf(format, args...)}
	if n != nil {
		e.Line, e.Column = n.Line, n.Column
	}
	return e
}

func (l *lifter) declare(n *yaml.Node, name string, t ir.Type) (*ir.Local, error) {
	if name == "" {
		return nil, l.errorf(n, "local name is required")
	}
	if _, dup := l.locals[name]; dup {
		return nil, l.errorf(n, "local %s declared twice", name)
	}
	loc := &ir.Local{Name: name, Type: t}
	l.locals[name] = loc
	l.body.Locals = append(l.body.Locals, loc)
	return loc, nil
}

func (l *lifter) lift(doc *bodyDoc) (*ir.Body, error) {
	m := l.method
	if doc.This != "" {
		if m.Flags.Has(ir.FlagStatic) {
			return nil, l.errorf(nil, "static method declares a receiver")
		}
		this, err := l.declare(nil, doc.This, ir.Type(m.ClassName()))
		if err != nil {
			return nil, err
		}
		l.body.This = this
	}
	if len(doc.Args) != len(m.Params) {
		return nil, l.errorf(nil, "%d argument names for %d parameters", len(doc.Args), len(m.Params))
	}
	for i, name := range doc.Args {
		p, err := l.declare(nil, name, m.Params[i])
		if err != nil {
			return nil, err
		}
		l.body.Params = append(l.body.Params, p)
	}
	if doc.Locals.Kind != 0 {
		if doc.Locals.Kind != yaml.MappingNode {
			return nil, l.errorf(&doc.Locals, "locals must map names to types")
		}
		for i := 0; i+1 < len(doc.Locals.Content); i += 2 {
			k, v := doc.Locals.Content[i], doc.Locals.Content[i+1]
			if _, err := l.declare(k, k.Value, ir.Type(v.Value)); err != nil {
				return nil, err
			}
		}
	}

	if len(doc.Blocks) == 0 {
		return nil, l.errorf(nil, "body has no blocks")
	}
	for _, bd := range doc.Blocks {
		blk := &ir.Block{ID: ir.BlockID(bd.ID)}
		for i := range bd.Stmts {
			s, err := l.stmt(&bd.Stmts[i])
			if err != nil {
				return nil, err
			}
			blk.Stmts = append(blk.Stmts, s)
		}
		if bd.Falls != nil {
			if blk.Terminator() != nil {
				return nil, l.errorf(nil, "%s both branches and falls through", blk.ID)
			}
			blk.Succs = []ir.BlockID{ir.BlockID(*bd.Falls)}
		}
		l.body.Blocks = append(l.body.Blocks, blk)
	}
	l.body.Entry = l.body.Blocks[0].ID
	if doc.Entry != nil {
		l.body.Entry = ir.BlockID(*doc.Entry)
	}
	l.body.Link()
	return l.body, nil
}

// fields checks that n is a mapping with only the allowed keys.
func (l *lifter) fields(n *yaml.Node, allowed ...string) (map[string]*yaml.Node, error) {
	if n.Kind != yaml.MappingNode {
		return nil, l.errorf(n, "expected a mapping")
	}
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		known := false
		for _, a := range allowed {
			if a == k.Value {
				known = true
				break
			}
		}
		if !known {
			return nil, l.errorf(k, "unknown field %q", k.Value)
		}
		out[k.Value] = n.Content[i+1]
	}
	return out, nil
}

func (l *lifter) required(f map[string]*yaml.Node, parent *yaml.Node, name string) (*yaml.Node, error) {
	n, ok := f[name]
	if !ok {
		return nil, l.errorf(parent, "missing field %q", name)
	}
	return n, nil
}

func (l *lifter) stmt(n *yaml.Node) (ir.Stmt, error) {
	if n.Kind != yaml.MappingNode || len(n.Content) != 2 {
		return nil, l.errorf(n, "a statement is a mapping with exactly one key")
	}
	key, v := n.Content[0], n.Content[1]
	switch key.Value {
	case "assign":
		f, err := l.fields(v, "to", "value")
		if err != nil {
			return nil, err
		}
		to, err := l.required(f, v, "to")
		if err != nil {
			return nil, err
		}
		val, err := l.required(f, v, "value")
		if err != nil {
			return nil, err
		}
		dst, err := l.expr(to)
		if err != nil {
			return nil, err
		}
		src, err := l.expr(val)
		if err != nil {
			return nil, err
		}
		return &ir.Assign{Dst: dst, Src: src}, nil

	case "if":
		f, err := l.fields(v, "cond", "then", "else")
		if err != nil {
			return nil, err
		}
		cn, err := l.required(f, v, "cond")
		if err != nil {
			return nil, err
		}
		cond, err := l.expr(cn)
		if err != nil {
			return nil, err
		}
		be, ok := cond.(*ir.BinExpr)
		if !ok || !be.Op.IsComparison() {
			return nil, l.errorf(cn, "condition must be a comparison")
		}
		then, err := l.target(f, v, "then")
		if err != nil {
			return nil, err
		}
		els, err := l.target(f, v, "else")
		if err != nil {
			return nil, err
		}
		return &ir.If{Cond: be, Then: then, Else: els}, nil

	case "switch":
		f, err := l.fields(v, "key", "cases", "default")
		if err != nil {
			return nil, err
		}
		kn, err := l.required(f, v, "key")
		if err != nil {
			return nil, err
		}
		k, err := l.expr(kn)
		if err != nil {
			return nil, err
		}
		sw := &ir.Switch{Key: k, Default: ir.NoBlock}
		if cases, ok := f["cases"]; ok {
			if cases.Kind != yaml.MappingNode {
				return nil, l.errorf(cases, "cases must map values to blocks")
			}
			for i := 0; i+1 < len(cases.Content); i += 2 {
				val, err := l.intValue(cases.Content[i])
				if err != nil {
					return nil, err
				}
				t, err := l.blockID(cases.Content[i+1])
				if err != nil {
					return nil, err
				}
				sw.Cases = append(sw.Cases, ir.SwitchCase{Value: val, Target: t})
			}
		}
		if _, ok := f["default"]; ok {
			if sw.Default, err = l.target(f, v, "default"); err != nil {
				return nil, err
			}
		}
		return sw, nil

	case "goto":
		t, err := l.blockID(v)
		if err != nil {
			return nil, err
		}
		return &ir.Goto{Target: t}, nil

	case "invoke":
		call, err := l.call(v)
		if err != nil {
			return nil, err
		}
		return &ir.Invoke{Call: call}, nil

	case "return":
		if v.Tag == "!!null" {
			if l.method.Return.IsVoid() {
				return &ir.Return{}, nil
			}
			return &ir.Return{Value: ir.NullConst{}}, nil
		}
		if l.method.Return.IsVoid() {
			return nil, l.errorf(v, "void method returns a value")
		}
		val, err := l.expr(v)
		if err != nil {
			return nil, err
		}
		return &ir.Return{Value: val}, nil

	case "phi":
		f, err := l.fields(v, "to", "from")
		if err != nil {
			return nil, err
		}
		to, err := l.required(f, v, "to")
		if err != nil {
			return nil, err
		}
		dst, err := l.local(to)
		if err != nil {
			return nil, err
		}
		from, err := l.required(f, v, "from")
		if err != nil {
			return nil, err
		}
		if from.Kind != yaml.MappingNode {
			return nil, l.errorf(from, "from must map predecessor blocks to values")
		}
		phi := &ir.Phi{Dst: dst}
		for i := 0; i+1 < len(from.Content); i += 2 {
			pred, err := l.blockID(from.Content[i])
			if err != nil {
				return nil, err
			}
			val, err := l.expr(from.Content[i+1])
			if err != nil {
				return nil, err
			}
			phi.Args = append(phi.Args, ir.PhiArg{Pred: pred, Value: val})
		}
		return phi, nil
	}
	return nil, l.errorf(key, "unknown statement %q", key.Value)
}

func (l *lifter) target(f map[string]*yaml.Node, parent *yaml.Node, name string) (ir.BlockID, error) {
	n, err := l.required(f, parent, name)
	if err != nil {
		return ir.NoBlock, err
	}
	return l.blockID(n)
}

func (l *lifter) blockID(n *yaml.Node) (ir.BlockID, error) {
	v, err := l.intValue(n)
	if err != nil {
		return ir.NoBlock, err
	}
	if v < 0 {
		return ir.NoBlock, l.errorf(n, "block id %d is negative", v)
	}
	return ir.BlockID(v), nil
}

func (l *lifter) intValue(n *yaml.Node) (int64, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!int" {
		return 0, l.errorf(n, "expected an integer, got %q", n.Value)
	}
	v, err := strconv.ParseInt(n.Value, 0, 64)
	if err != nil {
		return 0, l.errorf(n, "integer %q: %v", n.Value, err)
	}
	return v, nil
}

func (l *lifter) local(n *yaml.Node) (*ir.Local, error) {
	if n.Kind != yaml.ScalarNode || n.Tag != "!!str" {
		return nil, l.errorf(n, "expected a local name")
	}
	loc, ok := l.locals[n.Value]
	if !ok {
		return nil, l.errorf(n, "undeclared local %q", n.Value)
	}
	return loc, nil
}

// expr lifts a value. Integers, booleans and null are constants, bare
// strings name locals, [x, op, y] is a binary expression, and the
// single-key mappings str, call, newarray, field and op build the rest.
func (l *lifter) expr(n *yaml.Node) (ir.Value, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		switch n.Tag {
		case "!!int":
			v, err := l.intValue(n)
			if err != nil {
				return nil, err
			}
			return ir.IntConst(v), nil
		case "!!bool":
			if n.Value == "true" {
				return ir.IntConst(1), nil
			}
			return ir.IntConst(0), nil
		case "!!null":
			return ir.NullConst{}, nil
		default:
			return l.local(n)
		}

	case yaml.SequenceNode:
		if len(n.Content) != 3 {
			return nil, l.errorf(n, "binary expression needs [x, op, y]")
		}
		x, err := l.expr(n.Content[0])
		if err != nil {
			return nil, err
		}
		op, err := ir.ParseBinOp(n.Content[1].Value)
		if err != nil {
			return nil, l.errorf(n.Content[1], "%v", err)
		}
		y, err := l.expr(n.Content[2])
		if err != nil {
			return nil, err
		}
		return &ir.BinExpr{Op: op, X: x, Y: y}, nil

	case yaml.MappingNode:
		if len(n.Content) != 2 {
			return nil, l.errorf(n, "an expression mapping has exactly one key")
		}
		key, v := n.Content[0], n.Content[1]
		switch key.Value {
		case "str":
			return ir.StringConst(v.Value), nil
		case "call":
			return l.call(v)
		case "newarray":
			f, err := l.fields(v, "elem", "size")
			if err != nil {
				return nil, err
			}
			elem, err := l.required(f, v, "elem")
			if err != nil {
				return nil, err
			}
			sn, err := l.required(f, v, "size")
			if err != nil {
				return nil, err
			}
			size, err := l.expr(sn)
			if err != nil {
				return nil, err
			}
			return &ir.NewArrayExpr{Elem: ir.Type(elem.Value), Size: size}, nil
		case "field":
			f, err := l.fields(v, "base", "class", "name")
			if err != nil {
				return nil, err
			}
			class, err := l.required(f, v, "class")
			if err != nil {
				return nil, err
			}
			name, err := l.required(f, v, "name")
			if err != nil {
				return nil, err
			}
			ref := &ir.FieldRef{Class: class.Value, Field: name.Value}
			if bn, ok := f["base"]; ok {
				if ref.Base, err = l.expr(bn); err != nil {
					return nil, err
				}
			}
			return ref, nil
		case "op":
			f, err := l.fields(v, "name", "args")
			if err != nil {
				return nil, err
			}
			name, err := l.required(f, v, "name")
			if err != nil {
				return nil, err
			}
			args, err := l.exprList(f["args"])
			if err != nil {
				return nil, err
			}
			return &ir.OpExpr{Op: name.Value, Args: args}, nil
		}
		return nil, l.errorf(key, "unknown expression %q", key.Value)
	}
	return nil, l.errorf(n, "unsupported expression")
}

func (l *lifter) exprList(n *yaml.Node) ([]ir.Value, error) {
	if n == nil {
		return nil, nil
	}
	if n.Kind != yaml.SequenceNode {
		return nil, l.errorf(n, "expected a list")
	}
	out := make([]ir.Value, 0, len(n.Content))
	for _, c := range n.Content {
		v, err := l.expr(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

var invokeKinds = map[string]ir.InvokeKind{
	"virtual":   ir.InvokeVirtual,
	"interface": ir.InvokeInterface,
	"special":   ir.InvokeSpecial,
	"static":    ir.InvokeStatic,
}

func (l *lifter) call(n *yaml.Node) (*ir.InvokeExpr, error) {
	f, err := l.fields(n, "method", "kind", "base", "args")
	if err != nil {
		return nil, err
	}
	ref, err := l.required(f, n, "method")
	if err != nil {
		return nil, err
	}
	class, name, params, ret, err := ir.ParseKey(ref.Value)
	if err != nil {
		return nil, l.errorf(ref, "%v", err)
	}
	c := l.src.program.Class(class)
	var callee *ir.Method
	if c != nil {
		callee = l.src.program.LookupMethod(c, ir.Signature(name, params, ret))
	}
	if callee == nil {
		return nil, l.errorf(ref, "unknown method %s", ref.Value)
	}

	call := &ir.InvokeExpr{Kind: ir.InvokeStatic, Method: callee}
	if bn, ok := f["base"]; ok {
		if call.Base, err = l.expr(bn); err != nil {
			return nil, err
		}
		call.Kind = ir.InvokeVirtual
	}
	if kn, ok := f["kind"]; ok {
		kind, ok := invokeKinds[kn.Value]
		if !ok {
			return nil, l.errorf(kn, "unknown invoke kind %q", kn.Value)
		}
		switch {
		case kind == ir.InvokeStatic && call.Base != nil:
			return nil, l.errorf(kn, "static call must not have a receiver")
		case kind != ir.InvokeStatic && call.Base == nil:
			return nil, l.errorf(kn, "%s call needs a receiver", kind)
		}
		call.Kind = kind
	}
	if call.Args, err = l.exprList(f["args"]); err != nil {
		return nil, err
	}
	return call, nil
}
