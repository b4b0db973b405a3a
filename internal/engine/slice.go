package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/binderscan/internal/ir"
)

// Slice extracts the code handling one request into a new method.
//
// The region is every block reachable from entry plus every block that
// reaches it, kept in program order. Statements are cloned onto fresh
// locals, a synthetic return block is appended, edges leaving the region
// are redirected or dropped, and phi arguments from blocks outside the
// region are removed. body is never modified.
//
// The result is declared on owner's class but not added to it. An edge
// that leaves the region from a condition containing a call cannot be
// dropped without losing that call; Slice then fails with an
// ErrCodeUnsupportedSlice RuntimeError.
func Slice(owner *ir.Method, body *ir.Body, entry ir.BlockID, name string) (*ir.Method, error) {
	if body.Block(entry) == nil {
		return nil, NewMissingBlockError(owner.Key(), entry.String(), 0)
	}
	fwd, err := Reachable(body, entry, false)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", owner.Key(), err)
	}
	bwd, err := Reachable(body, entry, true)
	if err != nil {
		return nil, fmt.Errorf("slice %s: %w", owner.Key(), err)
	}
	inRegion := func(id ir.BlockID) bool { return fwd[id] || bwd[id] }

	var region []*ir.Block
	exit := ir.BlockID(0)
	for _, blk := range body.Blocks {
		if inRegion(blk.ID) {
			region = append(region, blk)
		}
		exit = max(exit, blk.ID+1)
	}

	out := &ir.Body{Entry: entry}
	if inRegion(body.Entry) {
		out.Entry = body.Entry
	}
	locals := make(map[*ir.Local]*ir.Local)
	declare := func(l *ir.Local) *ir.Local {
		if n, ok := locals[l]; ok {
			return n
		}
		n := &ir.Local{Name: l.Name, Type: l.Type}
		locals[l] = n
		out.Locals = append(out.Locals, n)
		return n
	}
	if body.This != nil {
		out.This = declare(body.This)
	}
	for _, p := range body.Params {
		out.Params = append(out.Params, declare(p))
	}
	for _, blk := range region {
		for _, s := range blk.Stmts {
			for _, l := range ir.StmtLocals(s) {
				declare(l)
			}
		}
	}

	for _, blk := range region {
		nb := &ir.Block{ID: blk.ID, Stmts: make([]ir.Stmt, 0, len(blk.Stmts))}
		for _, s := range blk.Stmts {
			c, err := repair(owner, blk.ID, ir.CloneStmt(s, locals), inRegion, exit)
			if err != nil {
				return nil, err
			}
			if c != nil {
				nb.Stmts = append(nb.Stmts, c)
			}
		}
		if nb.Terminator() == nil && len(blk.Succs) > 0 {
			next := blk.Succs[0]
			if !inRegion(next) {
				next = exit
			}
			nb.Succs = []ir.BlockID{next}
		}
		out.Blocks = append(out.Blocks, nb)
	}
	out.Blocks = append(out.Blocks, &ir.Block{
		ID:    exit,
		Stmts: []ir.Stmt{&ir.Return{Value: ir.ZeroValue(owner.Return)}},
	})

	out.Link()
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("slice %s@%s is not self-contained: %w", owner.Key(), entry, err)
	}
	return ir.NewMethod(owner.Class, name, slices.Clone(owner.Params), owner.Return, out), nil
}

// repair rewrites a cloned statement so that it only refers to blocks of
// the region. Targets outside the region go to exit.
func repair(owner *ir.Method, at ir.BlockID, s ir.Stmt, inRegion func(ir.BlockID) bool, exit ir.BlockID) (ir.Stmt, error) {
	switch st := s.(type) {
	case *ir.If:
		thenIn, elseIn := inRegion(st.Then), inRegion(st.Else)
		if thenIn && elseIn {
			return st, nil
		}
		if ir.FindInvoke(st.Cond) != nil {
			return nil, NewUnsupportedSliceError(owner.Key(), at.String(),
				fmt.Sprintf("branch %q leaves the slice and its condition has a call", st))
		}
		switch {
		case thenIn:
			return &ir.Goto{Target: st.Then}, nil
		case elseIn:
			return &ir.Goto{Target: st.Else}, nil
		default:
			return &ir.Goto{Target: exit}, nil
		}
	case *ir.Goto:
		if !inRegion(st.Target) {
			st.Target = exit
		}
		return st, nil
	case *ir.Switch:
		cases := st.Cases[:0]
		for _, c := range st.Cases {
			if inRegion(c.Target) {
				cases = append(cases, c)
			}
		}
		st.Cases = cases
		if st.Default == ir.NoBlock || !inRegion(st.Default) {
			st.Default = exit
		}
		if len(st.Cases) == 0 && ir.FindInvoke(st.Key) == nil {
			return &ir.Goto{Target: st.Default}, nil
		}
		return st, nil
	case *ir.Phi:
		args := st.Args[:0]
		for _, a := range st.Args {
			if inRegion(a.Pred) {
				args = append(args, a)
			}
		}
		st.Args = args
		return st, nil
	}
	return s, nil
}
