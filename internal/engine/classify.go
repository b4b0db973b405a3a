package engine

import (
	"slices"
	"strings"

	"github.com/roach88/binderscan/internal/ir"
)

// Classifier decides whether the block handling one request code is just a
// call to an existing method.
//
// Rules, in order:
//  1. A call to a method of the dispatch method's own class or its
//     enclosing class returns that method. Calls to split-out helpers
//     (onTransact$name$) are followed into the helper's entry block.
//  2. A "length >= 0" guard whose arms reconverge and whose taken arm
//     allocates an array is compiler scaffolding; the block it rejoins
//     is classified instead.
//  3. Anything else is custom logic and yields nil.
//
// A nil result is always safe: the caller slices the block instead.
type Classifier struct {
	opts options
}

// NewClassifier creates a Classifier.
func NewClassifier(opts ...Option) *Classifier {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Classifier{opts: o}
}

type classifyKey struct {
	method *ir.Method
	block  ir.BlockID
}

// Classify returns the method blk delegates to, or nil when blk holds
// logic of its own. body must be m's body.
func (c *Classifier) Classify(m *ir.Method, body *ir.Body, blk *ir.Block) *ir.Method {
	return c.classify(m, body, blk, 0, make(map[classifyKey]bool))
}

func (c *Classifier) classify(m *ir.Method, body *ir.Body, blk *ir.Block, depth int, seen map[classifyKey]bool) *ir.Method {
	key := classifyKey{m, blk.ID}
	if seen[key] || depth > c.opts.splitDepth {
		return nil
	}
	seen[key] = true

	for _, s := range blk.Stmts {
		call := ir.StmtInvoke(s)
		if call == nil || call.Method == nil {
			continue
		}
		callee := call.Method
		if callee.Class == m.Class && c.isSplitHelper(callee) {
			if hb, err := callee.Body(); err == nil && hb.EntryBlock() != nil {
				return c.classify(callee, hb, hb.EntryBlock(), depth+1, seen)
			}
			c.opts.logger.Warn("split helper has no entry block", "method", m.Key(), "helper", callee.Key())
		}
		if c.ownOrOuter(m, callee) {
			return callee
		}
	}

	if join := guardJoin(body, blk); join != nil {
		return c.classify(m, body, join, depth+1, seen)
	}
	return nil
}

func (c *Classifier) isSplitHelper(m *ir.Method) bool {
	return len(m.Name) > len(c.opts.splitPrefix) &&
		strings.HasPrefix(m.Name, c.opts.splitPrefix) &&
		strings.HasSuffix(m.Name, c.opts.splitSuffix)
}

// ownOrOuter reports whether callee is declared on m's class or on the
// class immediately enclosing it.
func (c *Classifier) ownOrOuter(m, callee *ir.Method) bool {
	if m.Class == nil || callee.Class == nil {
		return false
	}
	if callee.Class == m.Class {
		return true
	}
	return m.Class.Outer != "" && callee.Class.Name == m.Class.Outer
}

// guardJoin returns the block a bounds-check guard rejoins, or nil when blk
// does not end in one. The shape is:
//
//	if len >= 0 goto alloc else skip
//	alloc: a = newarray ...   (falls into join)
//	skip:  ...                (falls into join)
func guardJoin(body *ir.Body, blk *ir.Block) *ir.Block {
	cond, ok := blk.Terminator().(*ir.If)
	if !ok || !isGe0(cond.Cond) || len(blk.Succs) != 2 {
		return nil
	}
	a, b := body.Block(blk.Succs[0]), body.Block(blk.Succs[1])
	if a == nil || b == nil || !sameTargets(a.Succs, b.Succs) || len(a.Succs) != 1 {
		return nil
	}
	taken := body.Block(cond.Then)
	if taken == nil || !allocates(taken.Head()) {
		return nil
	}
	return body.Block(a.Succs[0])
}

func isGe0(e *ir.BinExpr) bool {
	if e == nil || e.Op != ir.OpGe {
		return false
	}
	k, ok := e.Y.(ir.IntConst)
	return ok && k == 0
}

func allocates(s ir.Stmt) bool {
	as, ok := s.(*ir.Assign)
	if !ok {
		return false
	}
	_, ok = as.Src.(*ir.NewArrayExpr)
	return ok
}

func sameTargets(a, b []ir.BlockID) bool {
	if len(a) != len(b) {
		return false
	}
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(x, y)
}
