package ir

import (
	"fmt"
	"slices"
)

// Block is a straight-line run of statements. Succs and Preds are kept in
// sync by Body.Link; a block without a branch terminator falls through to
// its single successor, or exits the method when it has none.
type Block struct {
	ID    BlockID
	Stmts []Stmt
	Succs []BlockID
	Preds []BlockID
}

// Head returns the first statement, or nil for an empty block.
func (b *Block) Head() Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return b.Stmts[0]
}

// Tail returns the last statement, or nil for an empty block.
func (b *Block) Tail() Stmt {
	if len(b.Stmts) == 0 {
		return nil
	}
	return b.Stmts[len(b.Stmts)-1]
}

// Terminator returns the branching or returning tail statement, if any.
func (b *Block) Terminator() Stmt {
	if t := b.Tail(); t != nil && IsTerminator(t) {
		return t
	}
	return nil
}

// Body is the control-flow graph of one method. Blocks are in program order;
// Entry names the block control starts in.
type Body struct {
	Locals []*Local
	This   *Local
	Params []*Local
	Blocks []*Block
	Entry  BlockID

	index map[BlockID]int
}

// Block returns the block labelled id, or nil.
func (b *Body) Block(id BlockID) *Block {
	if i := b.Index(id); i >= 0 {
		return b.Blocks[i]
	}
	return nil
}

// Index returns the program-order position of block id, or -1. Lookups
// never write to the body, so a linked Body is safe for concurrent reads.
func (b *Body) Index(id BlockID) int {
	if len(b.index) == len(b.Blocks) {
		if i, ok := b.index[id]; ok {
			return i
		}
		return -1
	}
	for i, blk := range b.Blocks {
		if blk.ID == id {
			return i
		}
	}
	return -1
}

// EntryBlock returns the entry block, or nil when the body is empty.
func (b *Body) EntryBlock() *Block { return b.Block(b.Entry) }

func (b *Body) reindex() {
	b.index = make(map[BlockID]int, len(b.Blocks))
	for i, blk := range b.Blocks {
		b.index[blk.ID] = i
	}
}

// Param returns the i'th parameter local, or nil when out of range.
func (b *Body) Param(i int) *Local {
	if i < 0 || i >= len(b.Params) {
		return nil
	}
	return b.Params[i]
}

// StmtCount returns the total number of statements.
func (b *Body) StmtCount() int {
	n := 0
	for _, blk := range b.Blocks {
		n += len(blk.Stmts)
	}
	return n
}

// Link recomputes every block's Succs from its terminator (keeping the
// declared fall-through successor of non-branching blocks) and rebuilds
// Preds from Succs. Front ends call Link once after populating Stmts.
func (b *Body) Link() {
	b.reindex()
	for _, blk := range b.Blocks {
		switch t := blk.Terminator().(type) {
		case *Return:
			blk.Succs = nil
		case nil:
			if len(blk.Succs) > 1 {
				blk.Succs = blk.Succs[:1]
			}
		default:
			blk.Succs = Targets(t)
		}
		blk.Preds = nil
	}
	for _, blk := range b.Blocks {
		for _, s := range blk.Succs {
			if succ := b.Block(s); succ != nil && !slices.Contains(succ.Preds, blk.ID) {
				succ.Preds = append(succ.Preds, blk.ID)
			}
		}
	}
}

// Validate checks that the body is self-contained: every branch target and
// successor names a block of this body, every local referenced by a
// statement is declared in Locals, terminators only appear last, and
// Preds mirror Succs.
func (b *Body) Validate() error {
	b.reindex()
	if len(b.index) != len(b.Blocks) {
		return fmt.Errorf("duplicate block ids")
	}
	if len(b.Blocks) > 0 && b.Block(b.Entry) == nil {
		return fmt.Errorf("entry %s is not a block", b.Entry)
	}
	declared := make(map[*Local]bool, len(b.Locals))
	for _, l := range b.Locals {
		declared[l] = true
	}
	if b.This != nil && !declared[b.This] {
		return fmt.Errorf("this local %s not declared", b.This)
	}
	for i, p := range b.Params {
		if !declared[p] {
			return fmt.Errorf("parameter %d (%s) not declared", i, p)
		}
	}
	for _, blk := range b.Blocks {
		for i, s := range blk.Stmts {
			if IsTerminator(s) && i != len(blk.Stmts)-1 {
				return fmt.Errorf("%s: terminator %q is not the last statement", blk.ID, s)
			}
			for _, t := range Targets(s) {
				if b.Block(t) == nil {
					return fmt.Errorf("%s: %q targets unknown block %s", blk.ID, s, t)
				}
			}
			for _, l := range StmtLocals(s) {
				if !declared[l] {
					return fmt.Errorf("%s: %q references undeclared local %s", blk.ID, s, l)
				}
			}
			if phi, ok := s.(*Phi); ok {
				for _, a := range phi.Args {
					if !slices.Contains(blk.Preds, a.Pred) {
						return fmt.Errorf("%s: phi argument from %s which is not a predecessor", blk.ID, a.Pred)
					}
				}
			}
		}
		if t := blk.Terminator(); t != nil {
			want := Targets(t)
			if !slices.Equal(want, blk.Succs) {
				return fmt.Errorf("%s: successors %v do not match terminator targets %v", blk.ID, blk.Succs, want)
			}
		} else if len(blk.Succs) > 1 {
			return fmt.Errorf("%s: %d successors without a branch", blk.ID, len(blk.Succs))
		}
		for _, s := range blk.Succs {
			succ := b.Block(s)
			if succ == nil {
				return fmt.Errorf("%s: unknown successor %s", blk.ID, s)
			}
			if !slices.Contains(succ.Preds, blk.ID) {
				return fmt.Errorf("%s: missing predecessor edge from %s", s, blk.ID)
			}
		}
		for _, p := range blk.Preds {
			pred := b.Block(p)
			if pred == nil || !slices.Contains(pred.Succs, blk.ID) {
				return fmt.Errorf("%s: predecessor %s has no matching edge", blk.ID, p)
			}
		}
	}
	return nil
}
