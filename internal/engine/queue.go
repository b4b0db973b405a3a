package engine

import "github.com/roach88/binderscan/internal/ir"

// frontier holds the blocks one resolver round examines and collects the
// blocks the next round will examine.
//
// A block is queued at most once per method scan. Loops in the control
// flow graph therefore drain the frontier instead of burning rounds.
type frontier struct {
	current []ir.BlockID
	next    []ir.BlockID
	queued  map[ir.BlockID]bool
}

func newFrontier(entry ir.BlockID) *frontier {
	f := &frontier{queued: make(map[ir.BlockID]bool)}
	if entry != ir.NoBlock {
		f.current = []ir.BlockID{entry}
		f.queued[entry] = true
	}
	return f
}

// Push queues id for the next round unless it was queued before.
func (f *frontier) Push(id ir.BlockID) {
	if id == ir.NoBlock || f.queued[id] {
		return
	}
	f.queued[id] = true
	f.next = append(f.next, id)
}

// Advance makes the queued blocks the current round. It reports false when
// nothing was queued.
func (f *frontier) Advance() bool {
	f.current, f.next = f.next, nil
	return len(f.current) > 0
}

// Current returns the blocks of the round in progress.
func (f *frontier) Current() []ir.BlockID { return f.current }
