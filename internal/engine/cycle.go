package engine

import "github.com/roach88/binderscan/internal/ir"

// visitedMethods tracks which methods one resolution has already entered.
//
// A delegate that forwards the code back to a method already on the path
// (A forwards to B forwards to A) is skipped silently. The set is owned by
// a single Resolve call and never shared, so it needs no locking.
type visitedMethods struct {
	seen map[*ir.Method]bool
}

func newVisitedMethods() *visitedMethods {
	return &visitedMethods{seen: make(map[*ir.Method]bool)}
}

// Enter records m and reports whether it was new.
func (v *visitedMethods) Enter(m *ir.Method) bool {
	if v.seen[m] {
		return false
	}
	v.seen[m] = true
	return true
}

// Len returns the number of methods entered.
func (v *visitedMethods) Len() int { return len(v.seen) }
