package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/binderscan/internal/ir"
)

// TransactionKind distinguishes the two recovered handler forms.
type TransactionKind string

const (
	// KindStandard is a code handled by an existing method.
	KindStandard TransactionKind = "standard"
	// KindCustom is a code handled by inline logic that must be sliced out.
	KindCustom TransactionKind = "custom"
)

// Transaction is the recovered handler of one request code.
//
// The set of implementations is closed: Standard and Custom.
type Transaction interface {
	Kind() TransactionKind
	// Location is the dispatch method the code was found in.
	Location() *ir.Method
	transaction()
}

// Standard is a code whose handling reduces to a call of Target.
type Standard struct {
	Caller *ir.Method
	Target *ir.Method
}

// Custom is a code whose handling is the region of Body reachable from and
// reaching Entry. Body belongs to Caller and is never mutated.
type Custom struct {
	Caller *ir.Method
	Body   *ir.Body
	Entry  ir.BlockID
}

func (Standard) transaction() {}
func (Custom) transaction()   {}

// Kind implements Transaction.
func (Standard) Kind() TransactionKind { return KindStandard }

// Kind implements Transaction.
func (Custom) Kind() TransactionKind { return KindCustom }

// Location implements Transaction.
func (s Standard) Location() *ir.Method { return s.Caller }

// Location implements Transaction.
func (c Custom) Location() *ir.Method { return c.Caller }

// Slice extracts the custom handler into a new method called name.
func (c Custom) Slice(name string) (*ir.Method, error) {
	return Slice(c.Caller, c.Body, c.Entry, name)
}

func (s Standard) String() string { return fmt.Sprintf("standard %s", s.Target) }
func (c Custom) String() string   { return fmt.Sprintf("custom %s@%s", c.Caller, c.Entry) }

// Entry is one (code, transaction) pair of a CodeMap.
type Entry struct {
	Code        int64
	Transaction Transaction
}

// CodeMap maps request codes to their recovered handlers. It is immutable
// once returned by the resolver.
type CodeMap struct {
	entries   map[int64]Transaction
	codes     []int64
	truncated []error
}

// Truncations returns one ErrCodeRoundBudgetExceeded error per method scan
// that ran out of rounds. The map is partial when any are present.
func (m *CodeMap) Truncations() []error { return slices.Clone(m.truncated) }

// Get returns the transaction for code.
func (m *CodeMap) Get(code int64) (Transaction, bool) {
	t, ok := m.entries[code]
	return t, ok
}

// Len returns the number of codes.
func (m *CodeMap) Len() int { return len(m.codes) }

// Codes returns the recovered codes in ascending order.
func (m *CodeMap) Codes() []int64 {
	out := make([]int64, len(m.codes))
	copy(out, m.codes)
	return out
}

// Entries returns every entry in ascending code order.
func (m *CodeMap) Entries() []Entry {
	out := make([]Entry, len(m.codes))
	for i, c := range m.codes {
		out[i] = Entry{Code: c, Transaction: m.entries[c]}
	}
	return out
}

// codeMapBuilder accumulates entries during one resolution. The first
// transaction recorded for a code wins.
type codeMapBuilder struct {
	entries   map[int64]Transaction
	truncated []error
}

// Truncate records that a method scan stopped at the round budget.
func (b *codeMapBuilder) Truncate(err error) { b.truncated = append(b.truncated, err) }

func newCodeMapBuilder() *codeMapBuilder {
	return &codeMapBuilder{entries: make(map[int64]Transaction)}
}

// Add records t for code and reports whether it was new.
func (b *codeMapBuilder) Add(code int64, t Transaction) bool {
	if _, ok := b.entries[code]; ok {
		return false
	}
	b.entries[code] = t
	return true
}

// Has reports whether code is already recorded.
func (b *codeMapBuilder) Has(code int64) bool {
	_, ok := b.entries[code]
	return ok
}

// Build freezes the builder into a CodeMap.
func (b *codeMapBuilder) Build() *CodeMap {
	codes := make([]int64, 0, len(b.entries))
	entries := make(map[int64]Transaction, len(b.entries))
	for c, t := range b.entries {
		codes = append(codes, c)
		entries[c] = t
	}
	slices.Sort(codes)
	return &CodeMap{entries: entries, codes: codes, truncated: slices.Clone(b.truncated)}
}
