package harness

import "github.com/roach88/binderscan/internal/engine"

// Entry is one recovered code as the harness reports it.
type Entry struct {
	Code int64
	Kind engine.TransactionKind

	// Target is the callee key of a standard transaction.
	Target string

	// Block is the entry block of a custom transaction.
	Block string

	// Slice is the listing of the sliced custom handler, and SliceError
	// the reason slicing failed. Both are empty for standard entries.
	Slice      string
	SliceError string
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if all assertions hold.
	Pass bool

	// Method is the resolved dispatch method key.
	Method string

	// Entries lists the recovered codes in ascending order.
	Entries []Entry

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string
}

// NewResult creates a new passing result.
func NewResult(method string) *Result {
	return &Result{
		Pass:    true,
		Method:  method,
		Entries: []Entry{},
		Errors:  []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Entry returns the entry for code.
func (r *Result) Entry(code int64) (Entry, bool) {
	for _, e := range r.Entries {
		if e.Code == code {
			return e, true
		}
	}
	return Entry{}, false
}

// Codes returns the recovered codes in ascending order.
func (r *Result) Codes() []int64 {
	out := make([]int64, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = e.Code
	}
	return out
}
