package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the recovered code map to help debug the failure.
type AssertionError struct {
	Type     string  // Assertion type for categorization
	Expected string  // Human-readable expected outcome
	Actual   string  // Human-readable actual outcome
	Entries  []Entry // Recovered code map for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nRecovered codes:\n")
	for _, entry := range e.Entries {
		fmt.Fprintf(&buf, "  %s\n", entryLine(entry))
	}
	return buf.String()
}

func entryLine(e Entry) string {
	if e.Kind == engine.KindStandard {
		return fmt.Sprintf("code %d standard %s", e.Code, e.Target)
	}
	return fmt.Sprintf("code %d custom %s", e.Code, e.Block)
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertion %d: %v", i, err))
		}
	}
	return errs
}

func evaluate(r *Result, a Assertion) error {
	switch a.Type {
	case AssertCodes:
		return assertCodes(r, a)
	case AssertStandard:
		return assertStandard(r, a)
	case AssertCustom:
		return assertCustom(r, a)
	case AssertAbsent:
		return assertAbsent(r, a)
	case AssertSlice:
		return assertSlice(r, a)
	}
	return fmt.Errorf("unknown assertion type: %s", a.Type)
}

func fail(r *Result, typ, expected, actual string) error {
	return &AssertionError{Type: typ, Expected: expected, Actual: actual, Entries: r.Entries}
}

// assertCodes checks the exact recovered code list.
func assertCodes(r *Result, a Assertion) error {
	got := r.Codes()
	want := slices.Clone(a.Codes)
	slices.Sort(want)
	if slices.Equal(got, want) {
		return nil
	}
	return fail(r, AssertCodes, fmt.Sprint(want), fmt.Sprint(got))
}

// lookup returns the entry for the assertion's code or a failure naming it.
func lookup(r *Result, a Assertion) (Entry, error) {
	e, ok := r.Entry(*a.Code)
	if !ok {
		return Entry{}, fail(r, a.Type, fmt.Sprintf("code %d recovered", *a.Code), "not recovered")
	}
	return e, nil
}

func assertStandard(r *Result, a Assertion) error {
	e, err := lookup(r, a)
	if err != nil {
		return err
	}
	if e.Kind != engine.KindStandard {
		return fail(r, AssertStandard, fmt.Sprintf("code %d standard", e.Code), entryLine(e))
	}
	if e.Target != a.Target {
		return fail(r, AssertStandard, fmt.Sprintf("code %d calls %s", e.Code, a.Target), entryLine(e))
	}
	return nil
}

func assertCustom(r *Result, a Assertion) error {
	e, err := lookup(r, a)
	if err != nil {
		return err
	}
	want := ir.BlockID(*a.Entry).String()
	if e.Kind != engine.KindCustom || e.Block != want {
		return fail(r, AssertCustom, fmt.Sprintf("code %d custom %s", e.Code, want), entryLine(e))
	}
	return nil
}

func assertAbsent(r *Result, a Assertion) error {
	if e, ok := r.Entry(*a.Code); ok {
		return fail(r, AssertAbsent, fmt.Sprintf("code %d not recovered", *a.Code), entryLine(e))
	}
	return nil
}

func assertSlice(r *Result, a Assertion) error {
	e, err := lookup(r, a)
	if err != nil {
		return err
	}
	if e.Kind != engine.KindCustom {
		return fail(r, AssertSlice, fmt.Sprintf("code %d custom", e.Code), entryLine(e))
	}
	if e.SliceError != "" {
		return fail(r, AssertSlice, fmt.Sprintf("code %d slices", e.Code), e.SliceError)
	}
	for _, s := range a.Contains {
		if !strings.Contains(e.Slice, s) {
			return fail(r, AssertSlice, fmt.Sprintf("slice of code %d contains %q", e.Code, s), "missing")
		}
	}
	return nil
}
