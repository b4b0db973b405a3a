package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders a result for golden comparison: a header, one line per
// recovered code, then the listing of every sliced handler.
func Snapshot(scenario *Scenario, result *Result) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s\n", scenario.Name)
	fmt.Fprintf(&b, "method %s\n", result.Method)
	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%s\n", entryLine(e))
	}
	for _, e := range result.Entries {
		switch {
		case e.Slice != "":
			b.WriteString("\n")
			b.WriteString(e.Slice)
		case e.SliceError != "":
			fmt.Fprintf(&b, "\nslice of code %d failed: %s\n", e.Code, e.SliceError)
		}
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed. Assertion failures
// and golden mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) error {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, Snapshot(scenario, result))
	return nil
}
