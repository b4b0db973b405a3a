package harness

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/engine"
	"github.com/roach88/binderscan/internal/ir"
)

func loadTestdata(t *testing.T, name string) *Scenario {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return scenario
}

func TestRun_SwitchDispatch(t *testing.T) {
	result, err := Run(loadTestdata(t, "switch_dispatch"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []int64{1, 2}, result.Codes())

	std, ok := result.Entry(1)
	require.True(t, ok)
	assert.Equal(t, engine.KindStandard, std.Kind)
	assert.Equal(t, "com.example.IFoo#ping()int", std.Target)
	assert.Empty(t, std.Slice)

	custom, ok := result.Entry(2)
	require.True(t, ok)
	assert.Equal(t, engine.KindCustom, custom.Kind)
	assert.Equal(t, "b2", custom.Block)
	assert.Contains(t, custom.Slice, "method com.example.IFoo$Stub#do_txn_code_2(")
	assert.Empty(t, custom.SliceError)
}

func TestRun_IfChain(t *testing.T) {
	result, err := Run(loadTestdata(t, "if_chain"))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, []int64{10, 20}, result.Codes())
}

func TestRun_SlicePrefix(t *testing.T) {
	scenario := loadTestdata(t, "switch_dispatch")
	scenario.SlicePrefix = "handler_"

	result, err := Run(scenario)
	require.NoError(t, err)

	custom, ok := result.Entry(2)
	require.True(t, ok)
	assert.Contains(t, custom.Slice, "#handler_2(")
}

func TestRun_FailingAssertions(t *testing.T) {
	scenario := loadTestdata(t, "switch_dispatch")
	code := func(c int64) *int64 { return &c }
	entry := 9
	scenario.Assertions = []Assertion{
		{Type: AssertCodes, Codes: []int64{1}},
		{Type: AssertStandard, Code: code(2), Target: "x"},
		{Type: AssertCustom, Code: code(2), Entry: &entry},
		{Type: AssertAbsent, Code: code(1)},
		{Type: AssertSlice, Code: code(2), Contains: []string{"no such text"}},
		{Type: AssertCodes, Codes: []int64{2, 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 5)
	assert.Contains(t, result.Errors[0], "assertion 0: Assertion failed: codes")
	assert.Contains(t, result.Errors[1], "assertion 1:")
	assert.Contains(t, result.Errors[2], "Expected: code 2 custom b9")
	assert.Contains(t, result.Errors[3], "assertion 3:")
	assert.Contains(t, result.Errors[4], `contains "no such text"`)
}

func TestRun_ResolverOptions(t *testing.T) {
	scenario := loadTestdata(t, "switch_dispatch")
	scenario.Assertions = []Assertion{{Type: AssertCodes, Codes: []int64{1, engine.InterfaceTransaction}}}

	result, err := Run(scenario, WithResolverOptions(engine.WithSentinel(2)))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_UnknownMethod(t *testing.T) {
	scenario := loadTestdata(t, "switch_dispatch")
	scenario.Method = "com.example.IFoo$Stub#missing()void"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "method com.example.IFoo$Stub#missing()void not found")
}

func TestRun_LoaderError(t *testing.T) {
	boom := errors.New("boom")
	loader := func(string) (*ir.Program, error) { return nil, boom }

	_, err := Run(loadTestdata(t, "switch_dispatch"), WithLoader(loader))
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to load program")
}

func TestLoadProgram_PicksFrontEnd(t *testing.T) {
	p, err := LoadProgram(filepath.Join("testdata", "programs", "stub.yaml"), 0, nil)
	require.NoError(t, err)
	assert.NotNil(t, p.Class("com.example.IFoo$Stub"))

	_, err = LoadProgram(filepath.Join("testdata", "programs", "missing.go"), 0, nil)
	require.Error(t, err)
}
