package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/ir"
	"github.com/roach88/binderscan/internal/testutil"
)

// dispatcher declares an onTransact method on class.
func dispatcher(pb *testutil.ProgramBuilder, class string) *ir.Method {
	return pb.Method(pb.Class(class), "onTransact", testutil.TransactParams, ir.TypeBoolean)
}

// forwardTo gives m a body that passes its parameters to each target in
// turn, then returns true.
func forwardTo(t *testing.T, m *ir.Method, targets ...*ir.Method) {
	t.Helper()
	bb := testutil.NewBody()
	this := bb.This("this", ir.Type(m.ClassName()))
	args := []ir.Value{
		bb.Param("code", ir.TypeInt),
		bb.Param("data", testutil.TypeParcel),
		bb.Param("reply", testutil.TypeParcel),
		bb.Param("flags", ir.TypeInt),
	}
	var stmts []ir.Stmt
	for _, target := range targets {
		stmts = append(stmts, &ir.Invoke{Call: testutil.Call(target, this, args...)})
	}
	stmts = append(stmts, &ir.Return{Value: testutil.Int(1)})
	bb.Block(0, stmts...)
	m.SetBody(bb.Build(t))
}

func keys(ms ...*ir.Method) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.Key()
	}
	return out
}

// TestAnalyzeDelegation_Empty tests that an empty program produces no warnings.
func TestAnalyzeDelegation_Empty(t *testing.T) {
	pb := testutil.NewProgram(t)
	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

// TestAnalyzeDelegation_DAG tests that forwarding without a loop is fine.
func TestAnalyzeDelegation_DAG(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	b := dispatcher(pb, "a.B")
	c := dispatcher(pb, "a.C")
	forwardTo(t, a, b, c)
	forwardTo(t, b, c)
	forwardTo(t, c)

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

// TestAnalyzeDelegation_SelfLoop tests a method forwarding to itself.
func TestAnalyzeDelegation_SelfLoop(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	forwardTo(t, a, a)

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, keys(a, a), warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
	assert.Contains(t, warnings[0].Message, "Self-forwarding")
}

// TestAnalyzeDelegation_TwoNodeCycle tests A → B → A.
func TestAnalyzeDelegation_TwoNodeCycle(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	b := dispatcher(pb, "a.B")
	forwardTo(t, a, b)
	forwardTo(t, b, a)

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, keys(a, b, a), warnings[0].Path)
	assert.Equal(t, "Delegation cycle: "+a.Key()+" → "+b.Key()+" → "+a.Key(), warnings[0].Message)
}

// TestAnalyzeDelegation_ThreeNodeCycle tests A → B → C → A with a spur.
func TestAnalyzeDelegation_ThreeNodeCycle(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	b := dispatcher(pb, "a.B")
	c := dispatcher(pb, "a.C")
	d := dispatcher(pb, "a.D")
	forwardTo(t, a, b)
	forwardTo(t, b, c, d)
	forwardTo(t, c, a)
	forwardTo(t, d)

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Equal(t, keys(a, b, c, a), warnings[0].Path)
}

// TestAnalyzeDelegation_IndependentCycles tests ordering of several warnings.
func TestAnalyzeDelegation_IndependentCycles(t *testing.T) {
	pb := testutil.NewProgram(t)
	x := dispatcher(pb, "z.X")
	y := dispatcher(pb, "z.Y")
	a := dispatcher(pb, "a.A")
	forwardTo(t, x, y)
	forwardTo(t, y, x)
	forwardTo(t, a, a)

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	assert.Equal(t, a.Key(), warnings[0].Path[0])
	assert.Equal(t, x.Key(), warnings[1].Path[0])
}

// TestAnalyzeDelegation_PatternMustMatch tests that only delegate-named
// callees form edges.
func TestAnalyzeDelegation_PatternMustMatch(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	forwardTo(t, a, a)

	warnings, err := AnalyzeDelegation(pb.Program(), "dispatch")
	require.NoError(t, err)
	assert.Empty(t, warnings)

	// Matching is case-insensitive.
	warnings, err = AnalyzeDelegation(pb.Program(), "TRANSACT")
	require.NoError(t, err)
	assert.Len(t, warnings, 1)
}

// TestAnalyzeDelegation_ConstantArgumentsDoNotForward tests that a call
// receiving none of the caller's parameters is not delegation.
func TestAnalyzeDelegation_ConstantArgumentsDoNotForward(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	bb := testutil.NewBody()
	this := bb.This("this", "a.A")
	bb.Param("code", ir.TypeInt)
	bb.Param("data", testutil.TypeParcel)
	bb.Param("reply", testutil.TypeParcel)
	bb.Param("flags", ir.TypeInt)
	bb.Block(0,
		&ir.Invoke{Call: testutil.Call(a, this, testutil.Int(1), ir.NullConst{}, ir.NullConst{}, testutil.Int(0))},
		&ir.Return{Value: testutil.Int(1)},
	)
	a.SetBody(bb.Build(t))

	warnings, err := AnalyzeDelegation(pb.Program(), "transact")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

// TestAnalyzeDelegation_CompiledFixture tests analysis over a lifted program.
func TestAnalyzeDelegation_CompiledFixture(t *testing.T) {
	p, err := CompileFile("testdata/stub.yaml")
	require.NoError(t, err)

	g, err := DelegationGraph(p, "transact")
	require.NoError(t, err)
	adj, err := g.AdjacencyMap()
	require.NoError(t, err)
	_, ok := adj[stubOnTransact]["android.os.Binder#"+onTransactSig]
	assert.True(t, ok, "default arm forwards to the framework dispatcher")

	warnings, err := AnalyzeDelegation(p, "transact")
	require.NoError(t, err)
	assert.Empty(t, warnings)
}

func TestReconstructCyclePath_Empty(t *testing.T) {
	assert.Empty(t, reconstructCyclePath(nil, nil))
}

func TestReconstructCyclePath_TwoNodes(t *testing.T) {
	pb := testutil.NewProgram(t)
	a := dispatcher(pb, "a.A")
	b := dispatcher(pb, "a.B")
	forwardTo(t, a, b)
	forwardTo(t, b, a)

	g, err := DelegationGraph(pb.Program(), "transact")
	require.NoError(t, err)
	adj, err := g.AdjacencyMap()
	require.NoError(t, err)
	assert.Equal(t, keys(a, b, a), reconstructCyclePath(keys(a, b), adj))
	assert.False(t, hasSelfLoop(a.Key(), adj))
}
