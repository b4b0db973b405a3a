package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprintIgnoresLocalIdentity(t *testing.T) {
	m := &Method{Name: "f", Params: []Type{TypeInt}, Return: TypeInt}
	a, _ := diamond()
	b, _ := diamond()

	fa, err := Fingerprint(m, a)
	require.NoError(t, err)
	fb, err := Fingerprint(m, b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestFingerprintSensitiveToContent(t *testing.T) {
	m := &Method{Name: "f", Params: []Type{TypeInt}, Return: TypeInt}
	a, _ := diamond()
	b, l := diamond()
	b.Blocks[1].Stmts[0] = &Assign{Dst: l["x1"], Src: IntConst(7)}

	fa, err := Fingerprint(m, a)
	require.NoError(t, err)
	fb, err := Fingerprint(m, b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb)

	void := &Method{Name: "f", Params: []Type{TypeInt}, Return: TypeVoid}
	fv, err := Fingerprint(void, a)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fv, "return type is part of the fingerprint")
}

func TestHashWithDomain(t *testing.T) {
	assert.NotEqual(t, hashWithDomain("a", []byte("bc")), hashWithDomain("ab", []byte("c")))
}

func TestFormat(t *testing.T) {
	c := &Class{Name: "com.example.Svc"}
	m := &Method{Name: "f", Params: []Type{TypeInt}, Return: TypeInt}
	require.NoError(t, c.AddMethod(m))
	b, _ := diamond()

	want := `method com.example.Svc#f(int)int
  params (p)
  local p int
  local x1 int
  local x2 int
  local x int
  entry b0
b0:
    if p == 0 goto b1 else b2
b1: ; preds b0
    x1 = 1
    ; falls through to b3
b2: ; preds b0
    x2 = 2
    ; falls through to b3
b3: ; preds b1, b2
    x = phi(b1: x1, b2: x2)
    return x
`
	assert.Equal(t, want, Format(m, b))
}
