package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/binderscan/internal/compiler"
)

func TestValidateValidProgram(t *testing.T) {
	out, _, err := execute(t, "validate", testdata(t, "services.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Program valid")
}

func TestValidateValidProgramJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", testdata(t, "services.yaml"))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Positive(t, resp.Data.Classes)
	assert.Empty(t, resp.Data.Errors)
}

func TestValidateInvalidProgram(t *testing.T) {
	out, _, err := execute(t, "validate", testdata(t, "broken.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrUnknownOuter)
	assert.Contains(t, out, compiler.ErrInvalidBody)
}

func TestValidateInvalidProgramJSON(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "validate", testdata(t, "broken.yaml"))
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, compiler.ErrUnknownOuter, resp.Error.Code)
	assert.Len(t, resp.Data.Errors, 2)
}

func TestValidateMalformedFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes:\n  - name: a.B\n    colour: red\n"), 0o644))

	out, _, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, ErrCodeLoadFailed)
}

func TestValidateNonExistentProgram(t *testing.T) {
	out, _, err := execute(t, "validate", "/nonexistent/program.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "program not found")
}

func TestValidateDelegationCycleIsWarning(t *testing.T) {
	src := `classes:
  - name: a.A
    methods:
      - name: onTransact
        params: [int]
        returns: boolean
        body:
          this: this
          args: [code]
          locals: {r: boolean}
          blocks:
            - id: 0
              stmts:
                - assign: {to: r, value: {call: {method: "a.B#transactB(int)boolean", base: this, args: [code]}}}
                - return: r
  - name: a.B
    methods:
      - name: transactB
        params: [int]
        returns: boolean
        body:
          this: this
          args: [code]
          locals: {r: boolean}
          blocks:
            - id: 0
              stmts:
                - assign: {to: r, value: {call: {method: "a.A#onTransact(int)boolean", base: this, args: [code]}}}
                - return: r
`
	path := filepath.Join(t.TempDir(), "cycle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	out, _, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Program valid")
	assert.Contains(t, out, "warning:")
}
