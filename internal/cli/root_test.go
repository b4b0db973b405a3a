package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "binderscan", cmd.Use)
	assert.Contains(t, cmd.Long, "dispatch tables")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"resolve", "slice", "scan", "report", "validate", "dot", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestScanCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	scanCmd, _, err := cmd.Find([]string{"scan"})
	require.NoError(t, err)

	for _, name := range []string{"db", "firmware", "release", "baseline", "dry-run"} {
		assert.NotNil(t, scanCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "", scanCmd.Flags().Lookup("db").DefValue)
}

func TestReportCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	reportCmd, _, err := cmd.Find([]string{"report"})
	require.NoError(t, err)

	for _, name := range []string{"db", "firmware", "service", "kind", "code", "status", "new", "services", "callees", "program"} {
		assert.NotNil(t, reportCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "-1", reportCmd.Flags().Lookup("code").DefValue)
}

func TestTestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)

	updateFlag := testCmd.Flags().Lookup("update")
	require.NotNil(t, updateFlag)
	assert.Equal(t, "false", updateFlag.DefValue)

	filterFlag := testCmd.Flags().Lookup("filter")
	require.NotNil(t, filterFlag)
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "--format", "xml", "validate", testdata(t, "services.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid format "xml"`)
}

func TestMissingConfigFile(t *testing.T) {
	_, _, err := execute(t, "--config", "/nonexistent/binderscan.cue", "validate", testdata(t, "services.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))

	wrapped := WrapExitError(ExitFailure, "scan failed", errors.New("boom"))
	assert.Equal(t, "scan failed: boom", wrapped.Error())
	assert.Equal(t, "boom", errors.Unwrap(wrapped).Error())
}
