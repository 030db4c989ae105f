package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := GetRootCmd()
	require.NotNil(t, cmd)
	assert.Equal(t, "magpie", cmd.Use)
	assert.Equal(t, version, cmd.Version)
}

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range GetRootCmd().Commands() {
		names[c.Name()] = true
	}

	for _, want := range []string{"run", "once", "validate", "configure", "status"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := GetRootCmd()
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestRunFlags(t *testing.T) {
	assert.NotNil(t, runCmd.Flags().Lookup("cycles"))
	assert.NotNil(t, runCmd.Flags().Lookup("dry-run"))
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, version, GetVersion())
}
