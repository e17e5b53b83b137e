package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "extract", "eval", "runs"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "doc-extract", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestExtractCommand_Flags(t *testing.T) {
	for _, name := range []string{"label", "schema", "pdf", "no-cache"} {
		require.NotNil(t, extractCmd.Flags().Lookup(name), "extract command should have --%s flag", name)
	}
	assert.Equal(t, "false", extractCmd.Flags().Lookup("no-cache").DefValue)
}

func TestEvalCommand_Flags(t *testing.T) {
	for _, name := range []string{"dataset", "out", "json", "no-cache", "no-store", "concurrency"} {
		require.NotNil(t, evalCmd.Flags().Lookup(name), "eval command should have --%s flag", name)
	}
	assert.Equal(t, "0", evalCmd.Flags().Lookup("concurrency").DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
	require.NotNil(t, serveCmd.Flags().Lookup("no-store"))
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["show"])

	flag := runsListCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}
