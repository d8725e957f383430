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
	for _, name := range []string{"enrich", "persist", "serve", "status"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "profile-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestEnrichCommand_Flags(t *testing.T) {
	for flag, def := range map[string]string{
		"file":       "",
		"notion":     "false",
		"project":    "",
		"stages":     "all",
		"limit":      "0",
		"existing":   "off",
		"keep-image": "false",
		"output":     "-",
	} {
		f := enrichCmd.Flags().Lookup(flag)
		require.NotNil(t, f, "enrich should have --%s", flag)
		assert.Equal(t, def, f.DefValue, flag)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestPersistCommand_Args(t *testing.T) {
	assert.Error(t, persistCmd.Args(persistCmd, nil))
	assert.NoError(t, persistCmd.Args(persistCmd, []string{"outcomes.ndjson"}))
}
