package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"build", "status", "import", "invalidate", "migrate"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "materials-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestBuildCommand_Flags(t *testing.T) {
	for _, name := range []string{"dry-run", "workers", "formula"} {
		assert.NotNil(t, buildCmd.Flags().Lookup(name), "build should have --%s flag", name)
	}
	assert.Equal(t, []string{"materials", "molecules"}, buildCmd.ValidArgs)
	assert.Error(t, buildCmd.Args(buildCmd, nil))
}

func TestImportCommand_Flags(t *testing.T) {
	flag := importCmd.Flags().Lookup("file")
	require.NotNil(t, flag)

	flag = importCmd.Flags().Lookup("collection")
	require.NotNil(t, flag)
	assert.Equal(t, "tasks", flag.DefValue)

	flag = importCmd.Flags().Lookup("key")
	require.NotNil(t, flag)
	assert.Equal(t, "task_id", flag.DefValue)
}

func TestInvalidateCommand_Flags(t *testing.T) {
	flag := invalidateCmd.Flags().Lookup("builder")
	require.NotNil(t, flag)
	assert.Equal(t, "materials", flag.DefValue)
	assert.Error(t, invalidateCmd.Args(invalidateCmd, nil))
}
