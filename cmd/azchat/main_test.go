package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandFlags(t *testing.T) {
	cmd := newRootCommand()

	envFile := cmd.Flags().Lookup("env-file")
	require.NotNil(t, envFile)
	assert.Equal(t, ".env", envFile.DefValue)

	addr := cmd.Flags().Lookup("addr")
	require.NotNil(t, addr)
	assert.Equal(t, "", addr.DefValue)
	assert.Equal(t, "azchat", cmd.Use)
}

func TestRootCommandRejectsBadConfig(t *testing.T) {
	t.Setenv("CONVERSATION_MAX_TURNS", "-1")
	cmd := newRootCommand()
	cmd.SetArgs([]string{"--env-file", ""})
	require.Error(t, cmd.Execute())
}
