package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.ElementsMatch(t, []string{"serve", "deploy-commands"}, names)

	require.NotNil(t, root.Flags().Lookup("mock-quotes"), "serve flags are available on the root command")
	require.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestDeployRequiresClientID(t *testing.T) {
	t.Setenv("CONFIG_PATH", t.TempDir()+"/missing.yaml")
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_CLIENT_ID", "")

	root := newRootCmd()
	root.SetArgs([]string{"deploy-commands"})

	err := root.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "client_id")
}
