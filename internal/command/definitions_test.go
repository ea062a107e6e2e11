package command_test

import (
	"strconv"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kabunotify/internal/command"
)

func formatID(id int64) string { return strconv.FormatInt(id, 10) }

func TestDefinitions_Prefix(t *testing.T) {
	t.Parallel()

	defs := command.Definitions("kabu-")

	require.Len(t, defs, 7)
	for _, d := range defs {
		assert.Regexp(t, `^kabu-[a-z-]+$`, d.Name)
		assert.NotEmpty(t, d.Description)
	}
	assert.Equal(t, []string{"kabu-add-stock", "kabu-quote"}, command.DeferredNames(defs))
}

func TestApplicationCommands(t *testing.T) {
	t.Parallel()

	cmds := command.ApplicationCommands(command.Definitions(""))

	require.Len(t, cmds, 7)
	byName := map[string]*discordgo.ApplicationCommand{}
	for _, c := range cmds {
		byName[c.Name] = c
	}

	rm := byName["remove-schedule"]
	require.NotNil(t, rm)
	require.Len(t, rm.Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionInteger, rm.Options[0].Type)
	assert.True(t, rm.Options[0].Required)

	set := byName["set-schedule"]
	require.Len(t, set.Options, 4)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, set.Options[0].Type)
	assert.False(t, set.Options[3].Required)
	assert.Empty(t, byName["list"].Options)
}
