package main

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"

	"kabunotify/internal/command"
)

func newDeployCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy-commands",
		Short: "Register slash commands with Discord (per guild when discord.guild_id is set)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.ValidateDeploy(); err != nil {
				return fmt.Errorf("config validation: %w", err)
			}
			session, err := discordgo.New("Bot " + a.cfg.Discord.BotToken)
			if err != nil {
				return fmt.Errorf("discord session: %w", err)
			}

			defs := command.Definitions(a.cfg.Discord.CommandPrefix)
			created, err := session.ApplicationCommandBulkOverwrite(a.cfg.Discord.ClientID, a.cfg.Discord.GuildID,
				command.ApplicationCommands(defs), discordgo.WithContext(cmd.Context()))
			if err != nil {
				return fmt.Errorf("register commands: %w", err)
			}

			scope := "global"
			if a.cfg.Discord.GuildID != "" {
				scope = "guild " + a.cfg.Discord.GuildID
			}
			for _, c := range created {
				a.log.Info().Str("name", c.Name).Str("id", c.ID).Msg("command registered")
			}
			a.log.Info().Int("count", len(created)).Str("scope", scope).Msg("slash commands deployed")
			return nil
		},
	}
}
