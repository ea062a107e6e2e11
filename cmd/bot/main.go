package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"kabunotify/internal/config"
	"kabunotify/internal/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

type app struct {
	configPath string
	cfg        *config.Config
	log        zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	defaultPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		defaultPath = v
	}

	root := &cobra.Command{
		Use:           "kabu-notify",
		Short:         "Discord bot that posts Tokyo stock prices on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				cfg.Log.Level = "debug"
			}
			a.cfg = cfg
			a.log = logging.New(cfg.Log)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", defaultPath, "path to the YAML config file (env CONFIG_PATH)")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	serve := newServeCmd(a)
	root.AddCommand(serve, newDeployCmd(a))
	// Running without a subcommand starts the bot.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}
