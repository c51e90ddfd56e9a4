package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"notifier/internal/config"
	"notifier/internal/logging"
)

// version is set via build-time ldflags
var version = "dev"

// cli carries the state shared by every subcommand
type cli struct {
	configPath string
	envFiles   []string
	cfg        *config.Config
	logger     *logging.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "notifier",
		Short: "Real-time school notifications",
		Long: `notifier pushes entity changes and announcements to connected school
staff, students and teachers.

Run 'notifier serve' for the hub and REST API, 'notifier listen' for a
terminal client, and 'notifier token' to mint a development token.`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load()
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "Path to a YAML, JSON or TOML config file")
	root.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the configuration")

	root.AddCommand(
		newServeCommand(c),
		newListenCommand(c),
		newTokenCommand(c),
		newEmitCommand(c),
	)
	return root
}

// load resolves configuration with precedence env > file > defaults
func (c *cli) load() error {
	if err := config.LoadDotEnv(c.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	c.cfg = cfg
	c.logger = logger
	return nil
}
