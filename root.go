package main

import (
	"subsai/config"
	"subsai/logger"

	"github.com/spf13/cobra"
)

// commandContext carries what every subcommand needs.
type commandContext struct {
	cfg     *config.Config
	newDeps dependencyBuilder
}

func newRootCommand(newDeps dependencyBuilder) *cobra.Command {
	cc := &commandContext{newDeps: newDeps}

	rootCmd := &cobra.Command{
		Use:           "subsai",
		Short:         "Batch subtitle generation with whisper",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cc.cfg != nil {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, cfg.LogFormat)
			cc.cfg = cfg
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand(cc))
	rootCmd.AddCommand(newRunCommand(cc))
	return rootCmd
}
