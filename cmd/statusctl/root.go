package main

import (
	"github.com/spf13/cobra"

	"github.com/qaduni/status/internal/config"
	"github.com/qaduni/status/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "statusctl",
	Short: "Administrative commands for the status monitor",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		logger.Setup(cfg.LogLevel, "text")
	},
	SilenceUsage: true,
}
