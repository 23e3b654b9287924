package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/you/go-flight-harvester/internal/config"
	"github.com/you/go-flight-harvester/internal/logger"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "harvester",
	Short:             "Harvest flight offers from configured providers",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default: HARVESTER_CONFIG or ./config.yaml)")
	pf.StringVar(&logLevel, "log-level", "info", "debug, info, warn or error")
	pf.StringVar(&logFormat, "log-format", "text", "text or json")
}

// setup loads configuration and the logger before any subcommand runs.
// Explicit flags win over the config file and environment.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	if cfg, err = config.Load(cfgFile); err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.LogFormat = logFormat
	}
	log, err = logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return err
}
