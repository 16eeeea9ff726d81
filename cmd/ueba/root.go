package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nihams/ueba/internal/config"
	"github.com/nihams/ueba/internal/util"
)

var (
	flagConfig   string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ueba",
	Short: "User and entity behavior analytics engine",
	Long: `ueba is a batch behavior-analytics engine. It sessionizes normalized
activity events, maintains incrementally learned user profiles with
rule-based alerting and risk scoring, and builds peer-group-conditioned
Markov models to rank anomalous activity sequences.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file path (env: UEBA_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute(version string) {
	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("ueba %s\n", version))
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the config path from flag or environment and
// initializes the global logger.
func loadConfig() (*config.Config, error) {
	path := flagConfig
	if path == "" {
		path = os.Getenv("UEBA_CONFIG")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if flagLogLevel != "" {
		cfg.Logging.Level = flagLogLevel
	}

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	return cfg, nil
}
