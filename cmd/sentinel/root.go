package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/estatehub/sentinel/internal/config"
	"github.com/estatehub/sentinel/internal/logging"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Security incident sentinel",
	Long: `sentinel watches the application log feed for security incidents,
disables actors that cross the incident threshold, relays alerts, and runs
retention and export jobs over the event log.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/sentinel/config.yaml)")
}

// loadConfig loads configuration and installs the default logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service("sentinel"))
	logging.SetDefault(logger)
	return cfg, logger, nil
}
