package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/kterm/pkg/config"
)

// loadConfig reads --config over the built-in defaults.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// configureLogger creates a logger with the appropriate log level.
// --log-level takes precedence over the config file; with neither the logger
// stays silent so command output is not interleaved with log lines.
func configureLogger(cmd *cobra.Command, cfg *config.Config) (*logrus.Logger, error) {
	levelCfg := *cfg
	if logLevelStr, _ := cmd.Flags().GetString("log-level"); logLevelStr != "" {
		levelCfg.LogLevel = logLevelStr
	} else if !cmd.Flags().Changed("config") {
		// Default to panic level (essentially silent for normal operations)
		levelCfg.LogLevel = logrus.PanicLevel.String()
	}
	if _, err := levelCfg.Level(); err != nil {
		return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", levelCfg.LogLevel)
	}

	logger := levelCfg.NewLogger()
	logger.SetOutput(cmd.ErrOrStderr())
	return logger, nil
}

// setup loads configuration and the logger for a command. Once it succeeds
// the arguments are known good and usage is no longer printed on errors.
func setup(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true
	return cfg, logger, nil
}
