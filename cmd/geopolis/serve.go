package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipsix/geopolis/internal/config"
	"github.com/ipsix/geopolis/internal/daemon"
	"github.com/ipsix/geopolis/internal/logging"
)

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, resolveConfigPath(flags.configPath))
		},
	}
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	logger, err := logging.Open(logging.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		File:   cfg.Logging.File,
		Writer: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Close()

	logger.Info("geopolis starting",
		logging.Field{Key: "config_path", Value: configPath},
		logging.Field{Key: "config", Value: cfg.Redacted()},
	)

	runner := daemon.New(cfg, logger)
	if err := runner.Run(cmd.Context()); err != nil {
		logger.Error("daemon exited with error", logging.Field{Key: "error", Value: err.Error()})
		return err
	}
	return nil
}
