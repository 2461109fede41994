package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ipsix/geopolis/internal/config"
)

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a config file without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			restore, err := loadEnvFile(envFile)
			if err != nil {
				return err
			}
			defer restore()

			path := resolveConfigPath(flags.configPath)
			cfg, err := config.Load(path)
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			out := cmd.OutOrStdout()
			for _, warning := range cfg.Warnings() {
				fmt.Fprintf(out, "warning: %s\n", warning)
			}
			if path == "" {
				path = "(defaults)"
			}
			fmt.Fprintf(out, "config ok: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&envFile, "env-file", "", "KEY=VALUE file applied to the environment before loading")
	return cmd
}

// loadEnvFile applies KEY=VALUE lines to the process environment and returns
// a function restoring the previous values.
func loadEnvFile(path string) (func(), error) {
	if path == "" {
		return func() {}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	previous := map[string]*string{}
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		if _, seen := previous[key]; !seen {
			if existing, ok := os.LookupEnv(key); ok {
				saved := existing
				previous[key] = &saved
			} else {
				previous[key] = nil
			}
		}
		_ = os.Setenv(key, strings.Trim(strings.TrimSpace(value), `"`))
	}
	return func() {
		for key, value := range previous {
			if value == nil {
				_ = os.Unsetenv(key)
				continue
			}
			_ = os.Setenv(key, *value)
		}
	}, nil
}
