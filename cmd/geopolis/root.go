package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/ipsix/geopolis/internal/config"
)

type rootFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "geopolis",
		Short:         "GEOPOLIS geopolitical data backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "Path to a JSON or YAML config file (or set GEOPOLIS_CONFIG)")

	cmd.AddCommand(newServeCmd(flags))
	cmd.AddCommand(newCtlCmd())
	cmd.AddCommand(newValidateCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// resolveConfigPath picks the explicit flag, then GEOPOLIS_CONFIG, then the
// default path when that file exists. An empty result means defaults plus
// environment.
func resolveConfigPath(flag string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv("GEOPOLIS_CONFIG"); env != "" {
		return env
	}
	if _, err := os.Stat(config.DefaultConfigPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return config.DefaultConfigPath
}
