package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ipsix/geopolis/internal/cli"
)

type ctlOptions struct {
	addr    string
	timeout time.Duration
	pretty  bool
}

func newCtlCmd() *cobra.Command {
	opts := &ctlOptions{}

	cmd := &cobra.Command{
		Use:   "ctl",
		Short: "Query a running geopolis API",
	}
	cmd.PersistentFlags().StringVar(&opts.addr, "addr", defaultAddr(), "API base URL (or set GEOPOLIS_ADDR)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Request timeout")
	cmd.PersistentFlags().BoolVar(&opts.pretty, "pretty", false, "Pretty-print JSON responses")

	simple := func(use, short string, call func(c *cli.Client, cmd *cobra.Command) ([]byte, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				raw, err := call(opts.client(), cmd)
				return opts.print(cmd, raw, err)
			},
		}
	}

	cmd.AddCommand(simple("health", "Show API health", func(c *cli.Client, cmd *cobra.Command) ([]byte, error) {
		return c.Health(cmd.Context())
	}))
	cmd.AddCommand(simple("info", "Show application info", func(c *cli.Client, cmd *cobra.Command) ([]byte, error) {
		return c.Info(cmd.Context())
	}))
	cmd.AddCommand(simple("list", "List loaded plugins", func(c *cli.Client, cmd *cobra.Command) ([]byte, error) {
		return c.ListPlugins(cmd.Context())
	}))
	cmd.AddCommand(simple("reload", "Rescan the plugin directory", func(c *cli.Client, cmd *cobra.Command) ([]byte, error) {
		return c.Reload(cmd.Context())
	}))
	cmd.AddCommand(newCtlRunCmd(opts))
	cmd.AddCommand(newCtlHistoryCmd(opts))

	return cmd
}

func newCtlRunCmd(opts *ctlOptions) *cobra.Command {
	var payload string
	cmd := &cobra.Command{
		Use:   "run <plugin-id>",
		Short: "Execute a plugin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := map[string]interface{}{}
			if payload != "" {
				if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
					return fmt.Errorf("payload must be a JSON object: %w", err)
				}
			}
			raw, err := opts.client().RunPlugin(cmd.Context(), args[0], parsed)
			return opts.print(cmd, raw, err)
		},
	}
	cmd.Flags().StringVar(&payload, "payload", "", `Plugin payload as a JSON object, e.g. '{"activity_type":"iss"}'`)
	return cmd
}

func newCtlHistoryCmd(opts *ctlOptions) *cobra.Command {
	var (
		pluginID string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent plugin results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := opts.client().History(cmd.Context(), pluginID, limit)
			return opts.print(cmd, raw, err)
		},
	}
	cmd.Flags().StringVar(&pluginID, "plugin", "", "Only show results for this plugin id")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")
	return cmd
}

func (o *ctlOptions) client() *cli.Client {
	return cli.NewClient(o.addr, o.timeout)
}

// print writes the response body, including the body of failed requests, and
// returns err unchanged.
func (o *ctlOptions) print(cmd *cobra.Command, raw []byte, err error) error {
	if len(raw) > 0 {
		if o.pretty {
			raw = cli.PrettyJSON(raw)
		}
		out := cmd.OutOrStdout()
		if err != nil {
			out = cmd.ErrOrStderr()
		}
		_, _ = out.Write(raw)
		if raw[len(raw)-1] != '\n' {
			_, _ = out.Write([]byte("\n"))
		}
	}
	if err != nil {
		return fmt.Errorf("ctl error: %w", err)
	}
	return nil
}

func defaultAddr() string {
	if v := os.Getenv("GEOPOLIS_ADDR"); v != "" {
		return v
	}
	return "http://127.0.0.1:5000"
}
