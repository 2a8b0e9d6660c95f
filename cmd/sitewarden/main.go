// Command sitewarden runs the monitoring service and its operator tools.
package main

import (
	"fmt"
	"os"

	"github.com/leego972/sitewarden/internal/config"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sitewarden",
	Short: "Website monitoring with incident tracking and automated repair",
	Long: `Sitewarden probes monitored sites on a schedule, opens incidents when
they fail, alerts their owners and runs configured repairs.

Configuration is read from the file given with --config, then from
SITEWARDEN_* environment variables (e.g. SITEWARDEN_DATABASE__URL).`,
	SilenceUsage: true,
	// Running without a subcommand starts the server.
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("SITEWARDEN_CONFIG"), "path to a YAML config file")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
