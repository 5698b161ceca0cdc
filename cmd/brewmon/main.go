package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
}

// APIFlags holds daemon connection flags for client commands.
type APIFlags struct {
	URL     string
	Timeout time.Duration
}

func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	apiFlags := &APIFlags{}

	root := &cobra.Command{
		Use:   "brewmon",
		Short: "Espresso machine delivery monitor",
		Long: `Brewmon polls a La Spaziale S50-QSS espresso machine over Modbus RTU,
records every coffee delivery, and exposes an HTTP API for machine control.

Examples:
  brewmon serve --config=brewmon.toml       # Start daemon
  brewmon monitor start                      # Enable delivery tracking
  brewmon deliver --type=single_short --group=1
  brewmon history --trigger=manual --limit=20`,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&apiFlags.URL, "api-url", "http://localhost:8080/api", "daemon API base URL")
	root.PersistentFlags().DurationVar(&apiFlags.Timeout, "timeout", 10*time.Second, "API request timeout")

	root.AddCommand(
		createServeCommand(globalFlags),
		createMonitorCommand(apiFlags),
		createDeliverCommand(apiFlags),
		createStopCommand(apiFlags),
		createPurgeCommand(apiFlags),
		createInfoCommand(apiFlags),
		createStatusCommand(apiFlags),
		createHealthCommand(apiFlags),
		createHistoryCommand(apiFlags),
		createMaintenanceCommand(apiFlags),
	)
	return root
}
