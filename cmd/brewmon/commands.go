package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/brewkit/brewmon/pkg/client"
)

func newClient(f *APIFlags) *client.Client {
	return client.New(client.Config{BaseURL: f.URL, Timeout: f.Timeout})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func createMonitorCommand(apiFlags *APIFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Control delivery monitoring",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "start",
			Short: "Enable delivery tracking",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := newClient(apiFlags).StartMonitoring(context.Background()); err != nil {
					return err
				}
				fmt.Println("monitoring enabled")
				return nil
			},
		},
		&cobra.Command{
			Use:   "stop",
			Short: "Disable delivery tracking",
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := newClient(apiFlags).StopMonitoring(context.Background()); err != nil {
					return err
				}
				fmt.Println("monitoring disabled")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show monitor status",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := newClient(apiFlags).MonitorStatus(context.Background())
				if err != nil {
					return err
				}
				return printJSON(st)
			},
		},
	)
	return cmd
}

func createDeliverCommand(apiFlags *APIFlags) *cobra.Command {
	var coffeeType string
	var group int
	cmd := &cobra.Command{
		Use:   "deliver",
		Short: "Start a coffee delivery",
		Long: `Start a coffee delivery on a group head.

Examples:
  brewmon deliver --type=single_short --group=1
  brewmon deliver --type=double_long --group=2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rec, err := newClient(apiFlags).Deliver(context.Background(), coffeeType, group)
			if err != nil {
				return err
			}
			return printJSON(rec)
		},
	}
	cmd.Flags().StringVar(&coffeeType, "type", "", "coffee type (e.g. single_short, double_long)")
	cmd.Flags().IntVar(&group, "group", 1, "group head number")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func createStopCommand(apiFlags *APIFlags) *cobra.Command {
	var group int
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the delivery running on a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(apiFlags).StopDelivery(context.Background(), group); err != nil {
				return err
			}
			fmt.Printf("delivery stopped on group %d\n", group)
			return nil
		},
	}
	cmd.Flags().IntVar(&group, "group", 1, "group head number")
	return cmd
}

func createPurgeCommand(apiFlags *APIFlags) *cobra.Command {
	var group int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Start a purge cycle on a group",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient(apiFlags).Purge(context.Background(), group); err != nil {
				return err
			}
			fmt.Printf("purge started on group %d\n", group)
			return nil
		},
	}
	cmd.Flags().IntVar(&group, "group", 1, "group head number")
	return cmd
}

func createInfoCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show machine identity (serial, firmware, groups)",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := newClient(apiFlags).MachineInfo(context.Background())
			if err != nil {
				return err
			}
			return printJSON(info)
		},
	}
}

func createStatusCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-group delivery status",
		RunE: func(cmd *cobra.Command, args []string) error {
			sts, err := newClient(apiFlags).MachineStatus(context.Background())
			if err != nil {
				return err
			}
			return printJSON(sts)
		},
	}
}

func createHealthCommand(apiFlags *APIFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run a machine diagnostic sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newClient(apiFlags).MachineHealth(context.Background())
			if err != nil {
				return err
			}
			return printJSON(h)
		},
	}
}

func createHistoryCommand(apiFlags *APIFlags) *cobra.Command {
	var trigger string
	var group, limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List delivery records",
		Long: `List delivery records, newest first.

Examples:
  brewmon history --limit=20
  brewmon history --trigger=manual --group=1`,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient(apiFlags).History(context.Background(), trigger, group, limit)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	cmd.Flags().StringVar(&trigger, "trigger", "", "filter by trigger (api, manual, automatic)")
	cmd.Flags().IntVar(&group, "group", 0, "filter by group head")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum records to return")
	return cmd
}

func createMaintenanceCommand(apiFlags *APIFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "maintenance",
		Short: "List maintenance log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := newClient(apiFlags).Maintenance(context.Background(), limit)
			if err != nil {
				return err
			}
			return printJSON(entries)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum entries to return")
	return cmd
}
