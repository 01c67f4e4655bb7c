package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/storage/sqlite"
	"github.com/driftwatch/driftwatch/internal/types"
)

var (
	alertsShowAll     bool
	alertsMinSeverity string
	alertsLimit       int
	resolveNote       string
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and manage drift alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts (open by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.New(cfg.Alerts.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open alert store: %w", err)
		}
		defer store.Close()

		filter := types.AlertFilter{Limit: alertsLimit}
		if !alertsShowAll {
			open := false
			filter.Resolved = &open
		}
		if alertsMinSeverity != "" {
			sev := types.AlertSeverity(alertsMinSeverity)
			if !sev.IsValid() {
				return fmt.Errorf("unknown severity %q (info, warning, error, critical)", alertsMinSeverity)
			}
			filter.MinSeverity = sev
		}

		list, err := store.ListAlerts(context.Background(), filter)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Println("No alerts.")
			return nil
		}

		for _, a := range list {
			printAlert(a)
		}
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Mark an alert resolved",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.New(cfg.Alerts.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open alert store: %w", err)
		}
		defer store.Close()

		if err := store.ResolveAlert(context.Background(), args[0], resolveNote); err != nil {
			return err
		}
		fmt.Printf("Resolved %s\n", args[0])
		return nil
	},
}

var alertsSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show alert counts by state, severity and type",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := sqlite.New(cfg.Alerts.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open alert store: %w", err)
		}
		defer store.Close()

		summary, err := store.Summary(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("Total:    %d\n", summary.Total)
		fmt.Printf("Open:     %d\n", summary.Open)
		fmt.Printf("Resolved: %d\n", summary.Resolved)
		for _, sev := range []types.AlertSeverity{types.AlertCritical, types.AlertError, types.AlertWarning, types.AlertInfo} {
			if n := summary.BySeverity[sev]; n > 0 {
				fmt.Printf("  %-9s %d\n", string(sev)+":", n)
			}
		}
		for _, at := range []types.AlertType{types.AlertTypeDrift, types.AlertTypeScanError, types.AlertTypeSystem} {
			if n := summary.ByType[at]; n > 0 {
				fmt.Printf("  %-11s %d\n", string(at)+":", n)
			}
		}
		return nil
	},
}

func init() {
	alertsListCmd.Flags().BoolVar(&alertsShowAll, "all", false, "include resolved alerts")
	alertsListCmd.Flags().StringVar(&alertsMinSeverity, "min-severity", "", "lowest severity to show")
	alertsListCmd.Flags().IntVar(&alertsLimit, "limit", 50, "maximum alerts to show (0 = all)")
	alertsResolveCmd.Flags().StringVar(&resolveNote, "note", "", "resolution note")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsResolveCmd)
	alertsCmd.AddCommand(alertsSummaryCmd)
	rootCmd.AddCommand(alertsCmd)
}

func printAlert(a *types.Alert) {
	sevColor := color.New(color.FgCyan)
	switch a.Severity {
	case types.AlertCritical:
		sevColor = color.New(color.FgRed, color.Bold)
	case types.AlertError:
		sevColor = color.New(color.FgRed)
	case types.AlertWarning:
		sevColor = color.New(color.FgYellow)
	}

	state := "open"
	if a.Resolved {
		state = "resolved"
	}

	fmt.Printf("%s %s  %s\n", sevColor.Sprintf("[%s]", strings.ToUpper(string(a.Severity))), a.ID, a.Title)
	fmt.Printf("    %s, seen %dx, last %s\n", state, a.OccurrenceCount, a.LastSeenAt.Format(time.RFC3339))
	if a.ResolutionNote != "" {
		fmt.Printf("    note: %s\n", a.ResolutionNote)
	}
}
