package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/monitor"
	"github.com/driftwatch/driftwatch/internal/storage/sqlite"
	"github.com/driftwatch/driftwatch/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monitor state and alert summary",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== driftwatch status ==="))

		fmt.Printf("%s\n", yellow("Monitor:"))
		status, err := readStatusFile(cfg)
		if err != nil || !status.Running {
			fmt.Printf("  %s not running\n", gray("○"))
		} else {
			fmt.Printf("  %s running\n", green("●"))
			fmt.Printf("    Last scan:  %s\n", formatScanTime(status.LastScanAt))
			fmt.Printf("    Queue:      %d queued, %d dropped\n", status.QueueLength, status.DroppedEvents)
			fmt.Printf("    Scanned:    %d files across %d cycles, %d drift items\n",
				status.FilesScanned, status.ScansCompleted, status.DriftsFound)
			fmt.Printf("    Specs:      %d loaded\n", status.SpecsLoaded)
			if status.Throttled {
				fmt.Printf("    %s scans deferred by resource limits\n", yellow("⚠"))
			}
			if status.LastError != "" {
				fmt.Printf("    %s %s\n", red("last error:"), status.LastError)
			}
		}
		fmt.Println()

		store, err := sqlite.New(cfg.Alerts.StorePath)
		if err != nil {
			return fmt.Errorf("failed to open alert store: %w", err)
		}
		defer store.Close()

		summary, err := store.Summary(context.Background())
		if err != nil {
			return err
		}

		fmt.Printf("%s\n", yellow("Alerts:"))
		fmt.Printf("  Open:     %d\n", summary.Open)
		fmt.Printf("  Resolved: %d\n", summary.Resolved)
		for _, sev := range []types.AlertSeverity{types.AlertCritical, types.AlertError, types.AlertWarning, types.AlertInfo} {
			if n := summary.BySeverity[sev]; n > 0 {
				fmt.Printf("  %-9s %d\n", string(sev)+":", n)
			}
		}
		fmt.Println()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func readStatusFile(cfg *config.MonitorConfig) (*monitor.Status, error) {
	data, err := os.ReadFile(statusFilePath(cfg))
	if err != nil {
		return nil, err
	}
	var status monitor.Status
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func formatScanTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return fmt.Sprintf("%s (%v ago)", t.Format("15:04:05"), time.Since(t).Round(time.Second))
}
