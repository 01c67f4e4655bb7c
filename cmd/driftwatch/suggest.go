package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/drift"
	"github.com/driftwatch/driftwatch/internal/monitor"
	"github.com/driftwatch/driftwatch/internal/realign"
	"github.com/driftwatch/driftwatch/internal/specs"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <file>",
	Short: "Detect drift in one file and print ranked realignment suggestions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path := args[0]

		registry := specs.NewRegistry(specsDir)
		if err := registry.Reload(); err != nil {
			return err
		}
		spec := registry.For(path)
		if spec == nil {
			return fmt.Errorf("no specification covers %s", path)
		}

		provider := monitor.NewManifestProvider(".", snapshotPath, "go.mod")
		snap, err := provider.Snapshot(context.Background(), path)
		if err != nil {
			return err
		}

		detector := drift.NewDetector(drift.Options{
			MinConfidence: cfg.MinConfidence,
			Weights:       cfg.Weights,
			Behavior:      cfg.CheckEnabled(config.CheckBehavior),
			Documentation: cfg.CheckEnabled(config.CheckDocumentation),
			Dependencies:  cfg.CheckEnabled(config.CheckDependencies),
		})
		report := detector.Check(path, snap, spec)
		if report.Empty() {
			color.New(color.FgGreen).Printf("No drift detected in %s\n", path)
			return nil
		}

		var enricher realign.Enricher
		if e := newEnricher(cfg); e != nil {
			enricher = e
		}
		engine := realign.NewEngine(enricher)
		suggestions := engine.Suggest(context.Background(), report, spec)

		fmt.Printf("%d drift item(s) in %s:\n\n", len(report.Items), path)
		for i, s := range suggestions {
			priColor := color.New(color.FgCyan)
			if s.Priority >= 5 {
				priColor = color.New(color.FgRed, color.Bold)
			} else if s.Priority == 4 {
				priColor = color.New(color.FgYellow)
			}
			fmt.Printf("%d. %s %s  (%s, effort %d/5, confidence %.2f, %s)\n",
				i+1, priColor.Sprintf("[P%d]", s.Priority), s.Title, s.Category, s.Effort, s.Confidence, s.Source)
			fmt.Printf("   %s\n", s.Description)
			if s.Snippet != "" {
				for _, line := range strings.Split(s.Snippet, "\n") {
					fmt.Printf("   | %s\n", line)
				}
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(suggestCmd)
}
