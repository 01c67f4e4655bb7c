package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/ai"
	"github.com/driftwatch/driftwatch/internal/alerts"
	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/monitor"
	"github.com/driftwatch/driftwatch/internal/specs"
	"github.com/driftwatch/driftwatch/internal/storage/sqlite"
)

var startRoot string

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start continuous monitoring in the foreground",
	Long: `Start watching the tree and scanning changed files on the configured
interval. Runs until interrupted; Ctrl-C shuts down cleanly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		m, _, cleanup, err := buildMonitor(cfg, startRoot)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := m.Start(ctx); err != nil {
			return err
		}
		defer m.Stop()

		// Publish status alongside the alert store so the status
		// command can see a running session.
		statusTicker := time.NewTicker(cfg.ScanInterval)
		defer statusTicker.Stop()
		writeStatusFile(cfg, m)

		for {
			select {
			case <-ctx.Done():
				fmt.Println("Monitor: shutdown requested")
				removeStatusFile(cfg)
				return nil
			case <-statusTicker.C:
				writeStatusFile(cfg, m)
			}
		}
	},
}

func init() {
	startCmd.Flags().StringVar(&startRoot, "root", ".", "directory tree to watch")
	rootCmd.AddCommand(startCmd)
}

// buildMonitor assembles the full pipeline from configuration
func buildMonitor(cfg *config.MonitorConfig, root string) (*monitor.Monitor, *alerts.System, func(), error) {
	store, err := sqlite.New(cfg.Alerts.StorePath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open alert store: %w", err)
	}

	sys, err := alerts.NewSystem(alerts.Deps{
		Store:    store,
		Channels: alerts.ChannelsFromConfig(cfg.Alerts),
		Config:   cfg.Alerts,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	registry := specs.NewRegistry(specsDir)
	provider := monitor.NewManifestProvider(root, snapshotPath, "go.mod")

	m, err := monitor.New(monitor.Deps{
		Config:    cfg,
		Root:      root,
		Registry:  registry,
		Snapshots: provider,
		Alerts:    sys,
	})
	if err != nil {
		store.Close()
		return nil, nil, nil, err
	}

	return m, sys, func() { store.Close() }, nil
}

// newEnricher builds the AI enricher when enabled, or nil (rule-based
// suggestions only) when disabled or unconfigured
func newEnricher(cfg *config.MonitorConfig) *ai.Enricher {
	if !cfg.AI.Enabled {
		return nil
	}
	enricher, err := ai.NewEnricher(cfg.AI)
	if err != nil {
		fmt.Fprintf(os.Stderr, "AI enrichment unavailable, continuing with rule suggestions: %v\n", err)
		return nil
	}
	return enricher
}

func writeStatusFile(cfg *config.MonitorConfig, m *monitor.Monitor) {
	data, err := json.MarshalIndent(m.Status(), "", "  ")
	if err != nil {
		return
	}
	if err := os.WriteFile(statusFilePath(cfg), data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write status file: %v\n", err)
	}
}

func removeStatusFile(cfg *config.MonitorConfig) {
	os.Remove(statusFilePath(cfg))
}
