// driftwatch is the continuous specification-drift monitor CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/driftwatch/driftwatch/internal/config"
)

// Version is set at build time via -ldflags
var Version = "dev"

var (
	configPath   string
	specsDir     string
	snapshotPath string
)

var rootCmd = &cobra.Command{
	Use:   "driftwatch",
	Short: "Continuous specification-drift monitoring",
	Long: `driftwatch watches a source tree, compares changed files against their
specification manifests, and turns deviations into persisted alerts and
realignment suggestions.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", filepath.Join(".driftwatch", "config.yaml"), "config file path")
	rootCmd.PersistentFlags().StringVar(&specsDir, "specs", filepath.Join(".driftwatch", "specs"), "specification manifest directory")
	rootCmd.PersistentFlags().StringVar(&snapshotPath, "snapshot-manifest", filepath.Join(".driftwatch", "snapshot.json"), "collector snapshot manifest")
}

// loadConfig loads and validates the effective configuration
func loadConfig() (*config.MonitorConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// statusFilePath is where the running monitor publishes its state for
// the status command
func statusFilePath(cfg *config.MonitorConfig) string {
	return filepath.Join(filepath.Dir(cfg.Alerts.StorePath), "status.json")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
