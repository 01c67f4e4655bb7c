// Package config loads and validates driftwatch configuration.
//
// Configuration comes from three layers, later layers overriding earlier
// ones: built-in defaults, a YAML file (.driftwatch/config.yaml by
// default), and DRIFTWATCH_* environment variables. Once a monitoring
// session starts the config is immutable; changing it requires a restart.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/driftwatch/driftwatch/internal/types"
)

// ConfigError marks a fatal startup validation failure. The monitor never
// starts its loop when Start returns a ConfigError.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// OverflowPolicy controls what the change queue does when full
type OverflowPolicy string

const (
	// OverflowDropOldest discards the oldest queued event to make room
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	// OverflowBlock makes the producer wait for room
	OverflowBlock OverflowPolicy = "block"
)

// CheckKind names a detection check that can be toggled per project
type CheckKind string

const (
	CheckSignatures    CheckKind = "signatures"
	CheckBehavior      CheckKind = "behavior"
	CheckDocumentation CheckKind = "documentation"
	CheckDependencies  CheckKind = "dependencies"
)

// MonitorConfig holds the complete monitoring configuration
type MonitorConfig struct {
	// ScanInterval is how often the scheduler wakes to drain the queue
	// Default: 30s
	ScanInterval time.Duration `yaml:"scan_interval"`

	// WatchPatterns selects files to monitor (shell globs on base names)
	// Default: *.go
	WatchPatterns []string `yaml:"watch_patterns"`

	// IgnorePatterns excludes files and directories from watching
	// Default: .git, vendor, testdata
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// MaxCPUPercent defers scans while process CPU usage is above this
	// Default: 50
	MaxCPUPercent float64 `yaml:"max_cpu_percent"`

	// MaxMemoryMB defers scans while process RSS is above this
	// Default: 512
	MaxMemoryMB int `yaml:"max_memory_mb"`

	// BatchSize caps how many changed files one scan cycle processes
	// Default: 32
	BatchSize int `yaml:"batch_size"`

	// QueueSize bounds the change queue between watcher and scheduler
	// Default: 1024
	QueueSize int `yaml:"queue_size"`

	// Overflow selects the queue-full policy
	// Default: drop_oldest
	Overflow OverflowPolicy `yaml:"overflow"`

	// Workers bounds parallel per-file detection within one batch
	// Default: 4
	Workers int `yaml:"workers"`

	// EnabledChecks toggles detection checks; empty enables all
	EnabledChecks []CheckKind `yaml:"enabled_checks"`

	// MinConfidence drops drift items below this confidence before a
	// report is returned. This is the single false-positive control.
	// Default: 0.5
	MinConfidence float64 `yaml:"min_confidence"`

	// Weights overrides per-drift-type base confidence; missing types
	// use built-in defaults
	Weights map[types.DriftType]float64 `yaml:"weights"`

	// Alerts configures the alerting pipeline
	Alerts AlertConfig `yaml:"alerts"`

	// AI configures the optional suggestion enricher
	AI AIConfig `yaml:"ai"`
}

// AlertConfig configures alert persistence and dispatch
type AlertConfig struct {
	// StorePath is the sqlite database location
	// Default: .driftwatch/alerts.db
	StorePath string `yaml:"store_path"`

	// Rules map alert types and severities to channels; an empty list
	// falls back to DefaultRules (everything to the log channel)
	Rules []Rule `yaml:"rules"`

	// ChannelTimeout bounds each channel delivery attempt
	// Default: 10s
	ChannelTimeout time.Duration `yaml:"channel_timeout"`

	// RatePerMinute caps deliveries per alert type per minute (0 = off)
	// Default: 10
	RatePerMinute int `yaml:"rate_per_minute"`

	// File channel output path (JSONL). Empty disables the file channel.
	AlertFile string `yaml:"alert_file"`

	// Webhook channel settings. Empty URL disables the channel.
	Webhook WebhookConfig `yaml:"webhook"`

	// Email channel settings. Empty host disables the channel.
	Email EmailConfig `yaml:"email"`
}

// Rule subscribes channels to a slice of the alert stream
type Rule struct {
	// Type limits the rule to one alert type; empty matches all
	Type types.AlertType `yaml:"type"`
	// MinSeverity is the lowest severity the rule matches
	MinSeverity types.AlertSeverity `yaml:"min_severity"`
	// Channels are the channel names to deliver to
	Channels []string `yaml:"channels"`
	// SuppressionWindow is how long repeats of the same fingerprint are
	// suppressed after a delivery
	// Default: 5m
	SuppressionWindow time.Duration `yaml:"suppression_window"`
}

// WebhookConfig configures the webhook channel
type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
}

// EmailConfig configures the SMTP channel
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	StartTLS bool     `yaml:"starttls"`
}

// AIConfig configures the optional Anthropic suggestion enricher
type AIConfig struct {
	// Enabled turns AI enrichment on. The engine always falls back to
	// rule-based suggestions when disabled or failing.
	Enabled bool `yaml:"enabled"`
	// Model overrides the default model
	Model string `yaml:"model"`
	// Timeout bounds one enrichment call
	// Default: 30s
	Timeout time.Duration `yaml:"timeout"`
	// MaxConcurrent caps in-flight enrichment calls
	// Default: 2
	MaxConcurrent int `yaml:"max_concurrent"`
}

// Default returns the built-in configuration
func Default() *MonitorConfig {
	return &MonitorConfig{
		ScanInterval:   30 * time.Second,
		WatchPatterns:  []string{"*.go"},
		IgnorePatterns: []string{".git", "vendor", "testdata"},
		MaxCPUPercent:  50,
		MaxMemoryMB:    512,
		BatchSize:      32,
		QueueSize:      1024,
		Overflow:       OverflowDropOldest,
		Workers:        4,
		MinConfidence:  0.5,
		Alerts: AlertConfig{
			StorePath:      ".driftwatch/alerts.db",
			ChannelTimeout: 10 * time.Second,
			RatePerMinute:  10,
		},
		AI: AIConfig{
			Timeout:       30 * time.Second,
			MaxConcurrent: 2,
		},
	}
}

// DefaultRules returns the fallback rule set used when no rules are
// configured: everything goes to the log channel, errors and above also
// go to the console.
func DefaultRules() []Rule {
	return []Rule{
		{MinSeverity: types.AlertInfo, Channels: []string{"log"}, SuppressionWindow: 5 * time.Minute},
		{MinSeverity: types.AlertError, Channels: []string{"console"}, SuppressionWindow: 5 * time.Minute},
	}
}

// Load reads configuration from path, applies environment overrides, and
// validates the result. A missing file is not an error; defaults apply.
func Load(path string) (*MonitorConfig, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides config fields from DRIFTWATCH_* environment variables
func applyEnv(cfg *MonitorConfig) {
	if val := os.Getenv("DRIFTWATCH_SCAN_INTERVAL"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.ScanInterval = d
		}
	}
	if val := os.Getenv("DRIFTWATCH_BATCH_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.BatchSize = n
		}
	}
	if val := os.Getenv("DRIFTWATCH_MAX_CPU_PERCENT"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.MaxCPUPercent = f
		}
	}
	if val := os.Getenv("DRIFTWATCH_MAX_MEMORY_MB"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.MaxMemoryMB = n
		}
	}
	if val := os.Getenv("DRIFTWATCH_MIN_CONFIDENCE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.MinConfidence = f
		}
	}
	if val := os.Getenv("DRIFTWATCH_ALERT_STORE"); val != "" {
		cfg.Alerts.StorePath = val
	}
	if val := os.Getenv("DRIFTWATCH_AI_ENABLED"); val != "" {
		cfg.AI.Enabled = val == "true" || val == "1" || val == "yes"
	}
	if val := os.Getenv("DRIFTWATCH_AI_MODEL"); val != "" {
		cfg.AI.Model = val
	}
}

// Validate checks that the configuration has safe, usable values.
// Failures are ConfigErrors and fatal at startup.
func (c *MonitorConfig) Validate() error {
	if c.ScanInterval <= 0 {
		return &ConfigError{Field: "scan_interval", Reason: fmt.Sprintf("must be positive, got %v", c.ScanInterval)}
	}
	if c.BatchSize <= 0 {
		return &ConfigError{Field: "batch_size", Reason: fmt.Sprintf("must be positive, got %d", c.BatchSize)}
	}
	if c.QueueSize < c.BatchSize {
		return &ConfigError{Field: "queue_size", Reason: fmt.Sprintf("must be >= batch_size (%d), got %d", c.BatchSize, c.QueueSize)}
	}
	if c.Workers <= 0 {
		return &ConfigError{Field: "workers", Reason: fmt.Sprintf("must be positive, got %d", c.Workers)}
	}
	if c.MaxCPUPercent <= 0 || c.MaxCPUPercent > 100 {
		return &ConfigError{Field: "max_cpu_percent", Reason: fmt.Sprintf("must be in (0,100], got %v", c.MaxCPUPercent)}
	}
	if c.MaxMemoryMB <= 0 {
		return &ConfigError{Field: "max_memory_mb", Reason: fmt.Sprintf("must be positive, got %d", c.MaxMemoryMB)}
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return &ConfigError{Field: "min_confidence", Reason: fmt.Sprintf("must be in [0,1], got %v", c.MinConfidence)}
	}
	switch c.Overflow {
	case OverflowDropOldest, OverflowBlock:
	case "":
		c.Overflow = OverflowDropOldest
	default:
		return &ConfigError{Field: "overflow", Reason: fmt.Sprintf("unknown policy %q", c.Overflow)}
	}
	for dt, w := range c.Weights {
		if !dt.IsValid() {
			return &ConfigError{Field: "weights", Reason: fmt.Sprintf("unknown drift type %q", dt)}
		}
		if w < 0 || w > 1 {
			return &ConfigError{Field: "weights", Reason: fmt.Sprintf("weight for %s must be in [0,1], got %v", dt, w)}
		}
	}
	if c.Alerts.ChannelTimeout <= 0 {
		return &ConfigError{Field: "alerts.channel_timeout", Reason: fmt.Sprintf("must be positive, got %v", c.Alerts.ChannelTimeout)}
	}
	for i, r := range c.Alerts.Rules {
		if r.MinSeverity != "" && !r.MinSeverity.IsValid() {
			return &ConfigError{Field: "alerts.rules", Reason: fmt.Sprintf("rule %d: unknown severity %q", i, r.MinSeverity)}
		}
		if r.Type != "" && !r.Type.IsValid() {
			return &ConfigError{Field: "alerts.rules", Reason: fmt.Sprintf("rule %d: unknown type %q", i, r.Type)}
		}
		if len(r.Channels) == 0 {
			return &ConfigError{Field: "alerts.rules", Reason: fmt.Sprintf("rule %d: at least one channel required", i)}
		}
	}
	return nil
}

// CheckEnabled reports whether a detection check is enabled. An empty
// EnabledChecks list enables everything.
func (c *MonitorConfig) CheckEnabled(kind CheckKind) bool {
	if len(c.EnabledChecks) == 0 {
		return true
	}
	for _, k := range c.EnabledChecks {
		if k == kind {
			return true
		}
	}
	return false
}
