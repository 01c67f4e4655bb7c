package types

import (
	"fmt"
	"time"
)

// AlertSeverity is the severity scale used by the alerting pipeline.
// Drift severities map onto this scale via AlertSeverityFor.
type AlertSeverity string

const (
	AlertInfo     AlertSeverity = "info"
	AlertWarning  AlertSeverity = "warning"
	AlertError    AlertSeverity = "error"
	AlertCritical AlertSeverity = "critical"
)

var alertSeverityOrder = map[AlertSeverity]int{
	AlertInfo:     0,
	AlertWarning:  1,
	AlertError:    2,
	AlertCritical: 3,
}

// IsValid returns true if the alert severity is a known level
func (s AlertSeverity) IsValid() bool {
	_, ok := alertSeverityOrder[s]
	return ok
}

// AtLeast reports whether s is at or above min
func (s AlertSeverity) AtLeast(min AlertSeverity) bool {
	return alertSeverityOrder[s] >= alertSeverityOrder[min]
}

// AlertSeverityFor maps a drift severity onto the alert scale
func AlertSeverityFor(s Severity) AlertSeverity {
	switch s {
	case SeverityCritical:
		return AlertCritical
	case SeverityHigh:
		return AlertError
	case SeverityMedium:
		return AlertWarning
	default:
		return AlertInfo
	}
}

// AlertType classifies what an alert is about
type AlertType string

const (
	// AlertTypeDrift: a drift report produced findings for a file
	AlertTypeDrift AlertType = "drift"
	// AlertTypeScanError: a file's detection failed repeatedly
	AlertTypeScanError AlertType = "scan_error"
	// AlertTypeSystem: monitor lifecycle and operational notices
	AlertTypeSystem AlertType = "system"
)

// IsValid returns true if the alert type is known
func (t AlertType) IsValid() bool {
	switch t {
	case AlertTypeDrift, AlertTypeScanError, AlertTypeSystem:
		return true
	}
	return false
}

// DeliveryResult records the outcome of one channel delivery attempt
type DeliveryResult struct {
	Channel     string        `json:"channel"`
	Success     bool          `json:"success"`
	Reason      string        `json:"reason,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	DeliveredAt time.Time     `json:"delivered_at"`
}

// Alert is a persisted, deduplicated notification. The created_at and
// fingerprint fields are immutable; resolved, resolution_note,
// occurrence_count and delivery_log change over the alert's lifecycle.
// LastSeenAt tracks every occurrence; LastDeliveredAt only moves when an
// occurrence goes out to channels, so suppression windows are measured
// from the last delivery rather than sliding with each suppressed repeat.
type Alert struct {
	ID              string                    `json:"id"`
	Type            AlertType                 `json:"type"`
	Severity        AlertSeverity             `json:"severity"`
	Title           string                    `json:"title"`
	Message         string                    `json:"message"`
	Context         map[string]string         `json:"context,omitempty"`
	Fingerprint     string                    `json:"fingerprint"`
	OccurrenceCount int                       `json:"occurrence_count"`
	CreatedAt       time.Time                 `json:"created_at"`
	LastSeenAt      time.Time                 `json:"last_seen_at"`
	LastDeliveredAt time.Time                 `json:"last_delivered_at"`
	Resolved        bool                      `json:"resolved"`
	ResolutionNote  string                    `json:"resolution_note,omitempty"`
	DeliveryLog     map[string]DeliveryResult `json:"delivery_log,omitempty"`
}

// Validate checks alert field invariants before persistence
func (a *Alert) Validate() error {
	if a.ID == "" {
		return fmt.Errorf("alert id is required")
	}
	if a.Fingerprint == "" {
		return fmt.Errorf("alert fingerprint is required")
	}
	if !a.Type.IsValid() {
		return fmt.Errorf("invalid alert type: %s", a.Type)
	}
	if !a.Severity.IsValid() {
		return fmt.Errorf("invalid alert severity: %s", a.Severity)
	}
	if a.Title == "" {
		return fmt.Errorf("alert title is required")
	}
	return nil
}

// AlertFilter narrows List queries over the alert store
type AlertFilter struct {
	// Resolved filters on resolution state when non-nil
	Resolved *bool
	// MinSeverity drops alerts below this level when set
	MinSeverity AlertSeverity
	// Type filters on alert type when non-empty
	Type AlertType
	// Limit caps the number of returned alerts (0 = no cap)
	Limit int
}

// AlertSummary aggregates the store for the status surface
type AlertSummary struct {
	Total      int                   `json:"total"`
	Open       int                   `json:"open"`
	Resolved   int                   `json:"resolved"`
	BySeverity map[AlertSeverity]int `json:"by_severity"`
	ByType     map[AlertType]int     `json:"by_type"`
}
