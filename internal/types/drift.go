package types

import (
	"time"
)

// DriftType classifies a deviation between code and specification
type DriftType string

const (
	// DriftMissingImplementation: a specified identifier has no
	// implementation at all
	DriftMissingImplementation DriftType = "missing_implementation"
	// DriftSignatureMismatch: the identifier exists but its arity or
	// types differ from the specification
	DriftSignatureMismatch DriftType = "signature_mismatch"
	// DriftBehaviorDeviation: signature matches but the observed behavior
	// hash differs from the baseline
	DriftBehaviorDeviation DriftType = "behavior_deviation"
	// DriftDocumentationStale: the spec document changed while the code
	// did not, so the docs no longer describe reality
	DriftDocumentationStale DriftType = "documentation_stale"
	// DriftDependency: a declared dependency version differs from the
	// specified requirement
	DriftDependency DriftType = "dependency_drift"
	// DriftAPIBreakingChange: a stable public element was removed or
	// changed incompatibly
	DriftAPIBreakingChange DriftType = "api_breaking_change"
)

// IsValid returns true if the drift type is known
func (d DriftType) IsValid() bool {
	switch d {
	case DriftMissingImplementation, DriftSignatureMismatch, DriftBehaviorDeviation,
		DriftDocumentationStale, DriftDependency, DriftAPIBreakingChange:
		return true
	}
	return false
}

// DriftItem is a single detected deviation. Every item references exactly
// one specification element (or dependency requirement).
type DriftItem struct {
	Type        DriftType `json:"drift_type"`
	Severity    Severity  `json:"severity"`
	ElementID   string    `json:"element_id"`
	Description string    `json:"description"`
	Expected    string    `json:"expected,omitempty"`
	Actual      string    `json:"actual,omitempty"`
	// Confidence is the heuristic certainty in [0,1]; items below the
	// detector's minimum are dropped before the report is returned
	Confidence float64 `json:"confidence"`
	Line       int     `json:"line,omitempty"`
}

// DriftReport is the immutable result of checking one file against one
// specification. Reports are created fresh each scan and never mutated;
// the alert and realignment layers consume them as snapshots.
type DriftReport struct {
	FilePath    string      `json:"file_path"`
	SpecRef     string      `json:"spec_ref"`
	GeneratedAt time.Time   `json:"generated_at"`
	Items       []DriftItem `json:"items"`
	// Note carries an informational tag for reports that are empty by
	// construction (e.g. no specification loaded for the path)
	Note string `json:"note,omitempty"`
}

// Empty returns true if the report contains no drift items
func (r *DriftReport) Empty() bool {
	return len(r.Items) == 0
}

// MaxSeverity returns the highest severity across items, or SeverityInfo
// for an empty report
func (r *DriftReport) MaxSeverity() Severity {
	max := SeverityInfo
	for _, item := range r.Items {
		if item.Severity.AtLeast(max) {
			max = item.Severity
		}
	}
	return max
}

// CountByType returns item counts keyed by drift type
func (r *DriftReport) CountByType() map[DriftType]int {
	counts := make(map[DriftType]int)
	for _, item := range r.Items {
		counts[item.Type]++
	}
	return counts
}
