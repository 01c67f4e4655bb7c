// Package types holds the shared domain model for driftwatch: drift
// severities and taxonomy, detection reports, alerts, and realignment
// suggestions. Other packages depend on this one and never the reverse.
package types

import (
	"fmt"
	"time"
)

// Severity classifies how serious a drift finding is
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityOrder defines the ordering used for threshold comparisons
var severityOrder = map[Severity]int{
	SeverityInfo:     0,
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// IsValid returns true if the severity is a known level
func (s Severity) IsValid() bool {
	_, ok := severityOrder[s]
	return ok
}

// AtLeast reports whether s is at or above min in the severity ordering
func (s Severity) AtLeast(min Severity) bool {
	return severityOrder[s] >= severityOrder[min]
}

func (s Severity) String() string {
	return string(s)
}

// ChangeKind describes what happened to a watched file
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// ChangeEvent is a single file-system change delivered by the watcher.
// Events are ephemeral: the batcher consumes and discards them.
type ChangeEvent struct {
	Path      string
	Kind      ChangeKind
	Timestamp time.Time
}

// ObservedSignature is the normalized view of one identifier as extracted
// from the current code state by an external analysis collaborator
type ObservedSignature struct {
	// Signature is the normalized declaration, e.g. "calc(a, b)"
	Signature string `json:"signature"`
	// BehaviorHash fingerprints the element's observed behavior
	BehaviorHash string `json:"behavior_hash,omitempty"`
}

// Snapshot is the full normalized input for one file at one scan: the
// observed signatures plus project-level observations the detector
// compares against the specification. Snapshots must be treated as
// immutable for the duration of a scan.
type Snapshot struct {
	// Signatures maps identifier -> observed signature
	Signatures map[string]ObservedSignature `json:"signatures"`
	// Dependencies maps module path -> version currently declared by the
	// project (from go.mod or equivalent)
	Dependencies map[string]string `json:"dependencies,omitempty"`
	// DocHash is the last-seen hash of the documentation covering this
	// file, used for staleness detection
	DocHash string `json:"doc_hash,omitempty"`
}

// ExpectedElement is one identifier a specification requires
type ExpectedElement struct {
	// ID is the identifier the element is matched on
	ID string `yaml:"id" json:"id"`
	// Signature is the expected normalized declaration
	Signature string `yaml:"signature" json:"signature"`
	// Behavior describes the expected behavior in prose
	Behavior string `yaml:"behavior,omitempty" json:"behavior,omitempty"`
	// BehaviorHash is the expected behavior fingerprint, if baselined
	BehaviorHash string `yaml:"behavior_hash,omitempty" json:"behavior_hash,omitempty"`
	// Public marks the element as part of the public surface; signature
	// mismatches on public elements are high severity
	Public bool `yaml:"public,omitempty" json:"public,omitempty"`
	// BreakingIfRemoved marks a previously stable public element whose
	// removal or incompatible change is an API break
	BreakingIfRemoved bool `yaml:"breaking_if_removed,omitempty" json:"breaking_if_removed,omitempty"`
}

// DependencyRequirement pins a dependency version in a specification
type DependencyRequirement struct {
	Path    string `yaml:"path" json:"path"`
	Version string `yaml:"version" json:"version"`
}

// Specification is the normalized expectation set for one path. It is
// produced by an external loader; the core holds a read-only reference.
type Specification struct {
	// Name identifies the specification, e.g. "payments-api"
	Name string `yaml:"name" json:"name"`
	// SourceRef points at where the spec came from (file path, URL)
	SourceRef string `yaml:"source_ref" json:"source_ref"`
	// DocRevision is the revision hash of the spec document itself
	DocRevision string `yaml:"doc_revision,omitempty" json:"doc_revision,omitempty"`
	// Elements are the expected identifiers, in declaration order
	Elements []ExpectedElement `yaml:"elements" json:"elements"`
	// Dependencies are version requirements checked against the project
	Dependencies []DependencyRequirement `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Validate checks the specification is usable for detection
func (s *Specification) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("specification name is required")
	}
	seen := make(map[string]bool, len(s.Elements))
	for i, el := range s.Elements {
		if el.ID == "" {
			return fmt.Errorf("element %d: id is required", i)
		}
		if seen[el.ID] {
			return fmt.Errorf("duplicate element id: %s", el.ID)
		}
		seen[el.ID] = true
	}
	return nil
}

// Element returns the expected element with the given id, or nil
func (s *Specification) Element(id string) *ExpectedElement {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return &s.Elements[i]
		}
	}
	return nil
}
