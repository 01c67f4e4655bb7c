// Package drift classifies deviation between the observed state of a file
// and its specification. The detector is pure: identical inputs always
// produce an identical report, and nothing here touches the file system.
package drift

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/driftwatch/driftwatch/internal/types"
)

// Options tunes detection. Zero-value fields fall back to defaults; the
// check toggles default to enabled.
type Options struct {
	// MinConfidence drops items below this confidence from reports.
	// This is the single false-positive control.
	MinConfidence float64

	// Weights overrides the per-drift-type base confidence table
	Weights map[types.DriftType]float64

	// Check toggles. Signature/missing/API-break checks are always on;
	// these gate the supplementary checks.
	Behavior      bool
	Documentation bool
	Dependencies  bool
}

// DefaultWeights is the built-in base confidence per drift type. The
// exact values are heuristic and deliberately configurable; structural
// findings (missing, signature, dependency) score higher than behavioral
// inference.
func DefaultWeights() map[types.DriftType]float64 {
	return map[types.DriftType]float64{
		types.DriftMissingImplementation: 0.90,
		types.DriftSignatureMismatch:     0.95,
		types.DriftBehaviorDeviation:     0.60,
		types.DriftDocumentationStale:    0.70,
		types.DriftDependency:            0.90,
		types.DriftAPIBreakingChange:     0.95,
	}
}

// Detector compares snapshots against specifications
type Detector struct {
	minConfidence float64
	weights       map[types.DriftType]float64
	behavior      bool
	documentation bool
	dependencies  bool
}

// NewDetector creates a detector from options
func NewDetector(opts Options) *Detector {
	weights := DefaultWeights()
	for dt, w := range opts.Weights {
		weights[dt] = w
	}
	return &Detector{
		minConfidence: opts.MinConfidence,
		weights:       weights,
		behavior:      opts.Behavior,
		documentation: opts.Documentation,
		dependencies:  opts.Dependencies,
	}
}

// Check compares one file's snapshot against its specification and
// returns an immutable report. Repeated checks of the same inputs yield
// identical Items; GeneratedAt is the only wall-clock field.
//
// A nil specification is not an error: the file simply has no declared
// expectations, and the result is an empty report tagged informational.
func (d *Detector) Check(filePath string, snap *types.Snapshot, spec *types.Specification) *types.DriftReport {
	report := &types.DriftReport{
		FilePath:    filePath,
		GeneratedAt: time.Now().UTC(),
	}
	if spec == nil {
		report.Note = "no specification loaded for path"
		return report
	}
	report.SpecRef = spec.SourceRef

	var items []types.DriftItem

	// Elements are walked in specification order so reports are stable
	// for identical inputs.
	for _, el := range spec.Elements {
		if item := d.checkElement(el, snap); item != nil {
			items = append(items, *item)
		}
	}

	if d.documentation {
		if item := d.checkDocumentation(spec, snap); item != nil {
			items = append(items, *item)
		}
	}

	if d.dependencies {
		items = append(items, d.checkDependencies(spec, snap)...)
	}

	// Confidence filter runs last so the threshold applies uniformly.
	for _, item := range items {
		if item.Confidence >= d.minConfidence {
			report.Items = append(report.Items, item)
		}
	}
	return report
}

// checkElement classifies one expected element against the snapshot
func (d *Detector) checkElement(el types.ExpectedElement, snap *types.Snapshot) *types.DriftItem {
	var observed types.ObservedSignature
	var present bool
	if snap != nil {
		observed, present = snap.Signatures[el.ID]
	}

	if !present {
		if el.BreakingIfRemoved {
			return &types.DriftItem{
				Type:        types.DriftAPIBreakingChange,
				Severity:    types.SeverityCritical,
				ElementID:   el.ID,
				Description: fmt.Sprintf("stable public element '%s' was removed", el.ID),
				Expected:    el.Signature,
				Actual:      "not present",
				Confidence:  d.weights[types.DriftAPIBreakingChange],
			}
		}
		return &types.DriftItem{
			Type:        types.DriftMissingImplementation,
			Severity:    types.SeverityHigh,
			ElementID:   el.ID,
			Description: fmt.Sprintf("'%s' is specified but not implemented", el.ID),
			Expected:    el.Signature,
			Actual:      "not present",
			Confidence:  d.weights[types.DriftMissingImplementation],
		}
	}

	if !signaturesEqual(el.Signature, observed.Signature) {
		if el.BreakingIfRemoved {
			return &types.DriftItem{
				Type:        types.DriftAPIBreakingChange,
				Severity:    types.SeverityCritical,
				ElementID:   el.ID,
				Description: fmt.Sprintf("stable public element '%s' changed incompatibly", el.ID),
				Expected:    el.Signature,
				Actual:      observed.Signature,
				Confidence:  d.weights[types.DriftAPIBreakingChange],
			}
		}
		severity := types.SeverityMedium
		if el.Public {
			severity = types.SeverityHigh
		}
		return &types.DriftItem{
			Type:        types.DriftSignatureMismatch,
			Severity:    severity,
			ElementID:   el.ID,
			Description: describeSignatureMismatch(el, observed),
			Expected:    el.Signature,
			Actual:      observed.Signature,
			Confidence:  d.weights[types.DriftSignatureMismatch],
		}
	}

	if d.behavior && el.BehaviorHash != "" && observed.BehaviorHash != "" &&
		el.BehaviorHash != observed.BehaviorHash {
		return &types.DriftItem{
			Type:        types.DriftBehaviorDeviation,
			Severity:    types.SeverityMedium,
			ElementID:   el.ID,
			Description: fmt.Sprintf("'%s' matches its signature but its behavior hash diverged from the baseline", el.ID),
			Expected:    el.BehaviorHash,
			Actual:      observed.BehaviorHash,
			Confidence:  d.weights[types.DriftBehaviorDeviation],
		}
	}

	return nil
}

// checkDocumentation flags a spec document revised without a matching
// code-side observation
func (d *Detector) checkDocumentation(spec *types.Specification, snap *types.Snapshot) *types.DriftItem {
	if spec.DocRevision == "" || snap == nil || snap.DocHash == "" {
		return nil
	}
	if spec.DocRevision == snap.DocHash {
		return nil
	}
	return &types.DriftItem{
		Type:        types.DriftDocumentationStale,
		Severity:    types.SeverityLow,
		ElementID:   spec.Name,
		Description: fmt.Sprintf("specification '%s' was revised but the code has not caught up", spec.Name),
		Expected:    spec.DocRevision,
		Actual:      snap.DocHash,
		Confidence:  d.weights[types.DriftDocumentationStale],
	}
}

// checkDependencies compares declared dependency versions against the
// specification's requirements. Results are ordered by the spec's own
// requirement order.
func (d *Detector) checkDependencies(spec *types.Specification, snap *types.Snapshot) []types.DriftItem {
	if len(spec.Dependencies) == 0 || snap == nil {
		return nil
	}
	var items []types.DriftItem
	for _, req := range spec.Dependencies {
		current, ok := snap.Dependencies[req.Path]
		if !ok {
			continue // dependency set incomplete; not evidence of drift
		}
		if !versionsCompatible(req.Version, current) {
			items = append(items, types.DriftItem{
				Type:        types.DriftDependency,
				Severity:    types.SeverityMedium,
				ElementID:   req.Path,
				Description: fmt.Sprintf("dependency %s is %s but the specification requires %s", req.Path, current, req.Version),
				Expected:    req.Version,
				Actual:      current,
				Confidence:  d.weights[types.DriftDependency],
			})
		}
	}
	return items
}

// describeSignatureMismatch prefers an arity-specific description when
// the parameter counts differ
func describeSignatureMismatch(el types.ExpectedElement, observed types.ObservedSignature) string {
	wantArity := arity(el.Signature)
	gotArity := arity(observed.Signature)
	if wantArity >= 0 && gotArity >= 0 && wantArity != gotArity {
		return fmt.Sprintf("'%s' takes %d parameter(s) but the specification declares %d", el.ID, gotArity, wantArity)
	}
	return fmt.Sprintf("'%s' does not match its specified signature", el.ID)
}

// signaturesEqual compares normalized signatures
func signaturesEqual(a, b string) bool {
	return normalizeSignature(a) == normalizeSignature(b)
}

// normalizeSignature strips insignificant whitespace from a signature so
// formatting differences do not register as drift
func normalizeSignature(sig string) string {
	fields := strings.Fields(sig)
	joined := strings.Join(fields, " ")
	joined = strings.ReplaceAll(joined, " (", "(")
	joined = strings.ReplaceAll(joined, "( ", "(")
	joined = strings.ReplaceAll(joined, " )", ")")
	joined = strings.ReplaceAll(joined, " ,", ",")
	joined = strings.ReplaceAll(joined, ", ", ",")
	return joined
}

// arity counts the parameters in a signature's first parenthesized list,
// or -1 when there is none
func arity(sig string) int {
	open := strings.Index(sig, "(")
	if open < 0 {
		return -1
	}
	close := strings.Index(sig[open:], ")")
	if close < 0 {
		return -1
	}
	inner := strings.TrimSpace(sig[open+1 : open+close])
	if inner == "" {
		return 0
	}
	return strings.Count(inner, ",") + 1
}

// SortItems orders drift items by severity (descending) then element id,
// for presentation surfaces that want the worst findings first. Reports
// themselves keep specification order.
func SortItems(items []types.DriftItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Severity != items[j].Severity {
			return items[i].Severity.AtLeast(items[j].Severity)
		}
		return items[i].ElementID < items[j].ElementID
	})
}
