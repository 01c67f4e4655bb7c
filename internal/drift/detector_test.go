package drift

import (
	"reflect"
	"testing"

	"github.com/driftwatch/driftwatch/internal/types"
)

func testSpec() *types.Specification {
	return &types.Specification{
		Name:      "billing",
		SourceRef: "specs/billing.yaml",
		Elements: []types.ExpectedElement{
			{ID: "Charge", Signature: "Charge(amount int, currency string) error", Public: true},
			{ID: "Refund", Signature: "Refund(id string) error", Public: true, BreakingIfRemoved: true},
			{ID: "normalize", Signature: "normalize(s string) string"},
		},
	}
}

func snapshotWith(sigs map[string]types.ObservedSignature) *types.Snapshot {
	return &types.Snapshot{Signatures: sigs}
}

func TestCheckNoSpecification(t *testing.T) {
	d := NewDetector(Options{})
	report := d.Check("billing.go", &types.Snapshot{}, nil)
	if !report.Empty() {
		t.Fatalf("expected empty report, got %d items", len(report.Items))
	}
	if report.Note == "" {
		t.Error("expected informational note on report without specification")
	}
}

func TestCheckCleanSnapshot(t *testing.T) {
	d := NewDetector(Options{})
	snap := snapshotWith(map[string]types.ObservedSignature{
		"Charge":    {Signature: "Charge(amount int, currency string) error"},
		"Refund":    {Signature: "Refund(id string) error"},
		"normalize": {Signature: "normalize(s string) string"},
	})
	report := d.Check("billing.go", snap, testSpec())
	if !report.Empty() {
		t.Fatalf("expected no drift, got %+v", report.Items)
	}
	if report.SpecRef != "specs/billing.yaml" {
		t.Errorf("spec ref = %q", report.SpecRef)
	}
}

func TestCheckMissingImplementation(t *testing.T) {
	d := NewDetector(Options{})
	snap := snapshotWith(map[string]types.ObservedSignature{
		"Refund":    {Signature: "Refund(id string) error"},
		"normalize": {Signature: "normalize(s string) string"},
	})
	report := d.Check("billing.go", snap, testSpec())
	if len(report.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(report.Items))
	}
	item := report.Items[0]
	if item.Type != types.DriftMissingImplementation {
		t.Errorf("type = %s", item.Type)
	}
	if item.Severity != types.SeverityHigh {
		t.Errorf("severity = %s", item.Severity)
	}
	if item.ElementID != "Charge" {
		t.Errorf("element = %s", item.ElementID)
	}
}

func TestCheckBreakingRemoval(t *testing.T) {
	d := NewDetector(Options{})
	snap := snapshotWith(map[string]types.ObservedSignature{
		"Charge":    {Signature: "Charge(amount int, currency string) error"},
		"normalize": {Signature: "normalize(s string) string"},
	})
	report := d.Check("billing.go", snap, testSpec())
	if len(report.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(report.Items))
	}
	item := report.Items[0]
	if item.Type != types.DriftAPIBreakingChange {
		t.Errorf("type = %s, want api_breaking_change", item.Type)
	}
	if item.Severity != types.SeverityCritical {
		t.Errorf("severity = %s, want critical", item.Severity)
	}
}

func TestCheckSignatureMismatch(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		wantType types.DriftType
		wantSev  types.Severity
	}{
		{
			name:     "public element arity change",
			observed: "Charge(amount int) error",
			wantType: types.DriftSignatureMismatch,
			wantSev:  types.SeverityHigh,
		},
		{
			name:     "whitespace only difference is not drift",
			observed: "Charge( amount int,  currency string ) error",
			wantType: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector(Options{})
			snap := snapshotWith(map[string]types.ObservedSignature{
				"Charge":    {Signature: tt.observed},
				"Refund":    {Signature: "Refund(id string) error"},
				"normalize": {Signature: "normalize(s string) string"},
			})
			report := d.Check("billing.go", snap, testSpec())
			if tt.wantType == "" {
				if !report.Empty() {
					t.Fatalf("expected clean report, got %+v", report.Items)
				}
				return
			}
			if len(report.Items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(report.Items))
			}
			if report.Items[0].Type != tt.wantType {
				t.Errorf("type = %s, want %s", report.Items[0].Type, tt.wantType)
			}
			if report.Items[0].Severity != tt.wantSev {
				t.Errorf("severity = %s, want %s", report.Items[0].Severity, tt.wantSev)
			}
		})
	}
}

func TestCheckBehaviorDeviation(t *testing.T) {
	spec := &types.Specification{
		Name: "billing",
		Elements: []types.ExpectedElement{
			{ID: "Charge", Signature: "Charge(a int) error", BehaviorHash: "abc123"},
		},
	}
	snap := snapshotWith(map[string]types.ObservedSignature{
		"Charge": {Signature: "Charge(a int) error", BehaviorHash: "def456"},
	})

	// Behavior checking disabled: no item.
	d := NewDetector(Options{})
	if report := d.Check("f.go", snap, spec); !report.Empty() {
		t.Fatalf("behavior check disabled but got %+v", report.Items)
	}

	d = NewDetector(Options{Behavior: true})
	report := d.Check("f.go", snap, spec)
	if len(report.Items) != 1 || report.Items[0].Type != types.DriftBehaviorDeviation {
		t.Fatalf("expected behavior_deviation, got %+v", report.Items)
	}
}

func TestCheckDocumentationStale(t *testing.T) {
	spec := &types.Specification{Name: "billing", DocRevision: "rev-2"}
	snap := &types.Snapshot{DocHash: "rev-1"}

	d := NewDetector(Options{Documentation: true})
	report := d.Check("f.go", snap, spec)
	if len(report.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(report.Items))
	}
	if report.Items[0].Type != types.DriftDocumentationStale {
		t.Errorf("type = %s", report.Items[0].Type)
	}
	if report.Items[0].Severity != types.SeverityLow {
		t.Errorf("severity = %s", report.Items[0].Severity)
	}
}

func TestCheckDependencyDrift(t *testing.T) {
	spec := &types.Specification{
		Name: "billing",
		Dependencies: []types.DependencyRequirement{
			{Path: "github.com/google/uuid", Version: "^v1.6.0"},
			{Path: "gopkg.in/yaml.v3", Version: "v3.0.1"},
		},
	}
	snap := &types.Snapshot{
		Dependencies: map[string]string{
			"github.com/google/uuid": "v1.4.0",
			"gopkg.in/yaml.v3":       "v3.0.1",
		},
	}

	d := NewDetector(Options{Dependencies: true})
	report := d.Check("go.mod", snap, spec)
	if len(report.Items) != 1 {
		t.Fatalf("expected 1 item, got %+v", report.Items)
	}
	item := report.Items[0]
	if item.Type != types.DriftDependency {
		t.Errorf("type = %s", item.Type)
	}
	if item.ElementID != "github.com/google/uuid" {
		t.Errorf("element = %s", item.ElementID)
	}
}

func TestMinConfidenceFilter(t *testing.T) {
	spec := &types.Specification{
		Name: "billing",
		Elements: []types.ExpectedElement{
			{ID: "Charge", Signature: "Charge(a int) error", BehaviorHash: "abc"},
		},
	}
	snap := snapshotWith(map[string]types.ObservedSignature{
		"Charge": {Signature: "Charge(a int) error", BehaviorHash: "xyz"},
	})

	// Behavior deviation defaults to 0.60 confidence; a 0.8 floor drops it.
	d := NewDetector(Options{Behavior: true, MinConfidence: 0.8})
	if report := d.Check("f.go", snap, spec); !report.Empty() {
		t.Fatalf("expected low-confidence item filtered, got %+v", report.Items)
	}

	d = NewDetector(Options{Behavior: true, MinConfidence: 0.5})
	if report := d.Check("f.go", snap, spec); report.Empty() {
		t.Fatal("expected item above threshold to survive")
	}
}

func TestCheckDeterministicOrder(t *testing.T) {
	d := NewDetector(Options{})
	snap := snapshotWith(map[string]types.ObservedSignature{})
	first := d.Check("billing.go", snap, testSpec())
	second := d.Check("billing.go", snap, testSpec())
	// Identical inputs yield identical findings; only GeneratedAt is
	// wall-clock.
	if !reflect.DeepEqual(first.Items, second.Items) {
		t.Fatalf("items differ across identical checks:\n%+v\nvs\n%+v", first.Items, second.Items)
	}
}

func TestVersionsCompatible(t *testing.T) {
	tests := []struct {
		required string
		current  string
		want     bool
	}{
		{"v1.2.3", "v1.2.3", true},
		{"v1.2.3", "v1.2.4", false},
		{"^v1.2.0", "v1.9.9", true},
		{"^v1.2.0", "v2.0.0", false},
		{"^v1.2.0", "v1.1.0", false},
		{"~v1.2.0", "v1.2.5", true},
		{"~v1.2.0", "v1.3.0", false},
		{">=v1.2.0", "v2.0.0", true},
		{">=v1.2.0", "v1.1.9", false},
		{"1.2.3", "v1.2.3", true},
		{"not-semver", "not-semver", true},
		{"not-semver", "other", false},
	}

	for _, tt := range tests {
		if got := versionsCompatible(tt.required, tt.current); got != tt.want {
			t.Errorf("versionsCompatible(%q, %q) = %v, want %v", tt.required, tt.current, got, tt.want)
		}
	}
}

func TestSortItems(t *testing.T) {
	items := []types.DriftItem{
		{Type: types.DriftDocumentationStale, Severity: types.SeverityLow, ElementID: "b"},
		{Type: types.DriftAPIBreakingChange, Severity: types.SeverityCritical, ElementID: "z"},
		{Type: types.DriftMissingImplementation, Severity: types.SeverityHigh, ElementID: "a"},
		{Type: types.DriftSignatureMismatch, Severity: types.SeverityHigh, ElementID: "c"},
	}
	SortItems(items)
	wantOrder := []string{"z", "a", "c", "b"}
	for i, id := range wantOrder {
		if items[i].ElementID != id {
			t.Errorf("position %d = %s, want %s", i, items[i].ElementID, id)
		}
	}
}
