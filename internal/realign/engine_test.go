package realign

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftwatch/driftwatch/internal/types"
)

type fakeEnricher struct {
	suggestions []types.Suggestion
	err         error
	calls       int
}

func (f *fakeEnricher) Enrich(_ context.Context, _ *types.DriftReport, _ *types.Specification) ([]types.Suggestion, error) {
	f.calls++
	return f.suggestions, f.err
}

func sampleReport() *types.DriftReport {
	return &types.DriftReport{
		FilePath: "billing.go",
		SpecRef:  "specs/billing.yaml",
		Items: []types.DriftItem{
			{
				Type:       types.DriftMissingImplementation,
				Severity:   types.SeverityHigh,
				ElementID:  "Charge",
				Expected:   "Charge(amount int) error",
				Confidence: 0.9,
			},
			{
				Type:       types.DriftDocumentationStale,
				Severity:   types.SeverityLow,
				ElementID:  "billing",
				Confidence: 0.7,
			},
		},
	}
}

func TestSuggestEmptyReport(t *testing.T) {
	engine := NewEngine(nil)
	assert.Nil(t, engine.Suggest(context.Background(), &types.DriftReport{FilePath: "a.go"}, nil))
	assert.Nil(t, engine.Suggest(context.Background(), nil, nil))
}

func TestSuggestRuleTemplates(t *testing.T) {
	engine := NewEngine(nil)
	suggestions := engine.Suggest(context.Background(), sampleReport(), nil)
	require.Len(t, suggestions, 2)

	// priority desc: missing implementation (high=4) before docs (low=2)
	assert.Equal(t, types.SuggestCodeChange, suggestions[0].Category)
	assert.Contains(t, suggestions[0].Title, "Charge")
	assert.Equal(t, 4, suggestions[0].Priority)
	assert.NotEmpty(t, suggestions[0].Snippet)
	assert.Equal(t, "rule", suggestions[0].Source)

	assert.Equal(t, types.SuggestDocumentation, suggestions[1].Category)
	assert.Equal(t, 2, suggestions[1].Priority)
	assert.Equal(t, 1, suggestions[1].Effort)
}

func TestSuggestTemplatePerDriftType(t *testing.T) {
	tests := []struct {
		driftType    types.DriftType
		wantCategory types.SuggestionCategory
	}{
		{types.DriftMissingImplementation, types.SuggestCodeChange},
		{types.DriftSignatureMismatch, types.SuggestCodeChange},
		{types.DriftBehaviorDeviation, types.SuggestRefactoring},
		{types.DriftDocumentationStale, types.SuggestDocumentation},
		{types.DriftDependency, types.SuggestDependency},
		{types.DriftAPIBreakingChange, types.SuggestCodeChange},
	}

	engine := NewEngine(nil)
	for _, tt := range tests {
		t.Run(string(tt.driftType), func(t *testing.T) {
			report := &types.DriftReport{
				FilePath: "a.go",
				Items: []types.DriftItem{{
					Type:      tt.driftType,
					Severity:  types.SeverityMedium,
					ElementID: "X",
					Expected:  "v1.0.0",
					Actual:    "v0.9.0",
				}},
			}
			suggestions := engine.Suggest(context.Background(), report, nil)
			require.NotEmpty(t, suggestions, "every drift type must produce a suggestion")
			assert.Equal(t, tt.wantCategory, suggestions[0].Category)
			assert.GreaterOrEqual(t, suggestions[0].Priority, 1)
			assert.LessOrEqual(t, suggestions[0].Priority, 5)
		})
	}
}

func TestSuggestAPIBreakIsTopPriority(t *testing.T) {
	report := &types.DriftReport{
		FilePath: "a.go",
		Items: []types.DriftItem{
			{Type: types.DriftDocumentationStale, Severity: types.SeverityLow, ElementID: "doc"},
			{Type: types.DriftAPIBreakingChange, Severity: types.SeverityCritical, ElementID: "Refund"},
		},
	}
	suggestions := NewEngine(nil).Suggest(context.Background(), report, nil)
	require.Len(t, suggestions, 2)
	assert.Contains(t, suggestions[0].Title, "Refund")
	assert.Equal(t, 5, suggestions[0].Priority)
}

func TestSuggestEnricherFailureFallsBackToRules(t *testing.T) {
	enricher := &fakeEnricher{err: fmt.Errorf("circuit breaker is open")}
	engine := NewEngine(enricher)

	suggestions := engine.Suggest(context.Background(), sampleReport(), nil)
	require.Len(t, suggestions, 2, "rule suggestions must survive enricher failure")
	assert.Equal(t, 1, enricher.calls)
	for _, s := range suggestions {
		assert.Equal(t, "rule", s.Source)
	}
}

func TestSuggestMergesAndDeduplicatesEnrichment(t *testing.T) {
	enricher := &fakeEnricher{
		suggestions: []types.Suggestion{
			{
				// Duplicates the rule template for Charge
				Category: types.SuggestCodeChange,
				Title:    "Implement 'Charge'",
				FilePath: "billing.go",
				Priority: 4, Effort: 3, Confidence: 0.9,
				Source: "ai",
			},
			{
				Category: types.SuggestRefactoring,
				Title:    "extract charge validation",
				FilePath: "billing.go",
				Priority: 2, Effort: 2, Confidence: 0.7,
				Source: "ai",
			},
		},
	}
	engine := NewEngine(enricher)

	suggestions := engine.Suggest(context.Background(), sampleReport(), nil)
	require.Len(t, suggestions, 3, "duplicate AI suggestion dropped, novel one kept")

	var aiCount int
	for _, s := range suggestions {
		require.NotEmpty(t, s.ID)
		if s.Source == "ai" {
			aiCount++
			assert.Equal(t, "extract charge validation", s.Title)
		}
	}
	assert.Equal(t, 1, aiCount)
}

func TestSuggestOrdering(t *testing.T) {
	enricher := &fakeEnricher{
		suggestions: []types.Suggestion{
			{Category: types.SuggestRefactoring, Title: "b cheap", FilePath: "a.go", Priority: 4, Effort: 1, Source: "ai"},
			{Category: types.SuggestConfiguration, Title: "a pricey", FilePath: "a.go", Priority: 4, Effort: 5, Source: "ai"},
		},
	}
	report := &types.DriftReport{
		FilePath: "a.go",
		Items: []types.DriftItem{
			{Type: types.DriftMissingImplementation, Severity: types.SeverityHigh, ElementID: "X"},
		},
	}
	suggestions := NewEngine(enricher).Suggest(context.Background(), report, nil)
	require.Len(t, suggestions, 3)

	// All priority 4: effort ascending breaks the tie.
	assert.Equal(t, 1, suggestions[0].Effort)
	assert.Equal(t, 3, suggestions[1].Effort)
	assert.Equal(t, 5, suggestions[2].Effort)
}
