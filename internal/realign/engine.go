// Package realign turns drift reports into ranked corrective
// suggestions. Rule templates always produce a baseline; an optional AI
// enricher adds more, and its failure never leaves a non-empty report
// without suggestions.
package realign

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/driftwatch/driftwatch/internal/types"
)

// Enricher is the optional AI collaborator. internal/ai implements it.
type Enricher interface {
	Enrich(ctx context.Context, report *types.DriftReport, spec *types.Specification) ([]types.Suggestion, error)
}

// Engine generates suggestions for drift reports
type Engine struct {
	enricher Enricher
}

// NewEngine creates an engine. A nil enricher means rule templates only.
func NewEngine(enricher Enricher) *Engine {
	return &Engine{enricher: enricher}
}

// Suggest returns ranked suggestions for a report: priority descending,
// then effort ascending, then title. An empty report yields nil; a
// non-empty report always yields at least one suggestion.
func (e *Engine) Suggest(ctx context.Context, report *types.DriftReport, spec *types.Specification) []types.Suggestion {
	if report == nil || report.Empty() {
		return nil
	}

	suggestions := e.ruleSuggestions(report)

	if e.enricher != nil {
		enriched, err := e.enricher.Enrich(ctx, report, spec)
		if err != nil {
			fmt.Printf("RealignmentEngine: enrichment failed for %s, using rule suggestions only: %v\n",
				report.FilePath, err)
		} else {
			suggestions = merge(suggestions, enriched)
		}
	}

	if len(suggestions) == 0 {
		// Every drift type has a template, so this is a safety net for
		// future types rather than an expected path.
		suggestions = append(suggestions, types.Suggestion{
			ID:          uuid.New().String(),
			Category:    types.SuggestCodeChange,
			Title:       fmt.Sprintf("review drift findings in %s", report.FilePath),
			Description: fmt.Sprintf("%d drift finding(s) need manual review", len(report.Items)),
			Priority:    3,
			Effort:      3,
			Confidence:  0.5,
			FilePath:    report.FilePath,
			Source:      "rule",
		})
	}

	sort.SliceStable(suggestions, func(i, j int) bool {
		if suggestions[i].Priority != suggestions[j].Priority {
			return suggestions[i].Priority > suggestions[j].Priority
		}
		if suggestions[i].Effort != suggestions[j].Effort {
			return suggestions[i].Effort < suggestions[j].Effort
		}
		return suggestions[i].Title < suggestions[j].Title
	})
	return suggestions
}

// ruleSuggestions applies the deterministic template for each drift item
func (e *Engine) ruleSuggestions(report *types.DriftReport) []types.Suggestion {
	var out []types.Suggestion
	for _, item := range report.Items {
		if s := templateFor(item, report.FilePath); s != nil {
			out = append(out, *s)
		}
	}
	return out
}

func templateFor(item types.DriftItem, filePath string) *types.Suggestion {
	s := types.Suggestion{
		ID:         uuid.New().String(),
		Priority:   priorityFor(item.Severity),
		Confidence: item.Confidence,
		FilePath:   filePath,
		Line:       item.Line,
		Source:     "rule",
	}

	switch item.Type {
	case types.DriftMissingImplementation:
		s.Category = types.SuggestCodeChange
		s.Title = fmt.Sprintf("implement '%s'", item.ElementID)
		s.Description = fmt.Sprintf("'%s' is required by the specification but has no implementation", item.ElementID)
		s.Effort = 3
		if item.Expected != "" {
			s.Snippet = stubFor(item.Expected)
		}

	case types.DriftSignatureMismatch:
		s.Category = types.SuggestCodeChange
		s.Title = fmt.Sprintf("align signature of '%s'", item.ElementID)
		s.Description = fmt.Sprintf("change the declaration to match the specification: %s", item.Expected)
		s.Effort = 2
		s.Snippet = item.Expected

	case types.DriftBehaviorDeviation:
		s.Category = types.SuggestRefactoring
		s.Title = fmt.Sprintf("review behavior of '%s'", item.ElementID)
		s.Description = fmt.Sprintf("'%s' diverged from its baselined behavior; verify the change is intentional and update the baseline or revert", item.ElementID)
		s.Effort = 3

	case types.DriftDocumentationStale:
		s.Category = types.SuggestDocumentation
		s.Title = fmt.Sprintf("update documentation for %s", item.ElementID)
		s.Description = "the specification document was revised; bring the code or its docs in line and refresh the doc baseline"
		s.Effort = 1

	case types.DriftDependency:
		s.Category = types.SuggestDependency
		s.Title = fmt.Sprintf("update dependency %s", item.ElementID)
		s.Description = fmt.Sprintf("the specification requires %s, currently %s", item.Expected, item.Actual)
		s.Effort = 2
		s.Snippet = fmt.Sprintf("go get %s@%s", item.ElementID, strings.TrimLeft(item.Expected, "^~>="))

	case types.DriftAPIBreakingChange:
		s.Category = types.SuggestCodeChange
		s.Title = fmt.Sprintf("restore stable API '%s'", item.ElementID)
		s.Description = fmt.Sprintf("'%s' is part of the stable public surface; restore it or publish a deprecation path before removal", item.ElementID)
		s.Priority = 5
		s.Effort = 4

	default:
		return nil
	}

	s.ClampPriorityEffort()
	return &s
}

func priorityFor(sev types.Severity) int {
	switch sev {
	case types.SeverityCritical:
		return 5
	case types.SeverityHigh:
		return 4
	case types.SeverityMedium:
		return 3
	case types.SeverityLow:
		return 2
	default:
		return 1
	}
}

// stubFor sketches an unimplemented declaration
func stubFor(signature string) string {
	return fmt.Sprintf("%s {\n\t// TODO: implement per specification\n}", signature)
}

// merge appends AI suggestions that do not duplicate a rule suggestion.
// Identity is (category, file, normalized title); rule suggestions win
// because their provenance is deterministic.
func merge(rules, enriched []types.Suggestion) []types.Suggestion {
	seen := make(map[string]bool, len(rules))
	for _, s := range rules {
		seen[dedupeKey(s)] = true
	}

	out := rules
	for _, s := range enriched {
		if s.ID == "" {
			s.ID = uuid.New().String()
		}
		key := dedupeKey(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

func dedupeKey(s types.Suggestion) string {
	return fmt.Sprintf("%s|%s|%s", s.Category, s.FilePath, strings.ToLower(strings.TrimSpace(s.Title)))
}
