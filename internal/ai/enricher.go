package ai

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"golang.org/x/sync/semaphore"

	"github.com/driftwatch/driftwatch/internal/config"
	"github.com/driftwatch/driftwatch/internal/types"
)

// DefaultModel is used when no model is configured
const DefaultModel = "claude-sonnet-4-5-20250929"

// Enricher asks an Anthropic model for realignment suggestions beyond
// what the rule templates produce. Every failure mode (missing key,
// timeout, open circuit, unparseable output) surfaces as an error the
// realignment engine absorbs by falling back to rules only.
type Enricher struct {
	client         *anthropic.Client
	model          string
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
}

// NewEnricher creates an enricher from config. Returns an error when no
// API key is available; callers treat that as "enrichment unavailable".
func NewEnricher(cfg config.AIConfig) (*Enricher, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}

	retry := DefaultRetryConfig()
	if cfg.Timeout > 0 {
		retry.Timeout = cfg.Timeout
	}
	if cfg.MaxConcurrent > 0 {
		retry.MaxConcurrentCalls = cfg.MaxConcurrent
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	e := &Enricher{
		client: &client,
		model:  model,
		retry:  retry,
	}
	if retry.CircuitBreakerEnabled {
		e.circuitBreaker = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout)
	}
	if retry.MaxConcurrentCalls > 0 {
		e.concurrencySem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}
	return e, nil
}

// aiSuggestion is the JSON shape we ask the model for
type aiSuggestion struct {
	Category    string  `json:"category"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Priority    int     `json:"priority"`
	Effort      int     `json:"effort"`
	Confidence  float64 `json:"confidence"`
	Snippet     string  `json:"snippet"`
}

// Enrich generates suggestions for a drift report. The returned slice
// may be empty; a non-nil error means enrichment as a whole failed.
func (e *Enricher) Enrich(ctx context.Context, report *types.DriftReport, spec *types.Specification) ([]types.Suggestion, error) {
	if report == nil || report.Empty() {
		return nil, nil
	}

	prompt := buildEnrichmentPrompt(report, spec)

	var response *anthropic.Message
	err := e.retryWithBackoff(ctx, "enrich-suggestions", func(attemptCtx context.Context) error {
		resp, apiErr := e.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(e.model),
			MaxTokens: 2048,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment call failed: %w", err)
	}

	var responseText string
	for _, block := range response.Content {
		if block.Type == "text" {
			responseText += block.Text
		}
	}

	parsed := Parse[[]aiSuggestion](responseText)
	if !parsed.Success {
		return nil, fmt.Errorf("failed to parse enrichment response: %s", parsed.Error)
	}

	suggestions := make([]types.Suggestion, 0, len(parsed.Data))
	for _, raw := range parsed.Data {
		category := types.SuggestionCategory(raw.Category)
		if !category.IsValid() {
			category = types.SuggestCodeChange
		}
		confidence := raw.Confidence
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		s := types.Suggestion{
			Category:    category,
			Title:       strings.TrimSpace(raw.Title),
			Description: strings.TrimSpace(raw.Description),
			Priority:    raw.Priority,
			Effort:      raw.Effort,
			Confidence:  confidence,
			FilePath:    report.FilePath,
			Snippet:     raw.Snippet,
			Source:      "ai",
		}
		if s.Title == "" {
			continue
		}
		s.ClampPriorityEffort()
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

func buildEnrichmentPrompt(report *types.DriftReport, spec *types.Specification) string {
	var b strings.Builder

	b.WriteString("You are reviewing drift between a codebase and its specification.\n\n")
	fmt.Fprintf(&b, "File: %s\n", report.FilePath)
	if spec != nil {
		fmt.Fprintf(&b, "Specification: %s\n", spec.Name)
	}
	b.WriteString("\nDetected drift:\n")
	for _, item := range report.Items {
		fmt.Fprintf(&b, "- type=%s severity=%s element=%s\n  expected: %s\n  actual: %s\n",
			item.Type, item.Severity, item.ElementID, item.Expected, item.Actual)
	}

	b.WriteString(`
Propose concrete corrective actions. Respond with ONLY a JSON array, no
prose, where each entry has:
  "category": one of "code_change", "documentation_update", "dependency_update", "refactoring", "configuration_change", "file_creation"
  "title": short imperative summary
  "description": what to change and why it realigns code with the specification
  "priority": 1-5 (5 = most urgent)
  "effort": 1-5 (5 = most expensive)
  "confidence": 0.0-1.0
  "snippet": optional code sketch, or ""
`)
	return b.String()
}
