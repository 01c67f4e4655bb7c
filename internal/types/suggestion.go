package types

// SuggestionCategory groups realignment suggestions by the kind of change
// they propose
type SuggestionCategory string

const (
	SuggestCodeChange     SuggestionCategory = "code_change"
	SuggestDocumentation  SuggestionCategory = "documentation_update"
	SuggestDependency     SuggestionCategory = "dependency_update"
	SuggestRefactoring    SuggestionCategory = "refactoring"
	SuggestConfiguration  SuggestionCategory = "configuration_change"
	SuggestFileCreation   SuggestionCategory = "file_creation"
)

// IsValid returns true if the category is known
func (c SuggestionCategory) IsValid() bool {
	switch c {
	case SuggestCodeChange, SuggestDocumentation, SuggestDependency,
		SuggestRefactoring, SuggestConfiguration, SuggestFileCreation:
		return true
	}
	return false
}

// Suggestion is one ranked corrective action for a detected drift.
// Suggestions are generated on demand and not persisted by the core.
type Suggestion struct {
	ID          string             `json:"id"`
	Category    SuggestionCategory `json:"category"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	// Priority ranks urgency, 5 = most urgent
	Priority int `json:"priority"`
	// Effort estimates implementation cost, 5 = most expensive
	Effort int `json:"effort"`
	// Confidence is certainty in [0,1]; AI-derived suggestions record the
	// enricher's confidence here
	Confidence float64 `json:"confidence"`
	FilePath   string  `json:"file_path,omitempty"`
	Line       int     `json:"line,omitempty"`
	// Snippet is an optional code sketch for the fix
	Snippet string `json:"snippet,omitempty"`
	// Source records where the suggestion came from: "rule" or "ai"
	Source string `json:"source"`
}

// ClampPriorityEffort normalizes priority and effort into the 1-5 range
func (s *Suggestion) ClampPriorityEffort() {
	if s.Priority < 1 {
		s.Priority = 1
	}
	if s.Priority > 5 {
		s.Priority = 5
	}
	if s.Effort < 1 {
		s.Effort = 1
	}
	if s.Effort > 5 {
		s.Effort = 5
	}
}
