package models

import "time"

// IntentType is the classified purpose of a user query
type IntentType string

const (
	IntentQuery         IntentType = "QUERY"
	IntentAction        IntentType = "ACTION"
	IntentNavigation    IntentType = "NAVIGATION"
	IntentReport        IntentType = "REPORT"
	IntentClarification IntentType = "CLARIFICATION"
)

// ValidIntentType reports whether t is one of the five intent types
func ValidIntentType(t IntentType) bool {
	switch t {
	case IntentQuery, IntentAction, IntentNavigation, IntentReport, IntentClarification:
		return true
	default:
		return false
	}
}

// TemporalFilter restricts a query to a date range or a named period
// ("today", "last week"). Start/End are set for absolute ranges.
type TemporalFilter struct {
	Period string     `json:"period,omitempty"`
	Start  *time.Time `json:"start,omitempty"`
	End    *time.Time `json:"end,omitempty"`
}

// Intent is the classification result for one query. It is created fresh
// per request and never persisted beyond the ChatMessage metadata that
// references it.
type Intent struct {
	Type       IntentType        `json:"type"`
	Confidence float64           `json:"confidence"`
	Entities   []ExtractedEntity `json:"entities,omitempty"`
	References []EntityReference `json:"references,omitempty"`
	// Types are the entity kinds a search should cover ("show all tasks")
	Types    []EntityType    `json:"types,omitempty"`
	Temporal *TemporalFilter `json:"temporal,omitempty"`
	// Filters holds status/priority keywords recognized in the query
	Filters map[string]string `json:"filters,omitempty"`
	// ActionParams carries parameters for ACTION intents (assignee,
	// status value, reminder time, ...)
	ActionParams map[string]string `json:"action_params,omitempty"`
	// UsedFallback is true when the generative fallback contributed to
	// this result; LowTrust is true when the fallback was needed but
	// failed, leaving only the rule-based result.
	UsedFallback bool `json:"used_fallback,omitempty"`
	LowTrust     bool `json:"low_trust,omitempty"`
}

// HasResolvedEntity reports whether at least one entity carries a concrete ID
func (i *Intent) HasResolvedEntity() bool {
	for _, e := range i.Entities {
		if e.Resolved() {
			return true
		}
	}
	return false
}
