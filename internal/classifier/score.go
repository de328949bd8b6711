package classifier

import (
	"strings"

	"github.com/trackwise/assistant/internal/models"
)

// Weights are the tunable parameters of rule-based classification. They are
// loaded from config so operators can adjust them without a rebuild.
type Weights struct {
	Families map[models.IntentType][]keywordEntry
	// EntityBonus is added once when the query carries at least one
	// extracted entity
	EntityBonus float64
	// ContinuityBonus is added when the session's previous intent matches
	// the candidate type
	ContinuityBonus float64
	// FallbackThreshold is the rule confidence below which the generative
	// fallback is consulted
	FallbackThreshold float64
	// ComplexWordCount marks a query complex regardless of confidence
	ComplexWordCount int
}

// DefaultWeights returns the shipped weight table
func DefaultWeights() Weights {
	return Weights{
		Families:          defaultFamilies(),
		EntityBonus:       0.2,
		ContinuityBonus:   0.1,
		FallbackThreshold: 0.7,
		ComplexWordCount:  25,
	}
}

// familyPriority breaks score ties deterministically; mutations outrank
// reads so an ambiguous "update the report" is treated as an action.
var familyPriority = []models.IntentType{
	models.IntentAction,
	models.IntentNavigation,
	models.IntentReport,
	models.IntentQuery,
	models.IntentClarification,
}

// scoreFamilies sums matched keyword weights per intent family and returns
// the best-scoring type. Scores are capped at 1.0.
func (w Weights) scoreFamilies(n normalized) (models.IntentType, float64) {
	best := models.IntentQuery
	bestScore := 0.0

	for _, t := range familyPriority {
		score := 0.0
		for _, kw := range w.Families[t] {
			if kw.LeadOnly {
				if startsWithWord(n.Lower, kw.Word) {
					score += kw.Weight
				}
				continue
			}
			if containsWord(n.Lower, kw.Word) {
				score += kw.Weight
			}
		}
		if score > bestScore {
			best = t
			bestScore = score
		}
	}

	if bestScore > 1.0 {
		bestScore = 1.0
	}
	return best, bestScore
}

var clauseConnectors = []string{"and", "then", "also", "after", "before", ";"}

var comparisonMarkers = []string{
	"compare", "versus", "vs", "more than", "less than", "between",
}

// isComplex flags queries that structured rules handle poorly: long
// queries, multi-clause requests, and comparisons across clauses.
func (w Weights) isComplex(n normalized) bool {
	if len(n.Words) > w.ComplexWordCount {
		return true
	}

	connectors := 0
	for _, c := range clauseConnectors {
		connectors += strings.Count(" "+n.Lower+" ", " "+c+" ")
	}
	if connectors >= 2 {
		return true
	}

	if connectors >= 1 {
		for _, m := range comparisonMarkers {
			if containsWord(n.Lower, m) {
				return true
			}
		}
	}
	return false
}
