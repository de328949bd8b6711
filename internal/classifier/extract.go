package classifier

import (
	"regexp"
	"strings"
	"time"

	"github.com/trackwise/assistant/internal/models"
)

// extraction is everything the structured extractors pulled from one query
type extraction struct {
	Entities     []models.ExtractedEntity
	References   []models.EntityReference
	Types        []models.EntityType
	Temporal     *models.TemporalFilter
	Filters      map[string]string
	ActionParams map[string]string
}

type span struct{ start, end int }

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

// extract runs the declarative extractor tables over normalized text
func extract(n normalized) extraction {
	out := extraction{
		Filters:      map[string]string{},
		ActionParams: map[string]string{},
	}
	var taken []span
	seen := map[string]bool{}

	addEntity := func(e models.ExtractedEntity) {
		if key := e.Key(); !seen[key] {
			seen[key] = true
			out.Entities = append(out.Entities, e)
		}
	}

	// Typed identifiers: one pattern per entity kind
	for _, p := range idPatterns {
		for _, m := range p.Pattern.FindAllStringSubmatchIndex(n.Lower, -1) {
			taken = append(taken, span{m[0], m[1]})
			num := n.Lower[m[2]:m[3]]
			addEntity(models.ExtractedEntity{
				Type: p.Type,
				ID:   p.Prefix + "-" + num,
			})
		}
	}

	// Date expressions claim their spans before bare-id scanning so the
	// digit groups of a date never masquerade as identifiers
	out.Temporal, taken = extractTemporal(n.Lower, taken)

	// Bare identifiers: annotate by scanning a bounded window of
	// surrounding words against the type-keyword table
	for _, m := range bareIDPattern.FindAllStringSubmatchIndex(n.Lower, -1) {
		start, end := m[2], m[3]
		if overlaps(taken, start, end) {
			continue
		}
		if t, ok := annotateByWindow(n.Words, wordIndexAt(n.Lower, start)); ok {
			addEntity(models.ExtractedEntity{
				Type:           t,
				ID:             idPrefixByType[t] + "-" + n.Lower[start:end],
				TypeConfidence: 0.6,
			})
		}
	}

	// Quoted free-text names keep their original casing and must be
	// resolved downstream before use
	for _, m := range quotedNamePattern.FindAllStringSubmatch(n.Original, -1) {
		name := m[1]
		if name == "" {
			name = m[2]
		}
		t := models.EntityProject
		if kw, ok := nearestTypeKeyword(n.Lower); ok {
			t = kw
		}
		addEntity(models.ExtractedEntity{Type: t, Name: name, TypeConfidence: 0.5})
	}

	// Status/priority keyword lists become filters
	for _, s := range statusKeywords {
		if containsWord(n.Lower, s) {
			out.Filters["status"] = strings.ReplaceAll(s, " ", "_")
			break
		}
	}
	for _, p := range priorityKeywords {
		if containsWord(n.Lower, p) {
			out.Filters["priority"] = p
			break
		}
	}

	// Plural type keywords scope searches ("all tasks and bugs")
	seenTypes := map[models.EntityType]bool{}
	for _, w := range n.Words {
		if t, ok := searchTypeKeywords[w]; ok && !seenTypes[t] {
			seenTypes[t] = true
			out.Types = append(out.Types, t)
		}
	}

	out.References = extractReferences(n.Lower, out.Entities)
	out.ActionParams = extractActionParams(n.Lower)

	return out
}

// extractTemporal recognizes named periods and absolute ISO dates
func extractTemporal(lower string, taken []span) (*models.TemporalFilter, []span) {
	for _, period := range namedPeriods {
		if containsWord(lower, period) {
			return &models.TemporalFilter{Period: strings.ReplaceAll(period, " ", "_")}, taken
		}
	}

	matches := absoluteDatePattern.FindAllStringIndex(lower, -1)
	if len(matches) == 0 {
		return nil, taken
	}

	var dates []time.Time
	for _, m := range matches {
		taken = append(taken, span{m[0], m[1]})
		if d, err := time.Parse("2006-01-02", lower[m[0]:m[1]]); err == nil {
			dates = append(dates, d)
		}
	}
	if len(dates) == 0 {
		return nil, taken
	}

	start := dates[0]
	end := dates[0].Add(24 * time.Hour)
	if len(dates) > 1 {
		if dates[1].Before(start) {
			start, end = dates[1], dates[0].Add(24*time.Hour)
		} else {
			end = dates[1].Add(24 * time.Hour)
		}
	}
	return &models.TemporalFilter{Start: &start, End: &end}, taken
}

// wordIndexAt converts a byte offset into a word index
func wordIndexAt(lower string, offset int) int {
	return len(strings.Fields(lower[:offset]))
}

// annotateByWindow scans up to annotationWindow words on each side of a
// bare identifier for a type keyword
func annotateByWindow(words []string, idx int) (models.EntityType, bool) {
	lo := idx - annotationWindow
	if lo < 0 {
		lo = 0
	}
	hi := idx + annotationWindow
	if hi >= len(words) {
		hi = len(words) - 1
	}
	// Prefer the closest keyword, looking left first ("task 123")
	for dist := 1; dist <= annotationWindow; dist++ {
		for _, i := range []int{idx - dist, idx + dist} {
			if i < lo || i > hi || i < 0 || i >= len(words) {
				continue
			}
			if t, ok := typeKeywords[strings.Trim(words[i], "#:")]; ok {
				return t, true
			}
		}
	}
	return "", false
}

// nearestTypeKeyword returns the first type keyword in the query, used to
// type quoted names ("the 'Apollo' project")
func nearestTypeKeyword(lower string) (models.EntityType, bool) {
	for _, w := range strings.Fields(lower) {
		if t, ok := typeKeywords[w]; ok {
			return t, true
		}
	}
	return "", false
}

// extractReferences finds pronoun and type-qualified mentions that need
// session context to bind. A type-qualified mention is skipped when the
// query already carries a concrete id of that type; bare pronouns are only
// emitted when nothing concrete was extracted at all.
func extractReferences(lower string, entities []models.ExtractedEntity) []models.EntityReference {
	var refs []models.EntityReference

	boundTypes := map[models.EntityType]bool{}
	for _, e := range entities {
		if e.Resolved() {
			boundTypes[e.Type] = true
		}
	}

	for _, m := range typedReferencePattern.FindAllStringSubmatch(lower, -1) {
		t := typeKeywords[m[1]]
		if boundTypes[t] {
			continue
		}
		refs = append(refs, models.EntityReference{Raw: m[0], TypeFilter: t})
	}

	if len(refs) == 0 && len(entities) == 0 {
		if m := barePronounPattern.FindString(lower); m != "" {
			refs = append(refs, models.EntityReference{Raw: m})
		}
	}

	return refs
}

var (
	assigneePattern    = regexp.MustCompile(`\bassign(?:ed)?\b(?:\s+\S+){0,2}?\s+to\s+@?([a-z][a-z0-9_.-]{1,30})\b`)
	statusSetPattern   = regexp.MustCompile(`\b(?:set|mark|change|update|move)\b.{0,40}?\b(?:to|as)\s+(open|closed|in progress|done|pending|blocked|resolved)\b`)
	prioritySetPattern = regexp.MustCompile(`\b(?:priority\s+(?:to|as)\s+|make\s+it\s+)(critical|urgent|high|medium|low)\b|\b(critical|urgent|high|medium|low)\s+priority\b`)
	remindInPattern    = regexp.MustCompile(`\bin\s+(\d{1,4})\s+(minute|minutes|hour|hours|day|days)\b`)
	taskTitlePattern   = regexp.MustCompile(`\b(?:create|add)\s+(?:a\s+)?(?:new\s+)?task\b(?:\s+(?:called|named|for|to))?\s+(.{3,120})$`)
)

// extractActionParams pulls mutation parameters for ACTION intents. The
// inferred action type rides along under "action_type".
func extractActionParams(lower string) map[string]string {
	params := map[string]string{}

	for _, ak := range actionTypeKeywords {
		if containsWord(lower, ak.Word) {
			params["action_type"] = string(ak.Type)
			break
		}
	}

	if m := assigneePattern.FindStringSubmatch(lower); m != nil {
		params["assignee"] = m[1]
	}
	if m := statusSetPattern.FindStringSubmatch(lower); m != nil {
		params["status"] = strings.ReplaceAll(m[1], " ", "_")
	}
	if m := prioritySetPattern.FindStringSubmatch(lower); m != nil {
		if m[1] != "" {
			params["priority"] = m[1]
		} else {
			params["priority"] = m[2]
		}
	}
	if m := remindInPattern.FindStringSubmatch(lower); m != nil {
		unit := "m"
		switch {
		case strings.HasPrefix(m[2], "hour"):
			unit = "h"
		case strings.HasPrefix(m[2], "day"):
			unit = "d"
		}
		params["remind_in"] = m[1] + unit
	}
	if m := taskTitlePattern.FindStringSubmatch(lower); m != nil {
		params["title"] = strings.TrimSpace(m[1])
	}

	return params
}
