package classifier

import (
	"regexp"

	"github.com/trackwise/assistant/internal/models"
)

// The extraction tables below are deliberately declarative: each entry is a
// (pattern, entity kind) pair that can be unit-tested on its own and
// extended without touching classification control flow.

// idPattern recognizes one entity kind by its identifier prefix
type idPattern struct {
	Type models.EntityType
	// Prefix is the canonical identifier prefix ("PRJ" yields "PRJ-100")
	Prefix  string
	Pattern *regexp.Regexp
}

var idPatterns = []idPattern{
	{models.EntityProject, "PRJ", regexp.MustCompile(`(?i)\b(?:PRJ|PROJ)-?(\d{1,8})\b`)},
	{models.EntityTask, "TSK", regexp.MustCompile(`(?i)\bTSK-?(\d{1,8})\b`)},
	{models.EntityBug, "BUG", regexp.MustCompile(`(?i)\bBUG-?(\d{1,8})\b`)},
	{models.EntitySubtask, "SUB", regexp.MustCompile(`(?i)\bSUB-?(\d{1,8})\b`)},
	{models.EntityStory, "STY", regexp.MustCompile(`(?i)\b(?:STY|STORY)-(\d{1,8})\b`)},
	{models.EntityUseCase, "UC", regexp.MustCompile(`(?i)\bUC-?(\d{1,8})\b`)},
	{models.EntityProgram, "PGM", regexp.MustCompile(`(?i)\bPGM-?(\d{1,8})\b`)},
}

// typeKeywords annotate bare identifiers from surrounding words and drive
// type-qualified reference resolution ("that task").
var typeKeywords = map[string]models.EntityType{
	"project":  models.EntityProject,
	"projects": models.EntityProject,
	"task":     models.EntityTask,
	"tasks":    models.EntityTask,
	"bug":      models.EntityBug,
	"bugs":     models.EntityBug,
	"defect":   models.EntityBug,
	"defects":  models.EntityBug,
	"issue":    models.EntityBug,
	"issues":   models.EntityBug,
	"subtask":  models.EntitySubtask,
	"subtasks": models.EntitySubtask,
	"story":    models.EntityStory,
	"stories":  models.EntityStory,
	"usecase":  models.EntityUseCase,
	"usecases": models.EntityUseCase,
	"program":  models.EntityProgram,
	"programs": models.EntityProgram,
}

// searchTypeKeywords are the plural forms that scope a search to entity
// kinds ("show all tasks and bugs")
var searchTypeKeywords = map[string]models.EntityType{
	"projects": models.EntityProject,
	"tasks":    models.EntityTask,
	"bugs":     models.EntityBug,
	"defects":  models.EntityBug,
	"issues":   models.EntityBug,
	"subtasks": models.EntitySubtask,
	"stories":  models.EntityStory,
	"usecases": models.EntityUseCase,
	"programs": models.EntityProgram,
}

// idPrefixByType gives the canonical prefix for window-annotated bare ids
var idPrefixByType = map[models.EntityType]string{
	models.EntityProject: "PRJ",
	models.EntityTask:    "TSK",
	models.EntityBug:     "BUG",
	models.EntitySubtask: "SUB",
	models.EntityStory:   "STY",
	models.EntityUseCase: "UC",
	models.EntityProgram: "PGM",
}

// bareIDPattern finds identifiers with no recognizable type prefix; a
// bounded window of surrounding words is scanned against typeKeywords
var bareIDPattern = regexp.MustCompile(`(?:^|\s)#?(\d{1,8})\b`)

// annotationWindow is how many words around a bare id are scanned for a
// type keyword
const annotationWindow = 3

// quotedNamePattern captures free-text names in single or double quotes
var quotedNamePattern = regexp.MustCompile(`"([^"]{1,120})"|'([^']{1,120})'`)

// absoluteDatePattern matches ISO dates; one hit filters a single day, two
// hits form a range
var absoluteDatePattern = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)

// namedPeriods are relative date expressions recognized verbatim
var namedPeriods = []string{
	"today", "yesterday", "tomorrow",
	"this week", "last week", "next week",
	"this month", "last month",
	"this quarter", "last quarter",
	"this year", "last year",
}

// statusKeywords become query filters or set_status parameters
var statusKeywords = []string{
	"open", "closed", "in progress", "done", "pending", "blocked", "resolved",
}

// priorityKeywords become query filters or set_priority parameters
var priorityKeywords = []string{
	"critical", "urgent", "high", "medium", "low",
}

// typedReferencePattern matches type-qualified mentions the classifier
// cannot bind itself ("that task", "this bug")
var typedReferencePattern = regexp.MustCompile(`\b(?:that|this|the)\s+(project|task|bug|defect|issue|subtask|story|usecase|program)\b`)

// barePronounPattern matches unqualified references resolved from session
// context
var barePronounPattern = regexp.MustCompile(`\b(it|them|that one|this one)\b`)

// keywordEntry is one weighted keyword in an intent family. LeadOnly
// entries score only when the query starts with the keyword, which keeps
// "open bug BUG-12" navigational without dragging "show open bugs" along.
type keywordEntry struct {
	Word     string
	Weight   float64
	LeadOnly bool
}

// defaultFamilies is the weighted keyword-family table for the five intent
// types. Weights are tunable via Weights, not fixed behavior.
func defaultFamilies() map[models.IntentType][]keywordEntry {
	return map[models.IntentType][]keywordEntry{
		models.IntentQuery: {
			{Word: "show", Weight: 0.5},
			{Word: "list", Weight: 0.5},
			{Word: "find", Weight: 0.5},
			{Word: "search", Weight: 0.45},
			{Word: "display", Weight: 0.4},
			{Word: "what are", Weight: 0.45},
			{Word: "how many", Weight: 0.5},
			{Word: "which", Weight: 0.3},
			{Word: "get", Weight: 0.25},
			{Word: "all", Weight: 0.1},
		},
		models.IntentAction: {
			{Word: "create", Weight: 0.55},
			{Word: "assign", Weight: 0.55},
			{Word: "set", Weight: 0.5},
			{Word: "update", Weight: 0.5},
			{Word: "complete", Weight: 0.5},
			{Word: "close", Weight: 0.45},
			{Word: "mark", Weight: 0.45},
			{Word: "change", Weight: 0.4},
			{Word: "add", Weight: 0.4},
			{Word: "remind", Weight: 0.5},
			{Word: "reminder", Weight: 0.45},
			{Word: "schedule", Weight: 0.45},
			{Word: "prioritize", Weight: 0.5},
		},
		models.IntentNavigation: {
			{Word: "open", Weight: 0.55, LeadOnly: true},
			{Word: "go to", Weight: 0.6},
			{Word: "navigate", Weight: 0.6},
			{Word: "take me", Weight: 0.55},
			{Word: "switch to", Weight: 0.5},
			{Word: "view", Weight: 0.4, LeadOnly: true},
			{Word: "jump to", Weight: 0.55},
		},
		models.IntentReport: {
			{Word: "report", Weight: 0.6},
			{Word: "summary", Weight: 0.55},
			{Word: "summarize", Weight: 0.55},
			{Word: "distribution", Weight: 0.5},
			{Word: "breakdown", Weight: 0.5},
			{Word: "chart", Weight: 0.5},
			{Word: "overview", Weight: 0.45},
			{Word: "statistics", Weight: 0.5},
			{Word: "stats", Weight: 0.45},
		},
		models.IntentClarification: {
			{Word: "what do you mean", Weight: 0.8},
			{Word: "clarify", Weight: 0.7},
			{Word: "don't understand", Weight: 0.7},
			{Word: "do not understand", Weight: 0.7},
			{Word: "confused", Weight: 0.6},
			{Word: "come again", Weight: 0.6},
			{Word: "huh", Weight: 0.5},
		},
	}
}

// actionTypeKeywords map action verbs to the whitelisted mutation they
// request. Order matters: earlier entries win on multi-verb queries.
var actionTypeKeywords = []struct {
	Word string
	Type models.ActionType
}{
	{"remind", models.ActionScheduleReminder},
	{"reminder", models.ActionScheduleReminder},
	{"schedule", models.ActionScheduleReminder},
	{"assign", models.ActionAssignTask},
	{"complete", models.ActionCompleteTask},
	{"close", models.ActionCompleteTask},
	{"done", models.ActionCompleteTask},
	{"set priority", models.ActionSetPriority},
	{"prioritize", models.ActionSetPriority},
	{"set status", models.ActionSetStatus},
	{"mark", models.ActionSetStatus},
	{"set", models.ActionSetStatus},
	{"comment", models.ActionAddComment},
	{"create", models.ActionCreateTask},
	{"add", models.ActionCreateTask},
	{"update", models.ActionSetStatus},
	{"change", models.ActionSetStatus},
}
