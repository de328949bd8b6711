package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
)

type fakeFallback struct {
	intent   *models.Intent
	err      error
	calls    int
	lastText string
}

func (f *fakeFallback) ClassifyIntent(ctx context.Context, text string, sess *models.SessionContext) (*models.Intent, error) {
	f.calls++
	f.lastText = text
	return f.intent, f.err
}

func TestClassify_ConfidentQuerySkipsFallback(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{intent: &models.Intent{Type: models.IntentClarification}}
	c := New(fb, DefaultWeights(), zap.NewNop())

	intent := c.Classify(context.Background(), "Show me all tasks for project PRJ-100", nil)

	if intent.Type != models.IntentQuery {
		t.Errorf("type = %s, want QUERY", intent.Type)
	}
	if intent.Confidence < 0.7 {
		t.Errorf("confidence = %.2f, want >= 0.7", intent.Confidence)
	}
	if len(intent.Entities) != 1 || intent.Entities[0].Type != models.EntityProject || intent.Entities[0].ID != "PRJ-100" {
		t.Errorf("entities = %+v, want one project PRJ-100", intent.Entities)
	}
	if intent.UsedFallback || fb.calls != 0 {
		t.Errorf("fallback must not run on confident queries (calls=%d)", fb.calls)
	}
}

func TestClassify_LeadingOpenIsNavigation(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultWeights(), zap.NewNop())

	intent := c.Classify(context.Background(), "open bug BUG-12", nil)
	if intent.Type != models.IntentNavigation {
		t.Fatalf("type = %s, want NAVIGATION", intent.Type)
	}
	if intent.Confidence < 0.7 {
		t.Errorf("confidence = %.2f, want >= 0.7", intent.Confidence)
	}
	if len(intent.Entities) != 1 || intent.Entities[0].ID != "BUG-12" {
		t.Errorf("entities = %+v, want BUG-12", intent.Entities)
	}

	// The same word mid-query is a status filter, not navigation
	intent = c.Classify(context.Background(), "show all open bugs", nil)
	if intent.Type != models.IntentQuery {
		t.Errorf("type = %s, want QUERY for mid-query 'open'", intent.Type)
	}
	if intent.Filters["status"] != "open" {
		t.Errorf("filters = %v, want status=open", intent.Filters)
	}
}

func TestClassify_LowConfidenceInvokesFallback(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{intent: &models.Intent{
		Type:       models.IntentClarification,
		Confidence: 0.85,
	}}
	c := New(fb, DefaultWeights(), zap.NewNop())

	// No intent keywords and no entities: the rules cannot be confident
	intent := c.Classify(context.Background(), "hmm about the thing from before", nil)

	if fb.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fb.calls)
	}
	if !intent.UsedFallback {
		t.Error("UsedFallback not set")
	}
	if intent.Type != models.IntentClarification {
		t.Errorf("type = %s, want fallback's CLARIFICATION", intent.Type)
	}
	if intent.Confidence != 0.85 {
		t.Errorf("confidence = %.2f, want fallback's 0.85", intent.Confidence)
	}
}

func TestClassify_FallbackFailureDegradesToRules(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{err: errors.New("model timeout")}
	c := New(fb, DefaultWeights(), zap.NewNop())

	intent := c.Classify(context.Background(), "maybe look at the board", nil)

	if fb.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fb.calls)
	}
	if !intent.LowTrust {
		t.Error("LowTrust not set after fallback failure")
	}
	if intent.UsedFallback {
		t.Error("UsedFallback must stay false when the fallback errored")
	}
	if !models.ValidIntentType(intent.Type) {
		t.Errorf("rule result must survive fallback failure, got %q", intent.Type)
	}
}

func TestClassify_ComplexQueryKeepsConfidentRuleType(t *testing.T) {
	t.Parallel()

	fb := &fakeFallback{intent: &models.Intent{
		Type:       models.IntentReport,
		Confidence: 0.6,
		Entities:   []models.ExtractedEntity{{Type: models.EntityProject, ID: "PRJ-7"}},
	}}
	c := New(fb, DefaultWeights(), zap.NewNop())

	// Two connectors force the fallback even though the rule score clears
	// the threshold; the confident rule type must win the merge.
	intent := c.Classify(context.Background(),
		"show all tasks for PRJ-100 and also the blocked ones and list owners", nil)

	if fb.calls != 1 {
		t.Fatalf("fallback calls = %d, want 1", fb.calls)
	}
	if intent.Type != models.IntentQuery {
		t.Errorf("type = %s, want rule-based QUERY", intent.Type)
	}
	if !intent.UsedFallback {
		t.Error("UsedFallback not set")
	}

	// Entities from both sides, deduplicated
	keys := map[string]bool{}
	for _, e := range intent.Entities {
		keys[e.Key()] = true
	}
	if !keys["project:PRJ-100"] || !keys["project:PRJ-7"] {
		t.Errorf("merged entities = %+v, want union of both sides", intent.Entities)
	}
}

func TestClassify_ContinuityBonus(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultWeights(), zap.NewNop())
	text := "list the blocked ones for PRJ-9"

	cold := c.Classify(context.Background(), text, nil)
	warm := c.Classify(context.Background(), text, &models.SessionContext{
		LastIntent: models.IntentQuery,
	})

	if warm.Confidence <= cold.Confidence {
		t.Errorf("continuity bonus missing: warm %.2f <= cold %.2f", warm.Confidence, cold.Confidence)
	}
}

func TestClassify_ActionParams(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultWeights(), zap.NewNop())

	intent := c.Classify(context.Background(), "assign TSK-42 to maria and set priority to high", nil)
	if intent.Type != models.IntentAction {
		t.Fatalf("type = %s, want ACTION", intent.Type)
	}
	if intent.ActionParams["action_type"] != string(models.ActionAssignTask) {
		t.Errorf("action_type = %q, want assign_task", intent.ActionParams["action_type"])
	}
	if intent.ActionParams["assignee"] != "maria" {
		t.Errorf("assignee = %q, want maria", intent.ActionParams["assignee"])
	}
	if intent.ActionParams["priority"] != "high" {
		t.Errorf("priority = %q, want high", intent.ActionParams["priority"])
	}
	if len(intent.Entities) != 1 || intent.Entities[0].ID != "TSK-42" {
		t.Errorf("entities = %+v, want TSK-42", intent.Entities)
	}
}

func TestClassify_TypedReferenceWhenUnbound(t *testing.T) {
	t.Parallel()

	c := New(nil, DefaultWeights(), zap.NewNop())

	intent := c.Classify(context.Background(), "complete that task", nil)
	if len(intent.References) != 1 {
		t.Fatalf("references = %+v, want one", intent.References)
	}
	if intent.References[0].TypeFilter != models.EntityTask {
		t.Errorf("type filter = %s, want task", intent.References[0].TypeFilter)
	}

	// A concrete id of the same type binds the mention, no reference left
	intent = c.Classify(context.Background(), "complete that task TSK-5", nil)
	if len(intent.References) != 0 {
		t.Errorf("references = %+v, want none when the id is explicit", intent.References)
	}
}

func TestExtract_BareIDWindowAnnotation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		text   string
		wantID string
	}{
		{"keyword left", "show task 123 please", "TSK-123"},
		{"keyword right within window", "open 55 the bug", "BUG-55"},
		{"keyword beyond window", "show 123 for one of the defect trackers", ""},
		{"no keyword nearby", "show 123 please", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ex := extract(normalize(tt.text))
			if tt.wantID == "" {
				if len(ex.Entities) != 0 {
					t.Errorf("entities = %+v, want none", ex.Entities)
				}
				return
			}
			if len(ex.Entities) != 1 || ex.Entities[0].ID != tt.wantID {
				t.Fatalf("entities = %+v, want %s", ex.Entities, tt.wantID)
			}
			if ex.Entities[0].TypeConfidence != 0.6 {
				t.Errorf("type confidence = %.2f, want 0.6 for window annotation",
					ex.Entities[0].TypeConfidence)
			}
		})
	}
}

func TestExtract_Temporal(t *testing.T) {
	t.Parallel()

	ex := extract(normalize("show bugs from last week"))
	if ex.Temporal == nil || ex.Temporal.Period != "last_week" {
		t.Fatalf("temporal = %+v, want period last_week", ex.Temporal)
	}

	ex = extract(normalize("show tasks from 2026-01-01 to 2026-01-31"))
	if ex.Temporal == nil || ex.Temporal.Start == nil || ex.Temporal.End == nil {
		t.Fatalf("temporal = %+v, want absolute range", ex.Temporal)
	}
	wantStart := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	if !ex.Temporal.Start.Equal(wantStart) || !ex.Temporal.End.Equal(wantEnd) {
		t.Errorf("range = [%v, %v), want [%v, %v)",
			ex.Temporal.Start, ex.Temporal.End, wantStart, wantEnd)
	}

	// Date digits must not leak into bare-id extraction
	if len(ex.Entities) != 0 {
		t.Errorf("entities = %+v, want none from date digits", ex.Entities)
	}
}

func TestExtract_QuotedName(t *testing.T) {
	t.Parallel()

	ex := extract(normalize(`open the "Apollo Launch" project`))
	if len(ex.Entities) != 1 {
		t.Fatalf("entities = %+v, want one", ex.Entities)
	}
	e := ex.Entities[0]
	if e.Type != models.EntityProject || e.Name != "Apollo Launch" || e.Resolved() {
		t.Errorf("entity = %+v, want unresolved project named Apollo Launch", e)
	}
}

func TestExtract_IDFormsNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		text string
		want string
	}{
		{"look at prj100", "PRJ-100"},
		{"look at PROJ-100", "PRJ-100"},
		{"look at bug-7", "BUG-7"},
		{"look at tsk33", "TSK-33"},
	}
	for _, tt := range tests {
		ex := extract(normalize(tt.text))
		if len(ex.Entities) != 1 || ex.Entities[0].ID != tt.want {
			t.Errorf("%q: entities = %+v, want %s", tt.text, ex.Entities, tt.want)
		}
	}
}
