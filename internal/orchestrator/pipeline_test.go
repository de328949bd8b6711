package orchestrator

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/actions"
	"github.com/trackwise/assistant/internal/classifier"
	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/ratelimit"
	"github.com/trackwise/assistant/internal/services/retrieval"
	"github.com/trackwise/assistant/internal/session"
)

type fakeRetriever struct {
	getCalls    int
	searchCalls int
	reportCalls int

	lastTypes   []models.EntityType
	lastFilters retrieval.Filters
	lastSpec    retrieval.ReportSpec

	item   *models.WorkItem
	items  []models.WorkItem
	report *retrieval.ReportResult
	err    error
}

func (f *fakeRetriever) GetEntity(_ context.Context, _ *models.User, entity models.ExtractedEntity) (*models.WorkItem, error) {
	f.getCalls++
	if f.err != nil {
		return nil, f.err
	}
	if f.item != nil {
		return f.item, nil
	}
	return &models.WorkItem{ID: entity.ID, Type: entity.Type, Title: "stub"}, nil
}

func (f *fakeRetriever) Search(_ context.Context, _ *models.User, types []models.EntityType, filters retrieval.Filters) ([]models.WorkItem, error) {
	f.searchCalls++
	f.lastTypes = types
	f.lastFilters = filters
	return f.items, f.err
}

func (f *fakeRetriever) Report(_ context.Context, _ *models.User, spec retrieval.ReportSpec) (*retrieval.ReportResult, error) {
	f.reportCalls++
	f.lastSpec = spec
	if f.err != nil {
		return nil, f.err
	}
	if f.report != nil {
		return f.report, nil
	}
	return &retrieval.ReportResult{Title: "Items by status", Total: 0}, nil
}

func (f *fakeRetriever) Ping(context.Context) error { return nil }

type fakeMutator struct {
	calls int
	err   error
}

func (f *fakeMutator) Apply(context.Context, *models.ActionRequest) (string, error) {
	f.calls++
	return "applied", f.err
}

type fakeActionLog struct {
	results map[string]*models.ActionResult
}

func (f *fakeActionLog) Get(_ context.Context, key string) (*models.ActionResult, error) {
	return f.results[key], nil
}

func (f *fakeActionLog) Record(_ context.Context, _ string, result *models.ActionResult) (bool, error) {
	if _, ok := f.results[result.IdempotencyKey]; ok {
		return false, nil
	}
	f.results[result.IdempotencyKey] = result
	return true, nil
}

type fakeDeferredRepo struct {
	created []*models.DeferredAction
}

func (f *fakeDeferredRepo) Create(_ context.Context, a *models.DeferredAction) error {
	f.created = append(f.created, a)
	return nil
}

func (f *fakeDeferredRepo) GetByID(context.Context, string) (*models.DeferredAction, error) {
	return nil, nil
}

func (f *fakeDeferredRepo) ListDue(context.Context, time.Time, int) ([]*models.DeferredAction, error) {
	return nil, nil
}

func (f *fakeDeferredRepo) MarkCompleted(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

func (f *fakeDeferredRepo) MarkFailed(context.Context, string, time.Time) (bool, error) {
	return true, nil
}

// deniedStore always reports empty buckets, for exercising the denial path
type deniedStore struct{}

func (deniedStore) Consume(context.Context, string, ratelimit.Config, time.Time) (ratelimit.State, error) {
	return ratelimit.State{Allowed: false, MinuteTokens: 0.2, HourTokens: 500}, nil
}

type fixture struct {
	pipeline  *Pipeline
	sessions  session.Store
	retriever *fakeRetriever
	mutator   *fakeMutator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithLimiter(t, ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.DefaultConfig(), zap.NewNop()))
}

func newFixtureWithLimiter(t *testing.T, limiter *ratelimit.Limiter) *fixture {
	t.Helper()

	log := zap.NewNop()
	sessions := session.NewMemoryStore(session.DefaultConfig())
	retriever := &fakeRetriever{}
	mutator := &fakeMutator{}
	actionHandler := actions.NewHandler(mutator, &fakeActionLog{results: map[string]*models.ActionResult{}}, &fakeDeferredRepo{}, nil, log)

	p := New(
		sessions,
		limiter,
		classifier.New(nil, classifier.Weights{}, log),
		retriever,
		actionHandler,
		500,
		log,
	)
	return &fixture{pipeline: p, sessions: sessions, retriever: retriever, mutator: mutator}
}

func member(id string) *models.User {
	return &models.User{ID: id, Role: models.RoleMember}
}

func TestHandle_ConfidentQueryEndToEnd(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.retriever.items = []models.WorkItem{
		{ID: "TSK-1", Type: models.EntityTask, Title: "one"},
		{ID: "TSK-2", Type: models.EntityTask, Title: "two"},
	}

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "Show me all tasks for project PRJ-100",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if resp.Meta.IntentType != models.IntentQuery {
		t.Errorf("intent = %s, want QUERY", resp.Meta.IntentType)
	}
	if resp.Meta.SessionID == "" {
		t.Error("expected a session to be created")
	}
	if resp.RateLimit == nil || resp.RateLimit.LimitMinute != 70 {
		t.Errorf("rate limit info = %+v, want minute limit 70", resp.RateLimit)
	}
	if f.retriever.searchCalls != 1 {
		t.Fatalf("search calls = %d, want 1", f.retriever.searchCalls)
	}
	if f.retriever.lastFilters.Project != "PRJ-100" {
		t.Errorf("project filter = %q, want PRJ-100", f.retriever.lastFilters.Project)
	}
	if len(f.retriever.lastTypes) != 1 || f.retriever.lastTypes[0] != models.EntityTask {
		t.Errorf("types = %v, want [task]", f.retriever.lastTypes)
	}

	sess, err := f.sessions.Get(context.Background(), resp.Meta.SessionID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if sess.LastIntent != models.IntentQuery {
		t.Errorf("session last intent = %s, want QUERY", sess.LastIntent)
	}
	if sess.ActiveProject != "PRJ-100" {
		t.Errorf("active project = %q, want PRJ-100", sess.ActiveProject)
	}
	if len(sess.Messages) != 2 {
		t.Errorf("message count = %d, want user + assistant", len(sess.Messages))
	}
}

func TestHandle_NavigationSkipsBackend(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "open bug BUG-12",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if resp.Meta.IntentType != models.IntentNavigation {
		t.Errorf("intent = %s, want NAVIGATION", resp.Meta.IntentType)
	}
	data, ok := resp.Data.(map[string]string)
	if !ok || data["link"] != "/items/BUG-12" {
		t.Errorf("data = %v, want link /items/BUG-12", resp.Data)
	}
	if f.retriever.getCalls+f.retriever.searchCalls+f.retriever.reportCalls != 0 {
		t.Error("navigation must not call the backend")
	}
	if f.mutator.calls != 0 {
		t.Error("navigation must not mutate anything")
	}
}

func TestHandle_SingleEntityLookup(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.retriever.item = &models.WorkItem{ID: "TSK-9", Type: models.EntityTask, Title: "fix login"}

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "show TSK-9",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if f.retriever.getCalls != 1 || f.retriever.searchCalls != 0 {
		t.Errorf("get=%d search=%d, want a detail lookup", f.retriever.getCalls, f.retriever.searchCalls)
	}
	item, ok := resp.Data.(*models.WorkItem)
	if !ok || item.ID != "TSK-9" {
		t.Errorf("data = %v, want work item TSK-9", resp.Data)
	}
}

func TestHandle_RateLimitDenied(t *testing.T) {
	t.Parallel()
	f := newFixtureWithLimiter(t, ratelimit.New(deniedStore{}, ratelimit.DefaultConfig(), zap.NewNop()))

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "show my tasks",
	})

	if resp.Status != models.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeRateLimited {
		t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeRateLimited)
	}
	if resp.Error.RetryAfter <= 0 {
		t.Errorf("retry_after = %v, want > 0", resp.Error.RetryAfter)
	}
	if resp.RateLimit == nil || resp.RateLimit.RetryAfter <= 0 {
		t.Errorf("rate limit payload = %+v, want retry_after set", resp.RateLimit)
	}
	if f.retriever.searchCalls != 0 {
		t.Error("denied request must not reach the backend")
	}
}

func TestHandle_LowConfidenceAsksClarification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "florble the wuggle snorp",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if resp.Meta.IntentType != models.IntentClarification {
		t.Errorf("intent = %s, want CLARIFICATION", resp.Meta.IntentType)
	}
	if resp.Message == "" {
		t.Error("expected a clarification message")
	}
	if f.retriever.getCalls+f.retriever.searchCalls+f.retriever.reportCalls != 0 {
		t.Error("low-confidence query must not reach the backend")
	}
	if f.mutator.calls != 0 {
		t.Error("low-confidence query must not mutate anything")
	}
}

func TestHandle_UnresolvableReferenceAsksClarification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "complete it",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if resp.Meta.IntentType != models.IntentClarification {
		t.Errorf("intent = %s, want CLARIFICATION", resp.Meta.IntentType)
	}
	if resp.Message == "" {
		t.Error("expected a clarification message")
	}
	if f.mutator.calls != 0 {
		t.Error("unresolved action must not mutate anything")
	}
}

func TestHandle_ReferenceResolvedFromSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.retriever.item = &models.WorkItem{ID: "TSK-9", Type: models.EntityTask, Title: "fix login"}

	first := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "show task TSK-9",
	})
	if first.Status != models.StatusOK {
		t.Fatalf("first turn failed: %+v", first.Error)
	}

	second := f.pipeline.Handle(context.Background(), &Request{
		User:      member("u1"),
		SessionID: first.Meta.SessionID,
		Query:     "open that task",
	})

	if second.Status != models.StatusOK {
		t.Fatalf("second turn failed: %+v", second.Error)
	}
	if second.Meta.IntentType != models.IntentNavigation {
		t.Errorf("intent = %s, want NAVIGATION", second.Meta.IntentType)
	}
	data, ok := second.Data.(map[string]string)
	if !ok || data["link"] != "/items/TSK-9" {
		t.Errorf("data = %v, want link /items/TSK-9", second.Data)
	}
}

func TestHandle_ActionExecutes(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "complete task TSK-42",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if f.mutator.calls != 1 {
		t.Fatalf("mutator calls = %d, want 1", f.mutator.calls)
	}
	if resp.Action == nil {
		t.Fatal("expected an action result")
	}
	if resp.Action.Type != models.ActionCompleteTask {
		t.Errorf("action type = %s, want complete_task", resp.Action.Type)
	}
	if resp.Action.Status != actions.StatusCompleted {
		t.Errorf("action status = %q, want completed", resp.Action.Status)
	}
}

func TestHandle_ActionDeniedForViewer(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  &models.User{ID: "u1", Role: models.RoleViewer},
		Query: "assign TSK-42 to maria",
	})

	if resp.Status != models.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeActionDenied {
		t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeActionDenied)
	}
	if f.mutator.calls != 0 {
		t.Error("denied action must not reach the backend")
	}
}

func TestHandle_ForeignSessionRejected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	first := f.pipeline.Handle(context.Background(), &Request{
		User:  member("owner"),
		Query: "show my tasks",
	})
	if first.Meta.SessionID == "" {
		t.Fatal("expected a session id")
	}

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:      member("intruder"),
		SessionID: first.Meta.SessionID,
		Query:     "show my tasks",
	})

	if resp.Status != models.StatusError {
		t.Fatalf("status = %q, want error", resp.Status)
	}
	if resp.Error == nil || resp.Error.Code != models.ErrCodeSessionGone {
		t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeSessionGone)
	}
}

func TestHandle_ValidationAndBackendErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		resp := f.pipeline.Handle(context.Background(), &Request{User: member("u1"), Query: "   "})
		if resp.Error == nil || resp.Error.Code != models.ErrCodeValidation {
			t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeValidation)
		}
	})

	t.Run("entity not found", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.retriever.err = retrieval.ErrNotFound
		resp := f.pipeline.Handle(context.Background(), &Request{User: member("u1"), Query: "show TSK-404"})
		if resp.Error == nil || resp.Error.Code != models.ErrCodeNotFound {
			t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeNotFound)
		}
	})

	t.Run("access denied", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.retriever.err = retrieval.ErrAccessDenied
		resp := f.pipeline.Handle(context.Background(), &Request{User: member("u1"), Query: "show TSK-7"})
		if resp.Error == nil || resp.Error.Code != models.ErrCodeAccessDenied {
			t.Fatalf("error = %+v, want %s", resp.Error, models.ErrCodeAccessDenied)
		}
	})
}

// spyStore counts TTL refreshes on top of a real store
type spyStore struct {
	session.Store
	extendCalls int
}

func (s *spyStore) ExtendTTL(ctx context.Context, sessionID string) error {
	s.extendCalls++
	return s.Store.ExtendTTL(ctx, sessionID)
}

func TestHandle_RefreshesTTLBeforeBackendCall(t *testing.T) {
	t.Parallel()

	log := zap.NewNop()
	store := &spyStore{Store: session.NewMemoryStore(session.DefaultConfig())}
	retriever := &fakeRetriever{item: &models.WorkItem{ID: "TSK-9", Type: models.EntityTask, Title: "fix login"}}
	actionHandler := actions.NewHandler(&fakeMutator{}, &fakeActionLog{results: map[string]*models.ActionResult{}}, &fakeDeferredRepo{}, nil, log)
	p := New(
		store,
		ratelimit.New(ratelimit.NewMemoryStore(), ratelimit.DefaultConfig(), log),
		classifier.New(nil, classifier.Weights{}, log),
		retriever,
		actionHandler,
		500,
		log,
	)

	resp := p.Handle(context.Background(), &Request{User: member("u1"), Query: "show TSK-9"})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if store.extendCalls != 1 {
		t.Errorf("extend calls = %d, want 1", store.extendCalls)
	}
}

func TestHandle_ReportDefaultsToStatusGrouping(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.retriever.report = &retrieval.ReportResult{
		Title: "Bugs by status",
		Total: 7,
		Groups: []retrieval.ReportGroup{
			{Label: "open", Count: 4},
			{Label: "closed", Count: 3},
		},
	}

	resp := f.pipeline.Handle(context.Background(), &Request{
		User:  member("u1"),
		Query: "report on bugs for project PRJ-100",
	})

	if resp.Status != models.StatusOK {
		t.Fatalf("status = %q, error = %+v", resp.Status, resp.Error)
	}
	if f.retriever.reportCalls != 1 {
		t.Fatalf("report calls = %d, want 1", f.retriever.reportCalls)
	}
	if f.retriever.lastSpec.GroupBy != "status" {
		t.Errorf("group_by = %q, want status default", f.retriever.lastSpec.GroupBy)
	}
	if f.retriever.lastSpec.Filters.Project != "PRJ-100" {
		t.Errorf("project = %q, want PRJ-100", f.retriever.lastSpec.Filters.Project)
	}
}
