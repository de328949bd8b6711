package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/models"
)

type fakeExecutor struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeExecutor) ExecuteDeferred(_ context.Context, action *models.DeferredAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, action.ID)
	return f.err
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeDeferredRepo struct {
	mu      sync.Mutex
	actions map[string]*models.DeferredAction
	listErr error
}

func newFakeDeferredRepo(actions ...*models.DeferredAction) *fakeDeferredRepo {
	repo := &fakeDeferredRepo{actions: map[string]*models.DeferredAction{}}
	for _, a := range actions {
		repo.actions[a.ID] = a
	}
	return repo
}

func (f *fakeDeferredRepo) Create(_ context.Context, a *models.DeferredAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions[a.ID] = a
	return nil
}

func (f *fakeDeferredRepo) GetByID(_ context.Context, id string) (*models.DeferredAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.actions[id], nil
}

func (f *fakeDeferredRepo) ListDue(_ context.Context, now time.Time, limit int) ([]*models.DeferredAction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var due []*models.DeferredAction
	for _, a := range f.actions {
		if a.Status == models.DeferredPending && !a.DueAt.After(now) && len(due) < limit {
			due = append(due, a)
		}
	}
	return due, nil
}

func (f *fakeDeferredRepo) MarkCompleted(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status != models.DeferredPending {
		return false, nil
	}
	a.Status = models.DeferredCompleted
	a.CompletedAt = &at
	return true, nil
}

func (f *fakeDeferredRepo) MarkFailed(_ context.Context, id string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.actions[id]
	if !ok || a.Status == models.DeferredFailed {
		return false, nil
	}
	a.Status = models.DeferredFailed
	a.CompletedAt = &at
	return true, nil
}

func (f *fakeDeferredRepo) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.actions[id]; ok {
		return a.Status
	}
	return ""
}

func pendingAction(id string, due time.Time) *models.DeferredAction {
	return &models.DeferredAction{
		ID:     id,
		UserID: "u1",
		Type:   models.ActionScheduleReminder,
		Target: models.ExtractedEntity{Type: models.EntityTask, ID: "TSK-42"},
		DueAt:  due,
		Status: models.DeferredPending,
	}
}

func TestSweep_ExecutesDueActions(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	repo := newFakeDeferredRepo(
		pendingAction("due-1", now.Add(-time.Minute)),
		pendingAction("due-2", now.Add(-time.Hour)),
		pendingAction("future", now.Add(time.Hour)),
	)
	executor := &fakeExecutor{}

	s := NewSweeper(executor, repo, nil, time.Minute, 1, zap.NewNop())
	s.SetClock(func() time.Time { return now })
	s.Sweep(context.Background())

	if executor.callCount() != 2 {
		t.Fatalf("executed = %d, want 2 (future action must wait)", executor.callCount())
	}
	if repo.status("due-1") != models.DeferredCompleted {
		t.Errorf("due-1 status = %q, want completed", repo.status("due-1"))
	}
	if repo.status("future") != models.DeferredPending {
		t.Errorf("future status = %q, want still pending", repo.status("future"))
	}
}

func TestSweep_FailedExecutionMarksFailed(t *testing.T) {
	t.Parallel()

	now := time.Now()
	repo := newFakeDeferredRepo(pendingAction("a1", now.Add(-time.Minute)))
	executor := &fakeExecutor{err: errors.New("backend unavailable")}

	s := NewSweeper(executor, repo, nil, time.Minute, 1, zap.NewNop())
	s.SetClock(func() time.Time { return now })
	s.Sweep(context.Background())

	if repo.status("a1") != models.DeferredFailed {
		t.Errorf("status = %q, want failed", repo.status("a1"))
	}
}

func TestProcess_ClaimPreventsDoubleExecution(t *testing.T) {
	t.Parallel()

	now := time.Now()
	repo := newFakeDeferredRepo(pendingAction("a1", now.Add(-time.Minute)))
	executor := &fakeExecutor{}

	s := NewSweeper(executor, repo, nil, time.Minute, 1, zap.NewNop())
	s.SetClock(func() time.Time { return now })

	// Queue delivery and sweep both find the same row; only one executes
	if err := s.process(context.Background(), "a1"); err != nil {
		t.Fatalf("first process: %v", err)
	}
	if err := s.process(context.Background(), "a1"); err != nil {
		t.Fatalf("second process: %v", err)
	}
	s.Sweep(context.Background())

	if executor.callCount() != 1 {
		t.Errorf("executed = %d, want exactly 1", executor.callCount())
	}
}

func TestProcess_EarlyDeliveryWaits(t *testing.T) {
	t.Parallel()

	now := time.Now()
	repo := newFakeDeferredRepo(pendingAction("a1", now.Add(time.Hour)))
	executor := &fakeExecutor{}

	s := NewSweeper(executor, repo, nil, time.Minute, 1, zap.NewNop())
	s.SetClock(func() time.Time { return now })

	if err := s.process(context.Background(), "a1"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if executor.callCount() != 0 {
		t.Errorf("executed = %d, want 0 for a not-yet-due action", executor.callCount())
	}
	if repo.status("a1") != models.DeferredPending {
		t.Errorf("status = %q, want pending", repo.status("a1"))
	}
}

func TestProcess_UnknownIDIsNoop(t *testing.T) {
	t.Parallel()

	repo := newFakeDeferredRepo()
	executor := &fakeExecutor{}
	s := NewSweeper(executor, repo, nil, time.Minute, 1, zap.NewNop())

	if err := s.process(context.Background(), "ghost"); err != nil {
		t.Fatalf("process: %v", err)
	}
	if executor.callCount() != 0 {
		t.Errorf("executed = %d, want 0", executor.callCount())
	}
}
