// Package actions executes the whitelisted mutations a chat query may
// request. Every execution is idempotent: a key derived from the request
// (or supplied by the caller) is checked against the action log before the
// backend is touched, and retries replay the stored result.
package actions

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/trackwise/assistant/internal/database"
	"github.com/trackwise/assistant/internal/models"
	"github.com/trackwise/assistant/internal/queue"
	"github.com/trackwise/assistant/internal/services/retrieval"
)

var (
	// ErrUnknownAction means the requested mutation is not whitelisted
	ErrUnknownAction = errors.New("unknown action type")
	// ErrActionDenied means the user's role does not permit the action
	ErrActionDenied = errors.New("action denied")
	// ErrMissingTarget means the action needs a resolved target entity
	ErrMissingTarget = errors.New("action target missing")
)

// idempotencyBucket is the time bucket folded into derived keys, so the
// same request repeated within the window replays instead of re-executing
const idempotencyBucket = 5 * time.Minute

// defaultReminderDelay applies when a reminder has no parseable delay
const defaultReminderDelay = 24 * time.Hour

// minRoles is the whitelist: an action absent here cannot be executed at
// all, regardless of role
var minRoles = map[models.ActionType]models.Role{
	models.ActionCreateTask:       models.RoleMember,
	models.ActionCompleteTask:     models.RoleMember,
	models.ActionSetStatus:        models.RoleMember,
	models.ActionAddComment:       models.RoleMember,
	models.ActionScheduleReminder: models.RoleMember,
	models.ActionAssignTask:       models.RoleManager,
	models.ActionSetPriority:      models.RoleManager,
}

// Action result statuses
const (
	StatusCompleted = "completed"
	StatusScheduled = "scheduled"
)

// Handler validates and executes action requests
type Handler struct {
	mutator  retrieval.Mutator
	log      database.ActionLogRepositoryInterface
	deferred database.DeferredActionRepositoryInterface
	jobs     queue.JobQueue
	logger   *zap.Logger
	clock    func() time.Time
}

// NewHandler creates an action handler. jobs may be nil; scheduled actions
// then rely on the sweep worker's database poll alone.
func NewHandler(
	mutator retrieval.Mutator,
	log database.ActionLogRepositoryInterface,
	deferred database.DeferredActionRepositoryInterface,
	jobs queue.JobQueue,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		mutator:  mutator,
		log:      log,
		deferred: deferred,
		jobs:     jobs,
		logger:   logger,
		clock:    time.Now,
	}
}

// SetClock overrides the time source for tests
func (h *Handler) SetClock(clock func() time.Time) { h.clock = clock }

// DeriveIdempotencyKey builds the default key from the request identity and
// a coarse time bucket
func DeriveIdempotencyKey(userID string, action models.ActionType, target string, at time.Time) string {
	bucket := at.Unix() / int64(idempotencyBucket/time.Second)
	sum := sha256.Sum256([]byte(userID + "|" + string(action) + "|" + target + "|" + strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(sum[:])
}

// Execute validates the request, checks the idempotency log, and runs or
// replays the mutation
func (h *Handler) Execute(ctx context.Context, req *models.ActionRequest) (*models.ActionResult, error) {
	minRole, ok := minRoles[req.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, req.Type)
	}
	if !req.Role.AtLeast(minRole) {
		return nil, fmt.Errorf("%w: %s requires role %s", ErrActionDenied, req.Type, minRole)
	}
	if req.Type != models.ActionCreateTask && !req.Target.Resolved() {
		return nil, ErrMissingTarget
	}

	now := h.clock()
	key := req.IdempotencyKey
	if key == "" {
		key = DeriveIdempotencyKey(req.UserID, req.Type, req.Target.Key(), now)
	}

	if prior, err := h.log.Get(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to check action log: %w", err)
	} else if prior != nil {
		replay := *prior
		replay.Replayed = true
		h.logger.Info("action_replayed",
			zap.String("user_id", req.UserID),
			zap.String("action_type", string(req.Type)),
			zap.String("idempotency_key", key))
		return &replay, nil
	}

	var result *models.ActionResult
	var err error
	if req.Type == models.ActionScheduleReminder {
		result, err = h.scheduleReminder(ctx, req, key, now)
	} else {
		result, err = h.applyNow(ctx, req, key, now)
	}
	if err != nil {
		return nil, err
	}

	inserted, err := h.log.Record(ctx, req.UserID, result)
	if err != nil {
		// The mutation happened; losing the log entry only risks a
		// duplicate on retry, so surface the result anyway
		h.logger.Error("action_log_record_failed",
			zap.String("idempotency_key", key),
			zap.Error(err))
		return result, nil
	}
	if !inserted {
		// Concurrent duplicate won the insert; replay its result
		if prior, getErr := h.log.Get(ctx, key); getErr == nil && prior != nil {
			replay := *prior
			replay.Replayed = true
			return &replay, nil
		}
	}

	h.logger.Info("action_executed",
		zap.String("user_id", req.UserID),
		zap.String("action_type", string(req.Type)),
		zap.String("target", req.Target.Key()),
		zap.String("status", result.Status))
	return result, nil
}

func (h *Handler) applyNow(ctx context.Context, req *models.ActionRequest, key string, now time.Time) (*models.ActionResult, error) {
	detail, err := h.mutator.Apply(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to apply action: %w", err)
	}

	return &models.ActionResult{
		IdempotencyKey: key,
		Type:           req.Type,
		Target:         req.Target.Key(),
		Status:         StatusCompleted,
		Detail:         map[string]any{"message": detail},
		ExecutedAt:     now,
	}, nil
}

func (h *Handler) scheduleReminder(ctx context.Context, req *models.ActionRequest, key string, now time.Time) (*models.ActionResult, error) {
	dueAt := now.Add(parseReminderDelay(req.Params["remind_in"]))

	deferred := &models.DeferredAction{
		ID:             uuid.New().String(),
		UserID:         req.UserID,
		Type:           req.Type,
		Target:         req.Target,
		Params:         req.Params,
		IdempotencyKey: key,
		DueAt:          dueAt,
		Status:         models.DeferredPending,
		CreatedAt:      now,
	}
	if err := h.deferred.Create(ctx, deferred); err != nil {
		return nil, fmt.Errorf("failed to store deferred action: %w", err)
	}

	// The queue is a latency optimization; the row above is the source of
	// truth and the sweep worker executes it even if this publish fails
	if h.jobs != nil {
		job := queue.NewDeferredActionJob(req.UserID, deferred.ID, dueAt)
		if err := h.jobs.Enqueue(ctx, job); err != nil {
			h.logger.Warn("deferred_enqueue_failed",
				zap.String("deferred_action_id", deferred.ID),
				zap.Error(err))
		}
	}

	return &models.ActionResult{
		IdempotencyKey: key,
		Type:           req.Type,
		Target:         req.Target.Key(),
		Status:         StatusScheduled,
		Detail: map[string]any{
			"deferred_action_id": deferred.ID,
			"due_at":             dueAt.Format(time.RFC3339),
		},
		ExecutedAt: now,
	}, nil
}

// ExecuteDeferred runs a stored deferred action against the backend. Used
// by the sweep worker when a reminder comes due.
func (h *Handler) ExecuteDeferred(ctx context.Context, action *models.DeferredAction) error {
	req := &models.ActionRequest{
		UserID: action.UserID,
		Role:   models.RoleMember,
		Type:   action.Type,
		Target: action.Target,
		Params: action.Params,
	}
	if _, err := h.mutator.Apply(ctx, req); err != nil {
		return fmt.Errorf("failed to apply deferred action: %w", err)
	}
	return nil
}

// parseReminderDelay understands the "30m" / "2h" / "1d" forms the
// classifier emits. Unparseable input falls back to one day.
func parseReminderDelay(s string) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultReminderDelay
	}
	if strings.HasSuffix(s, "d") {
		if days, err := strconv.Atoi(strings.TrimSuffix(s, "d")); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour
		}
		return defaultReminderDelay
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultReminderDelay
}
