package models

import "time"

// ActionType is a whitelisted mutation the assistant may perform
type ActionType string

const (
	ActionCreateTask       ActionType = "create_task"
	ActionCompleteTask     ActionType = "complete_task"
	ActionAssignTask       ActionType = "assign_task"
	ActionSetStatus        ActionType = "set_status"
	ActionSetPriority      ActionType = "set_priority"
	ActionAddComment       ActionType = "add_comment"
	ActionScheduleReminder ActionType = "schedule_reminder"
)

// ActionRequest describes one mutation to validate and execute
type ActionRequest struct {
	UserID string            `json:"user_id"`
	Role   Role              `json:"role"`
	Type   ActionType        `json:"type"`
	Target ExtractedEntity   `json:"target"`
	Params map[string]string `json:"params,omitempty"`
	// IdempotencyKey dedupes client retries. Empty means the handler
	// derives one from (user, action, target, coarse time bucket).
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ActionResult is the echoed outcome of an executed (or replayed) action
type ActionResult struct {
	IdempotencyKey string         `json:"idempotency_key"`
	Type           ActionType     `json:"type"`
	Target         string         `json:"target,omitempty"`
	Status         string         `json:"status"`
	Detail         map[string]any `json:"detail,omitempty"`
	ExecutedAt     time.Time      `json:"executed_at"`
	// Replayed is true when a prior completed execution was returned
	// instead of running the mutation again
	Replayed bool `json:"replayed,omitempty"`
}

// DeferredAction is a durably stored action to be executed later by the
// sweep worker (e.g. a scheduled reminder).
type DeferredAction struct {
	ID             string            `json:"id"`
	UserID         string            `json:"user_id"`
	Type           ActionType        `json:"type"`
	Target         ExtractedEntity   `json:"target"`
	Params         map[string]string `json:"params,omitempty"`
	IdempotencyKey string            `json:"idempotency_key"`
	DueAt          time.Time         `json:"due_at"`
	Status         string            `json:"status"`
	CreatedAt      time.Time         `json:"created_at"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
}

// Deferred action statuses
const (
	DeferredPending   = "pending"
	DeferredCompleted = "completed"
	DeferredFailed    = "failed"
)
