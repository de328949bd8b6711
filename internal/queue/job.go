package queue

import (
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job
type JobType string

const (
	// JobTypeDeferredAction executes a durably stored deferred action
	// (e.g. a scheduled reminder) when its due time arrives
	JobTypeDeferredAction JobType = "deferred_action"
)

// Job represents a job in the queue
type Job struct {
	ID     uuid.UUID `json:"id"`
	Type   JobType   `json:"type"`
	UserID string    `json:"user_id"`
	// DeferredActionID points at the deferred_actions row to execute
	DeferredActionID string         `json:"deferred_action_id,omitempty"`
	NotBefore        *time.Time     `json:"not_before,omitempty"` // Earliest time to process (nil = immediate)
	NotAfter         *time.Time     `json:"not_after,omitempty"`  // Latest time to process (nil = no expiration)
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	RetryCount       int            `json:"retry_count"`
	MaxRetries       int            `json:"max_retries"`
}

// NewDeferredActionJob creates a job that fires when the action is due
func NewDeferredActionJob(userID, deferredActionID string, dueAt time.Time) *Job {
	job := &Job{
		ID:               uuid.New(),
		Type:             JobTypeDeferredAction,
		UserID:           userID,
		DeferredActionID: deferredActionID,
		Metadata:         make(map[string]any),
		CreatedAt:        time.Now(),
		RetryCount:       0,
		MaxRetries:       3,
	}
	if dueAt.After(job.CreatedAt) {
		job.NotBefore = &dueAt
	}
	return job
}

// ShouldProcess checks if the job should be processed now
func (j *Job) ShouldProcess() bool {
	now := time.Now()
	if j.NotBefore != nil && now.Before(*j.NotBefore) {
		return false
	}
	if j.NotAfter != nil && now.After(*j.NotAfter) {
		return false
	}
	return true
}

// IsExpired checks if the job has expired
func (j *Job) IsExpired() bool {
	if j.NotAfter == nil {
		return false
	}
	return time.Now().After(*j.NotAfter)
}

// CanRetry checks if the job can be retried
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// IncrementRetry increments the retry count
func (j *Job) IncrementRetry() {
	j.RetryCount++
}
