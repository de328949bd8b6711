package database

import (
	"context"
	"time"

	"github.com/trackwise/assistant/internal/models"
)

// ActionLogRepositoryInterface defines the interface for idempotency log
// operations. This interface enables better testability by allowing mock
// implementations.
type ActionLogRepositoryInterface interface {
	Get(ctx context.Context, key string) (*models.ActionResult, error)
	Record(ctx context.Context, userID string, result *models.ActionResult) (bool, error)
}

// DeferredActionRepositoryInterface defines the interface for deferred
// action operations
type DeferredActionRepositoryInterface interface {
	Create(ctx context.Context, action *models.DeferredAction) error
	GetByID(ctx context.Context, id string) (*models.DeferredAction, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredAction, error)
	MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, at time.Time) (bool, error)
}

// TuningConfigRepositoryInterface defines the interface for tuning config
// operations
type TuningConfigRepositoryInterface interface {
	Get(ctx context.Context) (*models.TuningConfig, error)
	Set(ctx context.Context, c *models.TuningConfig) error
}

// Ensure concrete types implement the interfaces
var (
	_ ActionLogRepositoryInterface      = (*ActionLogRepository)(nil)
	_ DeferredActionRepositoryInterface = (*DeferredActionRepository)(nil)
	_ TuningConfigRepositoryInterface   = (*TuningConfigRepository)(nil)
)
