package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trackwise/assistant/internal/models"
)

// DeferredActionRepository stores actions scheduled for later execution.
// The sweep worker polls ListDue as a safety net for queue deliveries that
// were lost or arrived while the worker was down.
type DeferredActionRepository struct {
	db *DB
}

// NewDeferredActionRepository creates a deferred action repository
func NewDeferredActionRepository(db *DB) *DeferredActionRepository {
	return &DeferredActionRepository{db: db}
}

// Create persists a deferred action in pending state
func (r *DeferredActionRepository) Create(ctx context.Context, action *models.DeferredAction) error {
	targetJSON, err := json.Marshal(action.Target)
	if err != nil {
		return fmt.Errorf("failed to marshal target: %w", err)
	}
	paramsJSON, err := json.Marshal(action.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal params: %w", err)
	}

	query := `
		INSERT INTO deferred_actions (id, user_id, action_type, target, params, idempotency_key, due_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = r.db.ExecContext(ctx, query,
		action.ID,
		action.UserID,
		action.Type,
		targetJSON,
		paramsJSON,
		action.IdempotencyKey,
		action.DueAt,
		models.DeferredPending,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create deferred action: %w", err)
	}
	return nil
}

// GetByID retrieves one deferred action
func (r *DeferredActionRepository) GetByID(ctx context.Context, id string) (*models.DeferredAction, error) {
	query := `
		SELECT id, user_id, action_type, target, params, idempotency_key, due_at, status, created_at, completed_at
		FROM deferred_actions
		WHERE id = $1
	`
	row := r.db.QueryRowContext(ctx, query, id)
	action, err := scanDeferredAction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deferred action: %w", err)
	}
	return action, nil
}

// ListDue returns pending actions whose due time has passed, oldest first
func (r *DeferredActionRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*models.DeferredAction, error) {
	query := `
		SELECT id, user_id, action_type, target, params, idempotency_key, due_at, status, created_at, completed_at
		FROM deferred_actions
		WHERE status = $1 AND due_at <= $2
		ORDER BY due_at ASC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, models.DeferredPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var actions []*models.DeferredAction
	for rows.Next() {
		action, err := scanDeferredAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deferred action: %w", err)
		}
		actions = append(actions, action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due actions: %w", err)
	}
	return actions, nil
}

// MarkCompleted claims a pending action by transitioning it to completed.
// Only the caller that wins the transition should execute; the loser sees
// done=false. Claiming before executing means a crash mid-execution loses
// the action rather than running it twice, the right trade for reminders.
func (r *DeferredActionRepository) MarkCompleted(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE deferred_actions
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4
	`
	res, err := r.db.ExecContext(ctx, query, models.DeferredCompleted, at, id, models.DeferredPending)
	if err != nil {
		return false, fmt.Errorf("failed to transition deferred action: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

// MarkFailed records an execution failure. It overrides a prior claim so
// the row reflects what actually happened.
func (r *DeferredActionRepository) MarkFailed(ctx context.Context, id string, at time.Time) (bool, error) {
	query := `
		UPDATE deferred_actions
		SET status = $1, completed_at = $2
		WHERE id = $3 AND status <> $1
	`
	res, err := r.db.ExecContext(ctx, query, models.DeferredFailed, at, id)
	if err != nil {
		return false, fmt.Errorf("failed to transition deferred action: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeferredAction(row rowScanner) (*models.DeferredAction, error) {
	action := &models.DeferredAction{}
	var targetJSON, paramsJSON []byte
	var completedAt sql.NullTime

	err := row.Scan(
		&action.ID,
		&action.UserID,
		&action.Type,
		&targetJSON,
		&paramsJSON,
		&action.IdempotencyKey,
		&action.DueAt,
		&action.Status,
		&action.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(targetJSON, &action.Target); err != nil {
		return nil, fmt.Errorf("failed to unmarshal target: %w", err)
	}
	if len(paramsJSON) > 0 {
		if err := json.Unmarshal(paramsJSON, &action.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}
	if completedAt.Valid {
		action.CompletedAt = &completedAt.Time
	}
	return action, nil
}
