package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/trackwise/assistant/internal/models"
)

// ActionLogRepository records executed actions keyed by idempotency key.
// The handler checks here before executing and replays the stored result on
// a hit, so client retries never mutate twice.
type ActionLogRepository struct {
	db *DB
}

// NewActionLogRepository creates an action log repository
func NewActionLogRepository(db *DB) *ActionLogRepository {
	return &ActionLogRepository{db: db}
}

// Get retrieves a previously executed action by idempotency key. A miss
// returns (nil, nil).
func (r *ActionLogRepository) Get(ctx context.Context, key string) (*models.ActionResult, error) {
	query := `
		SELECT idempotency_key, action_type, target, status, detail, executed_at
		FROM action_log
		WHERE idempotency_key = $1
	`

	result := &models.ActionResult{}
	var detailJSON []byte
	err := r.db.QueryRowContext(ctx, query, key).Scan(
		&result.IdempotencyKey,
		&result.Type,
		&result.Target,
		&result.Status,
		&detailJSON,
		&result.ExecutedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get action log entry: %w", err)
	}

	if len(detailJSON) > 0 {
		if err := json.Unmarshal(detailJSON, &result.Detail); err != nil {
			return nil, fmt.Errorf("failed to unmarshal action detail: %w", err)
		}
	}
	return result, nil
}

// Record stores the outcome of an executed action. The first writer wins;
// a concurrent duplicate reports inserted=false and should replay via Get.
func (r *ActionLogRepository) Record(ctx context.Context, userID string, result *models.ActionResult) (bool, error) {
	detailJSON, err := json.Marshal(result.Detail)
	if err != nil {
		return false, fmt.Errorf("failed to marshal action detail: %w", err)
	}

	query := `
		INSERT INTO action_log (idempotency_key, user_id, action_type, target, status, detail, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		result.IdempotencyKey,
		userID,
		result.Type,
		result.Target,
		result.Status,
		detailJSON,
		result.ExecutedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to record action: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}
