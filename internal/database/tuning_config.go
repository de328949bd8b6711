package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/trackwise/assistant/internal/models"
)

const defaultTuningConfigKey = "default"

// TuningConfigRepository handles operator tuning overrides in the database.
type TuningConfigRepository struct {
	db *DB
}

// NewTuningConfigRepository creates a tuning config repository.
func NewTuningConfigRepository(db *DB) *TuningConfigRepository {
	return &TuningConfigRepository{db: db}
}

// Get retrieves the default tuning config. Missing rows return (nil, nil);
// callers fall back to compiled defaults.
func (r *TuningConfigRepository) Get(ctx context.Context) (*models.TuningConfig, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT config_key, fallback_threshold, continuity_bonus, entity_bonus,
		       complex_word_count, minute_base, minute_burst, hour_capacity,
		       created_at, updated_at
		FROM tuning_config WHERE config_key = $1
	`, defaultTuningConfigKey)
	c := &models.TuningConfig{}
	err := row.Scan(&c.ConfigKey, &c.FallbackThreshold, &c.ContinuityBonus, &c.EntityBonus,
		&c.ComplexWordCount, &c.MinuteBase, &c.MinuteBurst, &c.HourCapacity,
		&c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tuning config: %w", err)
	}
	return c, nil
}

// Set upserts the default tuning config.
func (r *TuningConfigRepository) Set(ctx context.Context, c *models.TuningConfig) error {
	if c.FallbackThreshold < 0 || c.FallbackThreshold > 1 {
		return fmt.Errorf("fallback_threshold must be in [0, 1]")
	}
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tuning_config (config_key, fallback_threshold, continuity_bonus, entity_bonus,
			complex_word_count, minute_base, minute_burst, hour_capacity, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (config_key) DO UPDATE SET
			fallback_threshold = EXCLUDED.fallback_threshold,
			continuity_bonus = EXCLUDED.continuity_bonus,
			entity_bonus = EXCLUDED.entity_bonus,
			complex_word_count = EXCLUDED.complex_word_count,
			minute_base = EXCLUDED.minute_base,
			minute_burst = EXCLUDED.minute_burst,
			hour_capacity = EXCLUDED.hour_capacity,
			updated_at = EXCLUDED.updated_at
	`, defaultTuningConfigKey, c.FallbackThreshold, c.ContinuityBonus, c.EntityBonus,
		c.ComplexWordCount, c.MinuteBase, c.MinuteBurst, c.HourCapacity, now, now)
	if err != nil {
		return fmt.Errorf("set tuning config: %w", err)
	}
	return nil
}
