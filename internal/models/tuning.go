package models

import "time"

// TuningConfig holds the operator-adjustable classification and rate limit
// parameters, persisted in the database and editable via the configure CLI.
// Zero values mean "use the compiled default".
type TuningConfig struct {
	ConfigKey         string    `json:"config_key"`
	FallbackThreshold float64   `json:"fallback_threshold"`
	ContinuityBonus   float64   `json:"continuity_bonus"`
	EntityBonus       float64   `json:"entity_bonus"`
	ComplexWordCount  int       `json:"complex_word_count"`
	MinuteBase        int       `json:"minute_base"`
	MinuteBurst       int       `json:"minute_burst"`
	HourCapacity      int       `json:"hour_capacity"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
