package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// SessionRetentionDays is how many days to keep terminal sessions
	// before deleting them (cascading to their child rows).
	SessionRetentionDays int

	// StalePendingAge is the maximum age of a session stuck in pending
	// before it is swept as abandoned.
	StalePendingAge time.Duration

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 90,
		StalePendingAge:      24 * time.Hour,
		CleanupInterval:      12 * time.Hour,
	}
}

// LoadRetentionConfig reads retention settings from the environment,
// falling back to DefaultRetentionConfig values.
func LoadRetentionConfig() (*RetentionConfig, error) {
	def := DefaultRetentionConfig()

	days, err := getEnvInt("retention", "SESSION_RETENTION_DAYS", def.SessionRetentionDays)
	if err != nil {
		return nil, err
	}
	staleHours, err := getEnvInt("retention", "STALE_PENDING_HOURS", int(def.StalePendingAge/time.Hour))
	if err != nil {
		return nil, err
	}
	intervalHours, err := getEnvInt("retention", "CLEANUP_INTERVAL_HOURS", int(def.CleanupInterval/time.Hour))
	if err != nil {
		return nil, err
	}

	cfg := &RetentionConfig{
		SessionRetentionDays: days,
		StalePendingAge:      time.Duration(staleHours) * time.Hour,
		CleanupInterval:      time.Duration(intervalHours) * time.Hour,
	}
	if cfg.SessionRetentionDays < 1 {
		return nil, NewValidationError("retention", "", "SESSION_RETENTION_DAYS", ErrInvalidValue)
	}
	if cfg.CleanupInterval <= 0 {
		return nil, NewValidationError("retention", "", "CLEANUP_INTERVAL_HOURS", ErrInvalidValue)
	}
	return cfg, nil
}
