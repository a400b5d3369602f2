package config

import "time"

// QueueConfig contains worker pool configuration.
// These values control how many sessions run concurrently and how
// shutdown drains active work.
type QueueConfig struct {
	// MaxConcurrentSessions is the limit of sessions executing at once.
	// Submissions beyond the limit are rejected.
	MaxConcurrentSessions int

	// SessionTimeout is the maximum time a session can run end to end.
	SessionTimeout time.Duration

	// GracefulShutdownTimeout is the max time to wait for active sessions
	// to complete during shutdown.
	GracefulShutdownTimeout time.Duration
}

// DefaultQueueConfig returns the built-in worker pool defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrentSessions:   5,
		SessionTimeout:          15 * time.Minute,
		GracefulShutdownTimeout: 30 * time.Second,
	}
}

// LoadQueueConfig reads worker pool settings from the environment,
// falling back to DefaultQueueConfig values.
func LoadQueueConfig() (*QueueConfig, error) {
	def := DefaultQueueConfig()

	maxSessions, err := getEnvInt("queue", "MAX_CONCURRENT_SESSIONS", def.MaxConcurrentSessions)
	if err != nil {
		return nil, err
	}
	timeoutSec, err := getEnvInt("queue", "SESSION_TIMEOUT_SECONDS", int(def.SessionTimeout/time.Second))
	if err != nil {
		return nil, err
	}
	shutdownSec, err := getEnvInt("queue", "GRACEFUL_SHUTDOWN_TIMEOUT_SECONDS", int(def.GracefulShutdownTimeout/time.Second))
	if err != nil {
		return nil, err
	}

	cfg := &QueueConfig{
		MaxConcurrentSessions:   maxSessions,
		SessionTimeout:          time.Duration(timeoutSec) * time.Second,
		GracefulShutdownTimeout: time.Duration(shutdownSec) * time.Second,
	}
	if cfg.MaxConcurrentSessions < 1 {
		return nil, NewValidationError("queue", "", "MAX_CONCURRENT_SESSIONS", ErrInvalidValue)
	}
	if cfg.SessionTimeout <= 0 {
		return nil, NewValidationError("queue", "", "SESSION_TIMEOUT_SECONDS", ErrInvalidValue)
	}
	return cfg, nil
}
