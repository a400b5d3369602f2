package config

import (
	"time"

	"github.com/weaveai/weaveai/pkg/models"
)

// WorkflowConfig holds the session defaults and engine tunables.
type WorkflowConfig struct {
	// DefaultDebateRounds seeds debate_rounds for requests that omit it.
	DefaultDebateRounds int

	// MaxDebateRounds caps debate_rounds accepted from requests.
	MaxDebateRounds int

	// EnableFollowup seeds enable_followup for requests that omit it.
	EnableFollowup bool

	// RetryMaxAttempts / RetryBackoffMS / DegradeMode seed the retry policy
	// for requests that omit them.
	RetryMaxAttempts int
	RetryBackoffMS   int
	DegradeMode      models.DegradeMode

	// WorkerStagger is the per-index launch delay in the gather fan-out,
	// spacing out provider calls.
	WorkerStagger time.Duration

	// RevisionMinDeltaPct is the minimum relative content change (percent)
	// for an accepted debate revision to rewrite the responder's stored
	// content.
	RevisionMinDeltaPct float64
}

// LoadWorkflowConfig reads workflow settings from the environment.
func LoadWorkflowConfig() (*WorkflowConfig, error) {
	rounds, err := getEnvInt("workflow", "DEFAULT_DEBATE_ROUNDS", 2)
	if err != nil {
		return nil, err
	}
	maxRounds, err := getEnvInt("workflow", "MAX_DEBATE_ROUNDS", 4)
	if err != nil {
		return nil, err
	}
	followup, err := getEnvBool("workflow", "ENABLE_FOLLOWUP_RESPONSE", true)
	if err != nil {
		return nil, err
	}
	retryAttempts, err := getEnvInt("workflow", "RETRY_MAX_ATTEMPTS", 2)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := getEnvInt("workflow", "RETRY_BACKOFF_MS", 300)
	if err != nil {
		return nil, err
	}
	staggerMS, err := getEnvInt("workflow", "WORKER_STAGGER_MS", 120)
	if err != nil {
		return nil, err
	}
	revisionPct, err := getEnvFloat("workflow", "REVISION_MIN_DELTA_PCT", 12)
	if err != nil {
		return nil, err
	}

	degradeMode := models.DegradeMode(getEnv("DEGRADE_MODE", string(models.DegradeModePartial)))

	cfg := &WorkflowConfig{
		DefaultDebateRounds: rounds,
		MaxDebateRounds:     maxRounds,
		EnableFollowup:      followup,
		RetryMaxAttempts:    retryAttempts,
		RetryBackoffMS:      retryBackoff,
		DegradeMode:         degradeMode,
		WorkerStagger:       time.Duration(staggerMS) * time.Millisecond,
		RevisionMinDeltaPct: revisionPct,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *WorkflowConfig) validate() error {
	if c.DefaultDebateRounds < 0 || c.DefaultDebateRounds > c.MaxDebateRounds {
		return NewValidationError("workflow", "", "DEFAULT_DEBATE_ROUNDS", ErrInvalidValue)
	}
	if c.RetryMaxAttempts < 1 {
		return NewValidationError("workflow", "", "RETRY_MAX_ATTEMPTS", ErrInvalidValue)
	}
	if c.RetryBackoffMS < 0 {
		return NewValidationError("workflow", "", "RETRY_BACKOFF_MS", ErrInvalidValue)
	}
	if !c.DegradeMode.IsValid() {
		return NewValidationError("workflow", "", "DEGRADE_MODE", ErrInvalidValue)
	}
	if c.WorkerStagger < 0 {
		return NewValidationError("workflow", "", "WORKER_STAGGER_MS", ErrInvalidValue)
	}
	if c.RevisionMinDeltaPct < 0 || c.RevisionMinDeltaPct > 100 {
		return NewValidationError("workflow", "", "REVISION_MIN_DELTA_PCT", ErrInvalidValue)
	}
	return nil
}

// SessionDefaults returns the per-run configuration used when a request
// omits an option.
func (c *WorkflowConfig) SessionDefaults() models.SessionConfig {
	return models.SessionConfig{
		DebateRounds:     c.DefaultDebateRounds,
		EnableFollowup:   c.EnableFollowup,
		EnableWebSearch:  false,
		RetryMaxAttempts: c.RetryMaxAttempts,
		RetryBackoffMS:   c.RetryBackoffMS,
		DegradeMode:      c.DegradeMode,
	}
}
