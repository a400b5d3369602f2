package config

import (
	"fmt"
	"os"
	"time"
)

// ProviderConfig holds connection settings for the Ark OpenAI-compatible API.
//
// APIKey may be empty at startup so the server can come up (and serve health
// checks) without credentials; the LLM client enforces the key on first use.
type ProviderConfig struct {
	APIKey         string
	BaseURL        string
	DefaultModel   string
	Timeout        time.Duration
	ConnectTimeout time.Duration
	MaxRetries     int
}

// LoadProviderConfig reads provider settings from the environment.
func LoadProviderConfig() (*ProviderConfig, error) {
	timeoutSec, err := getEnvFloat("provider", "ARK_TIMEOUT_SECONDS", 120)
	if err != nil {
		return nil, err
	}
	connectSec, err := getEnvFloat("provider", "ARK_CONNECT_TIMEOUT_SECONDS", 20)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvInt("provider", "ARK_MAX_RETRIES", 2)
	if err != nil {
		return nil, err
	}

	// MODEL_NAME is the documented knob; DEFAULT_MODEL is accepted for
	// compatibility with older deployments.
	model := getEnv("MODEL_NAME", getEnv("DEFAULT_MODEL", "doubao-seed-1-6-250615"))

	cfg := &ProviderConfig{
		APIKey:         os.Getenv("ARK_API_KEY"),
		BaseURL:        getEnv("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		DefaultModel:   model,
		Timeout:        time.Duration(timeoutSec * float64(time.Second)),
		ConnectTimeout: time.Duration(connectSec * float64(time.Second)),
		MaxRetries:     maxRetries,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ProviderConfig) validate() error {
	if c.BaseURL == "" {
		return NewValidationError("provider", "", "ARK_BASE_URL", ErrMissingRequiredField)
	}
	if c.Timeout <= 0 {
		return NewValidationError("provider", "", "ARK_TIMEOUT_SECONDS", ErrInvalidValue)
	}
	if c.ConnectTimeout <= 0 {
		return NewValidationError("provider", "", "ARK_CONNECT_TIMEOUT_SECONDS", ErrInvalidValue)
	}
	if c.MaxRetries < 0 {
		return NewValidationError("provider", "", "ARK_MAX_RETRIES", ErrInvalidValue)
	}
	return nil
}

// String renders the provider config with the API key masked.
func (c *ProviderConfig) String() string {
	key := "(unset)"
	if c.APIKey != "" {
		key = "***"
	}
	return fmt.Sprintf("ProviderConfig{BaseURL: %s, DefaultModel: %s, APIKey: %s, Timeout: %s, MaxRetries: %d}",
		c.BaseURL, c.DefaultModel, key, c.Timeout, c.MaxRetries)
}
