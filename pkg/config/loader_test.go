package config

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

func TestInitializeDefaults(t *testing.T) {
	cfg, err := Initialize(context.Background())
	require.NoError(t, err)

	t.Run("provider defaults", func(t *testing.T) {
		assert.Equal(t, "https://ark.cn-beijing.volces.com/api/v3", cfg.Provider.BaseURL)
		assert.Equal(t, "doubao-seed-1-6-250615", cfg.Provider.DefaultModel)
		assert.Equal(t, 2, cfg.Provider.MaxRetries)
	})

	t.Run("workflow defaults", func(t *testing.T) {
		def := cfg.Workflow.SessionDefaults()
		assert.Equal(t, 2, def.DebateRounds)
		assert.True(t, def.EnableFollowup)
		assert.False(t, def.EnableWebSearch)
		assert.Equal(t, 2, def.RetryMaxAttempts)
		assert.Equal(t, 300, def.RetryBackoffMS)
		assert.Equal(t, models.DegradeModePartial, def.DegradeMode)
	})

	t.Run("tool defaults", func(t *testing.T) {
		assert.Equal(t, 5, cfg.Tools.RateLimitQPS)
		assert.Equal(t, 15, cfg.Tools.WebSearchLimit)
		assert.Equal(t, 128, cfg.Tools.CacheMaxEntries)
		assert.InDelta(t, 0.0005, cfg.Tools.InputPricePer1K, 1e-9)
		assert.InDelta(t, 0.0020, cfg.Tools.OutputPricePer1K, 1e-9)
	})

	t.Run("registry is complete", func(t *testing.T) {
		assert.Equal(t, 6, cfg.Agents.Len())
		assert.Len(t, cfg.Agents.Workers(), 4)
		assert.GreaterOrEqual(t, cfg.Presets.Len(), 3)
	})
}

func TestInitializeInvalidEnv(t *testing.T) {
	t.Run("non-numeric timeout fails with field context", func(t *testing.T) {
		t.Setenv("ARK_TIMEOUT_SECONDS", "soon")

		_, err := Initialize(context.Background())
		require.Error(t, err)

		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "ARK_TIMEOUT_SECONDS", vErr.Field)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("unknown degrade mode fails", func(t *testing.T) {
		t.Setenv("DEGRADE_MODE", "graceful")

		_, err := Initialize(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("negative guardrail budget fails", func(t *testing.T) {
		t.Setenv("TOOL_GUARDRAIL_MAX_ESTIMATED_COST_USD", "-1")

		_, err := Initialize(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})
}

func TestProviderConfigMasksKey(t *testing.T) {
	t.Setenv("ARK_API_KEY", "ark-secret-key")

	cfg, err := LoadProviderConfig()
	require.NoError(t, err)
	assert.NotContains(t, cfg.String(), "ark-secret-key")
	assert.Contains(t, cfg.String(), "***")
}
