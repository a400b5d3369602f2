package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

func TestBuiltinPresets(t *testing.T) {
	reg, err := NewPresetRegistry("")
	require.NoError(t, err)

	t.Run("fast60 skips debate", func(t *testing.T) {
		p, err := reg.Get("fast60")
		require.NoError(t, err)
		require.NotNil(t, p.DebateRounds)
		assert.Equal(t, 0, *p.DebateRounds)
		require.NotNil(t, p.RetryMaxAttempts)
		assert.Equal(t, 1, *p.RetryMaxAttempts)
	})

	t.Run("deep runs both rounds with followups", func(t *testing.T) {
		p, err := reg.Get("deep")
		require.NoError(t, err)
		require.NotNil(t, p.DebateRounds)
		assert.Equal(t, 2, *p.DebateRounds)
		require.NotNil(t, p.EnableFollowup)
		assert.True(t, *p.EnableFollowup)
	})

	t.Run("unknown preset", func(t *testing.T) {
		_, err := reg.Get("warp_speed")
		assert.ErrorIs(t, err, ErrPresetNotFound)
	})
}

func TestPresetFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "presets.yaml")

	t.Setenv("CI_RETRY_ATTEMPTS", "3")
	yaml := `
presets:
  fast60:
    debate_rounds: 1
  ci:
    debate_rounds: 0
    retry_max_attempts: {{.CI_RETRY_ATTEMPTS}}
    degrade_mode: skip
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	reg, err := NewPresetRegistry(path)
	require.NoError(t, err)

	t.Run("file entry overrides builtin", func(t *testing.T) {
		p, err := reg.Get("fast60")
		require.NoError(t, err)
		require.NotNil(t, p.DebateRounds)
		assert.Equal(t, 1, *p.DebateRounds)
	})

	t.Run("env expansion applies inside the file", func(t *testing.T) {
		p, err := reg.Get("ci")
		require.NoError(t, err)
		require.NotNil(t, p.RetryMaxAttempts)
		assert.Equal(t, 3, *p.RetryMaxAttempts)
		assert.Equal(t, models.DegradeModeSkip, p.DegradeMode)
	})

	t.Run("builtins without overrides survive", func(t *testing.T) {
		_, err := reg.Get("standard3m")
		assert.NoError(t, err)
	})
}

func TestPresetFileValidation(t *testing.T) {
	dir := t.TempDir()

	t.Run("bad degrade mode is rejected", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("presets:\n  x:\n    degrade_mode: explode\n"), 0o600))

		_, err := NewPresetRegistry(path)
		assert.ErrorIs(t, err, ErrInvalidValue)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := NewPresetRegistry(filepath.Join(dir, "nope.yaml"))
		require.Error(t, err)

		var loadErr *LoadError
		assert.ErrorAs(t, err, &loadErr)
	})
}

func TestPresetApply(t *testing.T) {
	one := 1
	preset := &ScenarioPreset{
		DebateRounds:   &one,
		EnableFollowup: boolPtr(false),
		DegradeMode:    models.DegradeModeSkip,
	}

	t.Run("fills unset fields", func(t *testing.T) {
		var req models.MarketInsightRequest
		preset.Apply(&req)
		require.NotNil(t, req.DebateRounds)
		assert.Equal(t, 1, *req.DebateRounds)
		assert.Equal(t, models.DegradeModeSkip, req.DegradeMode)
	})

	t.Run("explicit request fields win", func(t *testing.T) {
		two := 2
		req := models.MarketInsightRequest{
			DebateRounds: &two,
			DegradeMode:  models.DegradeModeFail,
		}
		preset.Apply(&req)
		assert.Equal(t, 2, *req.DebateRounds)
		assert.Equal(t, models.DegradeModeFail, req.DegradeMode)
		require.NotNil(t, req.EnableFollowup)
		assert.False(t, *req.EnableFollowup)
	})
}
