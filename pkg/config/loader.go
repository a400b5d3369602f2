package config

import (
	"context"
	"fmt"
	"log/slog"
)

// Initialize loads, validates, and returns ready-to-use configuration.
// This is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load provider (Ark) settings
//  2. Load workflow defaults (debate/retry/degrade)
//  3. Load tool mediation settings, guardrails, and redaction
//  4. Load worker pool, server, and retention settings
//  5. Build the agent registry (built-ins + env model overrides)
//  6. Load scenario presets (built-ins + optional PRESETS_PATH file)
//  7. Return Config ready for use
func Initialize(ctx context.Context) (*Config, error) {
	_ = ctx // reserved for future remote config sources

	// 1. Provider settings
	provider, err := LoadProviderConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load provider config: %w", err)
	}

	// 2. Workflow defaults
	workflow, err := LoadWorkflowConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow config: %w", err)
	}

	// 3. Tool mediation + guardrails + redaction
	tools, err := LoadToolsConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load tools config: %w", err)
	}
	guardrails, err := LoadGuardrailConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load guardrail config: %w", err)
	}
	masking, err := LoadMaskingConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load masking config: %w", err)
	}

	// 4. Worker pool, server, retention
	queue, err := LoadQueueConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load queue config: %w", err)
	}
	server, err := LoadServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	retention, err := LoadRetentionConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load retention config: %w", err)
	}

	// 5. Agent registry
	agents, err := NewAgentRegistry(provider.DefaultModel)
	if err != nil {
		return nil, fmt.Errorf("failed to build agent registry: %w", err)
	}

	// 6. Scenario presets
	presets, err := NewPresetRegistry(getEnv("PRESETS_PATH", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to load presets: %w", err)
	}

	cfg := &Config{
		Provider:   provider,
		Workflow:   workflow,
		Tools:      tools,
		Guardrails: guardrails,
		Masking:    masking,
		Queue:      queue,
		Server:     server,
		Retention:  retention,
		Agents:     agents,
		Presets:    presets,
	}

	stats := cfg.Stats()
	slog.Info("Configuration initialized successfully",
		"agents", stats.Agents,
		"workers", stats.Workers,
		"presets", stats.Presets,
		"provider", provider.String())

	return cfg, nil
}
