// Package config loads and validates the application configuration from the
// environment (plus an optional .env file and an optional scenario preset
// file). Initialize() is the single entry point; the returned Config is
// immutable after startup.
package config

// Config is the umbrella configuration object returned by Initialize()
// and used throughout the application.
type Config struct {
	// Provider holds Ark API connection settings.
	Provider *ProviderConfig

	// Workflow holds debate/retry/degrade defaults for new sessions.
	Workflow *WorkflowConfig

	// Tools holds tool mediation settings (rate limit, cache, pricing).
	Tools *ToolsConfig

	// Guardrails holds per-session tool budget rules.
	Guardrails *GuardrailConfig

	// Masking holds tool IO redaction settings.
	Masking *MaskingConfig

	// Queue holds worker pool configuration.
	Queue *QueueConfig

	// Server holds HTTP server and artifact output settings.
	Server *ServerConfig

	// Retention holds data retention and cleanup settings.
	Retention *RetentionConfig

	// Agents is the registry of the six built-in agents with any
	// per-agent model overrides applied.
	Agents *AgentRegistry

	// Presets maps scenario preset names to request overrides.
	Presets *PresetRegistry
}

// Stats contains statistics about loaded configuration for logging.
type Stats struct {
	Agents  int
	Workers int
	Presets int
}

// Stats returns configuration statistics for logging/monitoring.
func (c *Config) Stats() Stats {
	s := Stats{}
	if c.Agents != nil {
		s.Agents = c.Agents.Len()
		s.Workers = len(c.Agents.Workers())
	}
	if c.Presets != nil {
		s.Presets = c.Presets.Len()
	}
	return s
}

// GetAgent retrieves an agent spec by name.
// This is a convenience method that wraps AgentRegistry.Get().
func (c *Config) GetAgent(name string) (*AgentSpec, error) {
	return c.Agents.Get(name)
}

// GetPreset retrieves a scenario preset by name.
// This is a convenience method that wraps PresetRegistry.Get().
func (c *Config) GetPreset(name string) (*ScenarioPreset, error) {
	return c.Presets.Get(name)
}
