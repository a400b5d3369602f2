package config

import (
	"fmt"
	"os"
	"strings"
)

// Agent name constants. These are stable identifiers: they appear in
// persisted rows, event payloads, and prompts.
const (
	AgentTrendScout        = "trend_scout"
	AgentCompetitorAnalyst = "competitor_analyst"
	AgentRegulationChecker = "regulation_checker"
	AgentSocialSentinel    = "social_sentinel"
	AgentSynthesizer       = "synthesizer"
	AgentDebateChallenger  = "debate_challenger"
)

// AgentSpec describes one agent: which model serves it, whether native
// thinking is requested, and how much web search budget it gets.
type AgentSpec struct {
	Name     string
	Role     AgentRole
	Model    string
	Thinking ThinkingMode

	// Task is the one-line description surfaced in agent_start events.
	Task string

	// WebSearchEnabled and WebSearchLimit bound provider-side search for
	// this agent. Synthesizer and challenger never search.
	WebSearchEnabled bool
	WebSearchLimit   int
}

// AgentRegistry holds the agent specs in workflow order.
type AgentRegistry struct {
	order []string
	specs map[string]*AgentSpec
}

// builtinAgents returns the six agents with their default model routing.
func builtinAgents() []*AgentSpec {
	return []*AgentSpec{
		{
			Name:             AgentTrendScout,
			Role:             AgentRoleWorker,
			Model:            "doubao-seed-2-0-pro-260215",
			Thinking:         ThinkingModeEnabled,
			Task:             "Scout demand trends and emerging product opportunities",
			WebSearchEnabled: true,
			WebSearchLimit:   20,
		},
		{
			Name:             AgentCompetitorAnalyst,
			Role:             AgentRoleWorker,
			Model:            "deepseek-v3-2-251201",
			Thinking:         ThinkingModeEnabled,
			Task:             "Map the competitive landscape and pricing pressure",
			WebSearchEnabled: true,
			WebSearchLimit:   15,
		},
		{
			Name:             AgentRegulationChecker,
			Role:             AgentRoleWorker,
			Model:            "kimi-k2-thinking-251104",
			Thinking:         ThinkingModeEnabled,
			Task:             "Check compliance, certification, and import constraints",
			WebSearchEnabled: true,
			WebSearchLimit:   15,
		},
		{
			Name:             AgentSocialSentinel,
			Role:             AgentRoleWorker,
			Model:            "doubao-seed-2-0-pro-260215",
			Thinking:         ThinkingModeEnabled,
			Task:             "Track social sentiment and consumer conversations",
			WebSearchEnabled: true,
			WebSearchLimit:   20,
		},
		{
			Name:     AgentSynthesizer,
			Role:     AgentRoleSynthesizer,
			Model:    "kimi-k2-thinking-251104",
			Thinking: ThinkingModeEnabled,
			Task:     "Consolidate all findings into the final market report",
		},
		{
			Name:     AgentDebateChallenger,
			Role:     AgentRoleChallenger,
			Model:    "deepseek-v3-2-251201",
			Thinking: ThinkingModeDisabled,
			Task:     "Stress-test worker findings through structured debate",
		},
	}
}

// NewAgentRegistry builds the registry from the built-in agents, applying
// per-agent model overrides from AGENT_MODEL_<NAME> environment variables.
// defaultModel is used when an override clears an agent's dedicated mapping.
func NewAgentRegistry(defaultModel string) (*AgentRegistry, error) {
	reg := &AgentRegistry{specs: make(map[string]*AgentSpec)}
	for _, spec := range builtinAgents() {
		if override := os.Getenv("AGENT_MODEL_" + strings.ToUpper(spec.Name)); override != "" {
			spec.Model = override
		}
		if spec.Model == "" {
			spec.Model = defaultModel
		}
		if !spec.Role.IsValid() {
			return nil, NewValidationError("agent", spec.Name, "role", ErrInvalidValue)
		}
		if !spec.Thinking.IsValid() {
			return nil, NewValidationError("agent", spec.Name, "thinking", ErrInvalidValue)
		}
		reg.order = append(reg.order, spec.Name)
		reg.specs[spec.Name] = spec
	}
	return reg, nil
}

// Get retrieves an agent spec by name.
func (r *AgentRegistry) Get(name string) (*AgentSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAgentNotFound, name)
	}
	return spec, nil
}

// Workers returns the gather-phase agents in workflow order.
func (r *AgentRegistry) Workers() []*AgentSpec {
	var out []*AgentSpec
	for _, name := range r.order {
		if r.specs[name].Role == AgentRoleWorker {
			out = append(out, r.specs[name])
		}
	}
	return out
}

// Synthesizer returns the synthesizer agent spec.
func (r *AgentRegistry) Synthesizer() *AgentSpec {
	return r.specs[AgentSynthesizer]
}

// Challenger returns the debate challenger agent spec.
func (r *AgentRegistry) Challenger() *AgentSpec {
	return r.specs[AgentDebateChallenger]
}

// Names returns all agent names in workflow order.
func (r *AgentRegistry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len returns the number of registered agents.
func (r *AgentRegistry) Len() int {
	return len(r.specs)
}
