package config

// ThinkingMode controls whether provider-native reasoning is requested
// for an agent's model call.
type ThinkingMode string

const (
	// ThinkingModeAuto lets the model decide
	ThinkingModeAuto ThinkingMode = "auto"
	// ThinkingModeEnabled forces reasoning on
	ThinkingModeEnabled ThinkingMode = "enabled"
	// ThinkingModeDisabled forces reasoning off
	ThinkingModeDisabled ThinkingMode = "disabled"
)

// IsValid checks if the thinking mode is valid
func (m ThinkingMode) IsValid() bool {
	return m == ThinkingModeAuto || m == ThinkingModeEnabled || m == ThinkingModeDisabled
}

// AgentRole classifies an agent's position in the workflow graph.
type AgentRole string

const (
	// AgentRoleWorker is a gather-phase domain analyst
	AgentRoleWorker AgentRole = "worker"
	// AgentRoleSynthesizer folds worker outputs and debate history into the final report
	AgentRoleSynthesizer AgentRole = "synthesizer"
	// AgentRoleChallenger drives the debate rounds
	AgentRoleChallenger AgentRole = "challenger"
)

// IsValid checks if the agent role is valid
func (r AgentRole) IsValid() bool {
	return r == AgentRoleWorker || r == AgentRoleSynthesizer || r == AgentRoleChallenger
}
