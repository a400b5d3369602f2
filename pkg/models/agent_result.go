package models

import "time"

// AgentResultStatus is the lifecycle state of one agent's contribution.
type AgentResultStatus string

const (
	AgentStatusPending   AgentResultStatus = "pending"
	AgentStatusRunning   AgentResultStatus = "running"
	AgentStatusCompleted AgentResultStatus = "completed"
	// AgentStatusDegraded means retries were exhausted under degrade_mode
	// "partial": whatever content streamed before the failure is kept.
	AgentStatusDegraded AgentResultStatus = "degraded"
	// AgentStatusSkipped means retries were exhausted under degrade_mode
	// "skip": the agent contributes nothing downstream.
	AgentStatusSkipped AgentResultStatus = "skipped"
	AgentStatusFailed  AgentResultStatus = "failed"
)

// IsValid checks if the agent result status is a known value.
func (s AgentResultStatus) IsValid() bool {
	switch s {
	case AgentStatusPending,
		AgentStatusRunning,
		AgentStatusCompleted,
		AgentStatusDegraded,
		AgentStatusSkipped,
		AgentStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status is final for the run.
func (s AgentResultStatus) IsTerminal() bool {
	switch s {
	case AgentStatusCompleted, AgentStatusDegraded, AgentStatusSkipped, AgentStatusFailed:
		return true
	default:
		return false
	}
}

// AgentResult is one agent's output within a session. Unique per
// (session_id, agent_name); after the gather phase completes, content is
// only rewritten through an accepted debate revision.
type AgentResult struct {
	ID           int64             `json:"id"`
	SessionID    string            `json:"session_id"`
	AgentName    string            `json:"agent_name"`
	Content      string            `json:"content"`
	Thinking     string            `json:"thinking,omitempty"`
	Sources      []string          `json:"sources,omitempty"`
	Confidence   *float64          `json:"confidence,omitempty"`
	Status       AgentResultStatus `json:"status"`
	DurationMS   *int64            `json:"duration_ms,omitempty"`
	ErrorMessage string            `json:"error_message,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}
