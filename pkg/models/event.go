package models

import "time"

// EventType identifies a workflow event in the SSE/WS taxonomy.
type EventType string

// Orchestrator lifecycle.
const (
	EventOrchestratorStart EventType = "orchestrator_start"
	EventGatherComplete    EventType = "gather_complete"
	EventOrchestratorEnd   EventType = "orchestrator_end"
	EventError             EventType = "error"
)

// Agent lifecycle and streaming.
const (
	EventAgentStart         EventType = "agent_start"
	EventAgentThinkingChunk EventType = "agent_thinking_chunk"
	EventAgentChunk         EventType = "agent_chunk"
	EventAgentEnd           EventType = "agent_end"
	EventAgentError         EventType = "agent_error"
)

// Tool mediation.
const (
	EventToolStart          EventType = "tool_start"
	EventToolEnd            EventType = "tool_end"
	EventToolError          EventType = "tool_error"
	EventGuardrailTriggered EventType = "guardrail_triggered"
)

// Workflow health.
const (
	EventRetry EventType = "retry"
	// EventAdaptiveConcurrency reports a provider concurrency limit change
	// (degraded on connection-error streaks, recovered after a calm window).
	EventAdaptiveConcurrency EventType = "adaptive_concurrency"
)

// Debate lifecycle.
const (
	EventDebateRoundStart  EventType = "debate_round_start"
	EventDebateRoundEnd    EventType = "debate_round_end"
	EventAgentChallenge    EventType = "agent_challenge"
	EventAgentChallengeEnd EventType = "agent_challenge_end"
	EventAgentRespond      EventType = "agent_respond"
	EventAgentRespondEnd   EventType = "agent_respond_end"
	EventAgentFollowupEnd  EventType = "agent_followup_end"
	EventConsensusReached  EventType = "consensus_reached"
)

// IsChunk reports whether the event is a high-frequency streaming delta.
// Chunk events are delivered live but never persisted.
func (t EventType) IsChunk() bool {
	return t == EventAgentChunk || t == EventAgentThinkingChunk
}

// Event is the flat envelope shared by the bus, the SSE stream, and the
// WebSocket feed. Exactly the fields relevant to the event type are set;
// everything optional is omitted from the wire form when empty.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`

	// DBEventID is the workflow_events row id, set by the publisher for
	// persisted events. Clients use it to resume via catchup.
	DBEventID int64 `json:"db_event_id,omitempty"`

	// Orchestration.
	Agents          []string `json:"agents,omitempty"`
	DebateRounds    int      `json:"debate_rounds,omitempty"`
	CompletedAgents []string `json:"completed_agents,omitempty"`
	TotalResults    int      `json:"total_results,omitempty"`

	// Agent lifecycle.
	Agent        string `json:"agent,omitempty"`
	Task         string `json:"task,omitempty"`
	Content      string `json:"content,omitempty"`
	Status       string `json:"status,omitempty"`
	DurationMS   *int64 `json:"duration_ms,omitempty"`
	Error        string `json:"error,omitempty"`
	ThinkingMode string `json:"thinking_mode,omitempty"`
	DegradeMode  string `json:"degrade_mode,omitempty"`

	// Tool mediation.
	Tool     string         `json:"tool,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
	Output   map[string]any `json:"output,omitempty"`
	CacheHit *bool          `json:"cache_hit,omitempty"`
	Rule     string         `json:"rule,omitempty"`
	Details  map[string]any `json:"details,omitempty"`

	// Retry notifications.
	TargetType  string `json:"target_type,omitempty"`
	TargetID    string `json:"target_id,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	BackoffMS   int64  `json:"backoff_ms,omitempty"`

	// Adaptive concurrency.
	Mode             string `json:"mode,omitempty"`
	ConcurrencyLimit int    `json:"concurrency_limit,omitempty"`
	Reason           string `json:"reason,omitempty"`

	// Debate.
	RoundNumber      int        `json:"round_number,omitempty"`
	DebateType       DebateType `json:"debate_type,omitempty"`
	Participants     []string   `json:"participants,omitempty"`
	FromAgent        string     `json:"from_agent,omitempty"`
	ToAgent          string     `json:"to_agent,omitempty"`
	ChallengeContent string     `json:"challenge_content,omitempty"`
	ResponseContent  string     `json:"response_content,omitempty"`
	FollowupContent  string     `json:"followup_content,omitempty"`
	Revised          *bool      `json:"revised,omitempty"`

	// Finalization.
	FinalReport    string         `json:"final_report,omitempty"`
	ReportHTMLURL  string         `json:"report_html_url,omitempty"`
	EvidencePack   map[string]any `json:"evidence_pack,omitempty"`
	MemorySnapshot map[string]any `json:"memory_snapshot,omitempty"`
	Summary        string         `json:"summary,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
}

// WorkflowEvent is the append-only persisted form of an event. Chunk events
// are never written; payload holds the envelope minus type/session/agent.
type WorkflowEvent struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	EventType string         `json:"event_type"`
	AgentName string         `json:"agent_name,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
