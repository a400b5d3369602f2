// Package events provides real-time event delivery: an in-process bus
// fanning out to SSE streams and WebSocket connections, with durable rows
// behind a catchup query.
//
// ════════════════════════════════════════════════════════════════
// Event Lifecycle Patterns
// ════════════════════════════════════════════════════════════════
//
// Workflow events follow one of two delivery patterns. Clients
// differentiate them by event type.
//
// Pattern 1 — STREAMING:
//
//	agent_start            {agent, task}
//	agent_thinking_chunk   {content: "..."}  (repeated, not persisted)
//	agent_chunk            {content: "..."}  (repeated, not persisted)
//	agent_end              {agent, status, duration_ms}
//
//	Chunks carry live deltas while the model is still producing output.
//	They are transient: lost on reconnect, never written to the events
//	table. The terminal event carries the durable outcome, and the full
//	text lands on the agent_results row before agent_end is emitted.
//
// Pattern 2 — FIRE-AND-FORGET:
//
//	debate_round_start, agent_challenge_end, retry, guardrail_triggered,
//	orchestrator_end, ...
//
//	The event is complete in a single message and persisted to the
//	events table before fan-out, so a catchup read never trails the
//	live feed.
//
// ════════════════════════════════════════════════════════════════
package events

// GlobalSessionsChannel carries session-level lifecycle events
// (orchestrator_start, orchestrator_end, error) for the session list page.
const GlobalSessionsChannel = "sessions"

// SessionChannel returns the channel name for a specific session's events.
// Format: "session:{session_id}"
func SessionChannel(sessionID string) string {
	return "session:" + sessionID
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "session:abc-123")
	LastEventID *int64 `json:"last_event_id,omitempty"` // For catchup
}
