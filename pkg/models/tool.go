package models

import "time"

// ToolInvocationStatus is the lifecycle state of one tool invocation.
type ToolInvocationStatus string

const (
	ToolStatusPending   ToolInvocationStatus = "pending"
	ToolStatusCompleted ToolInvocationStatus = "completed"
	ToolStatusFailed    ToolInvocationStatus = "failed"
)

// IsValid checks if the tool invocation status is a known value.
func (s ToolInvocationStatus) IsValid() bool {
	return s == ToolStatusPending || s == ToolStatusCompleted || s == ToolStatusFailed
}

// ToolInvocation is the accounting record for one mediated tool call.
// invocation_id is unique; a retried attempt gets a fresh one. Input and
// output are stored after redaction.
type ToolInvocation struct {
	ID                    int64                `json:"id"`
	InvocationID          string               `json:"invocation_id"`
	SessionID             string               `json:"session_id"`
	AgentName             string               `json:"agent_name"`
	ToolName              string               `json:"tool_name"`
	Context               string               `json:"context,omitempty"`
	ModelName             string               `json:"model_name,omitempty"`
	Status                ToolInvocationStatus `json:"status"`
	CacheHit              bool                 `json:"cache_hit"`
	Input                 map[string]any       `json:"input,omitempty"`
	Output                map[string]any       `json:"output,omitempty"`
	ErrorMessage          string               `json:"error_message,omitempty"`
	EstimatedInputTokens  int                  `json:"estimated_input_tokens"`
	EstimatedOutputTokens int                  `json:"estimated_output_tokens"`
	EstimatedCostUSD      float64              `json:"estimated_cost_usd"`
	DurationMS            *int64               `json:"duration_ms,omitempty"`
	StartedAt             *time.Time           `json:"started_at,omitempty"`
	FinishedAt            *time.Time           `json:"finished_at,omitempty"`
	CreatedAt             time.Time            `json:"created_at"`
}

// ToolMetrics is the per-session aggregate over tool invocations.
type ToolMetrics struct {
	TotalCalls            int     `json:"total_calls"`
	TotalEstimatedCostUSD float64 `json:"total_estimated_cost_usd"`
	ErrorRate             float64 `json:"error_rate"`
	AvgDurationMS         float64 `json:"avg_duration_ms"`
	CacheHitRate          float64 `json:"cache_hit_rate"`
}
