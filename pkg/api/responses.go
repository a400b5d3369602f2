package api

import (
	"time"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/services"
)

// MarketInsightResponse is returned by POST /generate once the workflow
// reaches a terminal status.
type MarketInsightResponse struct {
	SessionID      string               `json:"session_id"`
	Status         models.SessionStatus `json:"status"`
	Report         string               `json:"report"`
	ReportHTMLURL  string               `json:"report_html_url,omitempty"`
	EvidencePack   map[string]any       `json:"evidence_pack,omitempty"`
	MemorySnapshot map[string]any       `json:"memory_snapshot,omitempty"`
	AgentResults   []AgentResultSummary `json:"agent_results"`
	DebateSummary  DebateSummary        `json:"debate_summary"`
	CreatedAt      time.Time            `json:"created_at"`
	ErrorMessage   string               `json:"error_message,omitempty"`
}

// AgentResultSummary is the trimmed per-agent view embedded in
// MarketInsightResponse.
type AgentResultSummary struct {
	AgentName  string   `json:"agent_name"`
	Content    string   `json:"content"`
	Sources    []string `json:"sources"`
	DurationMS int64    `json:"duration_ms"`
}

// DebateSummary aggregates debate activity for MarketInsightResponse.
type DebateSummary struct {
	TotalExchanges int `json:"total_exchanges"`
	Rounds         int `json:"rounds"`
}

// SessionListResponse is returned by GET /sessions.
type SessionListResponse struct {
	Sessions []*models.Session `json:"sessions"`
}

// HealthCheck is one dependency's result inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by the health endpoints.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version"`
	V2Available bool                   `json:"v2_available"`
	Checks      map[string]HealthCheck `json:"checks"`
}

// buildInsightResponse shapes the status aggregate into the synchronous
// generate payload.
func buildInsightResponse(snap *services.SessionSnapshot) *MarketInsightResponse {
	session := snap.Session

	results := make([]AgentResultSummary, 0, len(snap.AgentResults))
	for _, r := range snap.AgentResults {
		summary := AgentResultSummary{
			AgentName: r.AgentName,
			Content:   r.Content,
			Sources:   r.Sources,
		}
		if summary.Sources == nil {
			summary.Sources = []string{}
		}
		if r.DurationMS != nil {
			summary.DurationMS = *r.DurationMS
		}
		results = append(results, summary)
	}

	return &MarketInsightResponse{
		SessionID:      session.ID,
		Status:         session.Status,
		Report:         session.FinalReport,
		ReportHTMLURL:  session.ReportHTMLURL,
		EvidencePack:   session.EvidencePack,
		MemorySnapshot: session.MemorySnapshot,
		AgentResults:   results,
		DebateSummary: DebateSummary{
			TotalExchanges: len(snap.DebateExchanges),
			Rounds:         session.CurrentDebateRound,
		},
		CreatedAt:    session.CreatedAt,
		ErrorMessage: session.ErrorMessage,
	}
}
