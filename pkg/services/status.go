package services

import (
	"context"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/tools"
)

// SessionSnapshot is the aggregate served by the status endpoint: the
// session row, every child collection, and the metrics computed from them
// on read.
type SessionSnapshot struct {
	Session         *models.Session          `json:"session"`
	AgentResults    []*models.AgentResult    `json:"agent_results"`
	DebateExchanges []*models.DebateExchange `json:"debate_exchanges"`
	WorkflowEvents  []*models.WorkflowEvent  `json:"workflow_events"`
	ToolInvocations []*models.ToolInvocation `json:"tool_invocations"`
	ToolMetrics     tools.AggregatedMetrics  `json:"tool_metrics"`
	DemoMetrics     report.DemoMetrics       `json:"demo_metrics"`
	ReportCharts    report.ChartBundle       `json:"report_charts"`
	ReportHTMLURL   string                   `json:"report_html_url,omitempty"`
}

// Status returns the full aggregate for one session. Demo metrics and the
// chart bundle are derived from the persisted rows, so polling a finished
// session always returns the same numbers.
func (s *InsightService) Status(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.loadRows(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	demo := report.ComputeDemoMetrics(session, rows.results, rows.events)
	toolMetrics := tools.AggregateMetrics(rows.tools)
	charts := report.BuildChartBundle(session.ID, session.Profile, demo, toolMetrics, time.Time{})

	return &SessionSnapshot{
		Session:         session,
		AgentResults:    rows.results,
		DebateExchanges: rows.debates,
		WorkflowEvents:  rows.events,
		ToolInvocations: rows.tools,
		ToolMetrics:     toolMetrics,
		DemoMetrics:     demo,
		ReportCharts:    charts,
		ReportHTMLURL:   session.ReportHTMLURL,
	}, nil
}

// Sessions lists recent sessions, newest first. limit 0 means the default
// page size; values beyond the cap are rejected.
func (s *InsightService) Sessions(ctx context.Context, status models.SessionStatus, limit, offset int) ([]*models.Session, error) {
	if status != "" && !status.IsValid() {
		return nil, NewValidationError("status", "unknown session status")
	}
	if limit < 0 || limit > maxSessionsLimit {
		return nil, NewValidationError("limit", "must be between 1 and 100")
	}
	if offset < 0 {
		return nil, NewValidationError("offset", "must not be negative")
	}
	if limit == 0 {
		limit = defaultSessionsLimit
	}

	sessions, err := s.store.ListSessions(ctx, models.SessionFilters{
		Status: status,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	if sessions == nil {
		sessions = []*models.Session{}
	}
	return sessions, nil
}
