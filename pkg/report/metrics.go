package report

import (
	"math"

	"github.com/weaveai/weaveai/pkg/models"
)

// Stability penalty weights. Guardrail trips weigh heaviest because they
// mean the session hit a budget wall, not just a slow provider.
const (
	retryPenalty     = 8
	degradePenalty   = 15
	guardrailPenalty = 20
)

// DegradeBreakdown splits the stability deductions by source.
type DegradeBreakdown struct {
	AgentDegradedOrSkipped      int `json:"agent_degraded_or_skipped"`
	GuardrailTriggered          int `json:"guardrail_triggered"`
	AdaptiveConcurrencyDegraded int `json:"adaptive_concurrency_degraded"`
}

// DemoMetrics summarizes how smoothly a session ran. It is computed on
// read from persisted rows, never stored, so replaying the same rows
// always yields the same numbers.
type DemoMetrics struct {
	// StabilityScore starts at 100 and loses 8 per retry, 15 per degrade,
	// and 20 per guardrail trip, clamped to [0,100].
	StabilityScore int    `json:"stability_score"`
	StabilityLevel string `json:"stability_level"`
	// EvidenceCoverageRate is the fraction of terminal agent results that
	// carry at least one source.
	EvidenceCoverageRate float64 `json:"evidence_coverage_rate"`
	// DegradeCount counts agent-level and concurrency degrades; guardrail
	// trips deduct separately and live in the breakdown.
	DegradeCount     int              `json:"degrade_count"`
	RetryCount       int              `json:"retry_count"`
	TotalDurationMS  int64            `json:"total_duration_ms"`
	TotalAgents      int              `json:"total_agents"`
	CompletedAgents  int              `json:"completed_agents"`
	DegradeBreakdown DegradeBreakdown `json:"degrade_breakdown"`
}

// ComputeDemoMetrics derives the session quality snapshot from the
// session row, its agent results, and its workflow events. Duration stays
// zero until the session is terminal.
func ComputeDemoMetrics(session *models.Session, results []*models.AgentResult, events []*models.WorkflowEvent) DemoMetrics {
	var m DemoMetrics

	var terminal, sourced int
	for _, res := range results {
		if res == nil {
			continue
		}
		m.TotalAgents++
		switch res.Status {
		case models.AgentStatusCompleted:
			m.CompletedAgents++
		case models.AgentStatusDegraded, models.AgentStatusSkipped:
			m.DegradeBreakdown.AgentDegradedOrSkipped++
		}
		if res.Status.IsTerminal() {
			terminal++
			if len(res.Sources) > 0 {
				sourced++
			}
		}
	}

	for _, row := range events {
		if row == nil {
			continue
		}
		switch row.EventType {
		case string(models.EventRetry):
			m.RetryCount++
		case string(models.EventGuardrailTriggered):
			m.DegradeBreakdown.GuardrailTriggered++
		case string(models.EventAdaptiveConcurrency):
			if mode, _ := row.Payload["mode"].(string); mode == "degraded" {
				m.DegradeBreakdown.AdaptiveConcurrencyDegraded++
			}
		}
	}

	m.DegradeCount = m.DegradeBreakdown.AgentDegradedOrSkipped + m.DegradeBreakdown.AdaptiveConcurrencyDegraded
	if terminal > 0 {
		m.EvidenceCoverageRate = math.Round(float64(sourced)/float64(terminal)*10000) / 10000
	}

	score := 100 -
		retryPenalty*m.RetryCount -
		degradePenalty*m.DegradeCount -
		guardrailPenalty*m.DegradeBreakdown.GuardrailTriggered
	if score < 0 {
		score = 0
	}
	m.StabilityScore = score
	m.StabilityLevel = stabilityLevel(score)

	if session != nil && session.CompletedAt != nil {
		m.TotalDurationMS = session.CompletedAt.Sub(session.CreatedAt).Milliseconds()
	}
	return m
}

func stabilityLevel(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 70:
		return "good"
	case score >= 50:
		return "fair"
	default:
		return "poor"
	}
}
