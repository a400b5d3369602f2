package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

func invocationRow(agent string, status models.ToolInvocationStatus, cacheHit bool, durationMS int64, cost float64) *models.ToolInvocation {
	return &models.ToolInvocation{
		AgentName:        agent,
		Status:           status,
		CacheHit:         cacheHit,
		DurationMS:       &durationMS,
		EstimatedCostUSD: cost,
	}
}

func TestAggregateMetricsEmpty(t *testing.T) {
	agg := AggregateMetrics(nil)
	assert.Equal(t, MetricsBucket{CostMode: CostMode}, agg.Session)
	assert.Empty(t, agg.ByAgent)
}

func TestAggregateMetrics(t *testing.T) {
	rows := []*models.ToolInvocation{
		invocationRow("trend_scout", models.ToolStatusCompleted, false, 1200, 0.0021),
		invocationRow("trend_scout", models.ToolStatusCompleted, true, 0, 0),
		invocationRow("competitor_analyst", models.ToolStatusFailed, false, 800, 0.0009),
		invocationRow("competitor_analyst", models.ToolStatusCompleted, false, 1000, 0.0014),
	}

	agg := AggregateMetrics(rows)

	session := agg.Session
	assert.Equal(t, 4, session.TotalCalls)
	assert.Equal(t, 1, session.ErrorCount)
	assert.InDelta(t, 0.25, session.ErrorRate, 1e-9)
	assert.InDelta(t, 750.0, session.AvgDurationMS, 1e-9)
	assert.InDelta(t, 0.0044, session.TotalEstimatedCostUSD, 1e-9)
	assert.Equal(t, 1, session.CacheHitCount)
	assert.InDelta(t, 0.25, session.CacheHitRate, 1e-9)
	assert.Equal(t, CostMode, session.CostMode)

	require.Len(t, agg.ByAgent, 2)
	scout := agg.ByAgent["trend_scout"]
	assert.Equal(t, 2, scout.TotalCalls)
	assert.Equal(t, 0, scout.ErrorCount)
	assert.Equal(t, 1, scout.CacheHitCount)
	assert.InDelta(t, 0.5, scout.CacheHitRate, 1e-9)
	assert.InDelta(t, 600.0, scout.AvgDurationMS, 1e-9)

	analyst := agg.ByAgent["competitor_analyst"]
	assert.Equal(t, 2, analyst.TotalCalls)
	assert.Equal(t, 1, analyst.ErrorCount)
	assert.InDelta(t, 0.5, analyst.ErrorRate, 1e-9)
	assert.InDelta(t, 900.0, analyst.AvgDurationMS, 1e-9)
	assert.InDelta(t, 0.0023, analyst.TotalEstimatedCostUSD, 1e-9)
}

func TestAggregateMetricsSkipsMissingDurations(t *testing.T) {
	rows := []*models.ToolInvocation{
		invocationRow("trend_scout", models.ToolStatusCompleted, false, 500, 0.001),
		{AgentName: "trend_scout", Status: models.ToolStatusPending},
	}

	agg := AggregateMetrics(rows)
	assert.Equal(t, 2, agg.Session.TotalCalls)
	assert.InDelta(t, 500.0, agg.Session.AvgDurationMS, 1e-9)
}
