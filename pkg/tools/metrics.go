package tools

import "github.com/weaveai/weaveai/pkg/models"

// CostMode marks every reported figure as heuristic rather than billed.
const CostMode = "estimate"

// MetricsBucket summarizes tool invocations for one scope: the whole
// session or a single agent.
type MetricsBucket struct {
	TotalCalls            int     `json:"total_calls"`
	ErrorCount            int     `json:"error_count"`
	ErrorRate             float64 `json:"error_rate"`
	AvgDurationMS         float64 `json:"avg_duration_ms"`
	TotalEstimatedCostUSD float64 `json:"total_estimated_cost_usd"`
	CacheHitCount         int     `json:"cache_hit_count"`
	CacheHitRate          float64 `json:"cache_hit_rate"`
	CostMode              string  `json:"cost_mode"`
}

// AggregatedMetrics is the session rollup plus its per-agent breakdown.
type AggregatedMetrics struct {
	Session MetricsBucket            `json:"session"`
	ByAgent map[string]MetricsBucket `json:"by_agent"`
}

// AggregateMetrics rolls persisted invocation rows into reporting buckets.
func AggregateMetrics(rows []*models.ToolInvocation) AggregatedMetrics {
	byAgent := make(map[string][]*models.ToolInvocation)
	for _, row := range rows {
		byAgent[row.AgentName] = append(byAgent[row.AgentName], row)
	}

	agg := AggregatedMetrics{
		Session: bucketize(rows),
		ByAgent: make(map[string]MetricsBucket, len(byAgent)),
	}
	for agent, agentRows := range byAgent {
		agg.ByAgent[agent] = bucketize(agentRows)
	}
	return agg
}

func bucketize(rows []*models.ToolInvocation) MetricsBucket {
	bucket := MetricsBucket{CostMode: CostMode}
	if len(rows) == 0 {
		return bucket
	}

	var totalDuration, cost float64
	var timedCalls int
	for _, row := range rows {
		bucket.TotalCalls++
		if row.Status == models.ToolStatusFailed {
			bucket.ErrorCount++
		}
		if row.CacheHit {
			bucket.CacheHitCount++
		}
		if row.DurationMS != nil {
			totalDuration += float64(*row.DurationMS)
			timedCalls++
		}
		cost += row.EstimatedCostUSD
	}

	total := float64(bucket.TotalCalls)
	bucket.ErrorRate = round4(float64(bucket.ErrorCount) / total)
	bucket.CacheHitRate = round4(float64(bucket.CacheHitCount) / total)
	if timedCalls > 0 {
		bucket.AvgDurationMS = round2(totalDuration / float64(timedCalls))
	}
	bucket.TotalEstimatedCostUSD = round6(cost)
	return bucket
}
