package report

import (
	"math"
	"sort"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/tools"
)

// ChartSpecVersion tags the bundle with the Vega-Lite dialect its specs
// are written in.
const ChartSpecVersion = "vega-lite/v6"

const vegaLiteSchema = "https://vega.github.io/schema/vega-lite/v6.json"

// Chart is one renderable card: a Vega-Lite spec plus the prose shown
// around it and the text that stands in when rendering fails.
type Chart struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	FallbackText string         `json:"fallback_text"`
	Spec         map[string]any `json:"spec"`
}

// ProfileSummary carries the profile fields a chart reader needs for
// context; prices stay out of the bundle.
type ProfileSummary struct {
	TargetMarket string `json:"target_market"`
	SupplyChain  string `json:"supply_chain"`
	SellerType   string `json:"seller_type"`
}

// ChartBundle is the chart set for one session. It rides along in the
// status payload, embeds into the HTML document, and ships in the
// roadshow ZIP as report_charts.json.
type ChartBundle struct {
	SessionID      string         `json:"session_id"`
	SpecVersion    string         `json:"spec_version"`
	GeneratedAt    string         `json:"generated_at"`
	ProfileSummary ProfileSummary `json:"profile_summary"`
	Charts         []Chart        `json:"charts"`
}

// BuildChartBundle assembles the session's charts: the quality overview,
// the per-agent tool call distribution when any calls happened, and the
// degrade breakdown. A zero generatedAt defaults to now so production
// callers can leave it out and tests can pin it.
func BuildChartBundle(sessionID string, profile models.UserProfile, demo DemoMetrics, tool tools.AggregatedMetrics, generatedAt time.Time) ChartBundle {
	if generatedAt.IsZero() {
		generatedAt = time.Now()
	}

	charts := []Chart{overviewChart(demo)}
	if chart, ok := toolAgentChart(tool); ok {
		charts = append(charts, chart)
	}
	charts = append(charts, degradeBreakdownChart(demo))

	return ChartBundle{
		SessionID:   sessionID,
		SpecVersion: ChartSpecVersion,
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		ProfileSummary: ProfileSummary{
			TargetMarket: profile.TargetMarket,
			SupplyChain:  profile.SupplyChain,
			SellerType:   profile.SellerType,
		},
		Charts: charts,
	}
}

// overviewChart is a horizontal bar chart of the three session quality
// figures, all normalized to a 0-100 scale.
func overviewChart(demo DemoMetrics) Chart {
	totalAgents := demo.TotalAgents
	if totalAgents < 1 {
		totalAgents = 1
	}
	completion := clampPercent(float64(demo.CompletedAgents) * 100 / float64(totalAgents))
	stability := clampPercent(float64(demo.StabilityScore))
	evidence := clampPercent(demo.EvidenceCoverageRate * 100)

	order := []string{"Stability score", "Evidence coverage", "Completion rate"}
	values := []map[string]any{
		{"metric": order[0], "value": round2(stability)},
		{"metric": order[1], "value": round2(evidence)},
		{"metric": order[2], "value": round2(completion)},
	}

	return Chart{
		ID:           "overview_quality",
		Title:        "Stability & Evidence Overview",
		Description:  "A quick read on session quality; higher is better.",
		FallbackText: "If the chart cannot render, read the stability score, evidence coverage, and completion rate directly.",
		Spec: map[string]any{
			"$schema":     vegaLiteSchema,
			"description": "Session quality overview",
			"width":       "container",
			"height":      220,
			"data":        map[string]any{"values": values},
			"mark":        map[string]any{"type": "bar", "cornerRadiusEnd": 6},
			"encoding": map[string]any{
				"y": map[string]any{
					"field": "metric",
					"type":  "nominal",
					"sort":  order,
					"axis":  map[string]any{"title": nil, "labelFontSize": 12},
				},
				"x": map[string]any{
					"field": "value",
					"type":  "quantitative",
					"scale": map[string]any{"domain": []int{0, 100}},
					"axis":  map[string]any{"title": "Score (%)", "tickCount": 6},
				},
				"color": map[string]any{
					"field": "metric",
					"type":  "nominal",
					"scale": map[string]any{
						"domain": order,
						"range":  []string{"#2563eb", "#10b981", "#8b5cf6"},
					},
					"legend": nil,
				},
				"tooltip": []map[string]any{
					{"field": "metric", "title": "Metric"},
					{"field": "value", "title": "Value", "format": ".2f"},
				},
			},
			"config": map[string]any{"view": map[string]any{"stroke": "#e2e8f0"}},
		},
	}
}

// toolAgentChart charts tool call volume per agent, colored by estimated
// cost. Sessions without any tool calls get no chart at all rather than
// an empty frame.
func toolAgentChart(tool tools.AggregatedMetrics) (Chart, bool) {
	rows := make([]map[string]any, 0, len(tool.ByAgent))
	for agentName, bucket := range tool.ByAgent {
		if bucket.TotalCalls <= 0 {
			continue
		}
		rows = append(rows, map[string]any{
			"agent":      agentName,
			"calls":      bucket.TotalCalls,
			"cost_usd":   round6(math.Max(0, bucket.TotalEstimatedCostUSD)),
			"error_rate": round2(math.Max(0, bucket.ErrorRate) * 100),
		})
	}
	if len(rows) == 0 {
		return Chart{}, false
	}

	sort.Slice(rows, func(i, j int) bool {
		ci, cj := rows[i]["calls"].(int), rows[j]["calls"].(int)
		if ci != cj {
			return ci > cj
		}
		return rows[i]["agent"].(string) < rows[j]["agent"].(string)
	})

	return Chart{
		ID:           "agent_tool_calls",
		Title:        "Agent Tool Call Distribution",
		Description:  "Tool call volume per agent, with estimated cost and error rate.",
		FallbackText: "If the chart cannot render, check the cost and error rate of the highest-volume agents.",
		Spec: map[string]any{
			"$schema":     vegaLiteSchema,
			"description": "Agent tool call distribution",
			"width":       "container",
			"height":      260,
			"data":        map[string]any{"values": rows},
			"mark":        map[string]any{"type": "bar", "cornerRadiusEnd": 4},
			"encoding": map[string]any{
				"x": map[string]any{
					"field": "agent",
					"type":  "nominal",
					"sort":  "-y",
					"axis":  map[string]any{"title": nil, "labelAngle": -20},
				},
				"y": map[string]any{
					"field": "calls",
					"type":  "quantitative",
					"axis":  map[string]any{"title": "Tool calls"},
				},
				"color": map[string]any{
					"field":  "cost_usd",
					"type":   "quantitative",
					"scale":  map[string]any{"scheme": "blues"},
					"legend": map[string]any{"title": "Estimated cost (USD)"},
				},
				"tooltip": []map[string]any{
					{"field": "agent", "title": "Agent"},
					{"field": "calls", "title": "Calls"},
					{"field": "cost_usd", "title": "Estimated cost", "format": ".6f"},
					{"field": "error_rate", "title": "Error rate (%)", "format": ".2f"},
				},
			},
			"config": map[string]any{"view": map[string]any{"stroke": "#e2e8f0"}},
		},
	}, true
}

// degradeBreakdownChart is a donut over the three stability deduction
// sources. It always renders, even all-zero, so the reader sees that
// nothing degraded.
func degradeBreakdownChart(demo DemoMetrics) Chart {
	categories := []string{"Agent degraded/skipped", "Guardrail triggered", "Concurrency degraded"}
	values := []map[string]any{
		{"category": categories[0], "count": maxInt(0, demo.DegradeBreakdown.AgentDegradedOrSkipped)},
		{"category": categories[1], "count": maxInt(0, demo.DegradeBreakdown.GuardrailTriggered)},
		{"category": categories[2], "count": maxInt(0, demo.DegradeBreakdown.AdaptiveConcurrencyDegraded)},
	}

	return Chart{
		ID:           "degrade_breakdown",
		Title:        "Degrade Breakdown",
		Description:  "Explains where the stability deductions came from.",
		FallbackText: "If the chart cannot render, read the degrade breakdown counts and retry count directly.",
		Spec: map[string]any{
			"$schema":     vegaLiteSchema,
			"description": "Degrade breakdown",
			"width":       "container",
			"height":      220,
			"data":        map[string]any{"values": values},
			"mark":        map[string]any{"type": "arc", "innerRadius": 55},
			"encoding": map[string]any{
				"theta": map[string]any{"field": "count", "type": "quantitative"},
				"color": map[string]any{
					"field": "category",
					"type":  "nominal",
					"scale": map[string]any{
						"domain": categories,
						"range":  []string{"#f59e0b", "#ef4444", "#6366f1"},
					},
					"legend": map[string]any{"title": nil, "orient": "right"},
				},
				"tooltip": []map[string]any{
					{"field": "category", "title": "Source"},
					{"field": "count", "title": "Count"},
				},
			},
			"config": map[string]any{"view": map[string]any{"stroke": "#e2e8f0"}},
		},
	}
}

func clampPercent(v float64) float64 {
	return math.Min(100, math.Max(0, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
