package report

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/tools"
)

const headlineClipRunes = 220

// SummaryInputs feeds the executive summary. Results and debates arrive
// in workflow order and render in that order.
type SummaryInputs struct {
	Session     *models.Session
	Results     []*models.AgentResult
	Debates     []*models.DebateExchange
	Demo        DemoMetrics
	Tool        tools.AggregatedMetrics
	FinalReport string
	ExportedAt  time.Time
}

// BuildExecutiveSummary renders the one-page markdown digest that leads
// the roadshow ZIP: headline figures, the profile, a per-agent and debate
// digest, and what else is in the package. Layout is fixed so two exports
// of the same session diff clean.
func BuildExecutiveSummary(in SummaryInputs) string {
	exportedAt := in.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = time.Now()
	}
	session := in.Session
	if session == nil {
		session = &models.Session{}
	}

	lines := []string{
		"# WeaveAI Roadshow Executive Summary",
		"",
		fmt.Sprintf("- Session ID: `%s`", session.ID),
		fmt.Sprintf("- Exported at: %s", exportedAt.UTC().Format(time.RFC3339)),
		fmt.Sprintf("- Session status: %s", valueOr(string(session.Status), "unknown")),
		"",
		"## Profile",
		fmt.Sprintf("- Target market: %s", valueOr(session.Profile.TargetMarket, "Not provided")),
		fmt.Sprintf("- Core category: %s", valueOr(session.Profile.SupplyChain, "Not provided")),
		fmt.Sprintf("- Seller type: %s", valueOr(session.Profile.SellerType, "Not provided")),
		fmt.Sprintf("- Price range: %s", session.Profile.PriceRange()),
		"",
		"## Key Metrics",
		fmt.Sprintf("- Total duration: %s", formatDuration(in.Demo.TotalDurationMS)),
		fmt.Sprintf("- Stability score: %d (%s)", in.Demo.StabilityScore, valueOr(in.Demo.StabilityLevel, "unknown")),
		fmt.Sprintf("- Evidence coverage: %s", formatPercent(in.Demo.EvidenceCoverageRate)),
		fmt.Sprintf("- Degrades: %d", in.Demo.DegradeCount),
		fmt.Sprintf("- Retries: %d", in.Demo.RetryCount),
		fmt.Sprintf("- Tool calls: %d", in.Tool.Session.TotalCalls),
		fmt.Sprintf("- Tool error rate: %s", formatPercent(in.Tool.Session.ErrorRate)),
	}

	lines = append(lines, "", "## Agent Digest")
	if len(in.Results) == 0 {
		lines = append(lines, "- No agent results recorded.")
	}
	for _, res := range in.Results {
		if res == nil {
			continue
		}
		line := fmt.Sprintf("- %s: %s", res.AgentName, valueOr(string(res.Status), "unknown"))
		if res.Confidence != nil {
			line += fmt.Sprintf(", confidence %.2f", *res.Confidence)
		}
		if res.DurationMS != nil {
			line += ", " + formatDuration(*res.DurationMS)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", "## Debate Digest")
	if len(in.Debates) == 0 {
		lines = append(lines, "- No debate exchanges recorded.")
	} else {
		rounds, revised := 0, 0
		for _, d := range in.Debates {
			if d == nil {
				continue
			}
			if d.RoundNumber > rounds {
				rounds = d.RoundNumber
			}
			if d.Revised {
				revised++
			}
		}
		lines = append(lines, fmt.Sprintf("- Rounds: %d, exchanges: %d, revised: %d", rounds, len(in.Debates), revised))
		for _, d := range in.Debates {
			if d == nil {
				continue
			}
			marker := ""
			if d.Revised {
				marker = " (revised)"
			}
			lines = append(lines, fmt.Sprintf("- Round %d %s: %s → %s%s",
				d.RoundNumber, d.DebateType, d.ChallengerAgent, d.ResponderAgent, marker))
		}
	}

	lines = append(lines,
		"",
		"## Headline",
		"- "+extractHeadline(in.FinalReport),
		"",
		"## Attachments",
		"- `report.html`: full visual report",
		"- `evidence_pack.json`: claim-to-source traceability",
		"- `memory_snapshot.json`: lightweight session memory",
		"- `demo_metrics.json`: headline session quality figures",
		"- `tool_metrics.json`: tool call cost and stability stats",
		"- `report_charts.json`: chart bundle (Vega-Lite)",
		"- `workflow_timeline.json`: key event timeline",
	)

	return strings.Join(lines, "\n")
}

// extractHeadline pulls the first non-empty report line, heading markers
// stripped, as the one-line takeaway.
func extractHeadline(reportMarkdown string) string {
	for _, line := range strings.Split(reportMarkdown, "\n") {
		content := strings.TrimSpace(line)
		if content == "" {
			continue
		}
		if strings.HasPrefix(content, "#") {
			content = strings.TrimSpace(strings.TrimLeft(content, "#"))
		}
		if content != "" {
			return clipRunes(content, headlineClipRunes)
		}
	}
	return "No extractable takeaway; see the full report."
}

func formatDuration(ms int64) string {
	switch {
	case ms <= 0:
		return "--"
	case ms < 60000:
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	default:
		return fmt.Sprintf("%dm %ds", ms/60000, (ms%60000)/1000)
	}
}

func formatPercent(rate float64) string {
	return fmt.Sprintf("%.1f%%", rate*100)
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

// clipRunes trims text to at most limit runes, ending an over-long value
// with a single ellipsis rune so the clipped form still fits the limit.
func clipRunes(text string, limit int) string {
	trimmed := strings.TrimSpace(text)
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(trimmed) <= limit {
		return trimmed
	}
	runes := []rune(trimmed)
	return string(runes[:limit-1]) + "…"
}
