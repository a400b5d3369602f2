package graph

import (
	"fmt"
	"strings"

	"github.com/weaveai/weaveai/pkg/models"
)

// fallbackReport assembles a report from the raw worker outputs when the
// synthesizer cannot produce one. It is deterministic and purely local, so
// it works even when every upstream call failed.
func fallbackReport(results []*models.AgentResult, debates []*models.DebateExchange) string {
	var b strings.Builder
	b.WriteString("# Market Insight Report\n")

	succeeded := 0
	for _, result := range results {
		if result.Content == "" {
			continue
		}
		succeeded++
		fmt.Fprintf(&b, "\n## %s\n", result.AgentName)
		b.WriteString(result.Content)
	}

	var failed []*models.AgentResult
	for _, result := range results {
		if result.Content == "" && result.ErrorMessage != "" {
			failed = append(failed, result)
		}
	}
	if len(failed) > 0 {
		b.WriteString("\n## Collection Issues\n")
		for _, result := range failed {
			fmt.Fprintf(&b, "- %s: %s\n", result.AgentName, result.ErrorMessage)
		}
	}

	if succeeded == 0 {
		b.WriteString("\n## Notice\nNo usable model output was produced for this session; this is a degraded report.\n")
	}

	if len(debates) > 0 {
		b.WriteString("\n## Debate Summary\n")
		for _, exchange := range debates {
			fmt.Fprintf(&b, "- Round %d (%s): %s → %s\n",
				exchange.RoundNumber, exchange.DebateType,
				exchange.ChallengerAgent, exchange.ResponderAgent)
		}
	}

	return b.String()
}
