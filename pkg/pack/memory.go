package pack

import "strings"

// MemorySnapshotVersion tags the snapshot layout.
const MemorySnapshotVersion = "phase3.memory.v1"

const (
	summaryRunes        = 260
	highlightRunes      = 180
	itemRunes           = 120
	keywordLimit        = 5
	actionItemLimit     = 6
	riskItemLimit       = 4
	debateFocusClip     = 120
	highlightStatusNone = "unknown"
)

// riskKeywords flag list items worth carrying forward as risks. The CJK
// terms survive from upstream agents that report in Chinese.
var riskKeywords = []string{
	"risk", "compliance", "restriction", "constraint", "challenge",
	"regulatory", "风险", "合规", "限制", "约束", "挑战",
}

// BuildMemorySnapshot condenses a finished session into the compact
// record later sessions warm up from: who found what, where the debate
// focused, and which action and risk items the report closed on.
func BuildMemorySnapshot(in Inputs) map[string]any {
	highlights := make([]map[string]any, 0, len(in.Results))
	for _, res := range in.Results {
		if res == nil {
			continue
		}
		status := string(res.Status)
		if status == "" {
			status = highlightStatusNone
		}
		highlights = append(highlights, map[string]any{
			"agent_name": res.AgentName,
			"status":     status,
			"confidence": normalizeConfidence(res.Confidence),
			"summary":    clipRunes(res.Content, highlightRunes),
			"keywords":   keywords(res.Content),
		})
	}

	focus := make([]map[string]any, 0, len(in.Debates))
	revised := 0
	for _, d := range in.Debates {
		if d == nil {
			continue
		}
		if d.Revised {
			revised++
		}
		focus = append(focus, map[string]any{
			"round_number":      d.RoundNumber,
			"debate_type":       string(d.DebateType),
			"challenger":        d.ChallengerAgent,
			"responder":         d.ResponderAgent,
			"revised":           d.Revised,
			"challenge_summary": clipRunes(d.ChallengeContent, debateFocusClip),
		})
	}

	items := markdownItems(in.FinalReport, itemRunes)
	actions := items
	if len(actions) > actionItemLimit {
		actions = actions[:actionItemLimit]
	}

	return map[string]any{
		"version":      MemorySnapshotVersion,
		"session_id":   in.SessionID,
		"generated_at": timestamp(in.GeneratedAt),
		"entities": map[string]any{
			"target_market": in.Profile.TargetMarket,
			"supply_chain":  in.Profile.SupplyChain,
			"seller_type":   in.Profile.SellerType,
			"price_range": map[string]any{
				"min_price": in.Profile.MinPrice,
				"max_price": in.Profile.MaxPrice,
			},
		},
		"summary":          clipRunes(in.FinalReport, summaryRunes),
		"agent_highlights": highlights,
		"debate_focus":     focus,
		"signals": map[string]any{
			"debate_count":  len(in.Debates),
			"revised_count": revised,
			"agent_count":   len(in.Results),
		},
		"action_items": actions,
		"risk_items":   riskItems(items),
	}
}

// keywords keeps the first distinct tokens of content, a cheap
// fingerprint for warm-up prompts.
func keywords(text string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, tok := range splitTokens(text) {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == keywordLimit {
			break
		}
	}
	return out
}

// riskItems filters the report's list items down to the ones flagging a
// risk, scanning every item rather than just the action window.
func riskItems(items []string) []string {
	out := []string{}
	for _, item := range items {
		if !mentionsRisk(item) {
			continue
		}
		out = append(out, item)
		if len(out) == riskItemLimit {
			break
		}
	}
	return out
}

func mentionsRisk(item string) bool {
	lower := strings.ToLower(item)
	for _, kw := range riskKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
