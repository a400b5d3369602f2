package pack

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/models"
)

// EvidencePackVersion tags the pack layout so downstream consumers can
// reject shapes they were not built for.
const EvidencePackVersion = "phase3.v1"

const (
	claimLimit            = 12
	claimMinRunes         = 30
	claimClipRunes        = 240
	reportExcerptRunes    = 300
	debateSummaryRunes    = 140
	claimOverlapThreshold = 0.5
)

// BuildEvidencePack assembles the traceability record for a finished
// session. Claims are claim-like sentences pulled from the final report
// and attributed to agents by lexical overlap; sources are the deduped
// references agents and their tool calls produced, numbered in first-seen
// order. When the report carries no concrete claims the pack falls back
// to one claim per contributing agent so the artifact never ships empty
// while findings exist.
func BuildEvidencePack(in Inputs) map[string]any {
	generatedAt := timestamp(in.GeneratedAt)
	index := buildSourceIndex(in.Results, in.Invocations)
	invocationsByAgent := groupInvocationIDs(in.Invocations)

	claims := make([]map[string]any, 0, claimLimit)
	trace := make([]map[string]any, 0, claimLimit)
	addClaim := func(text string, supporters []string) {
		id := fmt.Sprintf("C%03d", len(claims)+1)
		refs := index.refsFor(supporters)
		claims = append(claims, map[string]any{
			"claim_id":      id,
			"text":          clipRunes(text, claimClipRunes),
			"source_agents": supporters,
			"source_refs":   refs,
			"confidence":    claimConfidence(supporters, in.Results),
			"generated_at":  generatedAt,
		})
		trace = append(trace, map[string]any{
			"claim_id":            id,
			"source_agents":       supporters,
			"source_refs":         refs,
			"tool_invocation_ids": collectRefs(supporters, invocationsByAgent),
		})
	}

	sentences := claimSentences(in.FinalReport)
	if len(sentences) > 0 {
		for _, sentence := range sentences {
			addClaim(sentence, supportingAgents(sentence, in.Results))
		}
	} else {
		// No figures in the report: fall back to one claim per agent,
		// the agent's own finding standing in for a report sentence.
		for _, res := range in.Results {
			if res == nil || res.Content == "" {
				continue
			}
			addClaim(res.Content, []string{res.AgentName})
			if len(claims) == claimLimit {
				break
			}
		}
	}

	adjustments := make([]map[string]any, 0, len(in.Debates))
	for _, d := range in.Debates {
		if d == nil {
			continue
		}
		adjustments = append(adjustments, map[string]any{
			"round_number":      d.RoundNumber,
			"debate_type":       string(d.DebateType),
			"challenger":        d.ChallengerAgent,
			"responder":         d.ResponderAgent,
			"revised":           d.Revised,
			"challenge_summary": clipRunes(d.ChallengeContent, debateSummaryRunes),
			"response_summary":  clipRunes(d.ResponseContent, debateSummaryRunes),
		})
	}

	return map[string]any{
		"version":      EvidencePackVersion,
		"session_id":   in.SessionID,
		"generated_at": generatedAt,
		"profile": map[string]any{
			"target_market": in.Profile.TargetMarket,
			"supply_chain":  in.Profile.SupplyChain,
			"seller_type":   in.Profile.SellerType,
			"min_price":     in.Profile.MinPrice,
			"max_price":     in.Profile.MaxPrice,
		},
		"report_excerpt":     clipRunes(in.FinalReport, reportExcerptRunes),
		"claims":             claims,
		"sources":            index.entries,
		"debate_adjustments": adjustments,
		"traceability":       trace,
		"stats": map[string]any{
			"claims_count":  len(claims),
			"sources_count": len(index.entries),
			"debate_count":  len(in.Debates),
		},
	}
}

// claimSentences pulls claim-like sentences from a markdown report: list
// items and paragraph sentences long enough to say something and carrying
// a figure. Headings, tables, block quotes, and fenced code never
// contribute.
func claimSentences(report string) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(text string) {
		text = strings.TrimSpace(emphasisCleaner.Replace(text))
		if utf8.RuneCountInString(text) < claimMinRunes || !hasFigure(text) {
			return
		}
		if _, ok := seen[text]; ok {
			return
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}

	var paragraph strings.Builder
	flush := func() {
		if paragraph.Len() == 0 {
			return
		}
		for _, sentence := range splitSentences(paragraph.String()) {
			add(sentence)
		}
		paragraph.Reset()
	}

	inFence := false
	for _, line := range strings.Split(report, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			inFence = !inFence
			flush()
			continue
		}
		if inFence {
			continue
		}
		switch {
		case trimmed == "":
			flush()
		case strings.HasPrefix(trimmed, "#"),
			strings.HasPrefix(trimmed, "|"),
			strings.HasPrefix(trimmed, ">"):
			flush()
		default:
			if m := listItemPattern.FindStringSubmatch(line); m != nil {
				flush()
				add(m[1])
				continue
			}
			if paragraph.Len() > 0 {
				paragraph.WriteByte(' ')
			}
			paragraph.WriteString(trimmed)
		}
	}
	flush()

	if len(out) > claimLimit {
		out = out[:claimLimit]
	}
	return out
}

// supportingAgents attributes a claim to agents by lexical overlap: an
// agent supports the claim when its content covers at least half of the
// claim's tokens. The best match is kept even below the threshold so
// extracted claims stay attributable when phrasing drifts.
func supportingAgents(claim string, results []*models.AgentResult) []string {
	claimTokens := tokenSet(claim)
	if len(claimTokens) == 0 {
		return []string{}
	}
	supporters := []string{}
	best := ""
	bestScore := 0.0
	for _, res := range results {
		if res == nil || res.Content == "" {
			continue
		}
		content := tokenSet(res.Content)
		matched := 0
		for tok := range claimTokens {
			if _, ok := content[tok]; ok {
				matched++
			}
		}
		score := float64(matched) / float64(len(claimTokens))
		if score > bestScore {
			bestScore = score
			best = res.AgentName
		}
		if score >= claimOverlapThreshold {
			supporters = append(supporters, res.AgentName)
		}
	}
	if len(supporters) == 0 && bestScore > 0 {
		supporters = append(supporters, best)
	}
	return supporters
}

// claimConfidence averages the normalized confidences of the supporting
// agents. A claim nobody backs keeps the neutral default rather than
// scoring zero.
func claimConfidence(supporters []string, results []*models.AgentResult) float64 {
	byName := make(map[string]*models.AgentResult, len(results))
	for _, res := range results {
		if res != nil {
			byName[res.AgentName] = res
		}
	}
	var sum float64
	var n int
	for _, name := range supporters {
		res, ok := byName[name]
		if !ok {
			continue
		}
		sum += normalizeConfidence(res.Confidence)
		n++
	}
	if n == 0 {
		return defaultConfidence
	}
	return round3(sum / float64(n))
}

// sourceIndex numbers every distinct reference in first-seen order and
// remembers which agent surfaced each one.
type sourceIndex struct {
	entries     []map[string]any
	idByValue   map[string]string
	refsByAgent map[string][]string
}

func buildSourceIndex(results []*models.AgentResult, invocations []*models.ToolInvocation) *sourceIndex {
	idx := &sourceIndex{
		entries:     []map[string]any{},
		idByValue:   make(map[string]string),
		refsByAgent: make(map[string][]string),
	}
	for _, res := range results {
		if res == nil {
			continue
		}
		for _, src := range res.Sources {
			idx.add(res.AgentName, src)
		}
	}
	for _, inv := range invocations {
		if inv == nil || len(inv.Output) == 0 {
			continue
		}
		for _, leaf := range stringLeaves(inv.Output) {
			for _, u := range agent.ExtractSources(leaf) {
				idx.add(inv.AgentName, u)
			}
		}
	}
	return idx
}

func (idx *sourceIndex) add(ownerAgent, value string) {
	value = strings.TrimSpace(value)
	if value == "" {
		return
	}
	id, ok := idx.idByValue[value]
	if !ok {
		id = fmt.Sprintf("S%03d", len(idx.entries)+1)
		idx.idByValue[value] = id
		idx.entries = append(idx.entries, map[string]any{
			"source_id":           id,
			"source":              value,
			"type":                sourceType(value),
			"first_seen_in_agent": ownerAgent,
		})
	}
	for _, existing := range idx.refsByAgent[ownerAgent] {
		if existing == id {
			return
		}
	}
	idx.refsByAgent[ownerAgent] = append(idx.refsByAgent[ownerAgent], id)
}

// refsFor unions the source ids the given agents surfaced, keeping each
// agent's first-seen order and dropping duplicates across agents.
func (idx *sourceIndex) refsFor(agents []string) []string {
	return collectRefs(agents, idx.refsByAgent)
}

func collectRefs(agents []string, byAgent map[string][]string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, name := range agents {
		for _, id := range byAgent[name] {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func groupInvocationIDs(invocations []*models.ToolInvocation) map[string][]string {
	byAgent := make(map[string][]string)
	for _, inv := range invocations {
		if inv == nil || inv.InvocationID == "" {
			continue
		}
		byAgent[inv.AgentName] = append(byAgent[inv.AgentName], inv.InvocationID)
	}
	return byAgent
}

func sourceType(value string) string {
	lower := strings.ToLower(value)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return "url"
	}
	return "reference"
}

// stringLeaves walks a redacted tool payload depth-first in key order and
// returns every string it holds. Sorting keys keeps source numbering
// stable across runs.
func stringLeaves(v any) []string {
	var out []string
	var walk func(any)
	walk = func(node any) {
		switch t := node.(type) {
		case string:
			out = append(out, t)
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		}
	}
	walk(v)
	return out
}
