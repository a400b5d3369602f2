package pack

import (
	"fmt"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

var packBuiltAt = time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

func asMaps(t *testing.T, v any) []map[string]any {
	t.Helper()
	maps, ok := v.([]map[string]any)
	require.True(t, ok, "unexpected collection shape %T", v)
	return maps
}

func TestBuildEvidencePackExtractsReportClaims(t *testing.T) {
	results := []*models.AgentResult{
		{
			AgentName:  "trend_scout",
			Status:     models.AgentStatusCompleted,
			Content:    "The US pet market grows 12% annually, led by premium pet feeders.",
			Sources:    []string{"https://example.com/pets"},
			Confidence: floatPtr(0.8),
		},
		{
			AgentName:  "competitor_analyst",
			Status:     models.AgentStatusCompleted,
			Content:    "Competition concentrates among three brands with 45% combined share.",
			Sources:    []string{"https://example.com/brands", "https://example.com/pets"},
			Confidence: floatPtr(0.7),
		},
	}
	report := strings.Join([]string{
		"# Market Report",
		"",
		"- The US pet market grows 12% annually, led by premium pet feeders.",
		"- Competition concentrates among three brands with 45% combined share.",
		"",
		"Stay disciplined on sourcing decisions.",
	}, "\n")

	pack := BuildEvidencePack(Inputs{
		SessionID:   "sess-1",
		Profile:     models.UserProfile{TargetMarket: "US", MinPrice: 10, MaxPrice: 40},
		Results:     results,
		FinalReport: report,
		GeneratedAt: packBuiltAt,
	})

	assert.Equal(t, EvidencePackVersion, pack["version"])
	assert.Equal(t, "sess-1", pack["session_id"])
	assert.Equal(t, "2026-02-14T09:30:00Z", pack["generated_at"])
	assert.Equal(t, report, pack["report_excerpt"])

	claims := asMaps(t, pack["claims"])
	require.Len(t, claims, 2)
	assert.Equal(t, "C001", claims[0]["claim_id"])
	assert.Equal(t, "The US pet market grows 12% annually, led by premium pet feeders.", claims[0]["text"])
	assert.Equal(t, []string{"trend_scout"}, claims[0]["source_agents"])
	assert.Equal(t, []string{"S001"}, claims[0]["source_refs"])
	assert.Equal(t, 0.8, claims[0]["confidence"])
	assert.Equal(t, "2026-02-14T09:30:00Z", claims[0]["generated_at"])

	assert.Equal(t, "C002", claims[1]["claim_id"])
	assert.Equal(t, []string{"competitor_analyst"}, claims[1]["source_agents"])
	assert.Equal(t, []string{"S002", "S001"}, claims[1]["source_refs"])
	assert.Equal(t, 0.7, claims[1]["confidence"])

	sources := asMaps(t, pack["sources"])
	require.Len(t, sources, 2)
	assert.Equal(t, map[string]any{
		"source_id":           "S001",
		"source":              "https://example.com/pets",
		"type":                "url",
		"first_seen_in_agent": "trend_scout",
	}, sources[0])
	assert.Equal(t, "S002", sources[1]["source_id"])
	assert.Equal(t, "competitor_analyst", sources[1]["first_seen_in_agent"])

	trace := asMaps(t, pack["traceability"])
	require.Len(t, trace, 2)
	assert.Equal(t, "C001", trace[0]["claim_id"])
	assert.Equal(t, []string{"S001"}, trace[0]["source_refs"])
	assert.Equal(t, []string{}, trace[0]["tool_invocation_ids"])

	assert.Equal(t, map[string]any{
		"claims_count":  2,
		"sources_count": 2,
		"debate_count":  0,
	}, pack["stats"])
}

func TestBuildEvidencePackCollectsToolSources(t *testing.T) {
	results := []*models.AgentResult{{
		AgentName:  "policy_radar",
		Status:     models.AgentStatusCompleted,
		Content:    "Tariff exposure reaches 25% on pet electronics under the new schedule.",
		Confidence: floatPtr(0.9),
	}}
	invocations := []*models.ToolInvocation{{
		InvocationID: "inv-001",
		AgentName:    "policy_radar",
		ToolName:     "web_search",
		Status:       models.ToolStatusCompleted,
		Output: map[string]any{
			"content": "coverage at https://news.example.com/tariffs today",
			"sources": []any{"https://data.example.com/fees"},
		},
	}}
	report := "- Tariff exposure reaches 25% on pet electronics under the new schedule.\n"

	pack := BuildEvidencePack(Inputs{
		SessionID:   "sess-2",
		Results:     results,
		Invocations: invocations,
		FinalReport: report,
		GeneratedAt: packBuiltAt,
	})

	sources := asMaps(t, pack["sources"])
	require.Len(t, sources, 2)
	assert.Equal(t, "https://news.example.com/tariffs", sources[0]["source"])
	assert.Equal(t, "https://data.example.com/fees", sources[1]["source"])
	assert.Equal(t, "policy_radar", sources[0]["first_seen_in_agent"])

	claims := asMaps(t, pack["claims"])
	require.Len(t, claims, 1)
	assert.Equal(t, []string{"policy_radar"}, claims[0]["source_agents"])
	assert.Equal(t, []string{"S001", "S002"}, claims[0]["source_refs"])

	trace := asMaps(t, pack["traceability"])
	require.Len(t, trace, 1)
	assert.Equal(t, []string{"inv-001"}, trace[0]["tool_invocation_ids"])
}

func TestBuildEvidencePackSharedClaimAveragesConfidence(t *testing.T) {
	claim := "Premium pet feeders capture 30% of holiday gift spending."
	results := []*models.AgentResult{
		{
			AgentName:  "trend_scout",
			Status:     models.AgentStatusCompleted,
			Content:    claim + " Margins stay healthy.",
			Sources:    []string{"https://example.com/trend"},
			Confidence: floatPtr(0.8),
		},
		{
			AgentName:  "competitor_analyst",
			Status:     models.AgentStatusCompleted,
			Content:    claim + " Risks remain contained.",
			Sources:    []string{"https://example.com/rivals"},
			Confidence: floatPtr(0.7),
		},
	}

	pack := BuildEvidencePack(Inputs{
		SessionID:   "sess-3",
		Results:     results,
		FinalReport: "- " + claim + "\n",
		GeneratedAt: packBuiltAt,
	})

	claims := asMaps(t, pack["claims"])
	require.Len(t, claims, 1)
	assert.Equal(t, []string{"trend_scout", "competitor_analyst"}, claims[0]["source_agents"])
	assert.Equal(t, []string{"S001", "S002"}, claims[0]["source_refs"])
	assert.InDelta(t, 0.75, claims[0]["confidence"], 1e-9)
}

func TestBuildEvidencePackFallsBackToAgentClaims(t *testing.T) {
	results := []*models.AgentResult{
		{
			AgentName: "trend_scout",
			Status:    models.AgentStatusCompleted,
			Content:   "Alpha finds steady demand in every surveyed metro region.",
		},
		{
			AgentName: "risk_assessor",
			Status:    models.AgentStatusSkipped,
			Content:   "",
		},
		{
			AgentName:  "competitor_analyst",
			Status:     models.AgentStatusCompleted,
			Content:    "Gamma sees rising cost pressure across the middle tier.",
			Confidence: floatPtr(0.4),
		},
	}

	pack := BuildEvidencePack(Inputs{
		SessionID:   "sess-4",
		Results:     results,
		FinalReport: "All signals point the same direction without hard numbers.",
		GeneratedAt: packBuiltAt,
	})

	claims := asMaps(t, pack["claims"])
	require.Len(t, claims, 2)
	assert.Equal(t, "Alpha finds steady demand in every surveyed metro region.", claims[0]["text"])
	assert.Equal(t, []string{"trend_scout"}, claims[0]["source_agents"])
	assert.Equal(t, 0.6, claims[0]["confidence"])
	assert.Equal(t, []string{"competitor_analyst"}, claims[1]["source_agents"])
	assert.Equal(t, 0.4, claims[1]["confidence"])
}

func TestBuildEvidencePackClipsLongFields(t *testing.T) {
	results := []*models.AgentResult{{
		AgentName: "trend_scout",
		Status:    models.AgentStatusCompleted,
		Content:   strings.Repeat("b", 400),
	}}
	debates := []*models.DebateExchange{{
		RoundNumber:      1,
		DebateType:       models.DebateTypePeerReview,
		ChallengerAgent:  "debate_challenger",
		ResponderAgent:   "trend_scout",
		ChallengeContent: strings.Repeat("c", 200),
		ResponseContent:  strings.Repeat("d", 200),
		Revised:          true,
	}}

	pack := BuildEvidencePack(Inputs{
		SessionID:   "sess-5",
		Results:     results,
		Debates:     debates,
		FinalReport: strings.Repeat("a", 400),
		GeneratedAt: packBuiltAt,
	})

	excerpt, ok := pack["report_excerpt"].(string)
	require.True(t, ok)
	assert.Equal(t, 300, utf8.RuneCountInString(excerpt))
	assert.True(t, strings.HasSuffix(excerpt, "…"))

	claims := asMaps(t, pack["claims"])
	require.Len(t, claims, 1)
	text, ok := claims[0]["text"].(string)
	require.True(t, ok)
	assert.Equal(t, 240, utf8.RuneCountInString(text))
	assert.True(t, strings.HasSuffix(text, "…"))

	adjustments := asMaps(t, pack["debate_adjustments"])
	require.Len(t, adjustments, 1)
	assert.Equal(t, 1, adjustments[0]["round_number"])
	assert.Equal(t, "peer_review", adjustments[0]["debate_type"])
	assert.Equal(t, "debate_challenger", adjustments[0]["challenger"])
	assert.Equal(t, "trend_scout", adjustments[0]["responder"])
	assert.Equal(t, true, adjustments[0]["revised"])
	challenge, ok := adjustments[0]["challenge_summary"].(string)
	require.True(t, ok)
	assert.Equal(t, 140, utf8.RuneCountInString(challenge))
	assert.True(t, strings.HasSuffix(challenge, "…"))

	assert.Equal(t, map[string]any{
		"claims_count":  1,
		"sources_count": 0,
		"debate_count":  1,
	}, pack["stats"])
}

func TestBuildEvidencePackEmptySession(t *testing.T) {
	pack := BuildEvidencePack(Inputs{SessionID: "sess-6", GeneratedAt: packBuiltAt})

	assert.Empty(t, asMaps(t, pack["claims"]))
	assert.Empty(t, asMaps(t, pack["sources"]))
	assert.Empty(t, asMaps(t, pack["debate_adjustments"]))
	assert.Empty(t, asMaps(t, pack["traceability"]))
	assert.Equal(t, "", pack["report_excerpt"])
}

func TestSupportingAgentsKeepsBestMatchBelowThreshold(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: "trend_scout", Content: "premium feeders market"},
		{AgentName: "risk_assessor", Content: "unrelated entirely different"},
	}

	got := supportingAgents("Premium feeders increasingly dominate holiday quarters worldwide 2026", results)

	assert.Equal(t, []string{"trend_scout"}, got)
}

func TestSupportingAgentsIncludesEveryAgentOverThreshold(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: "trend_scout", Content: "feeders dominate elsewhere currently"},
		{AgentName: "competitor_analyst", Content: "feeders dominate premium sometimes"},
	}

	got := supportingAgents("Feeders dominate premium retail", results)

	assert.Equal(t, []string{"trend_scout", "competitor_analyst"}, got)
}

func TestSupportingAgentsEmptyWhenNothingMatches(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: "trend_scout", Content: "completely separate vocabulary"},
	}

	got := supportingAgents("Premium feeders capture holiday spending", results)

	assert.Empty(t, got)
}

func TestBuildSourceIndexDedupesFirstSeen(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: "trend_scout", Sources: []string{" https://one.example ", "https://one.example", "https://two.example"}},
		{AgentName: "competitor_analyst", Sources: []string{"https://two.example", "Saylor 2024 industry report"}},
	}

	idx := buildSourceIndex(results, nil)

	require.Len(t, idx.entries, 3)
	assert.Equal(t, "S001", idx.entries[0]["source_id"])
	assert.Equal(t, "https://one.example", idx.entries[0]["source"])
	assert.Equal(t, "trend_scout", idx.entries[1]["first_seen_in_agent"])
	assert.Equal(t, "reference", idx.entries[2]["type"])
	assert.Equal(t, "competitor_analyst", idx.entries[2]["first_seen_in_agent"])

	assert.Equal(t, []string{"S001", "S002"}, idx.refsByAgent["trend_scout"])
	assert.Equal(t, []string{"S002", "S003"}, idx.refsByAgent["competitor_analyst"])
	assert.Equal(t, []string{"S001", "S002", "S003"}, idx.refsFor([]string{"trend_scout", "competitor_analyst"}))
}

func TestClaimSentencesSkipsStructuralMarkdown(t *testing.T) {
	report := strings.Join([]string{
		"# Heading with 99 numbers stays out of the claims",
		"",
		"| metric | 42% |",
		"> quoted line with 17 figures does not count either",
		"```",
		"code block keeps 88% to itself and never contributes claims",
		"```",
		"The premium feeder segment grew 18% across",
		"the trailing twelve months in every tracked metro.",
		"",
		"- Returns run at 6% of revenue for powered feeders in the value tier.",
	}, "\n")

	got := claimSentences(report)

	require.Len(t, got, 2)
	assert.Equal(t, "The premium feeder segment grew 18% across the trailing twelve months in every tracked metro.", got[0])
	assert.Equal(t, "Returns run at 6% of revenue for powered feeders in the value tier.", got[1])
}

func TestClaimSentencesDedupesRepeatedText(t *testing.T) {
	report := strings.Join([]string{
		"- The value tier holds a 25% share of unit volume this year.",
		"- The value tier holds a 25% share of unit volume this year.",
	}, "\n")

	got := claimSentences(report)

	assert.Len(t, got, 1)
}

func TestClaimSentencesCapsAtLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 15; i++ {
		lines = append(lines, fmt.Sprintf("- Claim %02d: the tracked segment grew %d%% over the measured cycle.", i, 10+i))
	}

	got := claimSentences(strings.Join(lines, "\n"))

	assert.Len(t, got, claimLimit)
}
