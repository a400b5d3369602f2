package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
)

func testProfile() models.UserProfile {
	return models.UserProfile{
		TargetMarket: "United States",
		SupplyChain:  "smart wearables",
		SellerType:   "brand seller",
		MinPrice:     20,
		MaxPrice:     80,
	}
}

func TestSystemPromptCoversEveryRole(t *testing.T) {
	for _, name := range []string{
		config.AgentTrendScout,
		config.AgentCompetitorAnalyst,
		config.AgentRegulationChecker,
		config.AgentSocialSentinel,
		config.AgentSynthesizer,
	} {
		assert.NotEmpty(t, SystemPrompt(name), "system prompt for %s", name)
	}
	assert.Empty(t, SystemPrompt("unknown_agent"))
}

func TestSystemPromptsInstructConfidenceMarker(t *testing.T) {
	for _, name := range []string{
		config.AgentTrendScout,
		config.AgentCompetitorAnalyst,
		config.AgentRegulationChecker,
		config.AgentSocialSentinel,
		config.AgentSynthesizer,
	} {
		assert.Contains(t, SystemPrompt(name), `"confidence: 0.x"`, "prompt for %s", name)
	}
}

func TestChallengerSystemPromptByType(t *testing.T) {
	peer := ChallengerSystemPrompt(models.DebateTypePeerReview)
	red := ChallengerSystemPrompt(models.DebateTypeRedTeam)

	assert.Contains(t, peer, "peer reviewer")
	assert.Contains(t, red, "Red Team Auditor")
	assert.NotEqual(t, peer, red)
}

func TestWorkerUserPromptEmbedsProfile(t *testing.T) {
	prompt := WorkerUserPrompt(config.AgentTrendScout, testProfile(), 0, nil)

	assert.Contains(t, prompt, "United States")
	assert.Contains(t, prompt, "smart wearables")
	assert.Contains(t, prompt, "brand seller")
	assert.Contains(t, prompt, "$20-$80")
	assert.Contains(t, prompt, "### Analysis requirements")
	assert.NotContains(t, prompt, "### Reference", "no reference section outside a debate round")
}

func TestWorkerUserPromptVariesByAgent(t *testing.T) {
	trend := WorkerUserPrompt(config.AgentTrendScout, testProfile(), 0, nil)
	competitor := WorkerUserPrompt(config.AgentCompetitorAnalyst, testProfile(), 0, nil)

	assert.NotEqual(t, trend, competitor)
	assert.Contains(t, competitor, "comparison matrix")
}

func TestWorkerUserPromptAppendsClippedReferences(t *testing.T) {
	long := strings.Repeat("a", referenceClipRunes+100)
	peers := []*models.AgentResult{
		{AgentName: config.AgentTrendScout, Content: "my own output"},
		{AgentName: config.AgentCompetitorAnalyst, Content: long},
		{AgentName: config.AgentSocialSentinel, Content: ""},
	}

	prompt := WorkerUserPrompt(config.AgentTrendScout, testProfile(), 1, peers)

	assert.Contains(t, prompt, "### Reference")
	assert.Contains(t, prompt, "**competitor_analyst**")
	assert.NotContains(t, prompt, "my own output", "an agent never sees itself as a reference")
	assert.NotContains(t, prompt, "**social_sentinel**", "empty peers are skipped")
	assert.Contains(t, prompt, strings.Repeat("a", referenceClipRunes)+"...")
	assert.NotContains(t, prompt, strings.Repeat("a", referenceClipRunes+1))
}

func TestSynthesizerUserPromptEmbedsReportsAndDebate(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: config.AgentTrendScout, Content: "full trend report body"},
		{AgentName: config.AgentCompetitorAnalyst, Content: ""},
	}
	debates := []*models.DebateExchange{
		{
			RoundNumber:      1,
			DebateType:       models.DebateTypePeerReview,
			ChallengerAgent:  config.AgentDebateChallenger,
			ResponderAgent:   config.AgentTrendScout,
			ChallengeContent: strings.Repeat("c", debateClipRunes+50),
			ResponseContent:  "a measured response",
			FollowupContent:  "accepted",
			Revised:          true,
		},
	}

	prompt := SynthesizerUserPrompt(testProfile(), results, debates)

	assert.Contains(t, prompt, "full trend report body")
	assert.NotContains(t, prompt, "### competitor_analyst", "empty results are skipped")
	assert.Contains(t, prompt, "### Debate transcript")
	assert.Contains(t, prompt, "debate_challenger → trend_scout")
	assert.Contains(t, prompt, strings.Repeat("c", debateClipRunes)+"...")
	assert.NotContains(t, prompt, strings.Repeat("c", debateClipRunes+1))
	assert.Contains(t, prompt, "revised their position")
	assert.Contains(t, prompt, "$20-$80")
}

func TestSynthesizerUserPromptWithoutDebate(t *testing.T) {
	results := []*models.AgentResult{
		{AgentName: config.AgentTrendScout, Content: "trend body"},
	}
	prompt := SynthesizerUserPrompt(testProfile(), results, nil)

	assert.NotContains(t, prompt, "### Debate transcript")
}

func TestChallengePromptRegisters(t *testing.T) {
	peer := ChallengePrompt(models.DebateTypePeerReview, config.AgentTrendScout, "report body")
	red := ChallengePrompt(models.DebateTypeRedTeam, config.AgentTrendScout, "report body")

	assert.Contains(t, peer, "## Peer review task")
	assert.Contains(t, peer, "**trend_scout**")
	assert.Contains(t, peer, "report body")
	assert.Contains(t, red, "## Red team audit")
	assert.Contains(t, red, "risk level")
}

func TestResponsePromptClipsOriginalAndInstructsFooter(t *testing.T) {
	long := strings.Repeat("o", originalClipRunes+200)
	prompt := ResponsePrompt("the critique text", long)

	assert.Contains(t, prompt, "the critique text")
	assert.Contains(t, prompt, strings.Repeat("o", originalClipRunes)+"...")
	assert.NotContains(t, prompt, strings.Repeat("o", originalClipRunes+1))
	assert.Contains(t, prompt, "REVISED: yes")
	assert.Contains(t, prompt, "REVISED: no")
}

func TestFollowupPromptClipsChallenge(t *testing.T) {
	long := strings.Repeat("q", challengeClipRunes+10)
	prompt := FollowupPrompt(long, "the full response")

	assert.Contains(t, prompt, strings.Repeat("q", challengeClipRunes)+"...")
	assert.NotContains(t, prompt, strings.Repeat("q", challengeClipRunes+1))
	assert.Contains(t, prompt, "the full response")
	assert.Contains(t, prompt, "100-200 words")
}
