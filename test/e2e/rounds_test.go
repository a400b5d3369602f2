package e2e

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
)

// TestTwoDebateRounds runs the full two-round ladder: peer review first,
// red team second, eight exchanges total, rounds strictly ordered.
func TestTwoDebateRounds(t *testing.T) {
	client := NewScriptedLLMClient()
	scriptHappyGather(client)
	scriptDebateRound(client)
	scriptDebateRound(client)
	scriptSynthesis(client)

	app := NewTestApp(t, WithLLMClient(client))

	rounds := 2
	req := defaultRequest()
	req.DebateRounds = &rounds

	stream := app.OpenStream(t, req)
	events := stream.Collect(t, 30*time.Second)

	starts := eventsOfType(events, models.EventDebateRoundStart)
	ends := eventsOfType(events, models.EventDebateRoundEnd)
	require.Len(t, starts, 2)
	require.Len(t, ends, 2)

	assert.Equal(t, 1, starts[0].RoundNumber)
	assert.Equal(t, models.DebateTypePeerReview, starts[0].DebateType)
	assert.Equal(t, 2, starts[1].RoundNumber)
	assert.Equal(t, models.DebateTypeRedTeam, starts[1].DebateType)

	// Round 2 opens only after round 1 closed.
	var round1End, round2Start int
	for i, e := range events {
		switch {
		case e.Type == models.EventDebateRoundEnd && e.RoundNumber == 1:
			round1End = i
		case e.Type == models.EventDebateRoundStart && e.RoundNumber == 2:
			round2Start = i
		}
	}
	assert.Greater(t, round2Start, round1End)

	// Every exchange surfaced, four per round.
	respondEnds := eventsOfType(events, models.EventAgentRespondEnd)
	require.Len(t, respondEnds, 8)

	_, ok := firstOfType(events, models.EventConsensusReached)
	assert.True(t, ok, "clean rounds without revisions reach consensus")

	snap := app.WaitTerminal(t, events[0].SessionID, 10*time.Second)
	require.Equal(t, models.SessionStatusCompleted, snap.Session.Status)
	require.Len(t, snap.DebateExchanges, 8)

	byRound := map[int]int{}
	for _, ex := range snap.DebateExchanges {
		byRound[ex.RoundNumber]++
		switch ex.RoundNumber {
		case 1:
			assert.Equal(t, models.DebateTypePeerReview, ex.DebateType)
		case 2:
			assert.Equal(t, models.DebateTypeRedTeam, ex.DebateType)
		}
		assert.Equal(t, config.AgentDebateChallenger, ex.ChallengerAgent)
	}
	assert.Equal(t, 4, byRound[1])
	assert.Equal(t, 4, byRound[2])
}

// TestSynthesizerExhaustionFallsBack exhausts the synthesizer under partial
// mode: the session still completes with a locally assembled report built
// from the worker outputs.
func TestSynthesizerExhaustionFallsBack(t *testing.T) {
	client := NewScriptedLLMClient()
	scriptHappyGather(client)
	client.AddRouted(config.AgentSynthesizer, LLMScriptEntry{Err: errUpstream})
	client.AddRouted(config.AgentSynthesizer, LLMScriptEntry{Err: errUpstream})

	app := NewTestApp(t, WithLLMClient(client))

	rounds := 0
	req := defaultRequest()
	req.DebateRounds = &rounds

	stream := app.OpenStream(t, req)
	events := stream.Collect(t, 30*time.Second)

	retries := eventsOfType(events, models.EventRetry)
	require.Len(t, retries, 1)
	assert.Equal(t, config.AgentSynthesizer, retries[0].TargetID)

	agentErr, ok := firstOfType(events, models.EventAgentError)
	require.True(t, ok)
	assert.Equal(t, config.AgentSynthesizer, agentErr.Agent)

	end := events[len(events)-1]
	require.Equal(t, models.EventOrchestratorEnd, end.Type)

	snap := app.WaitTerminal(t, events[0].SessionID, 10*time.Second)
	require.Equal(t, models.SessionStatusCompleted, snap.Session.Status)

	// The local report stitches the worker sections together.
	assert.Contains(t, snap.Session.FinalReport, "# Market Insight Report")
	for _, name := range workerNames {
		assert.Contains(t, snap.Session.FinalReport, "## "+name)
	}
}

// TestSynthesizerExhaustionFailMode exhausts the synthesizer under fail
// mode: the session fails even though every worker succeeded.
func TestSynthesizerExhaustionFailMode(t *testing.T) {
	client := NewScriptedLLMClient()
	scriptHappyGather(client)
	client.AddRouted(config.AgentSynthesizer, LLMScriptEntry{Err: errUpstream})
	client.AddRouted(config.AgentSynthesizer, LLMScriptEntry{Err: errUpstream})

	app := NewTestApp(t, WithLLMClient(client))

	rounds := 0
	req := defaultRequest()
	req.DebateRounds = &rounds
	req.DegradeMode = models.DegradeModeFail

	stream := app.OpenStream(t, req)
	events := stream.Collect(t, 30*time.Second)
	require.NotEmpty(t, events)

	last := events[len(events)-1]
	require.Equal(t, models.EventError, last.Type)
	_, ok := firstOfType(events, models.EventOrchestratorEnd)
	assert.False(t, ok)

	snap := app.WaitTerminal(t, events[0].SessionID, 10*time.Second)
	assert.Equal(t, models.SessionStatusFailed, snap.Session.Status)
	assert.Contains(t, snap.Session.ErrorMessage, "synthesizer failed after 2 attempts")
}
