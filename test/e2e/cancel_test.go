package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/models"
)

// TestCancelMidGather cancels a session while all four workers are blocked
// mid-stream: the session ends cancelled, the stream closes without an
// orchestrator_end or error event, and the in-flight agents are recorded as
// failed.
func TestCancelMidGather(t *testing.T) {
	blocked := make(chan struct{}, len(workerNames))

	client := NewScriptedLLMClient()
	for _, name := range workerNames {
		client.AddRouted(name, LLMScriptEntry{
			BlockUntilCancelled: true,
			OnBlock:             blocked,
		})
	}

	app := NewTestApp(t, WithLLMClient(client))

	stream := app.OpenStream(t, defaultRequest())
	seen := stream.CollectUntil(t, 30*time.Second, func(e models.Event) bool {
		return e.Type == models.EventOrchestratorStart
	})
	sessionID := seen[0].SessionID

	for i := 0; i < len(workerNames); i++ {
		select {
		case <-blocked:
		case <-time.After(10 * time.Second):
			t.Fatalf("only %d of %d workers reached the blocking call", i, len(workerNames))
		}
	}

	resp, err := http.Post(app.BaseURL+"/api/v2/market-insight/cancel/"+sessionID, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// The stream drains and closes; cancellation emits nothing further.
	events := append(seen, stream.Collect(t, 10*time.Second)...)
	assert.Len(t, eventsOfType(events, models.EventAgentStart), len(workerNames))
	_, ok := firstOfType(events, models.EventOrchestratorEnd)
	assert.False(t, ok, "cancelled runs must not emit orchestrator_end")
	_, ok = firstOfType(events, models.EventError)
	assert.False(t, ok, "cancellation is not an error")

	snap := app.WaitTerminal(t, sessionID, 10*time.Second)
	require.Equal(t, models.SessionStatusCancelled, snap.Session.Status)

	require.Len(t, snap.AgentResults, len(workerNames))
	for _, r := range snap.AgentResults {
		assert.Equal(t, models.AgentStatusFailed, r.Status)
		assert.Contains(t, r.ErrorMessage, "cancelled")
	}
}

// TestCancelCompletedSessionRejected cancels a session that already finished
// and expects a conflict.
func TestCancelCompletedSessionRejected(t *testing.T) {
	client := NewScriptedLLMClient()
	scriptHappyGather(client)
	scriptSynthesis(client)

	app := NewTestApp(t, WithLLMClient(client))

	rounds := 0
	req := defaultRequest()
	req.DebateRounds = &rounds

	stream := app.OpenStream(t, req)
	events := stream.Collect(t, 30*time.Second)
	sessionID := events[0].SessionID
	app.WaitTerminal(t, sessionID, 10*time.Second)

	resp, err := http.Post(app.BaseURL+"/api/v2/market-insight/cancel/"+sessionID, "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
