package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/services"
)

// Sentinels of the two-phase output protocol, as the models emit them.
const (
	thinkingEnds = "<<<<THINKING_ENDS>>>>"
	reportStarts = "<<<<REPORT_STARTS>>>>"
)

// workerNames is the gather fan-out in registry order.
var workerNames = []string{
	config.AgentTrendScout,
	config.AgentCompetitorAnalyst,
	config.AgentRegulationChecker,
	config.AgentSocialSentinel,
}

// gatherText builds a sentinel-framed worker response: thinking, a markdown
// report with one source URL, and a confidence footer.
func gatherText(agentName string) string {
	return fmt.Sprintf("Assessing the signals for %s.%s%s## %s findings\n\nDemand looks solid. See https://example.com/%s for the data.\n\nconfidence: 0.8",
		agentName, thinkingEnds, reportStarts, agentName, agentName)
}

// respondText builds a raw debate response holding the original position.
func respondText(agentName string) string {
	return fmt.Sprintf("The %s analysis holds: the cited data already covers the challenge.\nREVISED: no", agentName)
}

// scriptHappyGather scripts a successful gather response for all four workers.
func scriptHappyGather(client *ScriptedLLMClient) {
	for _, name := range workerNames {
		client.AddRouted(name, LLMScriptEntry{Text: gatherText(name)})
	}
}

// scriptDebateRound scripts one full round: four challenges and a defending
// response per worker.
func scriptDebateRound(client *ScriptedLLMClient) {
	for _, name := range workerNames {
		client.AddRouted(config.AgentDebateChallenger, LLMScriptEntry{
			Text: fmt.Sprintf("Where is the evidence behind the %s numbers?", name),
		})
		client.AddRouted(name, LLMScriptEntry{Text: respondText(name)})
	}
}

// scriptSynthesis scripts the final report.
func scriptSynthesis(client *ScriptedLLMClient) {
	client.AddRouted(config.AgentSynthesizer, LLMScriptEntry{
		Text: "Weighing all four findings." + thinkingEnds + reportStarts +
			"## Market Insight Report\n\nThe market window is open; move on pricing before Q4.\n\nconfidence: 0.85",
	})
}

// defaultRequest returns the standard test request: an explicit profile so
// assertions do not depend on the built-in default.
func defaultRequest() *models.MarketInsightRequest {
	return &models.MarketInsightRequest{
		Profile: &models.UserProfile{
			TargetMarket: "Germany",
			SupplyChain:  "Consumer Electronics",
			SellerType:   "brand",
			MinPrice:     30,
			MaxPrice:     90,
		},
	}
}

// SSEStream is a live /stream response. Events arrive on C; the channel
// closes when the server ends the stream or the client disconnects.
type SSEStream struct {
	C    <-chan models.Event
	resp *http.Response
}

// OpenStream POSTs the request to the streaming endpoint and starts reading
// frames. Ping comments are skipped.
func (app *TestApp) OpenStream(t *testing.T, req *models.MarketInsightRequest) *SSEStream {
	t.Helper()

	body, err := json.Marshal(req)
	require.NoError(t, err)

	resp, err := http.Post(app.BaseURL+"/api/v2/market-insight/stream", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	ch := make(chan models.Event, 256)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var event models.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event); err != nil {
				continue
			}
			ch <- event
		}
	}()

	stream := &SSEStream{C: ch, resp: resp}
	t.Cleanup(stream.Close)
	return stream
}

// Close drops the client side of the stream, simulating a disconnect.
func (s *SSEStream) Close() {
	_ = s.resp.Body.Close()
}

// Collect reads events until the server closes the stream.
func (s *SSEStream) Collect(t *testing.T, timeout time.Duration) []models.Event {
	t.Helper()

	var events []models.Event
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-s.C:
			if !ok {
				return events
			}
			events = append(events, event)
		case <-deadline:
			t.Fatalf("stream did not end within %v (%d events so far)", timeout, len(events))
		}
	}
}

// CollectUntil reads events until pred matches, returning everything read
// including the matching event.
func (s *SSEStream) CollectUntil(t *testing.T, timeout time.Duration, pred func(models.Event) bool) []models.Event {
	t.Helper()

	var events []models.Event
	deadline := time.After(timeout)
	for {
		select {
		case event, ok := <-s.C:
			if !ok {
				t.Fatalf("stream ended before the expected event (%d events seen)", len(events))
			}
			events = append(events, event)
			if pred(event) {
				return events
			}
		case <-deadline:
			t.Fatalf("expected event did not arrive within %v (%d events so far)", timeout, len(events))
		}
	}
}

// Status fetches the session aggregate from the status endpoint.
func (app *TestApp) Status(t *testing.T, sessionID string) *services.SessionSnapshot {
	t.Helper()

	resp, err := http.Get(app.BaseURL + "/api/v2/market-insight/status/" + sessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap services.SessionSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	return &snap
}

// WaitTerminal polls the status endpoint until the session reaches a
// terminal status.
func (app *TestApp) WaitTerminal(t *testing.T, sessionID string, timeout time.Duration) *services.SessionSnapshot {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		snap := app.Status(t, sessionID)
		if snap.Session != nil && snap.Session.Status.IsTerminal() {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("session %s not terminal within %v", sessionID, timeout)
		}
		time.Sleep(25 * time.Millisecond)
	}
}

// eventsOfType filters the captured events by type.
func eventsOfType(events []models.Event, typ models.EventType) []models.Event {
	var out []models.Event
	for _, event := range events {
		if event.Type == typ {
			out = append(out, event)
		}
	}
	return out
}

// firstOfType returns the first event of the given type, or false.
func firstOfType(events []models.Event, typ models.EventType) (models.Event, bool) {
	for _, event := range events {
		if event.Type == typ {
			return event, true
		}
	}
	return models.Event{}, false
}

// indexOfType returns the position of the first event of the given type,
// or -1.
func indexOfType(events []models.Event, typ models.EventType) int {
	for i, event := range events {
		if event.Type == typ {
			return i
		}
	}
	return -1
}
