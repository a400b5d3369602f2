package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/events"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/services"
	"github.com/weaveai/weaveai/pkg/store"
)

// fakeStore is one in-memory gateway serving every consumer the server
// wires: the insight service, the worker pool, the event publisher, and
// the catchup adapter.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	results  map[string][]*models.AgentResult
	debates  map[string][]*models.DebateExchange
	events   map[string][]*models.WorkflowEvent
	tools    map[string][]*models.ToolInvocation
	feedback map[string][]*models.Feedback
	nextID   int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: map[string]*models.Session{},
		results:  map[string][]*models.AgentResult{},
		debates:  map[string][]*models.DebateExchange{},
		events:   map[string][]*models.WorkflowEvent{},
		tools:    map[string][]*models.ToolInvocation{},
		feedback: map[string][]*models.Feedback{},
	}
}

func (f *fakeStore) CreateSession(_ context.Context, session *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[session.ID]; ok {
		return nil
	}
	copied := *session
	if copied.CreatedAt.IsZero() {
		f.nextID++
		copied.CreatedAt = time.Unix(f.nextID, 0)
	}
	f.sessions[session.ID] = &copied
	return nil
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	copied := *session
	return &copied, nil
}

func (f *fakeStore) ListSessions(_ context.Context, filters models.SessionFilters) ([]*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.Session
	for _, session := range f.sessions {
		if filters.Status != "" && session.Status != filters.Status {
			continue
		}
		copied := *session
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filters.Offset >= len(out) {
		return nil, nil
	}
	out = out[filters.Offset:]
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (f *fakeStore) UpdateSessionStatus(_ context.Context, id string, status models.SessionStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Status.IsTerminal() {
		return false, nil
	}
	session.Status = status
	return true, nil
}

func (f *fakeStore) FailSession(_ context.Context, id string, errorMessage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok || session.Status.IsTerminal() {
		return false, nil
	}
	session.Status = models.SessionStatusFailed
	session.Phase = models.PhaseError
	session.ErrorMessage = errorMessage
	return true, nil
}

func (f *fakeStore) ListAgentResults(_ context.Context, sessionID string) ([]*models.AgentResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.results[sessionID], nil
}

func (f *fakeStore) ListDebateExchanges(_ context.Context, sessionID string) ([]*models.DebateExchange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.debates[sessionID], nil
}

func (f *fakeStore) ListWorkflowEvents(_ context.Context, sessionID string) ([]*models.WorkflowEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.events[sessionID], nil
}

func (f *fakeStore) ListWorkflowEventsSince(_ context.Context, sessionID string, sinceID int64, limit int) ([]*models.WorkflowEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.WorkflowEvent
	for _, evt := range f.events[sessionID] {
		if evt.ID > sinceID {
			copied := *evt
			out = append(out, &copied)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) ListToolInvocations(_ context.Context, sessionID string) ([]*models.ToolInvocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools[sessionID], nil
}

func (f *fakeStore) InsertWorkflowEvent(_ context.Context, sessionID, eventType, agentName string, payload map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.events[sessionID] = append(f.events[sessionID], &models.WorkflowEvent{
		ID:        f.nextID,
		SessionID: sessionID,
		EventType: eventType,
		AgentName: agentName,
		Payload:   payload,
		CreatedAt: time.Unix(f.nextID, 0),
	})
	return f.nextID, nil
}

func (f *fakeStore) CreateFeedback(_ context.Context, feedback *models.Feedback) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	feedback.ID = f.nextID
	feedback.CreatedAt = time.Unix(f.nextID, 0)
	copied := *feedback
	f.feedback[feedback.SessionID] = append(f.feedback[feedback.SessionID], &copied)
	return nil
}

func (f *fakeStore) GetLatestFeedback(_ context.Context, sessionID string) (*models.Feedback, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.feedback[sessionID]
	if len(list) == 0 {
		return nil, fmt.Errorf("feedback for session %s: %w", sessionID, store.ErrNotFound)
	}
	copied := *list[len(list)-1]
	return &copied, nil
}

// seedSession stores a session directly, bypassing Prepare.
func (f *fakeStore) seedSession(session *models.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session.CreatedAt.IsZero() {
		f.nextID++
		session.CreatedAt = time.Unix(f.nextID, 0)
	}
	f.sessions[session.ID] = session
}

// session returns a copy of the stored row for assertions.
func (f *fakeStore) session(id string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return nil
	}
	copied := *session
	return &copied
}

func (f *fakeStore) addAgentResult(result *models.AgentResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[result.SessionID] = append(f.results[result.SessionID], result)
}

func (f *fakeStore) addDebateExchange(exchange *models.DebateExchange) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debates[exchange.SessionID] = append(f.debates[exchange.SessionID], exchange)
}

// setRunning mimics the engine's init transition.
func (f *fakeStore) setRunning(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		session.Status = models.SessionStatusRunning
		session.Phase = models.PhaseGather
	}
}

// completeSession mimics the engine's finalize transition.
func (f *fakeStore) completeSession(id, finalReport string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[id]
	if !ok {
		return
	}
	now := session.CreatedAt.Add(90 * time.Second)
	session.Status = models.SessionStatusCompleted
	session.Phase = models.PhaseComplete
	session.FinalReport = finalReport
	session.ReportHTMLURL = "/api/v2/market-insight/report/" + id + ".html"
	session.CompletedAt = &now
}

func (f *fakeStore) setDebateRound(id string, round int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if session, ok := f.sessions[id]; ok {
		session.CurrentDebateRound = round
	}
}

// scriptedEngine lets each test supply the run behavior.
type scriptedEngine struct {
	run func(ctx context.Context, session *models.Session) error
}

func (e *scriptedEngine) Run(ctx context.Context, session *models.Session) error {
	if e.run == nil {
		return nil
	}
	return e.run(ctx, session)
}

// testEnv wires a full server around the fake store and a scripted engine.
type testEnv struct {
	store *fakeStore
	bus   *events.Bus
	pub   *events.Publisher
	pool  *queue.Pool
	ts    *httptest.Server
}

type runFunc func(ctx context.Context, env *testEnv, session *models.Session) error

func newTestEnv(t *testing.T, run runFunc) *testEnv {
	t.Helper()

	env := &testEnv{store: newFakeStore()}
	env.bus = events.NewBus(0)
	env.pub = events.NewPublisher(env.store, env.bus)

	engine := &scriptedEngine{}
	if run != nil {
		engine.run = func(ctx context.Context, session *models.Session) error {
			return run(ctx, env, session)
		}
	}

	queueCfg := &config.QueueConfig{
		MaxConcurrentSessions:   2,
		SessionTimeout:          time.Minute,
		GracefulShutdownTimeout: time.Second,
	}
	env.pool = queue.NewPool(engine, env.store, queueCfg, nil)

	workflow := &config.WorkflowConfig{
		DefaultDebateRounds: 2,
		MaxDebateRounds:     4,
		EnableFollowup:      true,
		RetryMaxAttempts:    2,
		RetryBackoffMS:      300,
		DegradeMode:         models.DegradeModePartial,
	}
	presets, err := config.NewPresetRegistry("")
	require.NoError(t, err)

	reportsDir := t.TempDir()
	insights := services.NewInsightService(env.store, env.pool, workflow, presets, report.NewRenderer(reportsDir))
	connManager := events.NewConnectionManager(env.bus, events.NewStoreCatchupAdapter(env.store), 5*time.Second)

	serverCfg := &config.ServerConfig{ListenAddr: ":0", ReportsDir: reportsDir}
	srv := NewServer(serverCfg, nil, insights, env.pool, env.bus, connManager)

	env.ts = httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		env.ts.Close()
		env.pool.Stop()
		env.bus.Close()
	})
	return env
}

// url builds an absolute URL for the v2 API path.
func (env *testEnv) url(path string) string {
	return env.ts.URL + "/api/v2/market-insight" + path
}

// runCompleted mirrors the real engine's happy path: promote to running,
// stream one agent, persist the report, announce orchestrator_end.
func runCompleted(ctx context.Context, env *testEnv, session *models.Session) error {
	env.store.setRunning(session.ID)
	env.pub.Emit(ctx, models.Event{
		Type: models.EventOrchestratorStart, SessionID: session.ID,
		Agents: []string{"trend_scout"}, DebateRounds: session.Config.DebateRounds,
	})
	env.pub.Emit(ctx, models.Event{
		Type: models.EventAgentStart, SessionID: session.ID, Agent: "trend_scout",
	})
	env.pub.Emit(ctx, models.Event{
		Type: models.EventAgentChunk, SessionID: session.ID, Agent: "trend_scout",
		Content: "Demand holds",
	})
	env.pub.Emit(ctx, models.Event{
		Type: models.EventAgentEnd, SessionID: session.ID, Agent: "trend_scout",
		Status: string(models.AgentStatusCompleted),
	})

	finalReport := "# Market Insight Report\n\n## Executive Summary\n\nDemand holds steady."
	env.store.addAgentResult(&models.AgentResult{
		SessionID: session.ID, AgentName: "trend_scout",
		Content: "Demand holds steady.", Sources: []string{"https://example.com/trends"},
		Status: models.AgentStatusCompleted, DurationMS: int64Ptr(1200),
	})
	env.store.completeSession(session.ID, finalReport)
	env.pub.Emit(ctx, models.Event{
		Type: models.EventOrchestratorEnd, SessionID: session.ID,
		FinalReport: finalReport,
	})
	return nil
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func getURL(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// decodeError reads the structured error envelope.
func decodeError(t *testing.T, resp *http.Response) ErrorDetail {
	t.Helper()
	var body ErrorResponse
	decodeBody(t, resp, &body)
	return body.Error
}

// readSSE collects the data frames of an SSE stream until it closes.
func readSSE(t *testing.T, body io.Reader) []map[string]any {
	t.Helper()
	var out []map[string]any
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		out = append(out, event)
	}
	return out
}

// eventTypes projects the type field of each collected frame.
func eventTypes(frames []map[string]any) []string {
	types := make([]string, 0, len(frames))
	for _, frame := range frames {
		if s, ok := frame["type"].(string); ok {
			types = append(types, s)
		}
	}
	return types
}

func int64Ptr(v int64) *int64 { return &v }
func intPtr(v int) *int       { return &v }
