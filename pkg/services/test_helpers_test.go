package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/store"
)

// fakeStore is an in-memory Store for service tests. It mirrors the real
// gateway's contract: idempotent session inserts, terminal statuses never
// overwritten, not-found wrapped around store.ErrNotFound.
type fakeStore struct {
	mu         sync.Mutex
	sessions   map[string]*models.Session
	results    map[string][]*models.AgentResult
	debates    map[string][]*models.DebateExchange
	events     map[string][]*models.WorkflowEvent
	tools      map[string][]*models.ToolInvocation
	feedback   map[string][]*models.Feedback
	lastFilter models.SessionFilters
	nextID     int64
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
	f.lastFilter = filters

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

func (f *fakeStore) ListToolInvocations(_ context.Context, sessionID string) ([]*models.ToolInvocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools[sessionID], nil
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

type fakeCanceller struct {
	mu        sync.Mutex
	live      map[string]bool
	cancelled []string
}

func (f *fakeCanceller) CancelSession(sessionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, sessionID)
	return f.live[sessionID]
}

func newTestService(t *testing.T) (*InsightService, *fakeStore, *fakeCanceller) {
	t.Helper()
	return newTestServiceAt(t, report.NewRenderer(t.TempDir()))
}

func newTestServiceAt(t *testing.T, renderer *report.Renderer) (*InsightService, *fakeStore, *fakeCanceller) {
	t.Helper()

	st := newFakeStore()
	canceller := &fakeCanceller{live: map[string]bool{}}
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

	svc := NewInsightService(st, canceller, workflow, presets, renderer)
	return svc, st, canceller
}

func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }
func int64Ptr(v int64) *int64     { return &v }
func floatPtr(v float64) *float64 { return &v }
