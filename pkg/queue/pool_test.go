package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/report"
)

type fakeEngine struct {
	mu    sync.Mutex
	runs  []string
	block chan struct{}
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, session *models.Session) error {
	f.mu.Lock()
	f.runs = append(f.runs, session.ID)
	block := f.block
	err := f.err
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}

func (f *fakeEngine) ranSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.runs...)
}

type fakeStore struct {
	session *models.Session
}

func (f *fakeStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	if f.session == nil || f.session.ID != id {
		return nil, fmt.Errorf("session %s: not found", id)
	}
	return f.session, nil
}

func (f *fakeStore) ListAgentResults(context.Context, string) ([]*models.AgentResult, error) {
	return nil, nil
}

func (f *fakeStore) ListWorkflowEvents(context.Context, string) ([]*models.WorkflowEvent, error) {
	return nil, nil
}

func testPool(t *testing.T, engine Engine, st Store, rehearsal *report.RehearsalLog, maxConcurrent int) *Pool {
	t.Helper()
	cfg := &config.QueueConfig{
		MaxConcurrentSessions:   maxConcurrent,
		SessionTimeout:          time.Minute,
		GracefulShutdownTimeout: time.Second,
	}
	return NewPool(engine, st, cfg, rehearsal)
}

func TestPoolRunsSubmittedSession(t *testing.T) {
	engine := &fakeEngine{}
	pool := testPool(t, engine, &fakeStore{}, nil, 2)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(context.Background()))

	assert.Equal(t, []string{"sess-1"}, engine.ranSessions())
	assert.Equal(t, 0, pool.Active())
}

func TestPoolPropagatesRunError(t *testing.T) {
	runErr := errors.New("gather failed")
	pool := testPool(t, &fakeEngine{err: runErr}, &fakeStore{}, nil, 1)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	require.ErrorIs(t, ticket.Wait(context.Background()), runErr)
}

func TestPoolRejectsInvalidSubmission(t *testing.T) {
	pool := testPool(t, &fakeEngine{}, &fakeStore{}, nil, 1)

	_, err := pool.Submit(nil)
	require.Error(t, err)

	_, err = pool.Submit(&models.Session{})
	require.Error(t, err)
}

func TestPoolRejectsBeyondCapacity(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	pool := testPool(t, engine, &fakeStore{}, nil, 1)

	first, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, pool.Active())

	_, err = pool.Submit(&models.Session{ID: "sess-2"})
	require.ErrorIs(t, err, ErrAtCapacity)

	close(engine.block)
	require.NoError(t, first.Wait(context.Background()))

	second, err := pool.Submit(&models.Session{ID: "sess-2"})
	require.NoError(t, err)
	require.NoError(t, second.Wait(context.Background()))
}

func TestPoolRejectsDuplicateActiveSession(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	pool := testPool(t, engine, &fakeStore{}, nil, 2)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)

	_, err = pool.Submit(&models.Session{ID: "sess-1"})
	require.ErrorIs(t, err, ErrSessionActive)

	close(engine.block)
	require.NoError(t, ticket.Wait(context.Background()))
}

func TestPoolCancelSession(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	pool := testPool(t, engine, &fakeStore{}, nil, 1)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)

	assert.True(t, pool.CancelSession("sess-1"))
	require.ErrorIs(t, ticket.Wait(context.Background()), context.Canceled)

	// Finished runs are no longer cancellable.
	assert.False(t, pool.CancelSession("sess-1"))
}

func TestPoolStopRejectsNewSubmissions(t *testing.T) {
	pool := testPool(t, &fakeEngine{}, &fakeStore{}, nil, 1)
	pool.Stop()

	_, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.ErrorIs(t, err, ErrShuttingDown)
}

func TestPoolStopDrainsActiveSessions(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	pool := testPool(t, engine, &fakeStore{}, nil, 1)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(engine.block)
	}()

	pool.Stop()
	require.NoError(t, ticket.Wait(context.Background()))
	assert.Equal(t, 0, pool.Active())
}

func TestPoolStopCancelsAfterDrainTimeout(t *testing.T) {
	cfg := &config.QueueConfig{
		MaxConcurrentSessions:   1,
		SessionTimeout:          time.Minute,
		GracefulShutdownTimeout: 20 * time.Millisecond,
	}
	engine := &fakeEngine{block: make(chan struct{})} // never released
	pool := NewPool(engine, &fakeStore{}, cfg, nil)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)

	pool.Stop()
	require.ErrorIs(t, ticket.Wait(context.Background()), context.Canceled)
}

type fakeCleaner struct {
	mu    sync.Mutex
	ended []string
}

func (f *fakeCleaner) EndSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
}

func (f *fakeCleaner) endedSessions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func TestPoolReleasesSessionStateAfterRun(t *testing.T) {
	cleaner := &fakeCleaner{}
	pool := testPool(t, &fakeEngine{err: errors.New("gather failed")}, &fakeStore{}, nil, 1)
	pool.SetSessionCleaner(cleaner)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	require.Error(t, ticket.Wait(context.Background()))

	// Cleanup runs on failed runs too.
	assert.Equal(t, []string{"sess-1"}, cleaner.endedSessions())
}

func TestPoolWritesRehearsalEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rehearsal.jsonl")
	completed := time.Now()
	st := &fakeStore{session: &models.Session{
		ID:          "sess-1",
		Status:      models.SessionStatusCompleted,
		CreatedAt:   completed.Add(-90 * time.Second),
		CompletedAt: &completed,
	}}
	pool := testPool(t, &fakeEngine{}, st, report.NewRehearsalLog(path), 1)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(context.Background()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"session_id":"sess-1"`)
	assert.Contains(t, lines[0], `"status":"completed"`)
	assert.Contains(t, lines[0], `"stability_score":100`)
}

func TestPoolSkipsRehearsalForNonTerminalSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rehearsal.jsonl")
	st := &fakeStore{session: &models.Session{
		ID:     "sess-1",
		Status: models.SessionStatusRunning,
	}}
	pool := testPool(t, &fakeEngine{}, st, report.NewRehearsalLog(path), 1)

	ticket, err := pool.Submit(&models.Session{ID: "sess-1"})
	require.NoError(t, err)
	require.NoError(t, ticket.Wait(context.Background()))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
