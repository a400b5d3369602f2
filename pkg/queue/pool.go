// Package queue runs market-insight sessions in the background. The pool
// caps concurrent runs, keeps a cancel registry keyed by session id, and
// drains gracefully on shutdown. Submissions beyond the cap are rejected
// rather than queued: the caller owns backpressure.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/report"
)

var (
	// ErrAtCapacity rejects a submission while every slot is busy.
	ErrAtCapacity = errors.New("worker pool at capacity")

	// ErrShuttingDown rejects submissions after Stop began.
	ErrShuttingDown = errors.New("worker pool shutting down")

	// ErrSessionActive rejects a submission whose session id is already
	// running in this pool.
	ErrSessionActive = errors.New("session already active")
)

// Engine runs one session to a terminal status. Implemented by graph.Engine.
type Engine interface {
	Run(ctx context.Context, session *models.Session) error
}

// Store is the slice of the persistence gateway the pool reads back when
// writing the rehearsal log. Implemented by store.Store.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.Session, error)
	ListAgentResults(ctx context.Context, sessionID string) ([]*models.AgentResult, error)
	ListWorkflowEvents(ctx context.Context, sessionID string) ([]*models.WorkflowEvent, error)
}

// Ticket tracks one submitted run.
type Ticket struct {
	SessionID string

	done chan struct{}
	err  error
}

// Wait blocks until the run reaches a terminal status or ctx ends. It
// returns the fatal error that ended the run, nil for a completed session.
func (t *Ticket) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done returns a channel closed once the run reaches a terminal status.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// SessionCleaner releases per-session state once a run terminalizes.
// Implemented by tools.Registry.
type SessionCleaner interface {
	EndSession(sessionID string)
}

// Pool executes sessions in background goroutines, at most
// MaxConcurrentSessions at a time. Each run gets its own context bounded
// by SessionTimeout; CancelSession cancels it early.
type Pool struct {
	engine    Engine
	store     Store
	cfg       *config.QueueConfig
	rehearsal *report.RehearsalLog
	cleaner   SessionCleaner
	logger    *slog.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	active   map[string]context.CancelFunc
	stopping bool
}

// NewPool wires the worker pool. rehearsal may be nil, which disables the
// rehearsal log.
func NewPool(engine Engine, st Store, cfg *config.QueueConfig, rehearsal *report.RehearsalLog) *Pool {
	if engine == nil || st == nil || cfg == nil {
		panic("queue.NewPool: nil dependency")
	}
	return &Pool{
		engine:    engine,
		store:     st,
		cfg:       cfg,
		rehearsal: rehearsal,
		logger:    slog.Default().With("component", "queue"),
		active:    make(map[string]context.CancelFunc),
	}
}

// SetSessionCleaner registers a cleaner invoked after every run, whatever
// its outcome.
func (p *Pool) SetSessionCleaner(c SessionCleaner) {
	p.cleaner = c
}

// Submit schedules the session for background execution and returns a
// ticket the caller can wait on. The session row must already exist; the
// engine promotes it from pending to running.
func (p *Pool) Submit(session *models.Session) (*Ticket, error) {
	if session == nil || session.ID == "" {
		return nil, fmt.Errorf("submit: session id required")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopping {
		return nil, ErrShuttingDown
	}
	if _, ok := p.active[session.ID]; ok {
		return nil, fmt.Errorf("session %s: %w", session.ID, ErrSessionActive)
	}
	if len(p.active) >= p.cfg.MaxConcurrentSessions {
		return nil, fmt.Errorf("%d sessions running: %w", len(p.active), ErrAtCapacity)
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SessionTimeout)
	p.active[session.ID] = cancel

	ticket := &Ticket{SessionID: session.ID, done: make(chan struct{})}
	p.wg.Add(1)
	go p.run(ctx, cancel, session, ticket)
	return ticket, nil
}

// run drives one session and records its outcome.
func (p *Pool) run(ctx context.Context, cancel context.CancelFunc, session *models.Session, ticket *Ticket) {
	defer p.wg.Done()
	defer cancel()

	log := p.logger.With("session_id", session.ID)
	log.Info("session run starting")
	start := time.Now()

	err := p.engine.Run(ctx, session)

	p.mu.Lock()
	delete(p.active, session.ID)
	p.mu.Unlock()

	if err != nil {
		log.Error("session run ended", "error", err, "duration", time.Since(start))
	} else {
		log.Info("session run finished", "duration", time.Since(start))
	}

	if p.cleaner != nil {
		p.cleaner.EndSession(session.ID)
	}
	p.logRehearsal(session.ID)

	ticket.err = err
	close(ticket.done)
}

// CancelSession cancels the run's context. It reports whether the session
// was live in this pool; the engine persists the cancelled status.
func (p *Pool) CancelSession(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cancel, ok := p.active[sessionID]; ok {
		cancel()
		return true
	}
	return false
}

// Active returns the number of sessions currently running.
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Capacity returns the concurrent session limit.
func (p *Pool) Capacity() int {
	return p.cfg.MaxConcurrentSessions
}

// Stop rejects new submissions and waits for active sessions to finish.
// Sessions still running after GracefulShutdownTimeout get their contexts
// cancelled, which routes them to the cancelled status.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return
	}
	p.stopping = true
	active := len(p.active)
	p.mu.Unlock()

	if active > 0 {
		p.logger.Info("draining worker pool", "active_sessions", active)
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(p.cfg.GracefulShutdownTimeout):
		p.logger.Warn("graceful drain timed out, cancelling active sessions")
		p.mu.Lock()
		for _, cancel := range p.active {
			cancel()
		}
		p.mu.Unlock()
		<-done
	}
	p.logger.Info("worker pool stopped")
}

// logRehearsal appends the finalized outcome to the rehearsal log so
// rehearsal rounds can compare stability across runs. Failures only warn;
// the run itself already reached a terminal status.
func (p *Pool) logRehearsal(sessionID string) {
	if !p.rehearsal.Enabled() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	session, err := p.store.GetSession(ctx, sessionID)
	if err != nil {
		p.logger.Warn("rehearsal log skipped", "session_id", sessionID, "error", err)
		return
	}
	if !session.Status.IsTerminal() {
		return
	}
	results, err := p.store.ListAgentResults(ctx, sessionID)
	if err != nil {
		p.logger.Warn("rehearsal log skipped", "session_id", sessionID, "error", err)
		return
	}
	events, err := p.store.ListWorkflowEvents(ctx, sessionID)
	if err != nil {
		p.logger.Warn("rehearsal log skipped", "session_id", sessionID, "error", err)
		return
	}

	demo := report.ComputeDemoMetrics(session, results, events)
	_, err = p.rehearsal.Append(report.RehearsalEntry{
		SessionID:            session.ID,
		Status:               string(session.Status),
		TotalDurationMS:      demo.TotalDurationMS,
		RetryCount:           demo.RetryCount,
		DegradeCount:         demo.DegradeCount,
		StabilityScore:       demo.StabilityScore,
		StabilityLevel:       demo.StabilityLevel,
		EvidenceCoverageRate: demo.EvidenceCoverageRate,
		TotalAgents:          demo.TotalAgents,
		CompletedAgents:      demo.CompletedAgents,
	})
	if err != nil {
		p.logger.Warn("rehearsal log append failed", "session_id", sessionID, "error", err)
	}
}
