package graph

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/models"
)

// Adaptive concurrency bounds for provider calls. A streak of
// connection-like failures halves the slot count; a calm window plus a
// success streak restores it.
const (
	adaptiveDefaultLimit  = 4
	adaptiveReducedLimit  = 2
	adaptiveFailThreshold = 4
	adaptiveRecoverStreak = 6
	adaptiveReducedWindow = 120 * time.Second
)

// connectionErrorMarkers classify a stage failure as a transport problem
// rather than a model or prompt problem. Only transport problems count
// toward the degrade streak.
var connectionErrorMarkers = []string{
	"connection error",
	"request timed out",
	"timeout",
	"connect",
	"network",
	"ssl",
	"tls",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// AdaptiveLimiter bounds concurrent stage invocations against the provider
// and adapts the bound to observed transport health. Every stage in the
// workflow shares one limiter, so a flaky upstream slows the whole process
// down instead of piling more connections onto it.
//
// The limit starts at four slots. Four consecutive connection-like failures
// drop it to two; after a 120 second cool-off and six consecutive successes
// it returns to four. Each change emits an adaptive_concurrency event.
type AdaptiveLimiter struct {
	inner  StageRunner
	events Publisher
	logger *slog.Logger

	mu            sync.Mutex
	cond          *sync.Cond
	limit         int
	inflight      int
	failStreak    int
	successStreak int
	recoverAfter  time.Time

	now func() time.Time
}

// NewAdaptiveLimiter wraps a stage runner with the shared slot limiter.
func NewAdaptiveLimiter(inner StageRunner, events Publisher) *AdaptiveLimiter {
	if inner == nil || events == nil {
		panic("graph.NewAdaptiveLimiter: nil dependency")
	}
	l := &AdaptiveLimiter{
		inner:  inner,
		events: events,
		logger: slog.Default().With("component", "graph"),
		limit:  adaptiveDefaultLimit,
		now:    time.Now,
	}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Limit returns the current slot count.
func (l *AdaptiveLimiter) Limit() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.limit
}

// Run waits for a slot, runs the stage, and feeds the outcome back into the
// adaptive state. Cancelled stages release their slot without touching the
// streaks: a cancellation says nothing about transport health.
func (l *AdaptiveLimiter) Run(ctx context.Context, stage *agent.Stage) (*agent.Output, error) {
	if err := l.acquire(ctx); err != nil {
		return nil, err
	}
	out, err := l.inner.Run(ctx, stage)
	l.release()
	if ctx.Err() == nil {
		l.record(ctx, stage.SessionID, err)
	}
	return out, err
}

func (l *AdaptiveLimiter) acquire(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.cond.Broadcast()
	})
	defer stop()

	l.mu.Lock()
	defer l.mu.Unlock()
	for l.inflight >= l.limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.cond.Wait()
	}
	l.inflight++
	return nil
}

func (l *AdaptiveLimiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight > 0 {
		l.inflight--
	}
	l.cond.Broadcast()
}

// record updates the streaks and, when the limit changes, emits the
// adaptive_concurrency event on the session that tipped it.
func (l *AdaptiveLimiter) record(ctx context.Context, sessionID string, stageErr error) {
	l.mu.Lock()
	var (
		changedLimit int
		mode         string
		reason       string
	)
	if stageErr == nil {
		l.failStreak = 0
		l.successStreak++
		if l.limit == adaptiveReducedLimit &&
			!l.now().Before(l.recoverAfter) &&
			l.successStreak >= adaptiveRecoverStreak {
			l.limit = adaptiveDefaultLimit
			l.successStreak = 0
			changedLimit = adaptiveDefaultLimit
			mode = "recovered"
			reason = "network_stable"
			l.cond.Broadcast()
		}
	} else {
		l.successStreak = 0
		if isConnectionError(stageErr) {
			l.failStreak++
			if l.limit == adaptiveDefaultLimit && l.failStreak >= adaptiveFailThreshold {
				l.limit = adaptiveReducedLimit
				l.recoverAfter = l.now().Add(adaptiveReducedWindow)
				changedLimit = adaptiveReducedLimit
				mode = "degraded"
				reason = stageErr.Error()
			}
		} else {
			l.failStreak = 0
		}
	}
	l.mu.Unlock()

	if changedLimit == 0 {
		return
	}
	l.events.Emit(ctx, models.Event{
		Type:             models.EventAdaptiveConcurrency,
		SessionID:        sessionID,
		Mode:             mode,
		ConcurrencyLimit: changedLimit,
		Reason:           reason,
	})
	l.logger.Warn("Provider concurrency limit changed",
		"mode", mode, "limit", changedLimit, "reason", reason)
}
