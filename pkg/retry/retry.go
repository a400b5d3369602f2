// Package retry runs workflow units under a bounded attempt budget with
// deterministic jittered backoff between attempts. Every retry is surfaced
// as a workflow event so clients can watch a struggling unit recover.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
)

// Publisher emits workflow events. Implemented by events.Publisher.
type Publisher interface {
	Emit(ctx context.Context, event models.Event)
}

// Policy bounds the attempts for one retryable unit. The zero value runs a
// single attempt with no backoff.
type Policy struct {
	// MaxAttempts is the total attempt budget, the first run included.
	MaxAttempts int
	// BackoffMS is the base backoff in milliseconds. The wait after failed
	// attempt n is BackoffMS doubled n-1 times plus a jitter share.
	BackoffMS int
}

// backoff returns the wait in milliseconds after failed attempt n: the base
// doubled once per prior attempt, plus a deterministic jitter share of the
// base. The share is the byte sum of "key:n" modulo 41 taken as a
// percentage, so concurrent units with distinct keys back off out of phase.
func (p Policy) backoff(attempt int, key string) int64 {
	if p.BackoffMS <= 0 {
		return 0
	}
	base := int64(p.BackoffMS)
	delay := base << uint(max(0, attempt-1))

	var sum int64
	for _, b := range []byte(fmt.Sprintf("%s:%d", key, attempt)) {
		sum += int64(b)
	}
	return delay + base*(sum%41)/100
}

// Runner retries workflow units and reports each retry as an event on the
// session stream.
type Runner struct {
	events Publisher
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRunner creates a runner that reports retries through events.
func NewRunner(events Publisher) *Runner {
	if events == nil {
		panic("retry.NewRunner: nil publisher")
	}
	return &Runner{events: events, sleep: Sleep}
}

// Do runs fn until it succeeds or the attempt budget is spent, and returns
// the number of attempts made together with the last error. Before each
// rerun it emits a retry event naming the unit and backs off with jitter
// keyed by targetID.
//
// Cancellation ends the loop at once: a unit is never retried after its
// session context is done, and a cancelled session emits no retry event.
func (r *Runner) Do(ctx context.Context, policy Policy, sessionID, targetType, targetID string, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	attempt := 0
	for attempt < maxAttempts {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			break
		}

		attempt++
		err := fn(ctx, attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		// A failure after cancellation is the cancellation, not a flake.
		if attempt == maxAttempts || ctx.Err() != nil {
			break
		}

		delay := policy.backoff(attempt, targetID)
		r.events.Emit(ctx, models.Event{
			Type:        models.EventRetry,
			SessionID:   sessionID,
			TargetType:  targetType,
			TargetID:    targetID,
			Attempt:     attempt,
			MaxAttempts: maxAttempts,
			Error:       lastErr.Error(),
			BackoffMS:   delay,
		})
		if err := r.sleep(ctx, time.Duration(delay)*time.Millisecond); err != nil {
			break
		}
	}
	return attempt, lastErr
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
