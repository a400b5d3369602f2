package services

import (
	"context"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
)

// CancelResult reports what a cancel request did. Status is "cancelling"
// when a live run was signalled and will terminalize on its own, or
// "cancelled" when the row was flipped directly.
type CancelResult struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// Cancel stops a session. Live runs get their context cancelled and the
// engine persists the cancelled status; pending rows that never started
// and runs orphaned by a restart are flipped directly.
func (s *InsightService) Cancel(ctx context.Context, sessionID string) (*CancelResult, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, fmt.Errorf("session %s already %s: %w", sessionID, session.Status, ErrNotCancellable)
	}

	if s.canceller.CancelSession(sessionID) {
		s.logger.Info("session cancel signalled", "session_id", sessionID)
		return &CancelResult{SessionID: sessionID, Status: "cancelling"}, nil
	}

	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	updated, err := s.store.UpdateSessionStatus(wctx, sessionID, models.SessionStatusCancelled)
	if err != nil {
		return nil, err
	}
	if !updated {
		// A terminal status landed between the read and the update.
		return nil, fmt.Errorf("session %s already terminal: %w", sessionID, ErrNotCancellable)
	}
	s.logger.Info("session cancelled directly", "session_id", sessionID)
	return &CancelResult{SessionID: sessionID, Status: string(models.SessionStatusCancelled)}, nil
}
