package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/store"
)

// SubmitFeedback stores one rating for an existing session. Repeated
// submissions are kept; reads return the most recent.
func (s *InsightService) SubmitFeedback(ctx context.Context, sessionID string, rating int, comment string) (*models.Feedback, error) {
	if rating < 1 || rating > 5 {
		return nil, NewValidationError("rating", "must be between 1 and 5")
	}
	if _, err := s.getSession(ctx, sessionID); err != nil {
		return nil, err
	}

	feedback := &models.Feedback{
		SessionID: sessionID,
		Rating:    rating,
		Comment:   comment,
	}

	wctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := s.store.CreateFeedback(wctx, feedback); err != nil {
		return nil, err
	}
	return feedback, nil
}

// LatestFeedback returns the most recent rating for the session.
func (s *InsightService) LatestFeedback(ctx context.Context, sessionID string) (*models.Feedback, error) {
	if sessionID == "" {
		return nil, NewValidationError("session_id", "required")
	}
	feedback, err := s.store.GetLatestFeedback(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("feedback for session %s: %w", sessionID, ErrNotFound)
		}
		return nil, err
	}
	return feedback, nil
}
