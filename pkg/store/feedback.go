package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/weaveai/weaveai/pkg/models"
)

// CreateFeedback appends one rating row and fills the generated fields.
func (s *Store) CreateFeedback(ctx context.Context, feedback *models.Feedback) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO feedback (session_id, rating, comment)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		feedback.SessionID, feedback.Rating, feedback.Comment,
	).Scan(&feedback.ID, &feedback.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create feedback: %w", err)
	}
	return nil
}

// GetLatestFeedback returns the most recent rating for the session.
func (s *Store) GetLatestFeedback(ctx context.Context, sessionID string) (*models.Feedback, error) {
	var feedback models.Feedback

	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, rating, comment, created_at
		FROM feedback
		WHERE session_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`,
		sessionID,
	).Scan(
		&feedback.ID,
		&feedback.SessionID,
		&feedback.Rating,
		&feedback.Comment,
		&feedback.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("feedback for session %s: %w", sessionID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return &feedback, nil
}
