package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
)

// UpsertAgentResult checkpoints an agent's contribution. One row per
// (session_id, agent_name); later checkpoints overwrite earlier ones.
func (s *Store) UpsertAgentResult(ctx context.Context, result *models.AgentResult) error {
	sources := result.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("failed to marshal sources: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO agent_results (session_id, agent_name, content, thinking,
			sources, confidence, status, duration_ms, error_message, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id, agent_name) DO UPDATE SET
			content = EXCLUDED.content,
			thinking = EXCLUDED.thinking,
			sources = EXCLUDED.sources,
			confidence = EXCLUDED.confidence,
			status = EXCLUDED.status,
			duration_ms = EXCLUDED.duration_ms,
			error_message = EXCLUDED.error_message,
			completed_at = EXCLUDED.completed_at,
			updated_at = now()`,
		result.SessionID,
		result.AgentName,
		result.Content,
		result.Thinking,
		sourcesJSON,
		result.Confidence,
		result.Status,
		result.DurationMS,
		result.ErrorMessage,
		result.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert agent result: %w", err)
	}
	return nil
}

// UpdateAgentContent rewrites an agent's content after an accepted debate
// revision. This is the only post-gather mutation path for agent results.
func (s *Store) UpdateAgentContent(ctx context.Context, sessionID, agentName, content string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE agent_results SET content = $3, updated_at = now()
		WHERE session_id = $1 AND agent_name = $2`,
		sessionID, agentName, content)
	if err != nil {
		return fmt.Errorf("failed to update agent content: %w", err)
	}
	return nil
}

// ListAgentResults returns the session's agent results in insertion order.
func (s *Store) ListAgentResults(ctx context.Context, sessionID string) ([]*models.AgentResult, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, agent_name, content, thinking, sources,
			confidence, status, duration_ms, error_message,
			created_at, updated_at, completed_at
		FROM agent_results
		WHERE session_id = $1
		ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list agent results: %w", err)
	}
	defer rows.Close()

	var results []*models.AgentResult
	for rows.Next() {
		var (
			result  models.AgentResult
			sources []byte
		)
		err := rows.Scan(
			&result.ID,
			&result.SessionID,
			&result.AgentName,
			&result.Content,
			&result.Thinking,
			&sources,
			&result.Confidence,
			&result.Status,
			&result.DurationMS,
			&result.ErrorMessage,
			&result.CreatedAt,
			&result.UpdatedAt,
			&result.CompletedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan agent result: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &result.Sources); err != nil {
				return nil, fmt.Errorf("failed to unmarshal sources: %w", err)
			}
		}
		results = append(results, &result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list agent results: %w", err)
	}
	return results, nil
}
