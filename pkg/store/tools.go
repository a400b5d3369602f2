package store

import (
	"context"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
)

// CreateToolInvocation records an attempt before it executes. The insert is
// keyed on invocation_id, so an accidental replay cannot duplicate the row.
func (s *Store) CreateToolInvocation(ctx context.Context, inv *models.ToolInvocation) error {
	input, err := marshalMap(inv.Input)
	if err != nil {
		return err
	}
	if input == nil {
		input = []byte(`{}`)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tool_invocations (invocation_id, session_id, agent_name,
			tool_name, context, model_name, status, cache_hit, input, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (invocation_id) DO NOTHING`,
		inv.InvocationID,
		inv.SessionID,
		inv.AgentName,
		inv.ToolName,
		inv.Context,
		inv.ModelName,
		inv.Status,
		inv.CacheHit,
		input,
		inv.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create tool invocation: %w", err)
	}
	return nil
}

// FinishToolInvocation settles the attempt with its outcome and accounting.
func (s *Store) FinishToolInvocation(ctx context.Context, inv *models.ToolInvocation) error {
	output, err := marshalMap(inv.Output)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE tool_invocations SET
			status = $2,
			cache_hit = $3,
			output = $4,
			error_message = $5,
			estimated_input_tokens = $6,
			estimated_output_tokens = $7,
			estimated_cost_usd = $8,
			duration_ms = $9,
			finished_at = $10,
			updated_at = now()
		WHERE invocation_id = $1`,
		inv.InvocationID,
		inv.Status,
		inv.CacheHit,
		output,
		inv.ErrorMessage,
		inv.EstimatedInputTokens,
		inv.EstimatedOutputTokens,
		inv.EstimatedCostUSD,
		inv.DurationMS,
		inv.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish tool invocation: %w", err)
	}
	return nil
}

// ListToolInvocations returns the session's invocations in insertion order.
func (s *Store) ListToolInvocations(ctx context.Context, sessionID string) ([]*models.ToolInvocation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, invocation_id, session_id, agent_name, tool_name, context,
			model_name, status, cache_hit, input, output, error_message,
			estimated_input_tokens, estimated_output_tokens,
			estimated_cost_usd, duration_ms, started_at, finished_at,
			created_at
		FROM tool_invocations
		WHERE session_id = $1
		ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tool invocations: %w", err)
	}
	defer rows.Close()

	var invocations []*models.ToolInvocation
	for rows.Next() {
		var (
			inv    models.ToolInvocation
			input  []byte
			output []byte
		)
		err := rows.Scan(
			&inv.ID,
			&inv.InvocationID,
			&inv.SessionID,
			&inv.AgentName,
			&inv.ToolName,
			&inv.Context,
			&inv.ModelName,
			&inv.Status,
			&inv.CacheHit,
			&input,
			&output,
			&inv.ErrorMessage,
			&inv.EstimatedInputTokens,
			&inv.EstimatedOutputTokens,
			&inv.EstimatedCostUSD,
			&inv.DurationMS,
			&inv.StartedAt,
			&inv.FinishedAt,
			&inv.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tool invocation: %w", err)
		}
		if inv.Input, err = unmarshalMap(input); err != nil {
			return nil, err
		}
		if inv.Output, err = unmarshalMap(output); err != nil {
			return nil, err
		}
		invocations = append(invocations, &inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list tool invocations: %w", err)
	}
	return invocations, nil
}

// GetToolMetrics aggregates the session's invocation accounting.
func (s *Store) GetToolMetrics(ctx context.Context, sessionID string) (*models.ToolMetrics, error) {
	var metrics models.ToolMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(estimated_cost_usd), 0),
			COALESCE(AVG(CASE WHEN status = 'failed' THEN 1.0 ELSE 0.0 END), 0),
			COALESCE(AVG(duration_ms), 0),
			COALESCE(AVG(CASE WHEN cache_hit THEN 1.0 ELSE 0.0 END), 0)
		FROM tool_invocations
		WHERE session_id = $1`,
		sessionID,
	).Scan(
		&metrics.TotalCalls,
		&metrics.TotalEstimatedCostUSD,
		&metrics.ErrorRate,
		&metrics.AvgDurationMS,
		&metrics.CacheHitRate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate tool metrics: %w", err)
	}
	return &metrics, nil
}
