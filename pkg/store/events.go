package store

import (
	"context"
	"fmt"

	"github.com/weaveai/weaveai/pkg/models"
)

// InsertWorkflowEvent appends one durable event row and returns its id.
// Chunk events never reach this method; the publisher filters them.
func (s *Store) InsertWorkflowEvent(ctx context.Context, sessionID, eventType, agentName string, payload map[string]any) (int64, error) {
	data, err := marshalMap(payload)
	if err != nil {
		return 0, err
	}
	if data == nil {
		data = []byte(`{}`)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO workflow_events (session_id, event_type, agent_name, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		sessionID, eventType, nullableString(agentName), data,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert workflow event: %w", err)
	}
	return id, nil
}

// ListWorkflowEvents returns the session's persisted events in append order.
func (s *Store) ListWorkflowEvents(ctx context.Context, sessionID string) ([]*models.WorkflowEvent, error) {
	return s.listWorkflowEvents(ctx, sessionID, 0, 0)
}

// ListWorkflowEventsSince returns up to limit events with id greater than
// sinceID, oldest first. Used by the WebSocket catchup path.
func (s *Store) ListWorkflowEventsSince(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*models.WorkflowEvent, error) {
	return s.listWorkflowEvents(ctx, sessionID, sinceID, limit)
}

func (s *Store) listWorkflowEvents(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*models.WorkflowEvent, error) {
	query := `
		SELECT id, session_id, event_type, agent_name, payload, created_at
		FROM workflow_events
		WHERE session_id = $1 AND id > $2
		ORDER BY id`
	args := []any{sessionID, sinceID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow events: %w", err)
	}
	defer rows.Close()

	var events []*models.WorkflowEvent
	for rows.Next() {
		var (
			event     models.WorkflowEvent
			agentName *string
			payload   []byte
		)
		err := rows.Scan(
			&event.ID,
			&event.SessionID,
			&event.EventType,
			&agentName,
			&payload,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow event: %w", err)
		}
		event.AgentName = derefString(agentName)
		if event.Payload, err = unmarshalMap(payload); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list workflow events: %w", err)
	}
	return events, nil
}
