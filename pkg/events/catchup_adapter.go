package events

import (
	"context"
	"strings"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
)

// EventReader reads durable events for catchup. Implemented by store.Store.
type EventReader interface {
	ListWorkflowEventsSince(ctx context.Context, sessionID string, sinceID int64, limit int) ([]*models.WorkflowEvent, error)
}

// StoreCatchupAdapter wraps the persistence gateway to implement
// CatchupQuerier.
type StoreCatchupAdapter struct {
	reader EventReader
}

// NewStoreCatchupAdapter creates a CatchupQuerier over the event reader.
func NewStoreCatchupAdapter(reader EventReader) *StoreCatchupAdapter {
	return &StoreCatchupAdapter{reader: reader}
}

// GetCatchupEvents queries events since sinceID up to limit. Only session
// channels have durable history; other channels return nothing.
func (a *StoreCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID int64, limit int) ([]CatchupEvent, error) {
	sessionID, ok := strings.CutPrefix(channel, "session:")
	if !ok || sessionID == "" {
		return nil, nil
	}

	rows, err := a.reader.ListWorkflowEventsSince(ctx, sessionID, sinceID, limit)
	if err != nil {
		return nil, err
	}

	result := make([]CatchupEvent, len(rows))
	for i, row := range rows {
		// Rebuild the flat wire envelope from the row columns plus the
		// stored payload.
		payload := make(map[string]any, len(row.Payload)+4)
		for k, v := range row.Payload {
			payload[k] = v
		}
		payload["type"] = row.EventType
		payload["session_id"] = row.SessionID
		payload["timestamp"] = row.CreatedAt.UTC().Format(time.RFC3339Nano)
		if row.AgentName != "" {
			payload["agent"] = row.AgentName
		}

		result[i] = CatchupEvent{
			ID:      row.ID,
			Payload: payload,
		}
	}
	return result, nil
}
