package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/weaveai/weaveai/pkg/models"
)

// EventWriter persists workflow event rows. Implemented by store.Store.
type EventWriter interface {
	InsertWorkflowEvent(ctx context.Context, sessionID, eventType, agentName string, payload map[string]any) (int64, error)
}

// Publisher is the single emission point for workflow events: it writes the
// durable row (chunk events excepted), then fans the event out on the bus.
// Because the row lands before fan-out, a catchup read never trails the
// live feed.
//
// A failed event write is logged and the event still fans out; event rows
// are accounting, not workflow state, and must never block a session.
type Publisher struct {
	writer EventWriter
	bus    *Bus
	logger *slog.Logger
}

// NewPublisher creates a publisher over the given writer and bus.
func NewPublisher(writer EventWriter, bus *Bus) *Publisher {
	return &Publisher{
		writer: writer,
		bus:    bus,
		logger: slog.Default().With("component", "events"),
	}
}

// Emit stamps, persists, and broadcasts one event.
func (p *Publisher) Emit(ctx context.Context, event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	if !event.Type.IsChunk() {
		id, err := p.writer.InsertWorkflowEvent(ctx,
			event.SessionID, string(event.Type), event.Agent, eventPayload(event))
		if err != nil {
			p.logger.Warn("Failed to persist workflow event",
				"session_id", event.SessionID, "type", event.Type, "error", err)
		} else {
			event.DBEventID = id
		}
	}

	p.bus.Publish(SessionChannel(event.SessionID), event)

	// Session lifecycle events also feed the global sessions channel for
	// the session list page.
	switch event.Type {
	case models.EventOrchestratorStart, models.EventOrchestratorEnd, models.EventError:
		p.bus.Publish(GlobalSessionsChannel, event)
	}
}

// eventPayload renders the envelope minus the routing fields that live in
// their own columns on the workflow_events row.
func eventPayload(event models.Event) map[string]any {
	data, err := json.Marshal(event)
	if err != nil {
		return nil
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil
	}
	delete(payload, "type")
	delete(payload, "session_id")
	delete(payload, "timestamp")
	delete(payload, "agent")
	delete(payload, "db_event_id")
	return payload
}
