package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/events"
	"github.com/weaveai/weaveai/pkg/models"
)

// sseHeartbeat is the idle interval between SSE comment frames. Keeps
// proxies from reaping the connection during long agent turns.
const sseHeartbeat = 15 * time.Second

// streamHandler handles POST /api/v2/market-insight/stream.
// It creates the session, starts it in the worker pool, and relays workflow
// events as SSE frames until the run ends or the client disconnects.
// A disconnect only detaches the subscriber; the run keeps going and the
// client can re-attach via the WebSocket feed or polling.
func (s *Server) streamHandler(c *gin.Context) {
	var req models.MarketInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	session, err := s.insights.Prepare(c.Request.Context(), &req)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	// Subscribe before Submit so the engine's first event cannot slip past.
	sub := s.bus.Subscribe(events.SessionChannel(session.ID))
	defer sub.Close()

	ticket, err := s.pool.Submit(session)
	if err != nil {
		s.insights.AbortStart(session.ID, fmt.Sprintf("submission rejected: %v", err))
		mapSubmitError(c, err)
		return
	}

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	ping := time.NewTicker(sseHeartbeat)
	defer ping.Stop()

	clientGone := c.Request.Context().Done()
	for {
		select {
		case <-clientGone:
			s.logger.Info("SSE client disconnected", "session_id", session.ID)
			return

		case event := <-sub.C:
			s.writeSSE(c.Writer, event)
			ping.Reset(sseHeartbeat)
			if isStreamEnd(event.Type) {
				return
			}

		case <-ping.C:
			fmt.Fprint(c.Writer, ": ping\n\n")
			c.Writer.Flush()

		case <-ticket.Done():
			// The run is terminal; flush whatever is still buffered.
			for {
				select {
				case event := <-sub.C:
					s.writeSSE(c.Writer, event)
				default:
					return
				}
			}
		}
	}
}

// generateHandler handles POST /api/v2/market-insight/generate.
// It runs the session to a terminal status through the same worker pool as
// the streaming path, then returns the aggregate as one JSON document.
func (s *Server) generateHandler(c *gin.Context) {
	var req models.MarketInsightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, err.Error())
		return
	}

	session, err := s.insights.Prepare(c.Request.Context(), &req)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	ticket, err := s.pool.Submit(session)
	if err != nil {
		s.insights.AbortStart(session.ID, fmt.Sprintf("submission rejected: %v", err))
		mapSubmitError(c, err)
		return
	}

	err = ticket.Wait(c.Request.Context())
	if c.Request.Context().Err() != nil {
		// Client gave up; the run keeps going in the pool.
		s.logger.Info("generate client disconnected", "session_id", session.ID)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, codeGraphExecution, err.Error())
		return
	}

	snap, err := s.insights.Status(c.Request.Context(), session.ID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, buildInsightResponse(snap))
}

// writeSSE renders one event as a data frame and flushes it.
func (s *Server) writeSSE(w gin.ResponseWriter, event models.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("Failed to marshal SSE event",
			"session_id", event.SessionID, "type", event.Type, "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	w.Flush()
}

// isStreamEnd reports whether the event closes the SSE stream.
func isStreamEnd(t models.EventType) bool {
	return t == models.EventOrchestratorEnd || t == models.EventError
}
