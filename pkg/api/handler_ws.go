package api

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/events"
)

// eventsHandler handles GET /api/v2/market-insight/events/:session_id.
// It upgrades to WebSocket and subscribes the connection to the session's
// channel up front, so clients get catchup plus the live feed without
// sending a subscribe message. Non-browser clients carry no Origin header
// and pass the origin check unconditionally.
func (s *Server) eventsHandler(c *gin.Context) {
	if s.connManager == nil {
		writeError(c, http.StatusServiceUnavailable, codeInternal, "event feed not available")
		return
	}

	var origins []string
	if s.cfg != nil {
		origins = s.cfg.AllowedWSOrigins
	}

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: origins,
	})
	if err != nil {
		// Accept already wrote the HTTP error response.
		s.logger.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	// Blocks until the WebSocket closes.
	channel := events.SessionChannel(c.Param("session_id"))
	s.connManager.HandleConnection(c.Request.Context(), conn, channel)
}
