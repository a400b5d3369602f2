package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/services"
)

// statusHandler handles GET /api/v2/market-insight/status/:session_id.
// Unknown sessions answer 200 with status "not_found": polling clients
// treat it as a retryable state, not an error.
func (s *Server) statusHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	snap, err := s.insights.Status(c.Request.Context(), sessionID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{
				"session_id": sessionID,
				"status":     "not_found",
			})
			return
		}
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

// sessionsHandler handles GET /api/v2/market-insight/sessions.
func (s *Server) sessionsHandler(c *gin.Context) {
	status := models.SessionStatus(c.Query("status"))

	limit, ok := intQuery(c, "limit")
	if !ok {
		return
	}
	offset, ok := intQuery(c, "offset")
	if !ok {
		return
	}

	sessions, err := s.insights.Sessions(c.Request.Context(), status, limit, offset)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, &SessionListResponse{Sessions: sessions})
}

// cancelHandler handles POST /api/v2/market-insight/cancel/:session_id.
// Live runs report "cancelling" and terminalize through the engine;
// orphaned rows flip to "cancelled" directly.
func (s *Server) cancelHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	result, err := s.insights.Cancel(c.Request.Context(), sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// intQuery parses an optional integer query parameter, writing a 400 when
// the value is not an integer. The bool reports whether to proceed.
func intQuery(c *gin.Context, name string) (int, bool) {
	v := c.Query(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, name+" must be an integer")
		return 0, false
	}
	return n, true
}
