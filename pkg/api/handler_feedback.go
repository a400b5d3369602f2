package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// FeedbackRequest is the body for POST /api/v2/market-insight/feedback.
type FeedbackRequest struct {
	SessionID string `json:"session_id"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
}

// submitFeedbackHandler handles POST /api/v2/market-insight/feedback.
func (s *Server) submitFeedbackHandler(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, codeValidation, err.Error())
		return
	}
	if req.SessionID == "" {
		writeError(c, http.StatusBadRequest, codeValidation, "session_id is required")
		return
	}

	feedback, err := s.insights.SubmitFeedback(c.Request.Context(), req.SessionID, req.Rating, req.Comment)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, feedback)
}

// latestFeedbackHandler handles GET /api/v2/market-insight/feedback/:session_id.
func (s *Server) latestFeedbackHandler(c *gin.Context) {
	feedback, err := s.insights.LatestFeedback(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, feedback)
}
