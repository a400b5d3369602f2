package api

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/report"
)

// reportHandler handles GET /api/v2/market-insight/report/:name with
// name = {session_id}.html. The HTML is re-rendered from the persisted
// report so the served document always carries the current chart bundle.
func (s *Server) reportHandler(c *gin.Context) {
	sessionID, ok := strings.CutSuffix(c.Param("name"), ".html")
	if !ok || sessionID == "" {
		writeError(c, http.StatusNotFound, codeNotFound, "report not found")
		return
	}

	html, err := s.insights.ReportHTML(c.Request.Context(), sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", html)
}

// exportHandler handles GET /api/v2/market-insight/export/:name with
// name = {session_id}.zip. The archive is assembled in memory so a failed
// build still produces a clean error status instead of a truncated file.
func (s *Server) exportHandler(c *gin.Context) {
	sessionID, ok := strings.CutSuffix(c.Param("name"), ".zip")
	if !ok || sessionID == "" {
		writeError(c, http.StatusNotFound, codeNotFound, "export not found")
		return
	}

	var buf bytes.Buffer
	if err := s.insights.Export(c.Request.Context(), sessionID, &buf); err != nil {
		mapServiceError(c, err)
		return
	}

	filename := "weaveai-roadshow-" + report.SafeSessionID(sessionID) + ".zip"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}
