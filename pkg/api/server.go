// Package api exposes the market-insight workflow over HTTP: session
// intake (streaming and synchronous), status aggregation, cancellation,
// artifact downloads, feedback, the WebSocket event feed, and health.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/database"
	"github.com/weaveai/weaveai/pkg/events"
	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/services"
)

// Server is the HTTP front of the orchestrator. Handlers stay thin: intake
// and read paths go through the insight service, background execution
// through the worker pool, and live delivery through the event bus.
type Server struct {
	cfg         *config.ServerConfig
	db          *database.Client
	insights    *services.InsightService
	pool        *queue.Pool
	bus         *events.Bus
	connManager *events.ConnectionManager
	logger      *slog.Logger

	engine     *gin.Engine
	httpServer *http.Server
}

// NewServer wires the HTTP server and registers all routes. db may be nil,
// which skips the database health check.
func NewServer(cfg *config.ServerConfig, db *database.Client, insights *services.InsightService, pool *queue.Pool, bus *events.Bus, connManager *events.ConnectionManager) *Server {
	if insights == nil || pool == nil || bus == nil {
		panic("api.NewServer: nil dependency")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:         cfg,
		db:          db,
		insights:    insights,
		pool:        pool,
		bus:         bus,
		connManager: connManager,
		logger:      slog.Default().With("component", "api"),
		engine:      engine,
	}

	engine.Use(requestLogger(), gin.Recovery(), corsAllowAll())
	s.registerRoutes()

	s.httpServer = &http.Server{
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.healthHandler)

	v2 := s.engine.Group("/api/v2/market-insight")
	v2.GET("/health", s.healthHandler)
	v2.POST("/stream", s.streamHandler)
	v2.POST("/generate", s.generateHandler)
	v2.GET("/status/:session_id", s.statusHandler)
	v2.GET("/sessions", s.sessionsHandler)
	v2.GET("/report/:name", s.reportHandler)
	v2.GET("/export/:name", s.exportHandler)
	v2.POST("/cancel/:session_id", s.cancelHandler)
	v2.POST("/feedback", s.submitFeedbackHandler)
	v2.GET("/feedback/:session_id", s.latestFeedbackHandler)
	v2.GET("/events/:session_id", s.eventsHandler)
}

// Handler returns the root handler for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves HTTP on addr, blocking until the listener fails or Shutdown
// runs. Returns http.ErrServerClosed after a clean shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// Shutdown stops the HTTP server, waiting for in-flight requests up to the
// context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
