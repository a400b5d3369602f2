// WeaveAI orchestrator server — exposes the market-insight HTTP API, runs
// the multi-agent workflow engine behind a worker pool, and streams session
// events over SSE and WebSocket.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/api"
	"github.com/weaveai/weaveai/pkg/cleanup"
	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/database"
	"github.com/weaveai/weaveai/pkg/debate"
	"github.com/weaveai/weaveai/pkg/events"
	"github.com/weaveai/weaveai/pkg/graph"
	"github.com/weaveai/weaveai/pkg/llm"
	"github.com/weaveai/weaveai/pkg/masking"
	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/retry"
	"github.com/weaveai/weaveai/pkg/services"
	"github.com/weaveai/weaveai/pkg/store"
	"github.com/weaveai/weaveai/pkg/tools"
	"github.com/weaveai/weaveai/pkg/version"
)

func main() {
	// Load .env before anything reads the environment.
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file, continuing with existing environment")
	} else {
		slog.Info("Loaded environment from .env")
	}

	slog.Info("Starting WeaveAI", "version", version.Full())

	ctx := context.Background()

	// 1. Initialize configuration
	cfg, err := config.Initialize(ctx)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize database (migrations run inside NewClient)
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Error("Failed to load database config", "error", err)
		os.Exit(1)
	}

	dbClient, err := database.NewClient(ctx, dbConfig)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("Connected to PostgreSQL database")

	st := store.NewStore(dbClient.Pool)

	// 3. One-time startup sweep: runs orphaned by a previous crash stay
	// pending forever, so fail everything already past the stale window.
	if swept, err := st.FailStalePendingBefore(ctx, time.Now().Add(-cfg.Retention.StalePendingAge)); err != nil {
		slog.Error("Failed to sweep stale pending sessions", "error", err)
		// Non-fatal — continue
	} else if swept > 0 {
		slog.Info("Swept stale pending sessions", "count", swept)
	}

	// 4. Streaming infrastructure: bus, durable publisher, WebSocket manager
	bus := events.NewBus(0)
	defer bus.Close()
	publisher := events.NewPublisher(st, bus)
	connManager := events.NewConnectionManager(bus, events.NewStoreCatchupAdapter(st), 10*time.Second)
	slog.Info("Streaming infrastructure initialized")

	// 5. Tool mediation: redaction, cache, rate limit, guardrails
	masker := masking.NewService(cfg.Masking)
	toolRegistry := tools.NewRegistry(st, publisher, masker, cfg.Tools, cfg.Guardrails)
	slog.Info("Tool registry initialized",
		"rate_limit_qps", cfg.Tools.RateLimitQPS,
		"cache_ttl", cfg.Tools.CacheTTL)

	// 6. LLM client and stage execution
	llmClient := llm.NewArkClient(cfg.Provider)
	defer func() {
		if err := llmClient.Close(); err != nil {
			slog.Error("Error closing LLM client", "error", err)
		}
	}()

	retrier := retry.NewRunner(publisher)
	stages := graph.NewAdaptiveLimiter(agent.NewRunner(llmClient, toolRegistry, publisher), publisher)
	debater := debate.NewCoordinator(cfg.Agents, stages, st, publisher, retrier, cfg.Workflow.RevisionMinDeltaPct)
	slog.Info("LLM client initialized", "provider", cfg.Provider.String())

	// 7. Workflow engine and artifact renderer
	renderer := report.NewRenderer(cfg.Server.ReportsDir)
	engine := graph.NewEngine(cfg.Agents, stages, debater, st, publisher, retrier, renderer, cfg.Workflow)

	// 8. Start worker pool (before HTTP server)
	rehearsal := report.NewRehearsalLog(cfg.Server.RehearsalLogPath)
	if rehearsal.Enabled() {
		slog.Info("Rehearsal log enabled", "path", cfg.Server.RehearsalLogPath)
	}
	pool := queue.NewPool(engine, st, cfg.Queue, rehearsal)
	pool.SetSessionCleaner(toolRegistry)

	// 9. Application services and HTTP server
	insights := services.NewInsightService(st, pool, cfg.Workflow, cfg.Presets, renderer)
	httpServer := api.NewServer(cfg.Server, dbClient, insights, pool, bus, connManager)

	retention := cleanup.NewService(cfg.Retention, st, renderer)
	retention.Start(ctx)
	defer retention.Stop()

	// 10. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.Start(cfg.Server.ListenAddr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("WeaveAI started successfully",
		"max_concurrent_sessions", cfg.Queue.MaxConcurrentSessions,
		"debate_rounds", cfg.Workflow.DefaultDebateRounds)

	// 11. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 12. Graceful shutdown: stop intake first, then drain active runs, then
	// let in-flight HTTP requests (including open streams) finish.
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()

	pool.Stop()

	if err := httpServer.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	slog.Info("Shutdown complete")
}
