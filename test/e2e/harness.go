// Package e2e provides end-to-end test infrastructure for the market-insight
// workflow: a full application boot against a schema-isolated test database,
// a scripted LLM client, and SSE/status helpers.
package e2e

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/api"
	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/database"
	"github.com/weaveai/weaveai/pkg/debate"
	"github.com/weaveai/weaveai/pkg/events"
	"github.com/weaveai/weaveai/pkg/graph"
	"github.com/weaveai/weaveai/pkg/masking"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/queue"
	"github.com/weaveai/weaveai/pkg/report"
	"github.com/weaveai/weaveai/pkg/retry"
	"github.com/weaveai/weaveai/pkg/services"
	"github.com/weaveai/weaveai/pkg/store"
	"github.com/weaveai/weaveai/pkg/tools"
	testdb "github.com/weaveai/weaveai/test/database"
)

// TestApp boots a complete WeaveAI instance for e2e testing.
type TestApp struct {
	Config   *config.Config
	DBClient *database.Client
	Store    *store.Store

	// Mocks / test wiring
	LLMClient *ScriptedLLMClient

	// Real infrastructure
	Bus          *events.Bus
	Publisher    *events.Publisher
	ToolRegistry *tools.Registry
	Pool         *queue.Pool
	Server       *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/api/v2/market-insight/events"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient             *ScriptedLLMClient
	workflow              func(*config.WorkflowConfig)
	tools                 func(*config.ToolsConfig)
	guardrails            *config.GuardrailConfig
	maxConcurrentSessions int
	sessionTimeout        time.Duration
	rehearsalLogPath      string
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted LLM client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithWorkflow mutates the workflow defaults before wiring.
func WithWorkflow(mutate func(*config.WorkflowConfig)) TestAppOption {
	return func(c *testAppConfig) { c.workflow = mutate }
}

// WithTools mutates the tool mediation settings before wiring.
func WithTools(mutate func(*config.ToolsConfig)) TestAppOption {
	return func(c *testAppConfig) { c.tools = mutate }
}

// WithGuardrails replaces the wide-open test guardrails.
func WithGuardrails(g *config.GuardrailConfig) TestAppOption {
	return func(c *testAppConfig) { c.guardrails = g }
}

// WithMaxConcurrentSessions sets the worker pool capacity.
func WithMaxConcurrentSessions(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxConcurrentSessions = n }
}

// WithSessionTimeout bounds each run's context.
func WithSessionTimeout(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.sessionTimeout = d }
}

// WithRehearsalLog enables the rehearsal JSONL log at path.
func WithRehearsalLog(path string) TestAppOption {
	return func(c *testAppConfig) { c.rehearsalLogPath = path }
}

// NewTestApp creates and starts a full WeaveAI test instance.
// Shutdown is registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	tc := &testAppConfig{
		maxConcurrentSessions: 4,
		sessionTimeout:        30 * time.Second,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	cfg := defaultTestConfig(t, tc)

	// 1. Database — schema-isolated, migrated.
	dbClient := testdb.NewTestClient(t)
	st := store.NewStore(dbClient.Pool)

	// 2. Streaming infrastructure.
	bus := events.NewBus(0)
	publisher := events.NewPublisher(st, bus)
	connManager := events.NewConnectionManager(bus, events.NewStoreCatchupAdapter(st), 5*time.Second)

	// 3. Tool mediation.
	masker := masking.NewService(cfg.Masking)
	toolRegistry := tools.NewRegistry(st, publisher, masker, cfg.Tools, cfg.Guardrails)

	// 4. Stage execution against the scripted client.
	retrier := retry.NewRunner(publisher)
	stages := graph.NewAdaptiveLimiter(agent.NewRunner(tc.llmClient, toolRegistry, publisher), publisher)
	debater := debate.NewCoordinator(cfg.Agents, stages, st, publisher, retrier, cfg.Workflow.RevisionMinDeltaPct)

	// 5. Engine, renderer, worker pool.
	renderer := report.NewRenderer(cfg.Server.ReportsDir)
	engine := graph.NewEngine(cfg.Agents, stages, debater, st, publisher, retrier, renderer, cfg.Workflow)
	pool := queue.NewPool(engine, st, cfg.Queue, report.NewRehearsalLog(cfg.Server.RehearsalLogPath))
	pool.SetSessionCleaner(toolRegistry)

	// 6. Services and HTTP server on a random port.
	insights := services.NewInsightService(st, pool, cfg.Workflow, cfg.Presets, renderer)
	server := api.NewServer(cfg.Server, dbClient, insights, pool, bus, connManager)

	httpSrv := httptest.NewServer(server.Handler())

	app := &TestApp{
		Config:       cfg,
		DBClient:     dbClient,
		Store:        st,
		LLMClient:    tc.llmClient,
		Bus:          bus,
		Publisher:    publisher,
		ToolRegistry: toolRegistry,
		Pool:         pool,
		Server:       server,
		BaseURL:      httpSrv.URL,
		WSURL:        "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/api/v2/market-insight/events",
		t:            t,
	}

	// Cleanup in reverse-creation order. Database cleanup is registered by
	// testdb.NewTestClient.
	t.Cleanup(func() {
		pool.Stop()
		httpSrv.Close()
		bus.Close()
	})

	return app
}

// defaultTestConfig builds a fast-path configuration: no worker stagger,
// millisecond retry backoff, and guardrails too wide to trip unless a test
// narrows them.
func defaultTestConfig(t *testing.T, tc *testAppConfig) *config.Config {
	t.Helper()

	agents, err := config.NewAgentRegistry("test-model")
	if err != nil {
		t.Fatalf("failed to build agent registry: %v", err)
	}
	presets, err := config.NewPresetRegistry("")
	if err != nil {
		t.Fatalf("failed to build preset registry: %v", err)
	}

	workflow := &config.WorkflowConfig{
		DefaultDebateRounds: 1,
		MaxDebateRounds:     2,
		EnableFollowup:      false,
		RetryMaxAttempts:    2,
		RetryBackoffMS:      1,
		DegradeMode:         models.DegradeModePartial,
		WorkerStagger:       0,
		RevisionMinDeltaPct: 12,
	}
	if tc.workflow != nil {
		tc.workflow(workflow)
	}

	toolsCfg := &config.ToolsConfig{
		RateLimitQPS:     1000,
		WebSearchLimit:   10,
		CacheTTL:         time.Minute,
		CacheMaxEntries:  128,
		InputPricePer1K:  0.001,
		OutputPricePer1K: 0.002,
	}
	if tc.tools != nil {
		tc.tools(toolsCfg)
	}

	guardrails := tc.guardrails
	if guardrails == nil {
		guardrails = &config.GuardrailConfig{
			MaxEstimatedCostUSD:  1000,
			MaxErrorRate:         1.0,
			MinCallsForErrorRate: 10000,
		}
	}

	return &config.Config{
		Workflow:   workflow,
		Tools:      toolsCfg,
		Guardrails: guardrails,
		Masking:    &config.MaskingConfig{Enabled: true},
		Queue: &config.QueueConfig{
			MaxConcurrentSessions:   tc.maxConcurrentSessions,
			SessionTimeout:          tc.sessionTimeout,
			GracefulShutdownTimeout: 10 * time.Second,
		},
		Server: &config.ServerConfig{
			ListenAddr:       ":0",
			ReportsDir:       t.TempDir(),
			RehearsalLogPath: tc.rehearsalLogPath,
		},
		Retention: config.DefaultRetentionConfig(),
		Agents:    agents,
		Presets:   presets,
	}
}
