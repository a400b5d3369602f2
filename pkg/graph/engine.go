// Package graph drives one market-insight session end to end: the gather
// fan-out across the four workers, the debate rounds, the synthesizer, and
// finalization into the persisted report and packs. Every durable state
// transition is written before the matching event is emitted, so a catchup
// reader never sees an event whose state is missing.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/debate"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/pack"
	"github.com/weaveai/weaveai/pkg/retry"
)

// maxEngineDebateRounds caps the rounds the engine will run regardless of
// what the session row carries. Round 1 is peer review, round 2 red team;
// there is no third debate style.
const maxEngineDebateRounds = 2

// ReportURLPattern renders the public URL of the HTML report for a session.
const ReportURLPattern = "/api/v2/market-insight/report/%s.html"

// StageRunner runs one prompt round trip. Implemented by agent.Runner,
// usually wrapped in the AdaptiveLimiter.
type StageRunner interface {
	Run(ctx context.Context, stage *agent.Stage) (*agent.Output, error)
}

// DebateRunner runs one debate round. Implemented by debate.Coordinator.
type DebateRunner interface {
	RunRound(ctx context.Context, p debate.Params, round int) ([]*models.DebateExchange, error)
}

// Publisher emits workflow events. Implemented by events.Publisher.
type Publisher interface {
	Emit(ctx context.Context, event models.Event)
}

// Store is the slice of the persistence gateway the engine drives.
// Implemented by store.Store.
type Store interface {
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSessionStatus(ctx context.Context, id string, status models.SessionStatus) (bool, error)
	UpdateSessionPhase(ctx context.Context, id string, phase models.SessionPhase, debateRound int) error
	UpsertAgentResult(ctx context.Context, result *models.AgentResult) error
	CompleteSession(ctx context.Context, id string, finalReport, reportHTMLURL string, evidencePack, memorySnapshot map[string]any) (bool, error)
	FailSession(ctx context.Context, id string, errorMessage string) (bool, error)
	ListToolInvocations(ctx context.Context, sessionID string) ([]*models.ToolInvocation, error)
}

// ReportWriter renders the final report to an HTML file and returns its
// path. Implemented by report.Renderer.
type ReportWriter interface {
	WriteHTML(sessionID, reportMarkdown string, profile models.UserProfile) (string, error)
}

// Engine owns one session run from insert to terminal status.
type Engine struct {
	registry *config.AgentRegistry
	stages   StageRunner
	debate   DebateRunner
	store    Store
	events   Publisher
	retry    *retry.Runner
	report   ReportWriter
	workflow *config.WorkflowConfig
	logger   *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewEngine wires the workflow engine. Panics on nil dependencies; wiring
// them is the composition root's job.
func NewEngine(registry *config.AgentRegistry, stages StageRunner, debateRunner DebateRunner, store Store, events Publisher, retrier *retry.Runner, report ReportWriter, workflow *config.WorkflowConfig) *Engine {
	if registry == nil || stages == nil || debateRunner == nil || store == nil ||
		events == nil || retrier == nil || report == nil || workflow == nil {
		panic("graph.NewEngine: nil dependency")
	}
	return &Engine{
		registry: registry,
		stages:   stages,
		debate:   debateRunner,
		store:    store,
		events:   events,
		retry:    retrier,
		report:   report,
		workflow: workflow,
		logger:   slog.Default().With("component", "graph"),
		sleep:    retry.Sleep,
		now:      time.Now,
	}
}

// Run executes the whole workflow for one session: init, gather fan-out,
// debate rounds, synthesis, finalize. It returns the fatal error that ended
// the run, nil on a completed session. The session row is always left in a
// terminal status unless another writer got there first.
func (e *Engine) Run(ctx context.Context, session *models.Session) error {
	proceed, err := e.init(ctx, session)
	if err != nil {
		return e.fail(ctx, session.ID, err)
	}
	if !proceed {
		return nil
	}

	results, err := e.runGather(ctx, session)
	if err != nil {
		return e.fail(ctx, session.ID, err)
	}

	debates, err := e.runDebates(ctx, session, results)
	if err != nil {
		return e.fail(ctx, session.ID, err)
	}

	finalReport, err := e.runSynthesize(ctx, session, results, debates)
	if err != nil {
		return e.fail(ctx, session.ID, err)
	}

	if err := e.finalize(ctx, session, results, debates, finalReport); err != nil {
		return e.fail(ctx, session.ID, err)
	}
	return nil
}

// init inserts the session row, advances it to the gather phase, and opens
// the event stream with orchestrator_start. It reports proceed=false when
// the session already reached a terminal status, which happens when a
// queued run is cancelled before it starts.
func (e *Engine) init(ctx context.Context, session *models.Session) (bool, error) {
	if session.Config.DebateRounds > maxEngineDebateRounds {
		session.Config.DebateRounds = maxEngineDebateRounds
	}
	if session.Config.DebateRounds < 0 {
		session.Config.DebateRounds = 0
	}

	session.Status = models.SessionStatusRunning
	session.Phase = models.PhaseInit
	if err := e.store.CreateSession(ctx, session); err != nil {
		return false, fmt.Errorf("create session: %w", err)
	}

	// The insert is idempotent, so a row pre-created as pending keeps its
	// status. Promote it here; a terminal row means a cancel already won.
	running, err := e.store.UpdateSessionStatus(ctx, session.ID, models.SessionStatusRunning)
	if err != nil {
		return false, fmt.Errorf("mark session running: %w", err)
	}
	if !running {
		e.logger.Info("Session already terminal, skipping run", "session_id", session.ID)
		return false, nil
	}
	if err := e.store.UpdateSessionPhase(ctx, session.ID, models.PhaseGather, 0); err != nil {
		return false, fmt.Errorf("advance to gather: %w", err)
	}
	session.Phase = models.PhaseGather

	workers := e.registry.Workers()
	names := make([]string, len(workers))
	for i, spec := range workers {
		names[i] = spec.Name
	}
	e.events.Emit(ctx, models.Event{
		Type:         models.EventOrchestratorStart,
		SessionID:    session.ID,
		Agents:       names,
		DebateRounds: session.Config.DebateRounds,
	})
	e.logger.Info("Workflow started",
		"session_id", session.ID,
		"debate_rounds", session.Config.DebateRounds,
		"degrade_mode", session.Config.DegradeMode)
	return true, nil
}

// runGather fans out across the workers, staggering launches to avoid
// thundering the provider, and collects one terminal AgentResult per
// worker. A worker error surfaces only under fail mode or cancellation;
// either stops the whole fan-out.
func (e *Engine) runGather(ctx context.Context, session *models.Session) ([]*models.AgentResult, error) {
	workers := e.registry.Workers()
	results := make([]*models.AgentResult, len(workers))
	errs := make([]error, len(workers))

	gatherCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, spec := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = e.runWorker(gatherCtx, session, spec, i)
			if errs[i] != nil {
				cancel()
			}
		}()
	}
	wg.Wait()

	var gatherErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		// Prefer the root failure over the cancellations it caused in
		// sibling workers.
		if gatherErr == nil || (errors.Is(gatherErr, context.Canceled) && !errors.Is(err, context.Canceled)) {
			gatherErr = err
		}
	}
	if gatherErr != nil {
		return nil, gatherErr
	}

	contributing := make([]string, 0, len(results))
	for _, result := range results {
		if result.Status != models.AgentStatusSkipped {
			contributing = append(contributing, result.AgentName)
		}
	}
	e.events.Emit(ctx, models.Event{
		Type:            models.EventGatherComplete,
		SessionID:       session.ID,
		CompletedAgents: contributing,
		TotalResults:    len(contributing),
	})
	e.logger.Info("Gather phase finished",
		"session_id", session.ID, "results", len(contributing))
	return results, nil
}

// runWorker runs one gather agent under the session retry policy and
// returns its terminal AgentResult. The row is checkpointed before each
// per-agent event so status reads never lead the stream.
func (e *Engine) runWorker(ctx context.Context, session *models.Session, spec *config.AgentSpec, index int) (*models.AgentResult, error) {
	start := e.now()
	result := &models.AgentResult{
		SessionID: session.ID,
		AgentName: spec.Name,
		Status:    models.AgentStatusRunning,
	}
	if err := e.store.UpsertAgentResult(ctx, result); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", spec.Name, err)
	}
	e.events.Emit(ctx, models.Event{
		Type:         models.EventAgentStart,
		SessionID:    session.ID,
		Agent:        spec.Name,
		Task:         spec.Task,
		ThinkingMode: string(spec.Thinking),
	})

	// Launches are spaced out after agent_start: clients see all four
	// agents immediately while the provider sees a ramp.
	if delay := time.Duration(index) * e.workflow.WorkerStagger; delay > 0 {
		if err := e.sleep(ctx, delay); err != nil {
			return nil, e.markCancelled(ctx, result, err)
		}
	}

	policy := retry.Policy{
		MaxAttempts: session.Config.RetryMaxAttempts,
		BackoffMS:   session.Config.RetryBackoffMS,
	}
	var out *agent.Output
	attempts, err := e.retry.Do(ctx, policy, session.ID, "agent", spec.Name,
		func(ctx context.Context, attempt int) error {
			stageOut, stageErr := e.stages.Run(ctx, &agent.Stage{
				SessionID:   session.ID,
				Agent:       spec,
				Kind:        agent.StageGather,
				System:      agent.SystemPrompt(spec.Name),
				User:        agent.WorkerUserPrompt(spec.Name, session.Profile, 0, nil),
				Query:       spec.Task,
				EmitChunks:  true,
				WebSearch:   session.Config.EnableWebSearch,
				PostProcess: true,
			})
			out = stageOut
			return stageErr
		})
	durationMS := e.now().Sub(start).Milliseconds()

	if err == nil {
		result.Content = out.Content
		result.Thinking = out.Thinking
		result.Sources = out.Sources
		result.Confidence = out.Confidence
		result.Status = models.AgentStatusCompleted
		result.DurationMS = &durationMS
		completedAt := e.now()
		result.CompletedAt = &completedAt
		if err := e.store.UpsertAgentResult(ctx, result); err != nil {
			return nil, fmt.Errorf("checkpoint %s: %w", spec.Name, err)
		}
		e.events.Emit(ctx, models.Event{
			Type:       models.EventAgentEnd,
			SessionID:  session.ID,
			Agent:      spec.Name,
			Status:     string(models.AgentStatusCompleted),
			DurationMS: &durationMS,
			Attempt:    attempts,
		})
		return result, nil
	}

	if ctx.Err() != nil {
		return nil, e.markCancelled(ctx, result, err)
	}

	e.events.Emit(ctx, models.Event{
		Type:        models.EventAgentError,
		SessionID:   session.ID,
		Agent:       spec.Name,
		Error:       err.Error(),
		DurationMS:  &durationMS,
		Attempt:     attempts,
		DegradeMode: string(session.Config.DegradeMode),
	})
	e.logger.Error("Agent exhausted its attempts",
		"session_id", session.ID, "agent", spec.Name,
		"attempts", attempts, "degrade_mode", session.Config.DegradeMode, "err", err)

	switch session.Config.DegradeMode {
	case models.DegradeModeFail:
		return nil, fmt.Errorf("agent %s failed after %d attempts: %w", spec.Name, attempts, err)
	case models.DegradeModeSkip:
		result.Status = models.AgentStatusSkipped
		result.ErrorMessage = err.Error()
	default:
		// Partial keeps whatever streamed before the failure so the
		// synthesizer still sees it.
		result.Status = models.AgentStatusDegraded
		if out != nil {
			result.Content = out.Content
			result.Thinking = out.Thinking
			result.Sources = out.Sources
			result.Confidence = out.Confidence
		}
		result.ErrorMessage = err.Error()
	}
	result.DurationMS = &durationMS
	if err := e.store.UpsertAgentResult(ctx, result); err != nil {
		return nil, fmt.Errorf("checkpoint %s: %w", spec.Name, err)
	}
	e.events.Emit(ctx, models.Event{
		Type:       models.EventAgentEnd,
		SessionID:  session.ID,
		Agent:      spec.Name,
		Status:     string(result.Status),
		DurationMS: &durationMS,
		Error:      result.ErrorMessage,
		Attempt:    attempts,
	})
	return result, nil
}

// markCancelled terminalizes the agent row after a cancellation. The write
// outlives the dead context; no further events are emitted for the agent.
func (e *Engine) markCancelled(ctx context.Context, result *models.AgentResult, cause error) error {
	result.Status = models.AgentStatusFailed
	result.ErrorMessage = "cancelled"
	if err := e.store.UpsertAgentResult(context.WithoutCancel(ctx), result); err != nil {
		e.logger.Warn("Failed to checkpoint cancelled agent",
			"session_id", result.SessionID, "agent", result.AgentName, "error", err)
	}
	return cause
}

// runDebates executes the configured debate rounds. Rounds run strictly in
// sequence and every round advances the session phase before its first
// event. With no rounds configured, or no worker holding content worth
// debating, the step is a no-op.
func (e *Engine) runDebates(ctx context.Context, session *models.Session, results []*models.AgentResult) ([]*models.DebateExchange, error) {
	rounds := session.Config.DebateRounds
	if rounds <= 0 {
		return nil, nil
	}

	debatable := false
	for _, result := range results {
		if result.Status == models.AgentStatusCompleted && result.Content != "" {
			debatable = true
			break
		}
	}
	if !debatable {
		e.logger.Info("No completed worker output, skipping debate", "session_id", session.ID)
		return nil, nil
	}

	var all []*models.DebateExchange
	for round := 1; round <= rounds; round++ {
		if err := e.store.UpdateSessionPhase(ctx, session.ID, debatePhase(round), round); err != nil {
			return nil, fmt.Errorf("advance to debate round %d: %w", round, err)
		}
		session.Phase = debatePhase(round)
		session.CurrentDebateRound = round

		exchanges, err := e.debate.RunRound(ctx, debate.Params{
			SessionID: session.ID,
			Results:   results,
			Config:    session.Config,
		}, round)
		if err != nil {
			return nil, fmt.Errorf("debate round %d: %w", round, err)
		}
		all = append(all, exchanges...)
	}
	return all, nil
}

func debatePhase(round int) models.SessionPhase {
	if round <= 1 {
		return models.PhaseDebatePeer
	}
	return models.PhaseDebateRedTeam
}

// runSynthesize turns the gather and debate record into the final report.
// When no worker produced content the remote call is skipped outright and a
// locally assembled report stands in. Retry exhaustion routes through the
// degrade mode: fail aborts the session, partial and skip fall back to the
// local report and the run continues.
func (e *Engine) runSynthesize(ctx context.Context, session *models.Session, results []*models.AgentResult, debates []*models.DebateExchange) (string, error) {
	if err := e.store.UpdateSessionPhase(ctx, session.ID, models.PhaseSynthesize, session.CurrentDebateRound); err != nil {
		return "", fmt.Errorf("advance to synthesize: %w", err)
	}
	session.Phase = models.PhaseSynthesize

	spec := e.registry.Synthesizer()
	start := e.now()
	e.events.Emit(ctx, models.Event{
		Type:         models.EventAgentStart,
		SessionID:    session.ID,
		Agent:        spec.Name,
		Task:         spec.Task,
		ThinkingMode: string(spec.Thinking),
	})

	hasContent := false
	for _, result := range results {
		if result.Content != "" {
			hasContent = true
			break
		}
	}
	if !hasContent {
		reason := "no worker produced usable content, skipped remote synthesis"
		e.events.Emit(ctx, models.Event{
			Type:        models.EventAgentError,
			SessionID:   session.ID,
			Agent:       spec.Name,
			Error:       reason,
			DegradeMode: string(session.Config.DegradeMode),
		})
		e.logger.Warn("Synthesis fell back to the local report", "session_id", session.ID, "reason", reason)
		durationMS := e.now().Sub(start).Milliseconds()
		e.events.Emit(ctx, models.Event{
			Type:       models.EventAgentEnd,
			SessionID:  session.ID,
			Agent:      spec.Name,
			Status:     string(models.AgentStatusDegraded),
			Error:      reason,
			DurationMS: &durationMS,
		})
		return fallbackReport(results, debates), nil
	}

	policy := retry.Policy{
		MaxAttempts: session.Config.RetryMaxAttempts,
		BackoffMS:   session.Config.RetryBackoffMS,
	}
	var out *agent.Output
	attempts, err := e.retry.Do(ctx, policy, session.ID, "agent", spec.Name,
		func(ctx context.Context, attempt int) error {
			stageOut, stageErr := e.stages.Run(ctx, &agent.Stage{
				SessionID:   session.ID,
				Agent:       spec,
				Kind:        agent.StageSynthesize,
				System:      agent.SystemPrompt(spec.Name),
				User:        agent.SynthesizerUserPrompt(session.Profile, results, debates),
				Query:       spec.Task,
				DebateRound: session.CurrentDebateRound,
				EmitChunks:  true,
				PostProcess: true,
			})
			out = stageOut
			return stageErr
		})
	durationMS := e.now().Sub(start).Milliseconds()

	if err == nil {
		e.events.Emit(ctx, models.Event{
			Type:       models.EventAgentEnd,
			SessionID:  session.ID,
			Agent:      spec.Name,
			Status:     string(models.AgentStatusCompleted),
			DurationMS: &durationMS,
			Attempt:    attempts,
		})
		return out.Content, nil
	}

	if ctx.Err() != nil {
		return "", err
	}
	if session.Config.DegradeMode == models.DegradeModeFail {
		return "", fmt.Errorf("synthesizer failed after %d attempts: %w", attempts, err)
	}

	e.events.Emit(ctx, models.Event{
		Type:        models.EventAgentError,
		SessionID:   session.ID,
		Agent:       spec.Name,
		Error:       err.Error(),
		DurationMS:  &durationMS,
		Attempt:     attempts,
		DegradeMode: string(session.Config.DegradeMode),
	})
	e.logger.Error("Synthesis exhausted its attempts, using the local report",
		"session_id", session.ID, "attempts", attempts, "err", err)

	status := models.AgentStatusFailed
	if session.Config.DegradeMode == models.DegradeModeSkip {
		status = models.AgentStatusSkipped
	}
	e.events.Emit(ctx, models.Event{
		Type:       models.EventAgentEnd,
		SessionID:  session.ID,
		Agent:      spec.Name,
		Status:     string(status),
		Error:      err.Error(),
		DurationMS: &durationMS,
		Attempt:    attempts,
	})
	return fallbackReport(results, debates), nil
}

// finalize builds the evidence pack and memory snapshot, renders the HTML
// report, completes the session row, and closes the stream with
// orchestrator_end. When another writer already terminalized the session,
// the completion is dropped and no end event goes out.
func (e *Engine) finalize(ctx context.Context, session *models.Session, results []*models.AgentResult, debates []*models.DebateExchange, finalReport string) error {
	invocations, err := e.store.ListToolInvocations(ctx, session.ID)
	if err != nil {
		e.logger.Warn("Tool invocations unavailable for the evidence pack",
			"session_id", session.ID, "error", err)
		invocations = nil
	}

	in := pack.Inputs{
		SessionID:   session.ID,
		Profile:     session.Profile,
		Results:     results,
		Debates:     debates,
		Invocations: invocations,
		FinalReport: finalReport,
		GeneratedAt: e.now(),
	}
	evidence := pack.BuildEvidencePack(in)
	memory := pack.BuildMemorySnapshot(in)

	var reportURL string
	if path, err := e.report.WriteHTML(session.ID, finalReport, session.Profile); err != nil {
		e.logger.Warn("HTML report rendering failed", "session_id", session.ID, "error", err)
	} else if path != "" {
		reportURL = fmt.Sprintf(ReportURLPattern, session.ID)
	}

	completed, err := e.store.CompleteSession(ctx, session.ID, finalReport, reportURL, evidence, memory)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if !completed {
		e.logger.Warn("Session reached a terminal status elsewhere, dropping completion",
			"session_id", session.ID)
		return nil
	}
	session.Status = models.SessionStatusCompleted
	session.Phase = models.PhaseComplete
	session.FinalReport = finalReport
	session.ReportHTMLURL = reportURL

	e.events.Emit(ctx, models.Event{
		Type:           models.EventOrchestratorEnd,
		SessionID:      session.ID,
		FinalReport:    finalReport,
		ReportHTMLURL:  reportURL,
		EvidencePack:   evidence,
		MemorySnapshot: memory,
	})
	e.logger.Info("Workflow completed",
		"session_id", session.ID, "report_html_url", reportURL,
		"results", len(results), "exchanges", len(debates))
	return nil
}

// fail terminalizes the session after a fatal error. Cancellation ends the
// session cancelled with no further events; anything else marks it failed
// and emits the error event. Either way orchestrator_end never goes out.
// The writes outlive the dead context.
func (e *Engine) fail(ctx context.Context, sessionID string, cause error) error {
	dctx := context.WithoutCancel(ctx)

	if errors.Is(cause, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		if _, err := e.store.UpdateSessionStatus(dctx, sessionID, models.SessionStatusCancelled); err != nil {
			e.logger.Error("Failed to mark session cancelled", "session_id", sessionID, "error", err)
		}
		e.logger.Info("Workflow cancelled", "session_id", sessionID)
		return cause
	}

	failed, err := e.store.FailSession(dctx, sessionID, cause.Error())
	if err != nil {
		e.logger.Error("Failed to mark session failed", "session_id", sessionID, "error", err)
	}
	if failed {
		e.events.Emit(dctx, models.Event{
			Type:      models.EventError,
			SessionID: sessionID,
			Error:     cause.Error(),
		})
	}
	e.logger.Error("Workflow failed", "session_id", sessionID, "err", cause)
	return cause
}
