// Package tools mediates external tool use inside a workflow session. The
// registry fronts every web-search-enabled generation with a result cache,
// a per-session rate limiter, invocation accounting, payload redaction, and
// budget guardrails, and reports each step on the session event stream.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/masking"
	"github.com/weaveai/weaveai/pkg/models"
)

// Store persists invocation accounting rows. Write failures are logged and
// swallowed: accounting must never break a running workflow.
type Store interface {
	CreateToolInvocation(ctx context.Context, inv *models.ToolInvocation) error
	FinishToolInvocation(ctx context.Context, inv *models.ToolInvocation) error
}

// Publisher pushes mediation events onto the session stream.
type Publisher interface {
	Emit(ctx context.Context, event models.Event)
}

// Call describes one mediated invocation. Exec performs the external call
// and returns its output payload plus any source URLs it surfaced. Context
// names the workflow stage making the call (gather, challenge, respond,
// followup, synthesize).
type Call struct {
	SessionID       string
	AgentName       string
	ToolName        string
	Context         string
	Model           string
	TemplateVersion string
	PromptHash      string
	DebateRound     int
	EnableWebSearch bool
	Input           map[string]any
	Exec            func(ctx context.Context) (map[string]any, []string, error)
}

// Result reports how a mediated invocation concluded. ShortCircuit means a
// tripped guardrail suppressed the call before Exec ran.
type Result struct {
	InvocationID     string
	Output           map[string]any
	Sources          []string
	CacheHit         bool
	ShortCircuit     bool
	GuardrailFired   bool
	DurationMS       int64
	EstimatedCostUSD float64
}

// Registry is the session-scoped tool mediator.
type Registry struct {
	store     Store
	publisher Publisher
	masker    *masking.Service
	cache     *Cache
	guardrail *Guardrail
	cfg       *config.ToolsConfig
	logger    *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewRegistry wires the mediator over its store, event publisher, and
// redaction service.
func NewRegistry(store Store, publisher Publisher, masker *masking.Service, toolsCfg *config.ToolsConfig, guardCfg *config.GuardrailConfig) *Registry {
	return &Registry{
		store:     store,
		publisher: publisher,
		masker:    masker,
		cache:     NewCache(toolsCfg.CacheTTL, toolsCfg.CacheMaxEntries),
		guardrail: NewGuardrail(guardCfg),
		cfg:       toolsCfg,
		logger:    slog.Default().With("component", "tools"),
		limiters:  make(map[string]*rate.Limiter),
	}
}

// WebSearchEnabled reports whether the session may still use web search,
// i.e. no budget guardrail has withdrawn it. The request-level and
// per-agent switches are the stage runner's gates.
func (r *Registry) WebSearchEnabled(sessionID string) bool {
	return !r.guardrail.WebSearchDisabled(sessionID)
}

// Invoke runs one mediated call: guardrail pre-check, cache lookup, rate
// limit, pending row plus tool_start, Exec, settled row plus tool_end or
// tool_error, guardrail evaluation. Exec errors come back to the caller
// after accounting, so the stage retry policy still sees them.
func (r *Registry) Invoke(ctx context.Context, call *Call) (*Result, error) {
	if r.guardrail.WebSearchDisabled(call.SessionID) {
		r.logger.Info("Tool call suppressed by guardrail",
			"session_id", call.SessionID,
			"agent", call.AgentName,
			"tool", call.ToolName)
		return &Result{ShortCircuit: true}, nil
	}

	key := BuildCacheKey(call.AgentName, call.Model, call.TemplateVersion,
		call.PromptHash, call.DebateRound, call.EnableWebSearch)
	if cached, ok := r.cache.Get(call.SessionID, key); ok {
		return r.serveCached(ctx, call, cached)
	}

	if err := r.limiterFor(call.SessionID).Wait(ctx); err != nil {
		return nil, fmt.Errorf("tool rate limit wait: %w", err)
	}

	invocationID := uuid.New().String()
	startedAt := time.Now().UTC()
	redactedInput := r.masker.MaskPayload(call.Input)

	r.persistCreate(ctx, &models.ToolInvocation{
		InvocationID: invocationID,
		SessionID:    call.SessionID,
		AgentName:    call.AgentName,
		ToolName:     call.ToolName,
		Context:      call.Context,
		ModelName:    call.Model,
		Status:       models.ToolStatusPending,
		Input:        redactedInput,
		StartedAt:    &startedAt,
	})
	r.publisher.Emit(ctx, models.Event{
		Type:      models.EventToolStart,
		SessionID: call.SessionID,
		Agent:     call.AgentName,
		Tool:      call.ToolName,
		Input:     redactedInput,
	})

	output, sources, execErr := call.Exec(ctx)
	durationMS := time.Since(startedAt).Milliseconds()
	if durationMS < 0 {
		durationMS = 0
	}

	if execErr != nil {
		r.settleFailure(ctx, call, invocationID, output, execErr, durationMS)
		return nil, execErr
	}
	return r.settleSuccess(ctx, call, key, invocationID, output, sources, durationMS), nil
}

// EndSession releases the per-session mediation state: cache entries,
// guardrail accounting, and the rate limiter.
func (r *Registry) EndSession(sessionID string) {
	r.cache.EndSession(sessionID)
	r.guardrail.EndSession(sessionID)

	r.mu.Lock()
	delete(r.limiters, sessionID)
	r.mu.Unlock()
}

func (r *Registry) settleSuccess(ctx context.Context, call *Call, key, invocationID string, output map[string]any, sources []string, durationMS int64) *Result {
	deduped := dedupeSources(sources)
	merged := mergeOutput(output, deduped)
	redactedOutput := r.masker.MaskPayload(merged)

	// Token estimates come from the raw payloads; persisted rows and
	// events carry the redacted form.
	inputTokens := EstimateTokens(PayloadText(call.Input))
	outputTokens := EstimateTokens(PayloadText(merged))
	inPrice, outPrice := r.cfg.PriceFor(call.Model)
	cost := EstimateCostUSD(inputTokens, outputTokens, inPrice, outPrice)

	finishedAt := time.Now().UTC()
	r.persistFinish(ctx, &models.ToolInvocation{
		InvocationID:          invocationID,
		Status:                models.ToolStatusCompleted,
		Output:                redactedOutput,
		EstimatedInputTokens:  inputTokens,
		EstimatedOutputTokens: outputTokens,
		EstimatedCostUSD:      cost,
		DurationMS:            &durationMS,
		FinishedAt:            &finishedAt,
	})

	cacheHit := false
	r.publisher.Emit(ctx, models.Event{
		Type:       models.EventToolEnd,
		SessionID:  call.SessionID,
		Agent:      call.AgentName,
		Tool:       call.ToolName,
		Output:     redactedOutput,
		CacheHit:   &cacheHit,
		DurationMS: &durationMS,
		Details: map[string]any{
			"estimated_input_tokens":  inputTokens,
			"estimated_output_tokens": outputTokens,
			"estimated_cost_usd":      cost,
			"cost_mode":               CostMode,
		},
	})

	r.cache.Set(call.SessionID, key, merged)

	result := &Result{
		InvocationID:     invocationID,
		Output:           merged,
		Sources:          deduped,
		DurationMS:       durationMS,
		EstimatedCostUSD: cost,
	}
	r.guardrail.Record(call.SessionID, false, cost)
	result.GuardrailFired = r.notifyGuardrail(ctx, call)
	return result
}

func (r *Registry) settleFailure(ctx context.Context, call *Call, invocationID string, output map[string]any, execErr error, durationMS int64) {
	merged := mergeOutput(output, nil)
	merged["error"] = execErr.Error()
	redactedOutput := r.masker.MaskPayload(merged)

	// Failed calls still spend provider budget, so they are estimated and
	// counted like successes.
	inputTokens := EstimateTokens(PayloadText(call.Input))
	outputTokens := EstimateTokens(PayloadText(merged))
	inPrice, outPrice := r.cfg.PriceFor(call.Model)
	cost := EstimateCostUSD(inputTokens, outputTokens, inPrice, outPrice)

	finishedAt := time.Now().UTC()
	r.persistFinish(ctx, &models.ToolInvocation{
		InvocationID:          invocationID,
		Status:                models.ToolStatusFailed,
		Output:                redactedOutput,
		ErrorMessage:          execErr.Error(),
		EstimatedInputTokens:  inputTokens,
		EstimatedOutputTokens: outputTokens,
		EstimatedCostUSD:      cost,
		DurationMS:            &durationMS,
		FinishedAt:            &finishedAt,
	})

	r.publisher.Emit(ctx, models.Event{
		Type:      models.EventToolError,
		SessionID: call.SessionID,
		Agent:     call.AgentName,
		Tool:      call.ToolName,
		Error:     execErr.Error(),
		Output:    redactedOutput,
	})

	r.guardrail.Record(call.SessionID, true, cost)
	r.notifyGuardrail(ctx, call)
}

// serveCached settles a cache hit: a completed row with zero cost, a
// start/end event pair, and the cached payload back to the caller.
func (r *Registry) serveCached(ctx context.Context, call *Call, cached map[string]any) (*Result, error) {
	invocationID := uuid.New().String()
	startedAt := time.Now().UTC()
	redactedInput := r.masker.MaskPayload(call.Input)
	redactedOutput := r.masker.MaskPayload(cached)

	r.persistCreate(ctx, &models.ToolInvocation{
		InvocationID: invocationID,
		SessionID:    call.SessionID,
		AgentName:    call.AgentName,
		ToolName:     call.ToolName,
		Context:      call.Context,
		ModelName:    call.Model,
		Status:       models.ToolStatusPending,
		CacheHit:     true,
		Input:        redactedInput,
		StartedAt:    &startedAt,
	})
	r.publisher.Emit(ctx, models.Event{
		Type:      models.EventToolStart,
		SessionID: call.SessionID,
		Agent:     call.AgentName,
		Tool:      call.ToolName,
		Input:     redactedInput,
	})

	var durationMS int64
	finishedAt := startedAt
	r.persistFinish(ctx, &models.ToolInvocation{
		InvocationID: invocationID,
		Status:       models.ToolStatusCompleted,
		CacheHit:     true,
		Output:       redactedOutput,
		DurationMS:   &durationMS,
		FinishedAt:   &finishedAt,
	})

	cacheHit := true
	r.publisher.Emit(ctx, models.Event{
		Type:       models.EventToolEnd,
		SessionID:  call.SessionID,
		Agent:      call.AgentName,
		Tool:       call.ToolName,
		Output:     redactedOutput,
		CacheHit:   &cacheHit,
		DurationMS: &durationMS,
		Details: map[string]any{
			"estimated_input_tokens":  0,
			"estimated_output_tokens": 0,
			"estimated_cost_usd":      0.0,
			"cost_mode":               CostMode,
		},
	})

	result := &Result{
		InvocationID: invocationID,
		Output:       cached,
		Sources:      sourcesFromPayload(cached),
		CacheHit:     true,
	}
	r.guardrail.Record(call.SessionID, false, 0)
	result.GuardrailFired = r.notifyGuardrail(ctx, call)
	return result, nil
}

// notifyGuardrail evaluates the budget rules and broadcasts a trip the
// first time each rule fires.
func (r *Registry) notifyGuardrail(ctx context.Context, call *Call) bool {
	rule, details, fired := r.guardrail.Evaluate(call.SessionID)
	if !fired {
		return false
	}

	r.logger.Warn("Tool guardrail tripped",
		"session_id", call.SessionID,
		"rule", rule,
		"details", details)
	details["action"] = ActionDisableWebSearch
	r.publisher.Emit(ctx, models.Event{
		Type:      models.EventGuardrailTriggered,
		SessionID: call.SessionID,
		Agent:     call.AgentName,
		Rule:      rule,
		Details:   details,
	})
	return true
}

// limiterFor returns the session's rate limiter, creating it on first use.
// Burst equals the QPS, so a quiet session can spend a full second's budget
// at once.
func (r *Registry) limiterFor(sessionID string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	lim, ok := r.limiters[sessionID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(r.cfg.RateLimitQPS), r.cfg.RateLimitQPS)
		r.limiters[sessionID] = lim
	}
	return lim
}

func (r *Registry) persistCreate(ctx context.Context, inv *models.ToolInvocation) {
	if err := r.store.CreateToolInvocation(ctx, inv); err != nil {
		r.logger.Warn("Failed to record tool invocation",
			"invocation_id", inv.InvocationID, "error", err)
	}
}

func (r *Registry) persistFinish(ctx context.Context, inv *models.ToolInvocation) {
	if err := r.store.FinishToolInvocation(ctx, inv); err != nil {
		r.logger.Warn("Failed to settle tool invocation",
			"invocation_id", inv.InvocationID, "error", err)
	}
}

// mergeOutput copies the exec output and folds source URLs in without
// clobbering fields the tool already set.
func mergeOutput(output map[string]any, sources []string) map[string]any {
	merged := make(map[string]any, len(output)+2)
	for k, v := range output {
		merged[k] = v
	}
	if len(sources) > 0 {
		if _, ok := merged["sources"]; !ok {
			merged["sources"] = sources
		}
		if _, ok := merged["sources_count"]; !ok {
			merged["sources_count"] = len(sources)
		}
	}
	return merged
}

// dedupeSources keeps first occurrences, preserving order.
func dedupeSources(sources []string) []string {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(sources))
	deduped := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		deduped = append(deduped, s)
	}
	return deduped
}

// sourcesFromPayload recovers the source list from a cached payload, where
// JSON round-tripping turned it into []any.
func sourcesFromPayload(payload map[string]any) []string {
	switch v := payload["sources"].(type) {
	case []string:
		return v
	case []any:
		sources := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				sources = append(sources, s)
			}
		}
		return sources
	default:
		return nil
	}
}
