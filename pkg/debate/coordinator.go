// Package debate runs the challenge rounds that stress worker findings
// before synthesis. The dedicated challenger critiques each worker that
// completed gather, the worker answers, and a material revision rewrites
// the worker's stored result.
package debate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/weaveai/weaveai/pkg/agent"
	"github.com/weaveai/weaveai/pkg/config"
	"github.com/weaveai/weaveai/pkg/models"
	"github.com/weaveai/weaveai/pkg/retry"
)

// Round states surfaced on debate_round_end.
const (
	RoundCompleted          = "completed"
	RoundPartiallyCompleted = "partially_completed"
)

// StageRunner runs one prompt round trip. Implemented by agent.Runner.
type StageRunner interface {
	Run(ctx context.Context, stage *agent.Stage) (*agent.Output, error)
}

// Store persists exchanges and accepted revisions. Implemented by
// store.Store.
type Store interface {
	InsertDebateExchange(ctx context.Context, exchange *models.DebateExchange) error
	UpdateAgentContent(ctx context.Context, sessionID, agentName, content string) error
}

// Publisher emits workflow events. Implemented by events.Publisher.
type Publisher interface {
	Emit(ctx context.Context, event models.Event)
}

// Params carries one session's debate inputs. Results are the gather
// outputs; an accepted revision mutates the matching result in place.
type Params struct {
	SessionID string
	Results   []*models.AgentResult
	Config    models.SessionConfig
}

// Coordinator drives the debate rounds between the challenger and the
// gather workers.
type Coordinator struct {
	registry    *config.AgentRegistry
	challenger  *config.AgentSpec
	stages      StageRunner
	store       Store
	events      Publisher
	retry       *retry.Runner
	minDeltaPct float64
	logger      *slog.Logger
}

// NewCoordinator wires the debate coordinator. minDeltaPct is the content
// change, in percent, below which a declared revision does not rewrite the
// responder's stored result.
func NewCoordinator(registry *config.AgentRegistry, stages StageRunner, store Store, events Publisher, retrier *retry.Runner, minDeltaPct float64) *Coordinator {
	if registry == nil || stages == nil || store == nil || events == nil || retrier == nil {
		panic("debate.NewCoordinator: nil dependency")
	}
	return &Coordinator{
		registry:    registry,
		challenger:  registry.Challenger(),
		stages:      stages,
		store:       store,
		events:      events,
		retry:       retrier,
		minDeltaPct: minDeltaPct,
		logger:      slog.Default().With("component", "debate"),
	}
}

// exchangeTarget pairs a responder's spec with its gather result.
type exchangeTarget struct {
	spec   *config.AgentSpec
	result *models.AgentResult
}

// RunRound executes one debate round against every worker whose gather
// completed and returns the exchanges that were recorded. Responders run
// concurrently; within one exchange the challenge, response, and followup
// stay strictly ordered. Round N+1 must not start before RunRound returns.
func (c *Coordinator) RunRound(ctx context.Context, p Params, round int) ([]*models.DebateExchange, error) {
	debateType := models.DebateTypeForRound(round)
	targets := c.respondersOf(p.SessionID, p.Results)

	participants := make([]string, len(targets))
	for i, target := range targets {
		participants[i] = target.result.AgentName
	}

	c.events.Emit(ctx, models.Event{
		Type:         models.EventDebateRoundStart,
		SessionID:    p.SessionID,
		RoundNumber:  round,
		DebateType:   debateType,
		Participants: participants,
	})
	c.logger.Info("Debate round started",
		"session_id", p.SessionID, "round", round,
		"debate_type", debateType, "responders", participants)

	exchanges := make([]*models.DebateExchange, len(targets))
	degraded := make([]bool, len(targets))
	errs := make([]error, len(targets))

	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func() {
			defer wg.Done()
			exchanges[i], degraded[i], errs[i] = c.runExchange(roundCtx, p, round, debateType, target)
			if errs[i] != nil {
				// An exchange error only surfaces under fail mode or
				// cancellation; either way the rest of the round stops.
				cancel()
			}
		}()
	}
	wg.Wait()

	var roundErr error
	for _, err := range errs {
		if err == nil {
			continue
		}
		// Prefer the root failure over the cancellations it caused in
		// sibling exchanges.
		if roundErr == nil || (errors.Is(roundErr, context.Canceled) && !errors.Is(err, context.Canceled)) {
			roundErr = err
		}
	}
	if roundErr != nil {
		return nil, roundErr
	}

	recorded := make([]*models.DebateExchange, 0, len(targets))
	clean := true
	revisedAny := false
	for i, exchange := range exchanges {
		if exchange != nil {
			recorded = append(recorded, exchange)
			revisedAny = revisedAny || exchange.Revised
		}
		if degraded[i] {
			clean = false
		}
	}

	status := RoundCompleted
	if !clean {
		status = RoundPartiallyCompleted
	}
	c.events.Emit(ctx, models.Event{
		Type:        models.EventDebateRoundEnd,
		SessionID:   p.SessionID,
		RoundNumber: round,
		Status:      status,
		Details:     map[string]any{"exchanges_count": len(recorded)},
	})
	c.logger.Info("Debate round finished",
		"session_id", p.SessionID, "round", round,
		"status", status, "exchanges", len(recorded))

	// Every responder defended its position and nothing degraded: the
	// round closed in consensus.
	if clean && !revisedAny && len(recorded) > 0 {
		c.events.Emit(ctx, models.Event{
			Type:        models.EventConsensusReached,
			SessionID:   p.SessionID,
			RoundNumber: round,
			Summary:     fmt.Sprintf("All %d responders held their positions in round %d.", len(recorded), round),
		})
	}

	return recorded, nil
}

// respondersOf selects the workers that finished gather with content.
func (c *Coordinator) respondersOf(sessionID string, results []*models.AgentResult) []exchangeTarget {
	targets := make([]exchangeTarget, 0, len(results))
	for _, result := range results {
		if result.Status != models.AgentStatusCompleted || result.Content == "" {
			continue
		}
		spec, err := c.registry.Get(result.AgentName)
		if err != nil {
			c.logger.Warn("Skipping debate responder without an agent spec",
				"session_id", sessionID, "agent", result.AgentName)
			continue
		}
		targets = append(targets, exchangeTarget{spec: spec, result: result})
	}
	return targets
}

// runExchange retries one exchange under the session policy and routes the
// exhausted case through degrade_mode. The second return reports whether
// the exchange degraded.
func (c *Coordinator) runExchange(ctx context.Context, p Params, round int, debateType models.DebateType, target exchangeTarget) (*models.DebateExchange, bool, error) {
	exchangeID := fmt.Sprintf("r%d:%s->%s", round, c.challenger.Name, target.result.AgentName)
	policy := retry.Policy{MaxAttempts: p.Config.RetryMaxAttempts, BackoffMS: p.Config.RetryBackoffMS}

	var exchange *models.DebateExchange
	attempts, err := c.retry.Do(ctx, policy, p.SessionID, "debate_exchange", exchangeID,
		func(ctx context.Context, attempt int) error {
			var attemptErr error
			exchange, attemptErr = c.executeExchange(ctx, p, round, debateType, target, attempt)
			if attemptErr != nil {
				return attemptErr
			}
			// The row write belongs to the attempt: exchange inserts are
			// strongly consistent, so a failed write retries the exchange.
			if insErr := c.store.InsertDebateExchange(ctx, exchange); insErr != nil {
				return fmt.Errorf("persist exchange: %w", insErr)
			}
			return nil
		})
	if err == nil {
		c.applyRevision(ctx, p.SessionID, target.result, exchange)
		return exchange, false, nil
	}

	if ctx.Err() != nil {
		return nil, false, err
	}

	switch p.Config.DegradeMode {
	case models.DegradeModeFail:
		return nil, false, fmt.Errorf("debate exchange %s: %w", exchangeID, err)
	case models.DegradeModeSkip:
		c.logger.Warn("Debate exchange skipped",
			"session_id", p.SessionID, "exchange", exchangeID,
			"attempts", attempts, "error", err)
		return nil, true, nil
	default:
		// partial: record whatever steps completed on the last attempt.
		// The degraded exchange never rewrites the responder's result.
		if exchange == nil {
			exchange = &models.DebateExchange{
				SessionID:       p.SessionID,
				RoundNumber:     round,
				DebateType:      debateType,
				ChallengerAgent: c.challenger.Name,
				ResponderAgent:  target.result.AgentName,
			}
		}
		exchange.FollowupContent = fmt.Sprintf("[degraded] exchange failed after %d attempts: %v", attempts, err)
		c.flushDegraded(ctx, p.SessionID, exchange)
		c.logger.Warn("Debate exchange degraded",
			"session_id", p.SessionID, "exchange", exchangeID,
			"attempts", attempts, "error", err)
		return exchange, true, nil
	}
}

// executeExchange runs one attempt of challenge → response → followup. On
// error it returns the exchange with the steps that completed so a partial
// degrade can record them.
func (c *Coordinator) executeExchange(ctx context.Context, p Params, round int, debateType models.DebateType, target exchangeTarget, attempt int) (*models.DebateExchange, error) {
	responder := target.result.AgentName
	exchange := &models.DebateExchange{
		SessionID:       p.SessionID,
		RoundNumber:     round,
		DebateType:      debateType,
		ChallengerAgent: c.challenger.Name,
		ResponderAgent:  responder,
	}

	c.events.Emit(ctx, models.Event{
		Type:        models.EventAgentChallenge,
		SessionID:   p.SessionID,
		RoundNumber: round,
		FromAgent:   c.challenger.Name,
		ToAgent:     responder,
		Attempt:     attempt,
	})
	challengeOut, err := c.stages.Run(ctx, &agent.Stage{
		SessionID:   p.SessionID,
		Agent:       c.challenger,
		Kind:        agent.StageChallenge,
		System:      agent.ChallengerSystemPrompt(debateType),
		User:        agent.ChallengePrompt(debateType, responder, target.result.Content),
		DebateRound: round,
		RawStream:   true,
	})
	if challengeOut != nil {
		exchange.ChallengeContent = challengeOut.Content
	}
	if err != nil {
		return exchange, fmt.Errorf("challenge: %w", err)
	}
	c.events.Emit(ctx, models.Event{
		Type:             models.EventAgentChallengeEnd,
		SessionID:        p.SessionID,
		RoundNumber:      round,
		FromAgent:        c.challenger.Name,
		ToAgent:          responder,
		ChallengeContent: exchange.ChallengeContent,
		Attempt:          attempt,
	})

	c.events.Emit(ctx, models.Event{
		Type:        models.EventAgentRespond,
		SessionID:   p.SessionID,
		RoundNumber: round,
		FromAgent:   responder,
		ToAgent:     c.challenger.Name,
		Attempt:     attempt,
	})
	responseOut, err := c.stages.Run(ctx, &agent.Stage{
		SessionID:   p.SessionID,
		Agent:       target.spec,
		Kind:        agent.StageRespond,
		System:      agent.SystemPrompt(responder),
		User:        agent.ResponsePrompt(exchange.ChallengeContent, target.result.Content),
		Query:       target.spec.Task,
		DebateRound: round,
		RawStream:   true,
		WebSearch:   p.Config.EnableWebSearch,
	})
	if responseOut != nil {
		exchange.ResponseContent = responseOut.Content
	}
	if err != nil {
		return exchange, fmt.Errorf("response: %w", err)
	}

	revised, found, stripped := agent.ParseRevisedFooter(responseOut.Content)
	if !found {
		revised = agent.StatesRevision(responseOut.Content)
	}
	exchange.ResponseContent = stripped
	exchange.Revised = revised

	revisedFlag := revised
	c.events.Emit(ctx, models.Event{
		Type:            models.EventAgentRespondEnd,
		SessionID:       p.SessionID,
		RoundNumber:     round,
		FromAgent:       responder,
		ToAgent:         c.challenger.Name,
		ResponseContent: exchange.ResponseContent,
		Revised:         &revisedFlag,
		Attempt:         attempt,
	})

	if p.Config.EnableFollowup {
		followupOut, err := c.stages.Run(ctx, &agent.Stage{
			SessionID:   p.SessionID,
			Agent:       c.challenger,
			Kind:        agent.StageFollowup,
			System:      agent.ChallengerSystemPrompt(debateType),
			User:        agent.FollowupPrompt(exchange.ChallengeContent, exchange.ResponseContent),
			DebateRound: round,
			RawStream:   true,
		})
		if followupOut != nil {
			exchange.FollowupContent = followupOut.Content
		}
		if err != nil {
			return exchange, fmt.Errorf("followup: %w", err)
		}
		c.events.Emit(ctx, models.Event{
			Type:            models.EventAgentFollowupEnd,
			SessionID:       p.SessionID,
			RoundNumber:     round,
			FromAgent:       c.challenger.Name,
			ToAgent:         responder,
			FollowupContent: exchange.FollowupContent,
			Attempt:         attempt,
		})
	}

	return exchange, nil
}

// flushDegraded records a degraded exchange. The attempt budget is already
// spent here, so a failed insert is logged rather than retried.
func (c *Coordinator) flushDegraded(ctx context.Context, sessionID string, exchange *models.DebateExchange) {
	if err := c.store.InsertDebateExchange(ctx, exchange); err != nil {
		c.logger.Warn("Failed to persist degraded debate exchange",
			"session_id", sessionID, "challenger", exchange.ChallengerAgent,
			"responder", exchange.ResponderAgent, "error", err)
	}
}

// applyRevision rewrites the responder's stored result when it declared a
// revision and the response moved materially away from the prior content.
// This is the only content mutation after gather; the in-memory result
// changes only when the row update succeeded, so the two never diverge.
func (c *Coordinator) applyRevision(ctx context.Context, sessionID string, responder *models.AgentResult, exchange *models.DebateExchange) {
	if !exchange.Revised || exchange.ResponseContent == "" {
		return
	}
	delta := ContentDelta(responder.Content, exchange.ResponseContent)
	if delta < c.minDeltaPct {
		c.logger.Info("Debate revision below the rewrite threshold",
			"session_id", sessionID, "agent", responder.AgentName,
			"delta_pct", delta, "min_delta_pct", c.minDeltaPct)
		return
	}
	if err := c.store.UpdateAgentContent(ctx, sessionID, responder.AgentName, exchange.ResponseContent); err != nil {
		c.logger.Warn("Failed to persist revised agent content",
			"session_id", sessionID, "agent", responder.AgentName, "error", err)
		return
	}
	responder.Content = exchange.ResponseContent
	c.logger.Info("Debate revision accepted",
		"session_id", sessionID, "agent", responder.AgentName, "delta_pct", delta)
}
