package tools

import (
	"sync"

	"github.com/weaveai/weaveai/pkg/config"
)

// Guardrail rule names, reported in guardrail_triggered events.
const (
	RuleEstimatedCostExceeded = "estimated_cost_exceeded"
	RuleErrorRateExceeded     = "error_rate_exceeded"
)

// ActionDisableWebSearch is the only guardrail action today: the session
// keeps running, but later calls fall back to plain generation.
const ActionDisableWebSearch = "disable_websearch"

// Guardrail watches per-session tool accounting and withdraws websearch
// from a session once a budget rule trips. The disable is permanent for the
// session's lifetime, and each rule fires at most once per session.
type Guardrail struct {
	cfg *config.GuardrailConfig

	mu       sync.Mutex
	stats    map[string]*sessionStats
	disabled map[string]struct{}
	fired    map[string]map[string]struct{}
}

type sessionStats struct {
	totalCalls int
	errorCalls int
	costUSD    float64
}

func (s *sessionStats) errorRate() float64 {
	if s.totalCalls == 0 {
		return 0
	}
	return float64(s.errorCalls) / float64(s.totalCalls)
}

// NewGuardrail builds a guardrail over the configured budget rules.
func NewGuardrail(cfg *config.GuardrailConfig) *Guardrail {
	return &Guardrail{
		cfg:      cfg,
		stats:    make(map[string]*sessionStats),
		disabled: make(map[string]struct{}),
		fired:    make(map[string]map[string]struct{}),
	}
}

// Record folds one settled invocation into the session's running totals.
func (g *Guardrail) Record(sessionID string, failed bool, costUSD float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.stats[sessionID]
	if !ok {
		s = &sessionStats{}
		g.stats[sessionID] = s
	}
	s.totalCalls++
	if failed {
		s.errorCalls++
	}
	s.costUSD += costUSD
}

// WebSearchDisabled reports whether a tripped rule already withdrew
// websearch from the session.
func (g *Guardrail) WebSearchDisabled(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.disabled[sessionID]
	return ok
}

// Evaluate checks the budget rules against the session totals. Any hit
// disables websearch for the session; the rule name and a stats snapshot
// come back only the first time each rule fires, so callers emit at most
// one notification per rule.
func (g *Guardrail) Evaluate(sessionID string) (rule string, details map[string]any, fired bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.stats[sessionID]
	if !ok {
		return "", nil, false
	}

	costHit := g.cfg.MaxEstimatedCostUSD > 0 && s.costUSD > g.cfg.MaxEstimatedCostUSD
	rateHit := g.cfg.MaxErrorRate > 0 &&
		s.totalCalls >= g.cfg.MinCallsForErrorRate &&
		s.errorRate() > g.cfg.MaxErrorRate
	if !costHit && !rateHit {
		return "", nil, false
	}

	g.disabled[sessionID] = struct{}{}

	// Cost overruns take precedence when both rules hit at once.
	switch {
	case costHit && !g.hasFired(sessionID, RuleEstimatedCostExceeded):
		rule = RuleEstimatedCostExceeded
	case rateHit && !g.hasFired(sessionID, RuleErrorRateExceeded):
		rule = RuleErrorRateExceeded
	default:
		return "", nil, false
	}

	g.markFired(sessionID, rule)
	details = map[string]any{
		"total_calls":        s.totalCalls,
		"error_rate":         round4(s.errorRate()),
		"estimated_cost_usd": round6(s.costUSD),
	}
	return rule, details, true
}

// EndSession releases the session's accounting state.
func (g *Guardrail) EndSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stats, sessionID)
	delete(g.disabled, sessionID)
	delete(g.fired, sessionID)
}

func (g *Guardrail) hasFired(sessionID, rule string) bool {
	_, ok := g.fired[sessionID][rule]
	return ok
}

func (g *Guardrail) markFired(sessionID, rule string) {
	rules, ok := g.fired[sessionID]
	if !ok {
		rules = make(map[string]struct{})
		g.fired[sessionID] = rules
	}
	rules[rule] = struct{}{}
}
